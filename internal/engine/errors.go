package engine

import (
	"errors"
	"fmt"

	"github.com/shaiso/DealFlow/internal/domain"
)

// Ошибки машины состояний.
var (
	// ErrAborted — прогон прерван ошибкой стадии, вердикта нет.
	ErrAborted = errors.New("workflow aborted")

	// ErrExecutionBound — превышено допустимое число выполнений стадий.
	ErrExecutionBound = errors.New("stage execution bound exceeded")

	// ErrIncompleteCycle — арбитраж без выходов всех стадий цикла.
	ErrIncompleteCycle = errors.New("cycle outputs incomplete")
)

// AbortError — прогон прерван.
//
// Err — исходная ошибка стадии. errors.Is(err, ErrAborted) всегда true.
type AbortError struct {
	Stage domain.StageName
	Cycle int
	Trace []State
	Err   error
}

// Error реализует интерфейс error.
func (e *AbortError) Error() string {
	return fmt.Sprintf("workflow aborted at %s (cycle %d): %v", e.Stage, e.Cycle, e.Err)
}

// Unwrap возвращает ErrAborted и исходную ошибку.
func (e *AbortError) Unwrap() []error {
	return []error{ErrAborted, e.Err}
}
