package worker

import (
	"errors"
	"fmt"

	"github.com/shaiso/DealFlow/internal/domain"
)

// Ошибки выполнения стадии.
var (
	// ErrValidationExhausted — все попытки получить валидный ответ исчерпаны.
	ErrValidationExhausted = errors.New("validation attempts exhausted")

	// ErrStageTimeout — вызов коллаборатора превысил таймаут.
	ErrStageTimeout = errors.New("stage call timeout")

	// ErrStageFailed — коллаборатор вернул ошибку или стадия не смогла построить выход.
	ErrStageFailed = errors.New("stage failed")
)

// StageError — ошибка стадии с контекстом.
//
// Err — одна из ошибок пакета (ErrValidationExhausted, ErrStageTimeout,
// ErrStageFailed), Cause — исходная ошибка.
type StageError struct {
	Stage    domain.StageName
	Cycle    int
	Attempts int
	Err      error
	Cause    error
}

// Error реализует интерфейс error.
func (e *StageError) Error() string {
	msg := fmt.Sprintf("stage %s (cycle %d, attempts %d): %v", e.Stage, e.Cycle, e.Attempts, e.Err)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap возвращает и категорию, и исходную ошибку,
// чтобы errors.Is работал для обеих.
func (e *StageError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// Reason возвращает короткую категорию для метрик.
func (e *StageError) Reason() string {
	switch {
	case errors.Is(e.Err, ErrValidationExhausted):
		return "validation"
	case errors.Is(e.Err, ErrStageTimeout):
		return "timeout"
	default:
		return "failed"
	}
}
