package reasoning

import (
	"context"
	"errors"
	"fmt"
)

// Ошибки reasoning-коллаборатора.
var (
	// ErrMisconfigured — клиент не настроен (нет URL или модели).
	ErrMisconfigured = errors.New("reasoning client misconfigured")

	// ErrEmptyResponse — коллаборатор вернул ответ без текста.
	ErrEmptyResponse = errors.New("empty reasoning response")

	// ErrCircuitOpen — circuit breaker открыт, вызов не выполнялся.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// Request — запрос к коллаборатору.
type Request struct {
	// System — системная инструкция (роль аналитика).
	System string

	// Prompt — входные данные стадии.
	Prompt string
}

// Client — внешний reasoning-коллаборатор.
//
// Complete возвращает сырой текст ответа. Разбор и валидация
// выполняются стадией, а не клиентом.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// StatusError — коллаборатор ответил HTTP-ошибкой.
type StatusError struct {
	Code int
	Body string
}

// Error реализует интерфейс error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("reasoning http %d: %s", e.Code, e.Body)
}
