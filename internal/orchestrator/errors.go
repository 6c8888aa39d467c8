package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrNotConfigured — не заданы хранилище или workflow.
	ErrNotConfigured = errors.New("orchestrator: store and workflow are required")

	// ErrAlreadyStarted — Start вызван повторно.
	ErrAlreadyStarted = errors.New("orchestrator already started")

	// ErrOrchestratorStopped — оркестратор остановлен.
	ErrOrchestratorStopped = errors.New("orchestrator stopped")
)
