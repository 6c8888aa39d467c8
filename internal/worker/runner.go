package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/shaiso/DealFlow/internal/domain"
	"github.com/shaiso/DealFlow/internal/reasoning"
	"github.com/shaiso/DealFlow/internal/steps"
	"github.com/shaiso/DealFlow/internal/telemetry"
)

// Default configuration values.
const (
	defaultMaxAttempts = 2
	defaultCallTimeout = 60 * time.Second
)

// Runner выполняет одну стадию цикла.
//
// Runner:
//   - Строит промпт стадии из CycleState
//   - Вызывает reasoning-коллаборатор с таймаутом на каждый вызов
//   - Разбирает и валидирует ответ
//   - При невалидном ответе повторяет вызов, добавляя текст ошибки в промпт
//
// Ошибки коллаборатора и таймауты не повторяются: стадия сразу
// завершается ошибкой. Единственный побочный эффект — сам вызов.
type Runner struct {
	client      reasoning.Client
	maxAttempts int
	callTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// Config — конфигурация Runner.
type Config struct {
	// Client — reasoning-коллаборатор. Может быть nil, если все стадии вычислительные.
	Client reasoning.Client

	MaxAttempts int           // попыток на стадию (default: 2)
	CallTimeout time.Duration // таймаут одного вызова (default: 60s)

	Logger *slog.Logger

	// Now — источник времени (для тестов).
	Now func() time.Time
}

// NewRunner создаёт Runner.
func NewRunner(cfg Config) *Runner {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Runner{
		client:      cfg.Client,
		maxAttempts: maxAttempts,
		callTimeout: callTimeout,
		logger:      logger,
		now:         now,
	}
}

// Run выполняет стадию и возвращает провалидированный выход.
// Seq выставляет вызывающая сторона.
func (r *Runner) Run(ctx context.Context, stage steps.Stage, state domain.CycleState) (domain.StageOutput, error) {
	name := stage.Name()
	logger := telemetry.WithStage(telemetry.WithDealID(r.logger, state.Deal.ID.String()), string(name), state.Cycle)

	ctx, span := telemetry.StartStageSpan(ctx, string(name), state.Cycle)
	defer span.End()

	out, err := r.run(ctx, logger, stage, state)
	if err != nil {
		var stageErr *StageError
		if errors.As(err, &stageErr) {
			telemetry.StageFailuresTotal.WithLabelValues(string(name), stageErr.Reason()).Inc()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("stage failed", "error", err)
		return domain.StageOutput{}, err
	}

	logger.Debug("stage completed",
		"score", out.Score,
		"confidence", out.Confidence,
		"attempts", out.Attempts,
	)
	return out, nil
}

func (r *Runner) run(ctx context.Context, logger *slog.Logger, stage steps.Stage, state domain.CycleState) (domain.StageOutput, error) {
	name := stage.Name()

	prompt := stage.Prompt(state, "")

	// Вычислительная стадия — без вызова коллаборатора
	if prompt == "" {
		out, err := stage.Parse(state, "")
		if err != nil {
			return domain.StageOutput{}, &StageError{Stage: name, Cycle: state.Cycle, Err: ErrStageFailed, Cause: err}
		}
		return r.finish(out, state, 0), nil
	}

	if r.client == nil {
		return domain.StageOutput{}, &StageError{Stage: name, Cycle: state.Cycle, Err: ErrStageFailed, Cause: reasoning.ErrMisconfigured}
	}

	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		telemetry.StageAttemptsTotal.WithLabelValues(string(name)).Inc()

		raw, err := r.call(ctx, stage.System(), prompt)
		if err != nil {
			category := ErrStageFailed
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				category = ErrStageTimeout
			}
			return domain.StageOutput{}, &StageError{Stage: name, Cycle: state.Cycle, Attempts: attempt, Err: category, Cause: err}
		}

		out, err := stage.Parse(state, raw)
		if err == nil {
			if attempt > 1 {
				logger.Info("stage retry succeeded", "attempt", attempt)
			}
			return r.finish(out, state, attempt), nil
		}

		lastErr = err
		if attempt < r.maxAttempts {
			logger.Warn("stage output invalid, retrying",
				"attempt", attempt,
				"error", err,
			)
			prompt = stage.Prompt(state, err.Error())
		}
	}

	return domain.StageOutput{}, &StageError{
		Stage:    name,
		Cycle:    state.Cycle,
		Attempts: r.maxAttempts,
		Err:      ErrValidationExhausted,
		Cause:    lastErr,
	}
}

// call выполняет один вызов коллаборатора с таймаутом.
func (r *Runner) call(ctx context.Context, system, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	return r.client.Complete(callCtx, reasoning.Request{System: system, Prompt: prompt})
}

func (r *Runner) finish(out domain.StageOutput, state domain.CycleState, attempts int) domain.StageOutput {
	out.Cycle = state.Cycle
	out.Attempts = attempts
	out.CreatedAt = r.now()
	return out
}
