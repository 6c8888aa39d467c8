package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/DealFlow/internal/domain"
	"github.com/shaiso/DealFlow/internal/engine"
	"github.com/shaiso/DealFlow/internal/repo"
	"github.com/shaiso/DealFlow/internal/telemetry"
)

// Default configuration values.
const (
	defaultConcurrency    = 1
	defaultIdleBackoff    = time.Second
	defaultMaxIdleBackoff = 15 * time.Second

	// maxReasonLen — ограничение длины failure_reason.
	maxReasonLen = 500
)

// Workflow прогоняет сделку до вердикта (реализуется engine.Machine).
type Workflow interface {
	Run(ctx context.Context, deal domain.Deal) (*engine.Outcome, error)
}

// EventPublisher публикует события о сделках после записи (реализуется mq.Publisher).
type EventPublisher interface {
	PublishDealDecided(ctx context.Context, v domain.Verdict) error
	PublishDealFailed(ctx context.Context, dealID uuid.UUID, reason string) error
}

// Orchestrator — claim loop.
//
// Прогон сделки не прерывается извне: Stop дожидается, пока
// текущие сделки будут записаны, и только потом возвращает управление.
type Orchestrator struct {
	store     repo.Store
	workflow  Workflow
	publisher EventPublisher
	wake      <-chan struct{}

	// Configuration
	concurrency    int
	idleBackoff    time.Duration
	maxIdleBackoff time.Duration

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	group      *errgroup.Group
	started    bool
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Orchestrator.
type Config struct {
	Store    repo.Store
	Workflow Workflow

	// Publisher — необязательная шина событий.
	Publisher EventPublisher

	// Wake — необязательный сигнал о появлении новых сделок.
	Wake <-chan struct{}

	Concurrency    int           // число циклов (default: 1)
	IdleBackoff    time.Duration // ожидание при отсутствии работы (default: 1s)
	MaxIdleBackoff time.Duration // верхняя граница ожидания (default: 15s)

	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil || cfg.Workflow == nil {
		return nil, ErrNotConfigured
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	idleBackoff := cfg.IdleBackoff
	if idleBackoff <= 0 {
		idleBackoff = defaultIdleBackoff
	}

	maxIdleBackoff := cfg.MaxIdleBackoff
	if maxIdleBackoff < idleBackoff {
		maxIdleBackoff = max(idleBackoff, defaultMaxIdleBackoff)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		store:          cfg.Store,
		workflow:       cfg.Workflow,
		publisher:      cfg.Publisher,
		wake:           cfg.Wake,
		concurrency:    concurrency,
		idleBackoff:    idleBackoff,
		maxIdleBackoff: maxIdleBackoff,
		logger:         logger,
	}, nil
}

// Start запускает Concurrency циклов и сразу возвращает управление.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.stoppedMu.Lock()
	defer o.stoppedMu.Unlock()

	if o.stopped {
		return ErrOrchestratorStopped
	}
	if o.started {
		return ErrAlreadyStarted
	}
	o.started = true

	ctx, cancel := context.WithCancel(ctx)
	o.cancelFunc = cancel

	o.logger.Info("starting orchestrator",
		"concurrency", o.concurrency,
		"idle_backoff", o.idleBackoff,
		"max_idle_backoff", o.maxIdleBackoff,
	)

	g, gctx := errgroup.WithContext(ctx)
	for n := range o.concurrency {
		g.Go(func() error {
			o.loop(gctx, n)
			return nil
		})
	}
	o.group = g

	o.logger.Info("orchestrator started")
	return nil
}

// Stop останавливает циклы и ждёт завершения текущих сделок.
func (o *Orchestrator) Stop() {
	o.stoppedMu.Lock()
	if o.stopped {
		o.stoppedMu.Unlock()
		return
	}
	o.stopped = true
	cancel, group := o.cancelFunc, o.group
	o.stoppedMu.Unlock()

	o.logger.Info("stopping orchestrator...")

	if cancel != nil {
		cancel()
	}
	if group != nil {
		_ = group.Wait()
	}

	o.logger.Info("orchestrator stopped")
}

// IsStopped проверяет, остановлен ли Orchestrator.
func (o *Orchestrator) IsStopped() bool {
	o.stoppedMu.RLock()
	defer o.stoppedMu.RUnlock()
	return o.stopped
}

// loop — один независимый цикл claim → run → commit.
func (o *Orchestrator) loop(ctx context.Context, n int) {
	logger := telemetry.WithWorker(o.logger, n)
	backoff := o.idleBackoff

	for ctx.Err() == nil {
		processed, err := o.ProcessOne(ctx)
		if err != nil && ctx.Err() == nil {
			logger.Error("process deal failed", "error", err)
		}
		if processed {
			backoff = o.idleBackoff
			continue
		}

		if !o.idle(ctx, backoff) {
			return
		}
		backoff = min(backoff*2, o.maxIdleBackoff)
	}
}

// idle ждёт backoff или сигнала wake. Возвращает false при отмене ctx.
func (o *Orchestrator) idle(ctx context.Context, backoff time.Duration) bool {
	timer := time.NewTimer(backoff)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	case <-o.wake:
		return true
	}
}

// ProcessOne выполняет одну итерацию цикла.
//
// Возвращает false, если сделки не нашлось или claim не удался.
// Ошибка возвращается только при сбое хранилища; прерванный
// прогон (ABORT) не считается ошибкой итерации.
func (o *Orchestrator) ProcessOne(ctx context.Context) (bool, error) {
	deal, err := o.store.ClaimNext(ctx)
	if errors.Is(err, repo.ErrNoWork) {
		telemetry.ClaimsTotal.WithLabelValues(telemetry.ClaimResultEmpty).Inc()
		return false, nil
	}
	if err != nil {
		telemetry.ClaimsTotal.WithLabelValues(telemetry.ClaimResultError).Inc()
		return false, fmt.Errorf("claim: %w", err)
	}
	telemetry.ClaimsTotal.WithLabelValues(telemetry.ClaimResultClaimed).Inc()

	// Сделка уже захвачена: доводим её до записи, даже если цикл останавливают
	runCtx := context.WithoutCancel(ctx)
	runCtx, span := telemetry.StartRunSpan(runCtx, deal.ID.String())
	defer span.End()

	logger := telemetry.WithDealID(o.logger, deal.ID.String())
	logger.Info("deal claimed", "sector", deal.Sector)

	outcome, err := o.workflow.Run(runCtx, *deal)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return true, o.fail(runCtx, logger, deal.ID, err)
	}

	return true, o.commit(runCtx, logger, deal.ID, outcome)
}

// commit записывает результат прогона.
// При ошибке сделка остаётся в PROCESSING до ручного recover.
func (o *Orchestrator) commit(ctx context.Context, logger *slog.Logger, dealID uuid.UUID, outcome *engine.Outcome) error {
	ctx, span := telemetry.StartCommitSpan(ctx, dealID.String(), string(domain.DealStatusFinalized))
	defer span.End()

	if err := o.store.CommitResult(ctx, dealID, outcome.Outputs, outcome.Verdict); err != nil {
		telemetry.CommitFailuresTotal.Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("commit failed, deal left in PROCESSING", "error", err)
		return fmt.Errorf("commit deal %s: %w", dealID, err)
	}

	v := outcome.Verdict
	telemetry.VerdictsTotal.WithLabelValues(string(v.Decision), string(v.Source)).Inc()
	telemetry.RunDuration.Observe(v.Duration.Seconds())
	telemetry.Cycles.Observe(float64(outcome.Cycles))

	logger.Info("deal finalized",
		"decision", v.Decision,
		"source", v.Source,
		"cycles", v.Cycles,
		"duration", v.Duration,
	)

	if o.publisher != nil {
		if err := o.publisher.PublishDealDecided(ctx, v); err != nil {
			logger.Warn("failed to publish verdict event", "error", err)
		}
	}
	return nil
}

// fail переводит сделку в FAILED после прерванного прогона.
func (o *Orchestrator) fail(ctx context.Context, logger *slog.Logger, dealID uuid.UUID, runErr error) error {
	ctx, span := telemetry.StartCommitSpan(ctx, dealID.String(), string(domain.DealStatusFailed))
	defer span.End()

	reason := failureReason(runErr)

	if err := o.store.MarkFailed(ctx, dealID, reason); err != nil {
		telemetry.CommitFailuresTotal.Inc()
		span.RecordError(err)
		logger.Error("mark failed failed, deal left in PROCESSING", "error", err, "reason", reason)
		return fmt.Errorf("mark deal %s failed: %w", dealID, err)
	}

	telemetry.DealsFailedTotal.Inc()
	logger.Warn("deal failed", "reason", reason)

	if o.publisher != nil {
		if err := o.publisher.PublishDealFailed(ctx, dealID, reason); err != nil {
			logger.Warn("failed to publish failure event", "error", err)
		}
	}
	return nil
}

// failureReason строит текст причины для failure_reason.
func failureReason(err error) string {
	reason := err.Error()

	var abortErr *engine.AbortError
	if errors.As(err, &abortErr) && abortErr.Err != nil {
		reason = abortErr.Err.Error()
	}

	return truncate(reason, maxReasonLen)
}

// truncate обрезает s до n байт, не разрывая UTF-8 символ.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
