package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/shaiso/DealFlow/internal/domain"
	"github.com/shaiso/DealFlow/internal/telemetry"
)

// Default configuration values.
const (
	defaultSchedule  = "@every 6s"
	defaultBatchSize = 1
)

// DealInserter сохраняет новые сделки (repo.DealRepo, repo.MemStore).
type DealInserter interface {
	Insert(ctx context.Context, deal *domain.Deal) error
}

// Notifier будит воркеры после вставки (mq.Publisher).
type Notifier interface {
	PublishDealNew(ctx context.Context, dealID uuid.UUID) error
}

// LeaderFunc сообщает, должен ли этот процесс выполнять тик.
type LeaderFunc func(ctx context.Context) (bool, error)

// Producer по расписанию вставляет синтетические сделки.
type Producer struct {
	store    DealInserter
	notifier Notifier
	leader   LeaderFunc
	logger   *slog.Logger
	now      func() time.Time

	schedule  string
	batchSize int

	rngMu sync.Mutex
	rng   *rand.Rand

	cron *cron.Cron
}

// Config — конфигурация Producer.
type Config struct {
	Store DealInserter

	// Notifier — необязательная шина для пробуждения воркеров.
	Notifier Notifier

	// Leader — необязательная проверка лидерства при нескольких продюсерах.
	Leader LeaderFunc

	Schedule  string // расписание (default: @every 6s)
	BatchSize int    // сделок за тик (default: 1)
	Seed      uint64 // 0 — случайное зерно

	Logger *slog.Logger
	Now    func() time.Time
}

// New создаёт Producer. Ошибка, если расписание невалидно.
func New(cfg Config) (*Producer, error) {
	if cfg.Store == nil {
		return nil, errors.New("producer: store is required")
	}

	schedule := cfg.Schedule
	if schedule == "" {
		schedule = defaultSchedule
	}
	if err := ValidateSchedule(schedule); err != nil {
		return nil, err
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Producer{
		store:     cfg.Store,
		notifier:  cfg.Notifier,
		leader:    cfg.Leader,
		logger:    logger,
		now:       now,
		schedule:  schedule,
		batchSize: batchSize,
		rng:       NewRand(cfg.Seed),
	}, nil
}

// Tick вставляет BatchSize сделок и возвращает число вставленных.
//
// Ошибка вставки прерывает тик; ошибка публикации только логируется:
// воркеры найдут сделку опросом.
func (p *Producer) Tick(ctx context.Context) (int, error) {
	if p.leader != nil {
		ok, err := p.leader(ctx)
		if err != nil {
			return 0, fmt.Errorf("leader check: %w", err)
		}
		if !ok {
			p.logger.Debug("not a leader, skipping tick")
			return 0, nil
		}
	}

	return p.Produce(ctx, p.batchSize)
}

// Produce вставляет n сделок без проверки лидерства.
func (p *Producer) Produce(ctx context.Context, n int) (int, error) {
	inserted := 0
	for range n {
		deal := p.generate()

		if err := p.store.Insert(ctx, deal); err != nil {
			return inserted, fmt.Errorf("insert deal: %w", err)
		}
		inserted++
		telemetry.DealsProducedTotal.Inc()

		p.logger.Info("deal produced",
			"deal_id", deal.ID,
			"sector", deal.Sector,
			"revenue_m", deal.Revenue/1e6,
			"gross_margin", deal.GrossMargin,
			"ebitda_margin", deal.EBITDAMargin,
			"fcf_k", deal.FreeCashFlow/1e3,
			"employees", deal.EmployeeCount,
			"age", deal.Age(p.now()),
		)

		if p.notifier != nil {
			if err := p.notifier.PublishDealNew(ctx, deal.ID); err != nil {
				p.logger.Warn("failed to publish wake-up", "deal_id", deal.ID, "error", err)
			}
		}
	}
	return inserted, nil
}

func (p *Producer) generate() *domain.Deal {
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	return Generate(p.rng, p.now())
}

// Start запускает тики по расписанию. Тики не перекрываются.
func (p *Producer) Start(ctx context.Context) error {
	p.cron = cron.New(
		cron.WithParser(cronParser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	_, err := p.cron.AddFunc(p.schedule, func() {
		if _, err := p.Tick(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error("producer tick failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule producer: %w", err)
	}

	p.cron.Start()
	p.logger.Info("producer started", "schedule", p.schedule, "batch_size", p.batchSize)
	return nil
}

// Stop останавливает расписание и ждёт завершения текущего тика.
func (p *Producer) Stop() {
	if p.cron == nil {
		return
	}
	<-p.cron.Stop().Done()
	p.logger.Info("producer stopped")
}
