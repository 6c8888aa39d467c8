// DealFlow Worker — оценивает сделки.
//
// Worker:
//   - Захватывает сделки NEW из хранилища (claim loop)
//   - Прогоняет их через scout → contrarian → judge (до 2 циклов)
//   - Записывает выходы стадий и вердикт одной транзакцией
//   - Публикует события deal.decided / deal.failed в RabbitMQ
//
// Workers масштабируются горизонтально: claim исключает повторную обработку.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/DealFlow/internal/config"
	"github.com/shaiso/DealFlow/internal/engine"
	"github.com/shaiso/DealFlow/internal/mq"
	"github.com/shaiso/DealFlow/internal/orchestrator"
	"github.com/shaiso/DealFlow/internal/reasoning"
	"github.com/shaiso/DealFlow/internal/repo"
	"github.com/shaiso/DealFlow/internal/steps"
	"github.com/shaiso/DealFlow/internal/telemetry"
	"github.com/shaiso/DealFlow/internal/worker"
)

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting dealflow-worker")

	if err := run(logger); err != nil {
		logger.Error("dealflow-worker failed", "error", err)
		os.Exit(1)
	}
	logger.Info("dealflow-worker stopped")
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.Tracing.Endpoint, cfg.Tracing.ServiceName)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	// Хранилище
	var store repo.Store
	var pool *pgxpool.Pool
	switch cfg.Database.Driver {
	case "memory":
		logger.Warn("using in-memory store, results are not persisted")
		store = repo.NewMemStore()
	default:
		if cfg.Database.AutoMigrate {
			if err := repo.Migrate(ctx, cfg.Database.URL); err != nil {
				return err
			}
			logger.Info("migrations applied")
		}

		pool, err = repo.NewPool(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()
		logger.Info("database connected")
		store = repo.NewDealRepo(pool)
	}

	// Reasoning-коллаборатор
	client := reasoning.NewBreaker(
		reasoning.NewChatClient(reasoning.ChatConfig{
			URL:         cfg.LLM.URL,
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
		}),
		cfg.LLM.BreakerMaxFailures,
		cfg.LLM.BreakerTimeout,
	)

	runner := worker.NewRunner(worker.Config{
		Client:      client,
		MaxAttempts: cfg.Stages.MaxAttempts,
		CallTimeout: cfg.Stages.CallTimeout,
		Logger:      logger,
	})

	machine, err := engine.New(engine.Config{
		Runner: runner,
		Registry: steps.DefaultRegistry(steps.Options{
			Params:                cfg.Decision,
			Annotate:              cfg.Stages.Annotate,
			DisagreementThreshold: cfg.Workflow.DisagreementThreshold,
		}),
		Policy: engine.Policy{
			MaxCycles:             cfg.Workflow.MaxCycles,
			DisagreementThreshold: cfg.Workflow.DisagreementThreshold,
		},
		Params: cfg.Decision,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	// RabbitMQ: необязательная шина событий и пробуждения
	wake := make(chan struct{}, 1)
	var publisher orchestrator.EventPublisher
	if cfg.RabbitMQ.URL != "" {
		mqConn, err := mq.NewConnection(cfg.RabbitMQ.URL, logger, mq.WithName("dealflow-worker"), mq.WithTopology())
		if err != nil {
			logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
		} else {
			defer mqConn.Close()
			publisher = mq.NewPublisher(mqConn, logger)

			consumer := mq.NewConsumer(mqConn, logger, mq.ConsumerConfig{
				Queue:   mq.QueueDealsNew,
				Handler: mq.WakeHandler(wake),
			})
			go func() {
				if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
					logger.Warn("wake-up consumer stopped", "error", err)
				}
			}()
			defer consumer.Stop()
		}
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Store:          store,
		Workflow:       machine,
		Publisher:      publisher,
		Wake:           wake,
		Concurrency:    cfg.Worker.Concurrency,
		IdleBackoff:    cfg.Worker.IdleBackoff,
		MaxIdleBackoff: cfg.Worker.MaxIdleBackoff,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	if err := orch.Start(ctx); err != nil {
		return err
	}

	// HTTP: /healthz + /metrics
	health := func(r *http.Request) error {
		if pool == nil {
			return nil
		}
		return pool.Ping(r.Context())
	}
	srv := &http.Server{
		Addr:              ":" + cfg.Worker.Port,
		Handler:           telemetry.OpsMux(health),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	// Сначала дожидаемся текущих прогонов, потом гасим HTTP
	orch.Stop()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	return srv.Shutdown(shutdownCtx)
}
