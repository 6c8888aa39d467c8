// DealFlow Producer — генерирует синтетические сделки по расписанию.
//
// Producer:
//   - Вставляет сделки NEW по cron-расписанию
//   - Публикует deal.new, чтобы разбудить воркеров
//   - При нескольких репликах тики выполняет только лидер (pg_try_advisory_lock)
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

	"github.com/shaiso/DealFlow/internal/config"
	"github.com/shaiso/DealFlow/internal/mq"
	"github.com/shaiso/DealFlow/internal/repo"
	"github.com/shaiso/DealFlow/internal/scheduler"
	"github.com/shaiso/DealFlow/internal/telemetry"
)

const producerPort = ":8083"

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting dealflow-producer")

	if err := run(logger); err != nil {
		logger.Error("dealflow-producer failed", "error", err)
		os.Exit(1)
	}
	logger.Info("dealflow-producer stopped")
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Database.Driver == "memory" {
		return errors.New("producer requires the postgres driver")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := repo.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info("database connected")

	leader := repo.NewLeader(pool, repo.ProducerLockKey)
	defer leader.Release(context.Background())

	var notifier scheduler.Notifier
	if cfg.RabbitMQ.URL != "" {
		mqConn, err := mq.NewConnection(cfg.RabbitMQ.URL, logger, mq.WithName("dealflow-producer"), mq.WithTopology())
		if err != nil {
			logger.Warn("RabbitMQ not available, workers will rely on polling", "error", err)
		} else {
			defer mqConn.Close()
			notifier = mq.NewPublisher(mqConn, logger)
		}
	}

	producer, err := scheduler.New(scheduler.Config{
		Store:     repo.NewDealRepo(pool),
		Notifier:  notifier,
		Leader:    leader.TryAcquire,
		Schedule:  cfg.Producer.Schedule,
		BatchSize: cfg.Producer.BatchSize,
		Seed:      cfg.Producer.Seed,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	if err := producer.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr: producerPort,
		Handler: telemetry.OpsMux(func(r *http.Request) error {
			return pool.Ping(r.Context())
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	producer.Stop()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	return srv.Shutdown(shutdownCtx)
}
