package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/DealFlow/internal/repo"
	"github.com/shaiso/DealFlow/internal/scheduler"
	"github.com/shaiso/DealFlow/internal/telemetry"
)

// DSNFunc возвращает строку подключения к PostgreSQL.
type DSNFunc func() (string, error)

// NewMigrateCmd создаёт группу команд для миграций схемы.
func NewMigrateCmd(dsnFn DSNFunc, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, err := dsnFn()
			if err != nil {
				return err
			}
			if err := repo.Migrate(cmd.Context(), dsn); err != nil {
				return err
			}
			outputFn().Success("Migrations applied")
			return nil
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps <= 0 {
				return fmt.Errorf("--steps must be positive")
			}
			dsn, err := dsnFn()
			if err != nil {
				return err
			}
			if err := repo.Rollback(cmd.Context(), dsn, steps); err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Rolled back %d migration(s)", steps))
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")

	version := &cobra.Command{
		Use:   "version",
		Short: "Show current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, err := dsnFn()
			if err != nil {
				return err
			}
			v, err := repo.MigrationVersion(cmd.Context(), dsn)
			if err != nil {
				return err
			}
			return outputFn().Print([]string{"VERSION"}, [][]string{{fmt.Sprint(v)}}, map[string]int64{"version": v})
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}

// NewRecoverCmd создаёт команду возврата зависших сделок в NEW.
func NewRecoverCmd(storeFn StoreFunc, outputFn func() *Output) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Return deals stuck in PROCESSING back to NEW",
		Long: "Resets deals that were claimed earlier than --older-than ago and never committed.\n" +
			"Run only when no worker could still be processing them.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}

			store, err := storeFn(cmd.Context())
			if err != nil {
				return err
			}

			n, err := store.ResetStuck(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Recovered %d deal(s)", n))
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*time.Minute, "Reset deals claimed before now minus this duration")
	return cmd
}

// NewSeedCmd создаёт команду вставки синтетических сделок.
func NewSeedCmd(storeFn StoreFunc, outputFn func() *Output) *cobra.Command {
	var count int
	var seed uint64

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert synthetic deals",
		RunE: func(cmd *cobra.Command, args []string) error {
			if count <= 0 {
				return fmt.Errorf("--count must be positive")
			}

			store, err := storeFn(cmd.Context())
			if err != nil {
				return err
			}

			n, err := seedDeals(cmd.Context(), store, count, seed)
			if err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Inserted %d deal(s)", n))
			return nil
		},
	}

	cmd.Flags().IntVar(&count, "count", 10, "Number of deals to insert")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Random seed (0 = random)")
	return cmd
}

func seedDeals(ctx context.Context, store repo.Repository, count int, seed uint64) (int, error) {
	p, err := scheduler.New(scheduler.Config{
		Store:  store,
		Seed:   seed,
		Logger: telemetry.Discard(),
	})
	if err != nil {
		return 0, err
	}
	return p.Produce(ctx, count)
}
