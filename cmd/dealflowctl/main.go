// dealflowctl — операторская утилита DealFlow.
//
// Использование:
//
//	dealflowctl [--config FILE] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	migrate   Миграции схемы
//	deals     Просмотр сделок и вердиктов
//	recover   Возврат зависших сделок в NEW
//	seed      Вставка синтетических сделок
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/shaiso/DealFlow/internal/cli"
	"github.com/shaiso/DealFlow/internal/config"
	"github.com/shaiso/DealFlow/internal/repo"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var configPath string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "dealflowctl",
		Short:         "DealFlow CLI — deal evaluation operations",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config (default: $DEALFLOW_CONFIG or "+config.DefaultConfigFile+")")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	var pool *pgxpool.Pool
	defer func() {
		if pool != nil {
			pool.Close()
		}
	}()

	loadConfig := func() (*config.Config, error) {
		if configPath == "" {
			return config.Load()
		}
		return config.LoadFrom(configPath)
	}

	dsnFn := func() (string, error) {
		cfg, err := loadConfig()
		if err != nil {
			return "", err
		}
		return cfg.Database.URL, nil
	}

	storeFn := func(ctx context.Context) (repo.Repository, error) {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		if cfg.Database.Driver == "memory" {
			return nil, fmt.Errorf("dealflowctl requires the postgres driver")
		}
		if pool == nil {
			if pool, err = repo.NewPool(ctx, cfg.Database); err != nil {
				return nil, err
			}
		}
		return repo.NewDealRepo(pool), nil
	}

	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewMigrateCmd(dsnFn, outputFn),
		cli.NewDealsCmd(storeFn, outputFn),
		cli.NewRecoverCmd(storeFn, outputFn),
		cli.NewSeedCmd(storeFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		if pool != nil {
			pool.Close()
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
