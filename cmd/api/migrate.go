package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/travelmap/ratings-api/internal/adapters/postgres"
	"github.com/travelmap/ratings-api/internal/platform/logger"
)

func NewMigrateCommand() *cobra.Command {
	f := NewServeFlags()

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the postgres schema migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.Load()
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Log.Mode)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			pool, err := postgres.NewPool(cmd.Context(), cfg.Storage.Postgres.DSN, postgres.PoolOptions{})
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := postgres.Migrate(cmd.Context(), pool); err != nil {
				return err
			}
			log.Info("migrations applied", zap.String("storage", cfg.Storage.Backend))
			return nil
		},
	}
	cmd.Flags().StringVar(&f.ConfigPath, "config", "", "Path to a YAML config file; environment variables override it")
	return cmd
}
