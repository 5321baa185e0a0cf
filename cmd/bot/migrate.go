package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/fpuinvestiga/gatekeeper-bot/internal/infra/db"
	"github.com/fpuinvestiga/gatekeeper-bot/internal/infra/logger"
)

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the audit log migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Postgres.DSN == "" {
				return errors.New("postgres.dsn is not set")
			}
			if err := db.Migrate(cmd.Context(), cfg.Postgres.DSN); err != nil {
				return err
			}
			logger.New(cfg.App.Env).Info("migrations applied")
			return nil
		},
	}
}
