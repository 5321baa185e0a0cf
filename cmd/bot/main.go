package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fpuinvestiga/gatekeeper-bot/internal/config"
)

const programName = "gatekeeper"

var (
	configFile string
	cfg        config.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Verifies Telegram join requests against the membership roster",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg = c
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveRun(cmd.Context(), cfg)
		},
	}

	rootCmd.PersistentFlags().
		StringVarP(&configFile, "config", "c", "config/example.yaml", "path to config file")

	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(lookupCommand())
	rootCmd.AddCommand(migrateCommand())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		os.Exit(1)
	}
}
