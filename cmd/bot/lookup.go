package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fpuinvestiga/gatekeeper-bot/internal/bot"
)

func lookupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <text>",
		Short: "Search the roster the way /buscar does",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.ValidateRoster(); err != nil {
				return err
			}
			matcher, err := openRoster(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			text, err := bot.Lookup(cmd.Context(), matcher, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
}
