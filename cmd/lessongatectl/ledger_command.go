package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/lessongate-backend/internal/ledger"
)

func newLedgerCommand(ctx *commandContext) *cobra.Command {
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and prune processed webhook events",
	}
	ledgerCmd.AddCommand(newLedgerCheckCommand(ctx))
	ledgerCmd.AddCommand(newLedgerPruneCommand(ctx))
	return ledgerCmd
}

func newLedgerCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check <provider> <event-id>",
		Short: "Report whether an event was already processed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			seen, err := ledger.New(ctx.conn).Exists(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s/%s processed: %s\n", args[0], args[1], strconv.FormatBool(seen))
			return nil
		},
	}
}

func newLedgerPruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	var batch int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete processed-event markers past retention",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				olderThan = ctx.cfg.Cron.LedgerRetention
			}
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			removed, err := ledger.New(ctx.conn).Prune(cmd.Context(), time.Now().Add(-olderThan), batch)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d processed events older than %s\n", removed, olderThan)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Retention window (defaults to the cron retention)")
	cmd.Flags().IntVar(&batch, "batch", 1000, "Rows deleted per statement")
	return cmd
}
