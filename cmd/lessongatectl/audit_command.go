package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newAuditCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent audit log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := ctx.audit().List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No audit entries")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				actor := "system"
				if e.ActorID != nil {
					actor = e.ActorID.String()
				}
				rows = append(rows, []string{
					e.CreatedAt.UTC().Format(time.RFC3339),
					e.Action,
					e.TargetType + ":" + e.TargetID,
					actor,
					orDash(deref(e.Detail)),
				})
			}
			fmt.Fprintln(out, renderTable([]string{"When", "Action", "Target", "Actor", "Detail"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of entries")
	return cmd
}
