// Command migrate manages the Postgres schema with the migrations embedded
// in pkg/migrate. create and validate work on the source directory and need
// no database.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/lessongate-backend/pkg/config"
	"github.com/angelmondragon/lessongate-backend/pkg/db"
	"github.com/angelmondragon/lessongate-backend/pkg/logger"
	"github.com/angelmondragon/lessongate-backend/pkg/migrate"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var dir string
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply and author lessongate schema migrations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dir, "dir", migrate.SourceDir, "migration source directory (create, validate)")

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: withRunner(func(ctx context.Context, out io.Writer, r *migrate.Runner) error {
				results, err := r.Up(ctx)
				printApplied(out, results)
				return err
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the latest migration",
			RunE: withRunner(func(ctx context.Context, out io.Writer, r *migrate.Runner) error {
				result, err := r.Down(ctx)
				if err != nil {
					return err
				}
				printApplied(out, []migrate.Applied{*result})
				return nil
			}),
		},
		&cobra.Command{
			Use:   "to <version>",
			Short: "Migrate up or down to an exact version",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				target, err := migrate.ParseVersion(args[0])
				if err != nil {
					return err
				}
				return withRunner(func(ctx context.Context, out io.Writer, r *migrate.Runner) error {
					results, err := r.To(ctx, target)
					printApplied(out, results)
					return err
				})(cmd, args)
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "List migrations and whether each is applied",
			RunE: withRunner(func(ctx context.Context, out io.Writer, r *migrate.Runner) error {
				states, err := r.Status(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, renderStatus(states))
				return nil
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			RunE: withRunner(func(ctx context.Context, out io.Writer, r *migrate.Runner) error {
				v, err := r.Version(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, v)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "create <name>",
			Short: "Write an empty migration into --dir",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := migrate.CreateSQLMigration(dir, args[0], time.Now())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "created", path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Check migration names and goose annotations in --dir",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := migrate.ValidateDir(dir); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "ok")
				return nil
			},
		},
	)
	return root
}

type runnerFunc func(ctx context.Context, out io.Writer, r *migrate.Runner) error

// withRunner loads config, connects and hands fn a runner over the embedded
// migrations.
func withRunner(fn runnerFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		_ = godotenv.Load()
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logg := logger.ForApp("migrate", cfg.App)
		ctx := logg.WithFields(cmd.Context(), map[string]any{"env": cfg.App.Env, "command": cmd.Name()})

		client, err := db.New(ctx, cfg.DB, logg)
		if err != nil {
			return err
		}
		defer client.Close()
		sqlDB, err := client.SQL()
		if err != nil {
			return err
		}
		return run(ctx, logg, sqlDB, cmd.OutOrStdout(), fn)
	}
}

func run(ctx context.Context, logg *logger.Logger, sqlDB *sql.DB, out io.Writer, fn runnerFunc) error {
	runner, err := migrate.NewRunner(sqlDB, migrate.Migrations())
	if err != nil {
		return err
	}
	if err := fn(ctx, out, runner); err != nil {
		logg.Error(ctx, "migrate.failed", err)
		return err
	}
	logg.Info(ctx, "migrate.done")
	return nil
}

func printApplied(out io.Writer, results []migrate.Applied) {
	if len(results) == 0 {
		fmt.Fprintln(out, "nothing to do")
		return
	}
	for _, r := range results {
		fmt.Fprintf(out, "%-4s %s (%s)\n", r.Direction, r.Name, r.Took.Round(time.Millisecond))
	}
}

func renderStatus(states []migrate.State) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Version", "Migration", "Applied At"})
	for _, s := range states {
		applied := "pending"
		if s.Applied {
			applied = s.AppliedAt.UTC().Format(time.RFC3339)
		}
		tw.AppendRow(table.Row{s.Version, s.Name, applied})
	}
	return tw.Render()
}
