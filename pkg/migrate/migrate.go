// Package migrate applies the goose SQL migrations compiled into every
// binary, so the API, the cron worker and the migrate tool always agree on
// the schema version they expect.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strconv"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/lessongate-backend/pkg/config"
	"github.com/angelmondragon/lessongate-backend/pkg/db"
	"github.com/angelmondragon/lessongate-backend/pkg/logger"
)

// SourceDir is where new migrations are written, relative to the repo root.
const SourceDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Migrations returns the embedded migration files.
func Migrations() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Applied describes one migration that ran.
type Applied struct {
	Version   int64
	Name      string
	Direction string
	Took      time.Duration
}

// State is one row of the status report.
type State struct {
	Version   int64
	Name      string
	Applied   bool
	AppliedAt time.Time
}

type Runner struct {
	provider *goose.Provider
}

// NewRunner prepares migrations from fsys against a Postgres database.
func NewRunner(sqlDB *sql.DB, fsys fs.FS) (*Runner, error) {
	return newRunner(goose.DialectPostgres, sqlDB, fsys)
}

func newRunner(dialect goose.Dialect, sqlDB *sql.DB, fsys fs.FS) (*Runner, error) {
	if sqlDB == nil {
		return nil, errors.New("db is required")
	}
	provider, err := goose.NewProvider(dialect, sqlDB, fsys)
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	return &Runner{provider: provider}, nil
}

func (r *Runner) Up(ctx context.Context) ([]Applied, error) {
	results, err := r.provider.Up(ctx)
	return applied(results), wrap("up", err)
}

// Down rolls back the most recent migration.
func (r *Runner) Down(ctx context.Context) (*Applied, error) {
	result, err := r.provider.Down(ctx)
	if err != nil {
		return nil, wrap("down", err)
	}
	out := applied([]*goose.MigrationResult{result})
	return &out[0], nil
}

// To moves the schema up or down until target is the current version.
func (r *Runner) To(ctx context.Context, target int64) ([]Applied, error) {
	current, err := r.Version(ctx)
	if err != nil {
		return nil, err
	}
	switch {
	case current == target:
		return nil, nil
	case current < target:
		results, err := r.provider.UpTo(ctx, target)
		return applied(results), wrap(fmt.Sprintf("up to %d", target), err)
	default:
		results, err := r.provider.DownTo(ctx, target)
		return applied(results), wrap(fmt.Sprintf("down to %d", target), err)
	}
}

func (r *Runner) Version(ctx context.Context) (int64, error) {
	v, err := r.provider.GetDBVersion(ctx)
	return v, wrap("read version", err)
}

func (r *Runner) Status(ctx context.Context) ([]State, error) {
	statuses, err := r.provider.Status(ctx)
	if err != nil {
		return nil, wrap("status", err)
	}
	out := make([]State, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, State{
			Version:   s.Source.Version,
			Name:      path.Base(s.Source.Path),
			Applied:   s.State == goose.StateApplied,
			AppliedAt: s.AppliedAt,
		})
	}
	return out, nil
}

// ParseVersion accepts the YYYYMMDDHHMMSS prefix of a migration file.
func ParseVersion(value string) (int64, error) {
	v, err := strconv.ParseInt(value, 10, 64)
	if err != nil || len(value) != len(versionLayout) {
		return 0, fmt.Errorf("invalid version %q (expected %s)", value, "YYYYMMDDHHMMSS")
	}
	return v, nil
}

// MaybeRunDev applies pending migrations on boot in dev when the
// auto-migrate feature flag is set.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.Features.AutoMigrate {
		return nil
	}
	sqlDB, err := client.SQL()
	if err != nil {
		return err
	}
	runner, err := NewRunner(sqlDB, Migrations())
	if err != nil {
		return err
	}
	results, err := runner.Up(ctx)
	if err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "applied", len(results)), "migrate.autorun")
	return nil
}

func applied(results []*goose.MigrationResult) []Applied {
	out := make([]Applied, 0, len(results))
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		out = append(out, Applied{
			Version:   res.Source.Version,
			Name:      path.Base(res.Source.Path),
			Direction: res.Direction,
			Took:      res.Duration,
		})
	}
	return out
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("goose %s: %w", op, err)
}
