package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/lessongate-backend/pkg/logger"
)

const (
	defaultLedgerRetention = 90 * 24 * time.Hour
	defaultLedgerBatch     = 1000
)

type ledgerPruner interface {
	Prune(ctx context.Context, cutoff time.Time, batch int) (int64, error)
}

type LedgerRetentionJobParams struct {
	Logger    *logger.Logger
	Ledger    ledgerPruner
	Retention time.Duration
	Batch     int
}

// NewLedgerRetentionJob deletes processed-event rows older than the
// retention window. Providers stop redelivering long before it elapses.
func NewLedgerRetentionJob(params LedgerRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultLedgerRetention
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultLedgerBatch
	}
	return &ledgerRetentionJob{
		logg:      params.Logger,
		ledger:    params.Ledger,
		retention: retention,
		batch:     batch,
		now:       time.Now,
	}, nil
}

type ledgerRetentionJob struct {
	logg      *logger.Logger
	ledger    ledgerPruner
	retention time.Duration
	batch     int
	now       func() time.Time
}

func (j *ledgerRetentionJob) Name() string { return "processed-event-retention" }

func (j *ledgerRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.ledger.Prune(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("processed event retention: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	}), "cron.ledger_retention_complete")
	return nil
}
