// Package webhooks holds the dedup-and-commit pipeline shared by the
// provider reconcilers.
package webhooks

import (
	"context"
	"fmt"

	"github.com/angelmondragon/lessongate-backend/internal/audit"
	"github.com/angelmondragon/lessongate-backend/pkg/db"
	pkgerrors "github.com/angelmondragon/lessongate-backend/pkg/errors"
	"github.com/angelmondragon/lessongate-backend/pkg/logger"
	"github.com/angelmondragon/lessongate-backend/pkg/metrics"
	"gorm.io/gorm"
)

// Outcome is the terminal state of one delivery.
type Outcome string

const (
	OutcomeProcessed Outcome = metrics.WebhookOutcomeProcessed
	OutcomeDuplicate Outcome = metrics.WebhookOutcomeDuplicate
	OutcomeIgnored   Outcome = metrics.WebhookOutcomeIgnored
	OutcomeRejected  Outcome = metrics.WebhookOutcomeRejected
	OutcomeFailed    Outcome = metrics.WebhookOutcomeFailed
)

// Claimer records processed events inside the effect transaction.
type Claimer interface {
	Claim(ctx context.Context, tx *gorm.DB, provider, eventID, eventType string) (bool, error)
}

// Effect mutates state inside tx. Audit entries go to rec and are written
// only after commit.
type Effect func(ctx context.Context, tx *gorm.DB, rec audit.Recorder) error

type RunnerParams struct {
	TxRunner db.TxRunner
	Ledger   Claimer
	Audit    audit.Recorder
	Logger   *logger.Logger
}

type Runner struct {
	tx     db.TxRunner
	ledger Claimer
	audit  audit.Recorder
	logg   *logger.Logger
}

func NewRunner(params RunnerParams) (*Runner, error) {
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if params.Audit == nil {
		params.Audit = audit.Nop{}
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &Runner{tx: params.TxRunner, ledger: params.Ledger, audit: params.Audit, logg: params.Logger}, nil
}

// Run claims (provider, eventID) and applies effect in one transaction. A
// previously claimed event returns OutcomeDuplicate without running effect.
func (r *Runner) Run(ctx context.Context, provider, eventID, eventType string, effect Effect) (Outcome, error) {
	ctx = r.logg.WithEvent(ctx, provider, eventID)
	buf := &audit.Buffer{}
	duplicate := false

	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		claimed, err := r.ledger.Claim(ctx, tx, provider, eventID, eventType)
		if err != nil {
			return err
		}
		if !claimed {
			duplicate = true
			return nil
		}
		return effect(ctx, tx, buf)
	})
	if err != nil {
		buf.Discard()
		r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
			"event_type": eventType,
			"retryable":  pkgerrors.IsRetryable(err),
		}), "webhook.failed")
		return OutcomeFailed, err
	}
	if duplicate {
		r.logg.Info(r.logg.WithField(ctx, "event_type", eventType), "webhook.duplicate")
		return OutcomeDuplicate, nil
	}

	buf.Flush(ctx, r.audit)
	r.logg.Info(r.logg.WithField(ctx, "event_type", eventType), "webhook.processed")
	return OutcomeProcessed, nil
}

// AfterCommit runs a non-critical follow-up and logs its failure instead of
// returning it.
func (r *Runner) AfterCommit(ctx context.Context, name string, fn func(context.Context) error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logg.Warn(r.logg.WithFields(ctx, map[string]any{"step": name, "panic": fmt.Sprint(rec)}), "webhook.follow_up_panicked")
		}
	}()
	if err := fn(ctx); err != nil {
		r.logg.Error(r.logg.WithField(ctx, "step", name), "webhook.follow_up_failed", err)
	}
}
