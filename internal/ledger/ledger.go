// Package ledger is the processed-event table that makes at-least-once
// webhook delivery safe to replay.
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/lessongate-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/lessongate-backend/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultPruneBatch = 1000

// Ledger records (provider, event id) pairs.
type Ledger struct {
	db  *gorm.DB
	now func() time.Time
}

// New binds the ledger to db. Claims always use the transaction passed in.
func New(db *gorm.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// Claim inserts the event marker inside tx. It reports false when the event
// was already recorded; callers treat that as a successful duplicate.
func (l *Ledger) Claim(ctx context.Context, tx *gorm.DB, provider, eventID, eventType string) (bool, error) {
	provider = strings.TrimSpace(provider)
	eventID = strings.TrimSpace(eventID)
	if provider == "" || eventID == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "provider and event id are required")
	}
	if tx == nil {
		tx = l.db
	}

	row := models.ProcessedEvent{
		Provider:    provider,
		EventID:     eventID,
		EventType:   eventType,
		ProcessedAt: l.now().UTC(),
	}
	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "record processed event")
	}
	return res.RowsAffected == 1, nil
}

// Exists reports whether the event has been processed.
func (l *Ledger) Exists(ctx context.Context, provider, eventID string) (bool, error) {
	var row models.ProcessedEvent
	err := l.db.WithContext(ctx).
		Where("provider = ? AND event_id = ?", provider, eventID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup processed event")
	}
	return true, nil
}

// Prune deletes markers processed before cutoff, batch rows at a time, and
// returns the total removed.
func (l *Ledger) Prune(ctx context.Context, cutoff time.Time, batch int) (int64, error) {
	if batch <= 0 {
		batch = defaultPruneBatch
	}
	cutoff = cutoff.UTC()

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		res := l.db.WithContext(ctx).Exec(
			`DELETE FROM processed_events
			 WHERE (provider, event_id) IN (
			   SELECT provider, event_id FROM processed_events
			   WHERE processed_at < ?
			   LIMIT ?
			 )`, cutoff, batch)
		if res.Error != nil {
			return total, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "prune processed events")
		}
		total += res.RowsAffected
		if res.RowsAffected < int64(batch) {
			return total, nil
		}
	}
}
