// Package audit records mutations to the append-only audit log. Writes are
// best-effort: a failure is logged and never surfaces to the caller.
package audit

import (
	"context"
	"strings"
	"sync"

	"github.com/angelmondragon/lessongate-backend/pkg/db/models"
	"github.com/angelmondragon/lessongate-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Actions written by the service.
const (
	ActionUserUpsert       = "user.upsert"
	ActionUserLink         = "user.link"
	ActionUserDeleted      = "user.deleted"
	ActionUserPromote      = "user.promote"
	ActionUserProfile      = "user.profile"
	ActionUserRoles        = "user.roles"
	ActionUserSubscription = "user.subscription"
	ActionVideoCreate      = "video.create"
	ActionVideoUpdate      = "video.update"
	ActionVideoPublish     = "video.publish"
	ActionVideoRoles       = "video.roles"
	ActionVideoDelete      = "video.delete"
	ActionVideoIngest      = "video.ingest"
)

const (
	TargetUser  = "user"
	TargetVideo = "video"

	defaultListLimit = 50
	maxListLimit     = 500
)

// Entry is a single audit record. A nil ActorID means the system acted.
type Entry struct {
	ActorID    *uuid.UUID
	Action     string
	TargetType string
	TargetID   string
	Detail     string
}

// Recorder accepts audit entries.
type Recorder interface {
	Record(ctx context.Context, entry Entry)
}

// Repository persists audit entries.
type Repository interface {
	Create(ctx context.Context, entry *models.AuditLogEntry) error
	List(ctx context.Context, limit int) ([]models.AuditLogEntry, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the audit repository to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, entry *models.AuditLogEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) List(ctx context.Context, limit int) ([]models.AuditLogEntry, error) {
	var entries []models.AuditLogEntry
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// Writer is the production Recorder.
type Writer struct {
	repo Repository
	logg *logger.Logger
}

// NewWriter builds a writer. A nil logger discards failures.
func NewWriter(repo Repository, logg *logger.Logger) *Writer {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Writer{repo: repo, logg: logg}
}

// Record inserts the entry and swallows any failure.
func (w *Writer) Record(ctx context.Context, entry Entry) {
	if w == nil || w.repo == nil {
		return
	}
	row := &models.AuditLogEntry{
		ActorID:    entry.ActorID,
		Action:     entry.Action,
		TargetType: entry.TargetType,
		TargetID:   entry.TargetID,
	}
	if detail := strings.TrimSpace(entry.Detail); detail != "" {
		row.Detail = &detail
	}

	defer func() {
		if r := recover(); r != nil {
			w.logg.Warn(w.logg.WithField(ctx, "action", entry.Action), "audit.write_panicked")
		}
	}()
	if err := w.repo.Create(ctx, row); err != nil {
		w.logg.Error(w.logg.WithFields(ctx, map[string]any{
			"action":      entry.Action,
			"target_type": entry.TargetType,
			"target_id":   entry.TargetID,
		}), "audit.write_failed", err)
	}
}

// List returns the most recent entries, newest first.
func (w *Writer) List(ctx context.Context, limit int) ([]models.AuditLogEntry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return w.repo.List(ctx, limit)
}

// Buffer collects entries produced inside a transaction so they can be
// written after commit.
type Buffer struct {
	mu      sync.Mutex
	entries []Entry
}

func (b *Buffer) Record(_ context.Context, entry Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, entry)
}

// Flush forwards buffered entries to rec and empties the buffer.
func (b *Buffer) Flush(ctx context.Context, rec Recorder) {
	b.mu.Lock()
	entries := b.entries
	b.entries = nil
	b.mu.Unlock()
	if rec == nil {
		return
	}
	for _, entry := range entries {
		rec.Record(ctx, entry)
	}
}

// Discard drops buffered entries, used when the transaction rolled back.
func (b *Buffer) Discard() {
	b.mu.Lock()
	b.entries = nil
	b.mu.Unlock()
}

// Nop ignores every entry.
type Nop struct{}

func (Nop) Record(context.Context, Entry) {}
