package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditLogEntry is an append-only record of a mutation. A nil ActorID is the system.
type AuditLogEntry struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	ActorID    *uuid.UUID `gorm:"column:actor_id;type:uuid"`
	Action     string     `gorm:"column:action;not null"`
	TargetType string     `gorm:"column:target_type;not null"`
	TargetID   string     `gorm:"column:target_id;not null"`
	Detail     *string    `gorm:"column:detail"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (AuditLogEntry) TableName() string { return "audit_logs" }

func (e *AuditLogEntry) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
