package models

import "time"

// ProcessedEvent marks an externally delivered event as handled.
type ProcessedEvent struct {
	Provider    string    `gorm:"column:provider;primaryKey"`
	EventID     string    `gorm:"column:event_id;primaryKey"`
	EventType   string    `gorm:"column:event_type;not null"`
	ProcessedAt time.Time `gorm:"column:processed_at;not null"`
}

func (ProcessedEvent) TableName() string { return "processed_events" }
