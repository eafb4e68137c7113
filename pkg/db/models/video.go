package models

import (
	"time"

	dbtypes "github.com/angelmondragon/lessongate-backend/pkg/db/types"
	"github.com/angelmondragon/lessongate-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Video is a lesson in the catalog. A nil or empty RequiredRoles list means
// the video is public once published.
type Video struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Title           string              `gorm:"column:title;not null"`
	Description     *string             `gorm:"column:description"`
	MuxAssetID      *string             `gorm:"column:mux_asset_id"`
	MuxPlaybackID   *string             `gorm:"column:mux_playback_id"`
	ThumbnailURL    *string             `gorm:"column:thumbnail_url"`
	IsPublished     bool                `gorm:"column:is_published;not null;default:false"`
	Transcript      *string             `gorm:"column:transcript"`
	AISummary       *string             `gorm:"column:ai_summary"`
	Chapters        dbtypes.Chapters    `gorm:"column:chapters;type:jsonb"`
	RequiredRoles   dbtypes.StringArray `gorm:"column:required_roles;type:text[]"`
	DurationSeconds *int                `gorm:"column:duration_seconds"`
	Tags            dbtypes.StringArray `gorm:"column:tags;type:text[];not null;default:'{}'"`
	UploadedBy      *uuid.UUID          `gorm:"column:uploaded_by;type:uuid"`
	Source          enums.VideoSource   `gorm:"column:source;not null;default:manual"`
	SourceRef       *string             `gorm:"column:source_ref"`
	SourceURL       *string             `gorm:"column:source_url"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Video) TableName() string { return "videos" }

func (v *Video) BeforeCreate(*gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.Tags == nil {
		v.Tags = dbtypes.StringArray{}
	}
	if v.Source == "" {
		v.Source = enums.VideoSourceManual
	}
	return nil
}
