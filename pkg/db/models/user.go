package models

import (
	"time"

	dbtypes "github.com/angelmondragon/lessongate-backend/pkg/db/types"
	"github.com/angelmondragon/lessongate-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the identity record keyed by the auth provider subject.
// DiscordRoles is server-authoritative and guarded by RolesVersion.
type User struct {
	ID                  uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	ExternalSubject     *string                  `gorm:"column:external_subject;uniqueIndex"`
	Email               string                   `gorm:"column:email;type:text;not null;index"`
	Name                string                   `gorm:"column:name;not null;default:''"`
	ImageURL            *string                  `gorm:"column:image_url"`
	DiscordID           *string                  `gorm:"column:discord_id;uniqueIndex"`
	DiscordRoles        dbtypes.StringArray      `gorm:"column:discord_roles;type:text[];not null;default:'{}'"`
	RolesVersion        int64                    `gorm:"column:roles_version;not null;default:0"`
	StripeCustomerID    *string                  `gorm:"column:stripe_customer_id;uniqueIndex"`
	SubscriptionStatus  enums.SubscriptionStatus `gorm:"column:subscription_status;not null;default:inactive"`
	SubscriptionPlan    *string                  `gorm:"column:subscription_plan"`
	SubscriptionEventAt *time.Time               `gorm:"column:subscription_event_at"`
	IsAdmin             bool                     `gorm:"column:is_admin;not null;default:false"`
	CreatedAt           time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (User) TableName() string { return "users" }

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.DiscordRoles == nil {
		u.DiscordRoles = dbtypes.StringArray{}
	}
	if u.SubscriptionStatus == "" {
		u.SubscriptionStatus = enums.SubscriptionStatusInactive
	}
	return nil
}

// Subject returns the external subject or an empty string for unclaimed rows.
func (u *User) Subject() string {
	if u == nil || u.ExternalSubject == nil {
		return ""
	}
	return *u.ExternalSubject
}
