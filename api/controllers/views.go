package controllers

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/lessongate-backend/pkg/db/models"
	"github.com/angelmondragon/lessongate-backend/pkg/enums"
)

// userView is the wire projection of a user record.
type userView struct {
	ID                 uuid.UUID                `json:"id"`
	Subject            string                   `json:"subject,omitempty"`
	Email              string                   `json:"email"`
	Name               string                   `json:"name"`
	ImageURL           *string                  `json:"image_url,omitempty"`
	DiscordID          *string                  `json:"discord_id,omitempty"`
	DiscordRoles       []string                 `json:"discord_roles"`
	SubscriptionStatus enums.SubscriptionStatus `json:"subscription_status"`
	SubscriptionPlan   *string                  `json:"subscription_plan,omitempty"`
	HasBilling         bool                     `json:"has_billing"`
	IsAdmin            bool                     `json:"is_admin"`
	CreatedAt          time.Time                `json:"created_at"`
}

func newUserView(u *models.User) *userView {
	if u == nil {
		return nil
	}
	roles := []string(u.DiscordRoles)
	if roles == nil {
		roles = []string{}
	}
	return &userView{
		ID:                 u.ID,
		Subject:            u.Subject(),
		Email:              u.Email,
		Name:               u.Name,
		ImageURL:           u.ImageURL,
		DiscordID:          u.DiscordID,
		DiscordRoles:       roles,
		SubscriptionStatus: u.SubscriptionStatus,
		SubscriptionPlan:   u.SubscriptionPlan,
		HasBilling:         u.StripeCustomerID != nil && *u.StripeCustomerID != "",
		IsAdmin:            u.IsAdmin,
		CreatedAt:          u.CreatedAt,
	}
}

type auditView struct {
	ID         uuid.UUID  `json:"id"`
	ActorID    *uuid.UUID `json:"actor_id"`
	Action     string     `json:"action"`
	TargetType string     `json:"target_type"`
	TargetID   string     `json:"target_id"`
	Detail     *string    `json:"detail,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func newAuditViews(entries []models.AuditLogEntry) []auditView {
	out := make([]auditView, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditView{
			ID:         e.ID,
			ActorID:    e.ActorID,
			Action:     e.Action,
			TargetType: e.TargetType,
			TargetID:   e.TargetID,
			Detail:     e.Detail,
			CreatedAt:  e.CreatedAt,
		})
	}
	return out
}
