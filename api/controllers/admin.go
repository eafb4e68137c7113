package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/lessongate-backend/api/middleware"
	"github.com/angelmondragon/lessongate-backend/api/responses"
	"github.com/angelmondragon/lessongate-backend/api/validators"
	"github.com/angelmondragon/lessongate-backend/internal/analytics"
	"github.com/angelmondragon/lessongate-backend/internal/users"
	"github.com/angelmondragon/lessongate-backend/pkg/db/models"
	"github.com/angelmondragon/lessongate-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lessongate-backend/pkg/errors"
	"github.com/angelmondragon/lessongate-backend/pkg/logger"
)

// UserDirectory lists users for operators.
type UserDirectory interface {
	List(ctx context.Context, caller users.Caller, filter users.ListFilter) (*users.ListResult, error)
}

// AuditReader reads recent audit entries.
type AuditReader interface {
	List(ctx context.Context, limit int) ([]models.AuditLogEntry, error)
}

type userPage struct {
	Users      []*userView `json:"users"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

// AdminUsers pages users newest first, optionally filtered by status or email.
func AdminUsers(svc UserDirectory, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "users service unavailable"))
			return
		}
		limit, cursor, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter := users.ListFilter{
			Email:  validators.SanitizeString(r.URL.Query().Get("email"), 255),
			Limit:  limit,
			Cursor: cursor,
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseSubscriptionStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			filter.Status = &status
		}

		result, err := svc.List(r.Context(), middleware.CallerFromContext(r.Context()), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page := userPage{Users: make([]*userView, 0, len(result.Users)), NextCursor: result.NextCursor}
		for i := range result.Users {
			page.Users = append(page.Users, newUserView(&result.Users[i]))
		}
		responses.WriteSuccess(w, page)
	}
}

func AdminAudit(svc AuditReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "audit log unavailable"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 500)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entries, err := svc.List(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list audit log"))
			return
		}
		responses.WriteSuccess(w, map[string]any{"entries": newAuditViews(entries)})
	}
}

// AdminAnalytics reports over ?start=&end= (YYYY-MM-DD) or the last ?days=.
func AdminAnalytics(svc analytics.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "analytics service unavailable"))
			return
		}
		req, err := analyticsWindow(r, time.Now())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		report, err := svc.Query(r.Context(), req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

func analyticsWindow(r *http.Request, now time.Time) (analytics.QueryRequest, error) {
	q := r.URL.Query()
	start, end := strings.TrimSpace(q.Get("start")), strings.TrimSpace(q.Get("end"))
	if start == "" && end == "" {
		days, err := validators.ParseQueryInt(r, "days", analytics.DefaultDays, 1, analytics.MaxDays)
		if err != nil {
			return analytics.QueryRequest{}, err
		}
		return analytics.LastDays(days, now), nil
	}
	from, err := validators.ParseQueryDate(r, "start")
	if err != nil {
		return analytics.QueryRequest{}, err
	}
	to, err := validators.ParseQueryDate(r, "end")
	if err != nil {
		return analytics.QueryRequest{}, err
	}
	return analytics.QueryRequest{Start: from, End: to}, nil
}
