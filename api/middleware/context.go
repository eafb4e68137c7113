package middleware

import (
	"context"

	"github.com/angelmondragon/lessongate-backend/internal/users"
	"github.com/angelmondragon/lessongate-backend/pkg/db/models"
	"github.com/angelmondragon/lessongate-backend/pkg/entitlement"
)

type contextKey string

const (
	ctxCaller contextKey = "caller"
	ctxUser   contextKey = "user"
)

// WithCaller stores the resolved caller and its user record, if any.
func WithCaller(ctx context.Context, caller users.Caller, user *models.User) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxCaller, caller)
	return context.WithValue(ctx, ctxUser, user)
}

// CallerFromContext returns the request caller, anonymous when unset.
func CallerFromContext(ctx context.Context) users.Caller {
	if ctx == nil {
		return users.AnonymousCaller()
	}
	if v, ok := ctx.Value(ctxCaller).(users.Caller); ok {
		return v
	}
	return users.AnonymousCaller()
}

// UserFromContext returns the caller's user record or nil.
func UserFromContext(ctx context.Context) *models.User {
	if ctx == nil {
		return nil
	}
	user, _ := ctx.Value(ctxUser).(*models.User)
	return user
}

// UserIDFromContext returns the caller's user id as a string, or "".
func UserIDFromContext(ctx context.Context) string {
	if user := UserFromContext(ctx); user != nil {
		return user.ID.String()
	}
	return ""
}

// ViewerFromContext builds the entitlement viewer for the request.
func ViewerFromContext(ctx context.Context) entitlement.Viewer {
	caller := CallerFromContext(ctx)
	return entitlement.NewViewer(caller.Kind == users.CallerUser, UserFromContext(ctx))
}
