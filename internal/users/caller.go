package users

import (
	"github.com/angelmondragon/lessongate-backend/pkg/db/models"
	"github.com/google/uuid"
)

// CallerKind classifies who is invoking an identity operation.
type CallerKind string

const (
	CallerAnonymous CallerKind = "anonymous"
	CallerUser      CallerKind = "user"
	CallerInternal  CallerKind = "internal"
	CallerSystem    CallerKind = "system"
)

// Caller is the explicit identity threaded through every mutation.
// Internal callers presented a verified shared secret; system callers are
// webhook reconcilers, workers and the operator CLI.
type Caller struct {
	Kind    CallerKind
	UserID  *uuid.UUID
	Subject string
	IsAdmin bool
	Name    string
}

func AnonymousCaller() Caller {
	return Caller{Kind: CallerAnonymous}
}

// UserCaller builds a caller for an authenticated session. A nil user means
// the subject has not been synced yet.
func UserCaller(subject string, user *models.User) Caller {
	c := Caller{Kind: CallerUser, Subject: subject}
	if user != nil {
		id := user.ID
		c.UserID = &id
		c.IsAdmin = user.IsAdmin
	}
	return c
}

func InternalCaller() Caller {
	return Caller{Kind: CallerInternal, Name: "internal"}
}

func SystemCaller(name string) Caller {
	return Caller{Kind: CallerSystem, Name: name}
}

// Privileged reports whether the caller may write server-authoritative fields.
func (c Caller) Privileged() bool {
	return c.Kind == CallerInternal || c.Kind == CallerSystem
}

// ActorID is the audit actor; nil for non-user callers.
func (c Caller) ActorID() *uuid.UUID {
	if c.Kind != CallerUser {
		return nil
	}
	return c.UserID
}
