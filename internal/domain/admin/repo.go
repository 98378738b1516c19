package admin

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/curameet/curameet/internal/domain/identity"
	"github.com/curameet/curameet/internal/platform/audit"
	"github.com/curameet/curameet/internal/platform/auth"
)

// UserStore is the part of identity.UserRepository administration needs.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*identity.User, error)
	UpdateRole(ctx context.Context, id uuid.UUID, role auth.Role) error
	List(ctx context.Context, f identity.UserFilter, limit, offset int) ([]*identity.User, int, error)
}

// ProfileStore creates an empty role profile for a user when none exists.
type ProfileStore interface {
	EnsureForUser(ctx context.Context, userID uuid.UUID) error
}

type SessionStore interface {
	RevokeAllForUser(ctx context.Context, userID uuid.UUID, keep *uuid.UUID, now time.Time) (int64, error)
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

type ResetStore interface {
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

// ActivityLog is implemented by audit.Log.
type ActivityLog interface {
	Query(ctx context.Context, f audit.Filter, limit, offset int) ([]*audit.Entry, int, error)
	Prune(ctx context.Context, days int, now time.Time) (int64, error)
}

// Stores groups the repositories the admin service writes through.
type Stores struct {
	Users    UserStore
	Patients ProfileStore
	Doctors  ProfileStore
	Sessions SessionStore
	Resets   ResetStore
}
