package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/curameet/curameet/internal/platform/auth"
)

var (
	ErrNotFound   = errors.New("identity: not found")
	ErrEmailTaken = errors.New("identity: email already taken")
)

// UserFilter narrows ListUsers. Zero values are ignored.
type UserFilter struct {
	Role   auth.Role
	Search string
}

// DoctorFilter narrows the doctor directory. Zero values are ignored.
type DoctorFilter struct {
	Specialty string
	Search    string
}

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdateProfile(ctx context.Context, u *User) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
	UpdateRole(ctx context.Context, id uuid.UUID, role auth.Role) error
	List(ctx context.Context, f UserFilter, limit, offset int) ([]*User, int, error)
}

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	// EnsureForUser creates an empty profile for userID unless one exists.
	EnsureForUser(ctx context.Context, userID uuid.UUID) error
	// IsTreatedBy reports whether doctorID has a live (not cancelled)
	// appointment or a medical record with patientID.
	IsTreatedBy(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error)
}

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error)
	// LockByID returns the doctor and holds a row lock until the surrounding
	// transaction ends.
	LockByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	Update(ctx context.Context, d *Doctor) error
	EnsureForUser(ctx context.Context, userID uuid.UUID) error
	List(ctx context.Context, f DoctorFilter, limit, offset int) ([]*Doctor, int, error)
}

type SessionRepository interface {
	Create(ctx context.Context, s *Session) error
	// GetActiveByTokenHash returns an unrevoked session that has not expired
	// at now, with the owner's current role.
	GetActiveByTokenHash(ctx context.Context, hash string, now time.Time) (*Session, error)
	Revoke(ctx context.Context, id uuid.UUID, now time.Time) error
	// RevokeAllForUser revokes every open session of userID except keep.
	RevokeAllForUser(ctx context.Context, userID uuid.UUID, keep *uuid.UUID, now time.Time) (int64, error)
	// Purge deletes sessions that expired or were revoked before cutoff.
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

type PasswordResetRepository interface {
	Create(ctx context.Context, r *PasswordReset) error
	GetActive(ctx context.Context, userID uuid.UUID, hash string, now time.Time) (*PasswordReset, error)
	// MarkUsed consumes the token; false means it was already used.
	MarkUsed(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}
