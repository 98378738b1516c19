package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Role is the closed set of user roles.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// ParseRole accepts only the exact lowercase role names.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RolePatient, RoleDoctor, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("invalid role %q", s)
}

func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

func (r Role) String() string { return string(r) }

// Identity is the authenticated caller, resolved once per request and passed
// explicitly to every service call.
type Identity struct {
	UserID    uuid.UUID
	Role      Role
	SessionID uuid.UUID
}

func (id Identity) IsAdmin() bool { return id.Role == RoleAdmin }

// Authenticated reports whether the identity came from a verified token.
func (id Identity) Authenticated() bool {
	return id.UserID != uuid.Nil && id.Role.Valid()
}

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the identity stored by the authentication
// middleware. ok is false for anonymous requests.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && id.Authenticated()
}
