package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/curameet/curameet/internal/platform/apierror"
	"github.com/curameet/curameet/internal/platform/auth"
	"github.com/curameet/curameet/internal/platform/db"
	"github.com/curameet/curameet/internal/platform/validation"
)

// ResetTokenTTL is how long a password-reset token stays valid.
const ResetTokenTTL = 30 * time.Minute

// ForgotPasswordMessage is returned for every forgot-password request.
const ForgotPasswordMessage = "If the email is registered, a password reset link has been sent"

// ResetNotifier delivers a raw password-reset token to its owner.
type ResetNotifier interface {
	SendResetToken(ctx context.Context, user *User, token string, expiresAt time.Time) error
}

// LogNotifier only records that a reset was requested. The token itself is
// never logged.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (n LogNotifier) SendResetToken(_ context.Context, user *User, _ string, expiresAt time.Time) error {
	n.Logger.Info().
		Str("user_id", user.ID.String()).
		Time("expires_at", expiresAt).
		Msg("password reset requested; no mail transport configured")
	return nil
}

// Repositories groups the stores the identity services need.
type Repositories struct {
	Users    UserRepository
	Patients PatientRepository
	Doctors  DoctorRepository
	Sessions SessionRepository
	Resets   PasswordResetRepository
}

// AuthService validates credentials, issues and verifies tokens and keeps
// session state.
type AuthService struct {
	repos     Repositories
	tx        db.Transactor
	tokens    *auth.TokenIssuer
	hasher    *auth.PasswordHasher
	validator *validation.Validator
	notifier  ResetNotifier
	logger    zerolog.Logger
	now       func() time.Time
}

func NewAuthService(
	repos Repositories,
	tx db.Transactor,
	tokens *auth.TokenIssuer,
	hasher *auth.PasswordHasher,
	v *validation.Validator,
	notifier ResetNotifier,
	logger zerolog.Logger,
) *AuthService {
	return &AuthService{
		repos:     repos,
		tx:        tx,
		tokens:    tokens,
		hasher:    hasher,
		validator: v,
		notifier:  notifier,
		logger:    logger.With().Str("component", "auth").Logger(),
		now:       time.Now,
	}
}

// -- Login / Register --

func (s *AuthService) Login(ctx context.Context, req LoginRequest, meta ClientMeta) (*LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	user, err := s.repos.Users.GetByEmail(ctx, NormalizeEmail(req.Email))
	if errors.Is(err, ErrNotFound) {
		s.hasher.CompareDummy(req.Password)
		return nil, apierror.Unauthenticated(apierror.MsgInvalidCredentials)
	}
	if err != nil {
		return nil, apierror.Internal(fmt.Errorf("lookup user: %w", err))
	}

	ok, err := s.hasher.Compare(user.PasswordHash, req.Password)
	if err != nil {
		return nil, apierror.Internal(fmt.Errorf("compare password: %w", err))
	}
	if !ok {
		return nil, apierror.Unauthenticated(apierror.MsgInvalidCredentials)
	}
	if req.Role != "" && auth.Role(req.Role) != user.Role {
		return nil, apierror.Unauthenticated(apierror.MsgInvalidCredentials)
	}

	return s.startSession(ctx, user, meta)
}

// startSession issues a token for user and records its session.
func (s *AuthService) startSession(ctx context.Context, user *User, meta ClientMeta) (*LoginResponse, error) {
	issued, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return nil, apierror.Internal(err)
	}
	sess := &Session{
		UserID:    user.ID,
		TokenHash: issued.Hash,
		ExpiresAt: issued.ExpiresAt,
		UserAgent: truncate(meta.UserAgent, 512),
		IPAddress: truncate(meta.IPAddress, 64),
	}
	if err := s.repos.Sessions.Create(ctx, sess); err != nil {
		return nil, apierror.Internal(fmt.Errorf("create session: %w", err))
	}
	return &LoginResponse{
		User:        user,
		AccessToken: issued.Token,
		TokenType:   auth.TokenType,
		ExpiresIn:   int64(s.tokens.TTL().Seconds()),
	}, nil
}

func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil || role == auth.RoleAdmin {
		return nil, apierror.InvalidFields(map[string]string{"role": "role must be one of: patient, doctor"})
	}

	var birthDate *time.Time
	if req.BirthDate != "" {
		if birthDate, err = parseDate(req.BirthDate); err != nil {
			return nil, apierror.InvalidFields(map[string]string{"birth_date": "birth_date must be a date in the format 2006-01-02"})
		}
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apierror.Internal(err)
	}

	user := &User{
		Name:         req.Name,
		Email:        NormalizeEmail(req.Email),
		PasswordHash: hash,
		Role:         role,
		Phone:        optional(req.Phone),
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repos.Users.Create(ctx, user); err != nil {
			return err
		}
		if role == auth.RoleDoctor {
			return s.repos.Doctors.Create(ctx, &Doctor{
				UserID:        user.ID,
				Specialty:     req.Specialty,
				Polyclinic:    optional(req.Polyclinic),
				LicenseNumber: optional(req.LicenseNumber),
			})
		}
		return s.repos.Patients.Create(ctx, &Patient{
			UserID:    user.ID,
			Gender:    optional(req.Gender),
			BirthDate: birthDate,
			Address:   optional(req.Address),
		})
	})
	if errors.Is(err, ErrEmailTaken) {
		return nil, emailTaken()
	}
	if err != nil {
		return nil, apierror.Internal(fmt.Errorf("register user: %w", err))
	}
	return user, nil
}

// CreateAdmin bootstraps an administrator account. It is only reachable from
// the command line since admins cannot self-register.
func (s *AuthService) CreateAdmin(ctx context.Context, req CreateAdminRequest) (*User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apierror.Internal(err)
	}
	user := &User{Name: req.Name, Email: NormalizeEmail(req.Email), PasswordHash: hash, Role: auth.RoleAdmin}
	if err := s.repos.Users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, emailTaken()
		}
		return nil, apierror.Internal(fmt.Errorf("create admin: %w", err))
	}
	return user, nil
}

// -- Tokens --

// VerifyToken implements auth.TokenVerifier. The JWT must be valid and its
// hash must match an open session whose owner still holds the token's role.
func (s *AuthService) VerifyToken(ctx context.Context, token string) (auth.Identity, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return auth.Identity{}, apierror.Unauthenticated("")
	}

	sess, err := s.repos.Sessions.GetActiveByTokenHash(ctx, auth.HashToken(token), s.now())
	if errors.Is(err, ErrNotFound) {
		return auth.Identity{}, apierror.Unauthenticated("")
	}
	if err != nil {
		return auth.Identity{}, apierror.Internal(fmt.Errorf("lookup session: %w", err))
	}
	if sess.UserID.String() != claims.Subject || sess.Role != claims.Role {
		return auth.Identity{}, apierror.Unauthenticated("")
	}

	return auth.Identity{UserID: sess.UserID, Role: sess.Role, SessionID: sess.ID}, nil
}

// Refresh rotates the caller's session: the current token is revoked and a
// new one issued.
func (s *AuthService) Refresh(ctx context.Context, caller auth.Identity, meta ClientMeta) (*LoginResponse, error) {
	user, err := s.repos.Users.GetByID(ctx, caller.UserID)
	if errors.Is(err, ErrNotFound) {
		return nil, apierror.Unauthenticated("")
	}
	if err != nil {
		return nil, apierror.Internal(err)
	}

	var resp *LoginResponse
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repos.Sessions.Revoke(ctx, caller.SessionID, s.now()); err != nil {
			return apierror.Internal(fmt.Errorf("revoke session: %w", err))
		}
		var err error
		resp, err = s.startSession(ctx, user, meta)
		return err
	})
	if err != nil {
		return nil, apierror.Wrap(err)
	}
	return resp, nil
}

func (s *AuthService) Logout(ctx context.Context, caller auth.Identity) error {
	if err := s.repos.Sessions.Revoke(ctx, caller.SessionID, s.now()); err != nil {
		return apierror.Internal(fmt.Errorf("revoke session: %w", err))
	}
	return nil
}

// -- Account --

func (s *AuthService) Me(ctx context.Context, caller auth.Identity) (*Account, error) {
	user, err := s.repos.Users.GetByID(ctx, caller.UserID)
	if errors.Is(err, ErrNotFound) {
		return nil, apierror.NotFound("User")
	}
	if err != nil {
		return nil, apierror.Internal(err)
	}

	acct := &Account{User: user}
	switch user.Role {
	case auth.RolePatient:
		acct.Patient, err = s.repos.Patients.GetByUserID(ctx, user.ID)
	case auth.RoleDoctor:
		acct.Doctor, err = s.repos.Doctors.GetByUserID(ctx, user.ID)
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, apierror.Internal(err)
	}
	return acct, nil
}

// ChangePassword verifies the current password, stores the new hash and
// revokes every other session of the caller.
func (s *AuthService) ChangePassword(ctx context.Context, caller auth.Identity, req ChangePasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return err
	}
	user, err := s.checkCurrentPassword(ctx, caller, req.CurrentPassword)
	if err != nil {
		return err
	}

	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return apierror.Internal(err)
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repos.Users.UpdatePassword(ctx, user.ID, hash); err != nil {
			return err
		}
		keep := caller.SessionID
		_, err := s.repos.Sessions.RevokeAllForUser(ctx, user.ID, &keep, s.now())
		return err
	})
	if err != nil {
		return apierror.Internal(fmt.Errorf("change password: %w", err))
	}
	return nil
}

// UpdateProfile changes name, e-mail and phone after re-checking the
// current password.
func (s *AuthService) UpdateProfile(ctx context.Context, caller auth.Identity, req UpdateProfileRequest) (*User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	user, err := s.checkCurrentPassword(ctx, caller, req.CurrentPassword)
	if err != nil {
		return nil, err
	}

	email := NormalizeEmail(req.Email)
	if email != user.Email {
		other, err := s.repos.Users.GetByEmail(ctx, email)
		switch {
		case err == nil && other.ID != user.ID:
			return nil, emailTaken()
		case err != nil && !errors.Is(err, ErrNotFound):
			return nil, apierror.Internal(err)
		}
	}

	user.Name = req.Name
	user.Email = email
	user.Phone = optional(req.Phone)
	if err := s.repos.Users.UpdateProfile(ctx, user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, emailTaken()
		}
		return nil, apierror.Internal(fmt.Errorf("update profile: %w", err))
	}
	return user, nil
}

func (s *AuthService) checkCurrentPassword(ctx context.Context, caller auth.Identity, password string) (*User, error) {
	user, err := s.repos.Users.GetByID(ctx, caller.UserID)
	if errors.Is(err, ErrNotFound) {
		return nil, apierror.Unauthenticated("")
	}
	if err != nil {
		return nil, apierror.Internal(err)
	}
	ok, err := s.hasher.Compare(user.PasswordHash, password)
	if err != nil {
		return nil, apierror.Internal(err)
	}
	if !ok {
		return nil, apierror.InvalidFields(map[string]string{"current_password": "current password is incorrect"})
	}
	return user, nil
}

// -- Password reset --

// ForgotPassword issues a reset token for a known e-mail. The caller cannot
// tell from the result whether the address is registered.
func (s *AuthService) ForgotPassword(ctx context.Context, req ForgotPasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return err
	}

	user, err := s.repos.Users.GetByEmail(ctx, NormalizeEmail(req.Email))
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return apierror.Internal(err)
	}

	raw, err := auth.RandomHex(32)
	if err != nil {
		return apierror.Internal(err)
	}
	reset := &PasswordReset{
		UserID:    user.ID,
		TokenHash: auth.HashToken(raw),
		ExpiresAt: s.now().Add(ResetTokenTTL),
	}
	if err := s.repos.Resets.Create(ctx, reset); err != nil {
		return apierror.Internal(fmt.Errorf("create reset token: %w", err))
	}
	if err := s.notifier.SendResetToken(ctx, user, raw, reset.ExpiresAt); err != nil {
		s.logger.Error().Err(err).Str("user_id", user.ID.String()).Msg("failed to deliver reset token")
	}
	return nil
}

// ResetPassword consumes a reset token, stores the new password and revokes
// every session of the user.
func (s *AuthService) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return err
	}
	invalid := apierror.InvalidFields(map[string]string{"token": "reset token is invalid or expired"})

	user, err := s.repos.Users.GetByEmail(ctx, NormalizeEmail(req.Email))
	if errors.Is(err, ErrNotFound) {
		return invalid
	}
	if err != nil {
		return apierror.Internal(err)
	}

	now := s.now()
	reset, err := s.repos.Resets.GetActive(ctx, user.ID, auth.HashToken(req.Token), now)
	if errors.Is(err, ErrNotFound) {
		return invalid
	}
	if err != nil {
		return apierror.Internal(err)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return apierror.Internal(err)
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		used, err := s.repos.Resets.MarkUsed(ctx, reset.ID, now)
		if err != nil {
			return apierror.Internal(err)
		}
		if !used {
			return invalid
		}
		if err := s.repos.Users.UpdatePassword(ctx, user.ID, hash); err != nil {
			return apierror.Internal(err)
		}
		if _, err := s.repos.Sessions.RevokeAllForUser(ctx, user.ID, nil, now); err != nil {
			return apierror.Internal(err)
		}
		return nil
	})
	if err != nil {
		return apierror.Wrap(err)
	}
	return nil
}

func emailTaken() error {
	return apierror.InvalidFields(map[string]string{"email": "email has already been taken"})
}

// truncate shortens s to at most n bytes without splitting a rune. Invalid
// UTF-8 from the client is dropped first; Postgres would reject it.
func truncate(s string, n int) string {
	s = strings.ToValidUTF8(s, "")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
