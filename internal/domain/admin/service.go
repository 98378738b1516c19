package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/curameet/curameet/internal/domain/identity"
	"github.com/curameet/curameet/internal/platform/apierror"
	"github.com/curameet/curameet/internal/platform/audit"
	"github.com/curameet/curameet/internal/platform/auth"
	"github.com/curameet/curameet/internal/platform/db"
	"github.com/curameet/curameet/internal/platform/validation"
)

// Service implements the administrator operations. Every method checks the
// caller's verified role itself, independently of route middleware.
type Service struct {
	stores    Stores
	logs      ActivityLog
	tx        db.Transactor
	validator *validation.Validator
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(stores Stores, logs ActivityLog, tx db.Transactor, v *validation.Validator, logger zerolog.Logger) *Service {
	return &Service{
		stores:    stores,
		logs:      logs,
		tx:        tx,
		validator: v,
		logger:    logger.With().Str("component", "admin").Logger(),
		now:       time.Now,
	}
}

func requireAdmin(caller auth.Identity) error {
	if !caller.IsAdmin() {
		return apierror.Forbidden()
	}
	return nil
}

// -- Roles --

// ManageRole assigns role to a single user.
func (s *Service) ManageRole(ctx context.Context, caller auth.Identity, userID uuid.UUID, req RoleRequest) (*RoleChange, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		return nil, apierror.InvalidFields(map[string]string{"role": "role must be one of: patient, doctor, admin"})
	}
	if err := checkSelfDemotion(caller, []uuid.UUID{userID}, role); err != nil {
		return nil, err
	}

	var out RoleChange
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		u, revoked, err := s.assign(ctx, userID, role)
		if err != nil {
			return err
		}
		out = RoleChange{User: u, RevokedSessions: revoked}
		return nil
	})
	if err != nil {
		return nil, apierror.Wrap(err)
	}

	s.logger.Info().
		Str("user_id", userID.String()).
		Str("role", role.String()).
		Str("changed_by", caller.UserID.String()).
		Msg("user role changed")
	return &out, nil
}

// BulkManageRole assigns role to every user in req. Either all users are
// updated or none are.
func (s *Service) BulkManageRole(ctx context.Context, caller auth.Identity, req BulkRoleRequest) (*BulkRoleResult, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		return nil, apierror.InvalidFields(map[string]string{"role": "role must be one of: patient, doctor, admin"})
	}
	ids := make([]uuid.UUID, 0, len(req.UserIDs))
	for _, raw := range req.UserIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, apierror.InvalidFields(map[string]string{"user_ids": "user_ids contains invalid or duplicate entries"})
		}
		ids = append(ids, id)
	}
	if err := checkSelfDemotion(caller, ids, role); err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		for _, id := range ids {
			if _, _, err := s.assign(ctx, id, role); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, apierror.Wrap(err)
	}

	s.logger.Info().
		Int("count", len(ids)).
		Str("role", role.String()).
		Str("changed_by", caller.UserID.String()).
		Msg("bulk role change")
	return &BulkRoleResult{Updated: len(ids)}, nil
}

func checkSelfDemotion(caller auth.Identity, ids []uuid.UUID, role auth.Role) error {
	if role == auth.RoleAdmin {
		return nil
	}
	for _, id := range ids {
		if id == caller.UserID {
			return apierror.Validation("You cannot remove your own admin role")
		}
	}
	return nil
}

// assign must run inside a transaction. It creates the role profile when it
// is missing and revokes the user's sessions so old tokens stop working.
func (s *Service) assign(ctx context.Context, userID uuid.UUID, role auth.Role) (*identity.User, int64, error) {
	u, err := s.stores.Users.GetByID(ctx, userID)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, 0, apierror.NotFound("User")
	}
	if err != nil {
		return nil, 0, fmt.Errorf("get user %s: %w", userID, err)
	}

	switch role {
	case auth.RolePatient:
		err = s.stores.Patients.EnsureForUser(ctx, userID)
	case auth.RoleDoctor:
		err = s.stores.Doctors.EnsureForUser(ctx, userID)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("ensure %s profile: %w", role, err)
	}

	if u.Role == role {
		return u, 0, nil
	}
	if err := s.stores.Users.UpdateRole(ctx, userID, role); err != nil {
		return nil, 0, fmt.Errorf("update role: %w", err)
	}
	revoked, err := s.stores.Sessions.RevokeAllForUser(ctx, userID, nil, s.now())
	if err != nil {
		return nil, 0, fmt.Errorf("revoke sessions: %w", err)
	}
	u.Role = role
	return u, revoked, nil
}

// -- Queries --

func (s *Service) ListUsers(ctx context.Context, caller auth.Identity, f identity.UserFilter, limit, offset int) ([]*identity.User, int, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, 0, err
	}
	users, total, err := s.stores.Users.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, apierror.Internal(fmt.Errorf("list users: %w", err))
	}
	return users, total, nil
}

func (s *Service) QueryLogs(ctx context.Context, caller auth.Identity, f audit.Filter, limit, offset int) ([]*audit.Entry, int, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, 0, err
	}
	entries, total, err := s.logs.Query(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, apierror.Internal(fmt.Errorf("query activity log: %w", err))
	}
	return entries, total, nil
}

// -- Maintenance --

// Maintenance runs one allow-listed operation on behalf of an admin.
func (s *Service) Maintenance(ctx context.Context, caller auth.Identity, req MaintenanceRequest) (*MaintenanceResult, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}

	invalid := map[string]string{}
	if req.Operation != OpPruneLogs && req.Operation != OpPurgeSessions {
		invalid["operation"] = fmt.Sprintf("operation must be one of: %s, %s", OpPruneLogs, OpPurgeSessions)
	}
	days, ok := req.days()
	if !ok || days < 1 || days > audit.MaxRetentionDays {
		invalid["days"] = fmt.Sprintf("days must be an integer between 1 and %d", audit.MaxRetentionDays)
	}
	if len(invalid) > 0 {
		return nil, apierror.InvalidFields(invalid)
	}

	affected, err := s.RunMaintenance(ctx, req.Operation, days)
	if err != nil {
		return nil, apierror.Internal(err)
	}
	s.logger.Info().
		Str("operation", req.Operation).
		Int("days", days).
		Int64("affected", affected).
		Str("requested_by", caller.UserID.String()).
		Msg("maintenance run")
	return &MaintenanceResult{Operation: req.Operation, Days: days, Affected: affected}, nil
}

// RunMaintenance executes an operation without a caller check. It backs both
// the admin endpoint and the scheduled jobs.
func (s *Service) RunMaintenance(ctx context.Context, operation string, days int) (int64, error) {
	now := s.now()
	switch operation {
	case OpPruneLogs:
		n, err := s.logs.Prune(ctx, days, now)
		if err != nil {
			return 0, fmt.Errorf("prune activity log: %w", err)
		}
		return n, nil
	case OpPurgeSessions:
		if days < 1 || days > audit.MaxRetentionDays {
			return 0, audit.ErrInvalidRetention
		}
		cutoff := audit.Cutoff(now, days)
		var total int64
		err := s.tx.WithTx(ctx, func(ctx context.Context) error {
			n, err := s.stores.Sessions.Purge(ctx, cutoff)
			if err != nil {
				return fmt.Errorf("purge sessions: %w", err)
			}
			m, err := s.stores.Resets.Purge(ctx, cutoff)
			if err != nil {
				return fmt.Errorf("purge reset tokens: %w", err)
			}
			total = n + m
			return nil
		})
		return total, err
	default:
		return 0, fmt.Errorf("unknown maintenance operation %q", operation)
	}
}
