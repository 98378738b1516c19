package admin

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/curameet/curameet/internal/domain/identity"
)

// MaxBulkUsers caps the ids accepted by one bulk role change.
const MaxBulkUsers = 100

// Maintenance operations that may be run on demand.
const (
	OpPruneLogs     = "prune_logs"
	OpPurgeSessions = "purge_sessions"
)

type RoleRequest struct {
	Role string `json:"role" validate:"required,oneof=patient doctor admin"`
}

type BulkRoleRequest struct {
	UserIDs []string `json:"user_ids" validate:"required,min=1,max=100,unique,dive,uuid"`
	Role    string   `json:"role" validate:"required,oneof=patient doctor admin"`
}

// MaintenanceRequest carries days as raw JSON so a non-integer value is
// reported as a field error rather than a malformed body.
type MaintenanceRequest struct {
	Operation string          `json:"operation"`
	Days      json.RawMessage `json:"days"`
}

// days parses Days as an integer, quoted or not.
func (r MaintenanceRequest) days() (int, bool) {
	raw := strings.Trim(strings.TrimSpace(string(r.Days)), `"`)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

type MaintenanceResult struct {
	Operation string `json:"operation"`
	Days      int    `json:"days"`
	Affected  int64  `json:"affected"`
}

type BulkRoleResult struct {
	Updated int `json:"updated"`
}

// RoleChange is the user as it stands after a role assignment.
type RoleChange struct {
	User            *identity.User `json:"user"`
	RevokedSessions int64          `json:"revoked_sessions"`
}
