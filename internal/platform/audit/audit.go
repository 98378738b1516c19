// Package audit persists the activity log written by the HTTP audit
// middleware and implements its query and retention pruning.
package audit

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/curameet/curameet/internal/platform/middleware"
)

// Entry is one row of the activity_log table.
type Entry struct {
	ID        uuid.UUID  `json:"id"`
	UserID    *uuid.UUID `json:"user_id,omitempty"`
	Role      string     `json:"role,omitempty"`
	Action    string     `json:"action"`
	Method    string     `json:"method"`
	Path      string     `json:"path"`
	Status    int        `json:"status"`
	IPAddress string     `json:"ip_address"`
	UserAgent string     `json:"user_agent"`
	RequestID string     `json:"request_id"`
	CreatedAt time.Time  `json:"created_at"`
}

// Filter narrows an activity-log query. Zero values are ignored.
type Filter struct {
	UserID *uuid.UUID
	Action string
	From   *time.Time
	To     *time.Time
}

// Store is the persistence interface for the activity log.
type Store interface {
	Record(ctx context.Context, e *Entry) error
	Query(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error)
	// DeleteBefore removes entries created before cutoff and returns the count.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// MaxRetentionDays bounds the prune window accepted by Prune.
const MaxRetentionDays = 365

var ErrInvalidRetention = errors.New("retention days must be between 1 and 365")

// Log writes middleware activity entries to a Store.
type Log struct {
	store Store
}

func NewLog(store Store) *Log {
	return &Log{store: store}
}

// RecordActivity implements middleware.ActivityRecorder.
func (l *Log) RecordActivity(ctx context.Context, a middleware.ActivityEntry) error {
	e := &Entry{
		UserID:    a.UserID,
		Role:      a.Role,
		Action:    a.Action,
		Method:    a.Method,
		Path:      truncate(a.Path, 2048),
		Status:    a.Status,
		IPAddress: a.IPAddress,
		UserAgent: truncate(a.UserAgent, 512),
		RequestID: truncate(a.RequestID, 64),
		CreatedAt: a.Timestamp,
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return l.store.Record(ctx, e)
}

func (l *Log) Query(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	return l.store.Query(ctx, f, limit, offset)
}

// Prune deletes entries older than days.
func (l *Log) Prune(ctx context.Context, days int, now time.Time) (int64, error) {
	if days < 1 || days > MaxRetentionDays {
		return 0, ErrInvalidRetention
	}
	return l.store.DeleteBefore(ctx, Cutoff(now, days))
}

// Cutoff returns the instant days before now.
func Cutoff(now time.Time, days int) time.Time {
	return now.UTC().AddDate(0, 0, -days)
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
