package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/curameet/curameet/internal/platform/auth"
)

// ActivityEntry is one row of the activity log produced by the Audit
// middleware.
type ActivityEntry struct {
	UserID    *uuid.UUID
	Role      string
	Action    string // read, create, update, delete
	Method    string
	Path      string
	Status    int
	IPAddress string
	UserAgent string
	RequestID string
	Timestamp time.Time
}

// ActivityRecorder persists activity entries.
type ActivityRecorder interface {
	RecordActivity(ctx context.Context, entry ActivityEntry) error
}

// ActivityRecorderFunc is a function adapter for ActivityRecorder.
type ActivityRecorderFunc func(ctx context.Context, entry ActivityEntry) error

func (f ActivityRecorderFunc) RecordActivity(ctx context.Context, entry ActivityEntry) error {
	return f(ctx, entry)
}

// Audit records every /api/v1/ request after the handler has run, including
// failed and unauthenticated ones. A recorder failure is logged and never
// fails the request.
func Audit(logger zerolog.Logger, recorder ActivityRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path

			if !isAuditablePath(path) {
				return next(c)
			}

			err := next(c)

			entry := ActivityEntry{
				Timestamp: time.Now().UTC(),
				Action:    httpMethodToAction(req.Method),
				Method:    req.Method,
				Path:      path,
				Status:    c.Response().Status,
				IPAddress: c.RealIP(),
				UserAgent: req.UserAgent(),
			}
			if err != nil {
				entry.Status = StatusOf(err)
			}
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}
			if id, ok := auth.IdentityFromContext(c.Request().Context()); ok {
				uid := id.UserID
				entry.UserID = &uid
				entry.Role = id.Role.String()
			}

			if recorder != nil {
				ctx := context.WithoutCancel(c.Request().Context())
				if recErr := recorder.RecordActivity(ctx, entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record activity")
				}
			}

			return err
		}
	}
}

func isAuditablePath(path string) bool {
	return strings.HasPrefix(path, "/api/v1/")
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}
