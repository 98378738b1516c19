package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/curameet/curameet/internal/platform/apierror"
	"github.com/curameet/curameet/internal/platform/auth"
)

// Recovery turns a handler panic into an Internal error. The panic value and
// stack only reach the log.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}
				ev := logger.Error().
					Str("method", c.Request().Method).
					Str("path", c.Path()).
					Str("panic", fmt.Sprint(r)).
					Bytes("stack", debug.Stack())
				if rid, ok := c.Get("request_id").(string); ok {
					ev = ev.Str("request_id", rid)
				}
				if id, ok := auth.IdentityFromContext(c.Request().Context()); ok {
					ev = ev.Str("user_id", id.UserID.String())
				}
				ev.Msg("panic recovered")

				err = apierror.Internal(fmt.Errorf("panic: %v", r))
			}()
			return next(c)
		}
	}
}
