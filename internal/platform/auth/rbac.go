package auth

import (
	"github.com/labstack/echo/v4"

	"github.com/curameet/curameet/internal/platform/apierror"
)

// RequireRole returns middleware that admits callers whose role is exactly
// one of roles. There is no implicit admin bypass; list RoleAdmin to allow it.
func RequireRole(roles ...Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFromContext(c.Request().Context())
			if !ok {
				return apierror.Unauthenticated("")
			}
			for _, required := range roles {
				if id.Role == required {
					return next(c)
				}
			}
			return apierror.Forbidden()
		}
	}
}
