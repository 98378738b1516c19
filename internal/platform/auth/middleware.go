package auth

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/curameet/curameet/internal/platform/apierror"
)

// TokenVerifier resolves a raw bearer token to the identity it was issued to.
// Implementations must reject expired, revoked and unknown tokens.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (Identity, error)
}

// Authenticate verifies the bearer token on every request not matched by
// skip and stores the resulting Identity in the request context. The token
// is read from the Authorization header, falling back to ?token=.
func Authenticate(verifier TokenVerifier, skip func(echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skip != nil && skip(c) {
				return next(c)
			}

			raw, err := ExtractToken(c)
			if err != nil {
				return err
			}

			ctx := c.Request().Context()
			id, err := verifier.VerifyToken(ctx, raw)
			if err != nil {
				return err
			}

			c.Set("user_id", id.UserID.String())
			c.SetRequest(c.Request().WithContext(WithIdentity(ctx, id)))
			return next(c)
		}
	}
}

// ExtractToken returns the bearer token of the request.
func ExtractToken(c echo.Context) (string, error) {
	if header := c.Request().Header.Get(echo.HeaderAuthorization); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		token = strings.TrimSpace(token)
		if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
			return "", apierror.Unauthenticated("")
		}
		return token, nil
	}
	if token := strings.TrimSpace(c.QueryParam("token")); token != "" {
		return token, nil
	}
	return "", apierror.Unauthenticated("")
}

// CallerFromContext returns the authenticated identity or an authentication
// error for handlers mounted behind Authenticate.
func CallerFromContext(c echo.Context) (Identity, error) {
	id, ok := IdentityFromContext(c.Request().Context())
	if !ok {
		return Identity{}, apierror.Unauthenticated("")
	}
	return id, nil
}
