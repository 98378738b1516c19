package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths lists route paths that bypass authentication: health checks
// and the credential endpoints used before a token exists.
var publicPaths = map[string]bool{
	"/health":                 true,
	"/health/db":              true,
	"/api/v1/login":           true,
	"/api/v1/register":        true,
	"/api/v1/forgot-password": true,
	"/api/v1/reset-password":  true,
}

// AuthSkipper returns true for requests whose route should skip authentication.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}
