package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/curameet/curameet/internal/platform/apierror"
)

// ErrorHandler renders every error that reaches echo as the JSON envelope
// {"success":false,"message":...}. Causes of 5xx responses are logged and
// never sent to the client.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := render(err)
		if status >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("failed to write error response")
		}
	}
}

// StatusOf returns the status code the error handler will use for err.
func StatusOf(err error) int {
	status, _ := render(err)
	return status
}

func render(err error) (int, apierror.Body) {
	if e, ok := apierror.As(err); ok {
		return e.Code(), e.Body()
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Code >= http.StatusInternalServerError && he.Code != http.StatusGatewayTimeout {
			return he.Code, apierror.Body{Message: apierror.MsgInternal}
		}
		msg, ok := he.Message.(string)
		if !ok || msg == "" {
			msg = http.StatusText(he.Code)
		}
		if he.Code == http.StatusUnauthorized {
			msg = apierror.MsgUnauthenticated
		}
		return he.Code, apierror.Body{Message: msg}
	}

	return http.StatusInternalServerError, apierror.Body{Message: apierror.MsgInternal}
}
