// Package respond writes the success side of the {"success": ...} JSON
// envelope. Failures are rendered by middleware.ErrorHandler.
package respond

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func Data(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, Envelope{Success: true, Data: data})
}

func Message(c echo.Context, status int, msg string) error {
	return c.JSON(status, Envelope{Success: true, Message: msg})
}

func MessageData(c echo.Context, status int, msg string, data interface{}) error {
	return c.JSON(status, Envelope{Success: true, Message: msg, Data: data})
}

// Bind decodes the request into v. Decoding failures become a 400 without
// the parser detail.
func Bind(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	return nil
}
