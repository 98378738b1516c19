package admin

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/curameet/curameet/internal/domain/identity"
	"github.com/curameet/curameet/internal/platform/apierror"
	"github.com/curameet/curameet/internal/platform/audit"
	"github.com/curameet/curameet/internal/platform/auth"
	"github.com/curameet/curameet/internal/platform/respond"
	"github.com/curameet/curameet/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	g.GET("/users", h.ListUsers)
	g.PUT("/users/:id/role", h.ManageRole)
	g.POST("/users/roles", h.BulkManageRole)
	g.GET("/logs", h.QueryLogs)
	g.POST("/maintenance", h.Maintenance)
}

func (h *Handler) ListUsers(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	var f identity.UserFilter
	if v := c.QueryParam("role"); v != "" {
		role, err := auth.ParseRole(v)
		if err != nil {
			return apierror.InvalidFields(map[string]string{"role": "role must be one of: patient, doctor, admin"})
		}
		f.Role = role
	}
	f.Search = c.QueryParam("search")

	pg := pagination.FromContext(c)
	users, total, err := h.svc.ListUsers(c.Request().Context(), caller, f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(users, total, pg.Limit, pg.Offset))
}

func (h *Handler) ManageRole(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req RoleRequest
	if err := respond.Bind(c, &req); err != nil {
		return err
	}
	out, err := h.svc.ManageRole(c.Request().Context(), caller, id, req)
	if err != nil {
		return err
	}
	return respond.MessageData(c, http.StatusOK, "Role updated", out)
}

func (h *Handler) BulkManageRole(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	var req BulkRoleRequest
	if err := respond.Bind(c, &req); err != nil {
		return err
	}
	out, err := h.svc.BulkManageRole(c.Request().Context(), caller, req)
	if err != nil {
		return err
	}
	return respond.MessageData(c, http.StatusOK, "Roles updated", out)
}

// QueryLogs filters by user_id, action, from and to. Dates may be plain days
// or RFC3339 instants; a plain "to" day is inclusive.
func (h *Handler) QueryLogs(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	var f audit.Filter
	invalid := map[string]string{}

	if v := c.QueryParam("user_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			invalid["user_id"] = "user_id must be a valid id"
		} else {
			f.UserID = &id
		}
	}
	f.Action = c.QueryParam("action")
	if v := c.QueryParam("from"); v != "" {
		t, _, err := parseInstant(v)
		if err != nil {
			invalid["from"] = "from must be a date"
		} else {
			f.From = &t
		}
	}
	if v := c.QueryParam("to"); v != "" {
		t, day, err := parseInstant(v)
		if err != nil {
			invalid["to"] = "to must be a date"
		} else {
			if day {
				t = t.AddDate(0, 0, 1)
			}
			f.To = &t
		}
	}
	if len(invalid) > 0 {
		return apierror.InvalidFields(invalid)
	}

	pg := pagination.FromContext(c)
	entries, total, err := h.svc.QueryLogs(c.Request().Context(), caller, f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, pg.Limit, pg.Offset))
}

func parseInstant(s string) (time.Time, bool, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	return t.UTC(), false, err
}

func (h *Handler) Maintenance(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	var req MaintenanceRequest
	if err := respond.Bind(c, &req); err != nil {
		return err
	}
	out, err := h.svc.Maintenance(c.Request().Context(), caller, req)
	if err != nil {
		return err
	}
	return respond.MessageData(c, http.StatusOK, "Maintenance completed", out)
}
