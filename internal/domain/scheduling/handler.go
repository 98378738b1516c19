package scheduling

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/curameet/curameet/internal/platform/apierror"
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
	patient := api.Group("/patient", auth.RequireRole(auth.RolePatient))
	patient.GET("/appointments", h.ListAppointments)
	patient.POST("/appointments", h.CreateAppointment)
	patient.GET("/appointments/:id", h.GetAppointment)
	patient.PUT("/appointments/:id/schedule", h.ChangeSchedule)
	patient.POST("/appointments/:id/cancel", h.CancelAppointment)

	doctor := api.Group("/doctor", auth.RequireRole(auth.RoleDoctor))
	doctor.GET("/appointments", h.ListAppointments)
	doctor.GET("/appointments/:id", h.GetAppointment)
	doctor.PUT("/appointments/:id/schedule", h.ChangeSchedule)
	doctor.POST("/appointments/:id/cancel", h.CancelAppointment)
	doctor.PUT("/appointments/:id/status", h.UpdateStatus)
	doctor.PUT("/appointments/:id/note", h.AddDoctorNote)

	admin := api.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	admin.GET("/appointments", h.ListAppointments)
	admin.POST("/appointments/:id/cancel", h.CancelAppointment)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// parseFilter reads status, patient_id, doctor_id, from and to.
func parseFilter(c echo.Context) (Filter, error) {
	var f Filter
	invalid := map[string]string{}

	if v := c.QueryParam("status"); v != "" {
		st, err := ParseStatus(v)
		if err != nil {
			invalid["status"] = "status must be one of: pending, confirmed, completed, cancelled"
		}
		f.Status = st
	}
	for name, dst := range map[string]**uuid.UUID{"patient_id": &f.PatientID, "doctor_id": &f.DoctorID} {
		if v := c.QueryParam(name); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				invalid[name] = name + " must be a valid id"
				continue
			}
			*dst = &id
		}
	}
	for name, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		if v := c.QueryParam(name); v != "" {
			t, err := parseDay(v)
			if err != nil {
				invalid[name] = name + " must be a date"
				continue
			}
			*dst = &t
		}
	}

	if len(invalid) > 0 {
		return Filter{}, apierror.InvalidFields(invalid)
	}
	return f, nil
}

// parseDay accepts a plain date or any appointment time format.
func parseDay(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return ParseSlotTime(s)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	f, err := parseFilter(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), caller, f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	var req CreateRequest
	if err := respond.Bind(c, &req); err != nil {
		return err
	}
	a, err := h.svc.Book(c.Request().Context(), caller, req)
	if err != nil {
		return err
	}
	return respond.MessageData(c, http.StatusCreated, "Appointment created", a)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Get(c.Request().Context(), caller, id)
	if err != nil {
		return err
	}
	return respond.Data(c, http.StatusOK, a)
}

func (h *Handler) ChangeSchedule(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req ScheduleRequest
	if err := respond.Bind(c, &req); err != nil {
		return err
	}
	a, err := h.svc.Reschedule(c.Request().Context(), caller, id, req)
	if err != nil {
		return err
	}
	return respond.MessageData(c, http.StatusOK, "Appointment rescheduled", a)
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req CancelRequest
	if err := respond.Bind(c, &req); err != nil {
		return err
	}
	a, err := h.svc.Cancel(c.Request().Context(), caller, id, req)
	if err != nil {
		return err
	}
	return respond.MessageData(c, http.StatusOK, "Appointment cancelled", a)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req StatusRequest
	if err := respond.Bind(c, &req); err != nil {
		return err
	}
	a, err := h.svc.UpdateStatus(c.Request().Context(), caller, id, req)
	if err != nil {
		return err
	}
	return respond.MessageData(c, http.StatusOK, "Appointment status updated", a)
}

func (h *Handler) AddDoctorNote(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req NoteRequest
	if err := respond.Bind(c, &req); err != nil {
		return err
	}
	a, err := h.svc.AddDoctorNote(c.Request().Context(), caller, id, req)
	if err != nil {
		return err
	}
	return respond.MessageData(c, http.StatusOK, "Doctor note saved", a)
}
