package identity

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/curameet/curameet/internal/platform/auth"
	"github.com/curameet/curameet/internal/platform/respond"
	"github.com/curameet/curameet/pkg/pagination"
)

type Handler struct {
	auth     *AuthService
	profiles *ProfileService
	// credLimit throttles the endpoints that accept credentials or reset
	// tokens. Nil disables it.
	credLimit echo.MiddlewareFunc
}

func NewHandler(authSvc *AuthService, profiles *ProfileService, credLimit echo.MiddlewareFunc) *Handler {
	return &Handler{auth: authSvc, profiles: profiles, credLimit: credLimit}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	var limited []echo.MiddlewareFunc
	if h.credLimit != nil {
		limited = append(limited, h.credLimit)
	}

	// Public
	api.POST("/login", h.Login, limited...)
	api.POST("/register", h.Register, limited...)
	api.POST("/forgot-password", h.ForgotPassword, limited...)
	api.POST("/reset-password", h.ResetPassword, limited...)

	// Any authenticated role
	api.POST("/logout", h.Logout)
	api.POST("/refresh", h.Refresh)
	api.GET("/me", h.Me)
	api.PUT("/me/profile", h.UpdateProfile)
	api.PUT("/me/password", h.ChangePassword)

	patient := api.Group("/patient", auth.RequireRole(auth.RolePatient))
	patient.GET("/profile", h.GetPatientProfile)
	patient.PUT("/profile", h.UpdatePatientProfile)
	patient.GET("/doctors", h.ListDoctors)

	doctor := api.Group("/doctor", auth.RequireRole(auth.RoleDoctor))
	doctor.GET("/profile", h.GetDoctorProfile)
	doctor.PUT("/profile", h.UpdateDoctorProfile)
	doctor.GET("/patients/:id", h.GetPatient)
}

func clientMeta(c echo.Context) ClientMeta {
	return ClientMeta{UserAgent: c.Request().UserAgent(), IPAddress: c.RealIP()}
}

// -- Auth Handlers --

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := respond.Bind(c, &req); err != nil {
		return err
	}
	resp, err := h.auth.Login(c.Request().Context(), req, clientMeta(c))
	if err != nil {
		return err
	}
	return respond.MessageData(c, http.StatusOK, "Login successful", resp)
}

func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := respond.Bind(c, &req); err != nil {
		return err
	}
	user, err := h.auth.Register(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return respond.MessageData(c, http.StatusCreated, "Registration successful", user)
}

func (h *Handler) ForgotPassword(c echo.Context) error {
	var req ForgotPasswordRequest
	if err := respond.Bind(c, &req); err != nil {
		return err
	}
	if err := h.auth.ForgotPassword(c.Request().Context(), req); err != nil {
		return err
	}
	return respond.Message(c, http.StatusOK, ForgotPasswordMessage)
}

func (h *Handler) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := respond.Bind(c, &req); err != nil {
		return err
	}
	if err := h.auth.ResetPassword(c.Request().Context(), req); err != nil {
		return err
	}
	return respond.Message(c, http.StatusOK, "Password has been reset")
}

func (h *Handler) Logout(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	if err := h.auth.Logout(c.Request().Context(), caller); err != nil {
		return err
	}
	return respond.Message(c, http.StatusOK, "Logged out")
}

func (h *Handler) Refresh(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	resp, err := h.auth.Refresh(c.Request().Context(), caller, clientMeta(c))
	if err != nil {
		return err
	}
	return respond.Data(c, http.StatusOK, resp)
}

func (h *Handler) Me(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	acct, err := h.auth.Me(c.Request().Context(), caller)
	if err != nil {
		return err
	}
	return respond.Data(c, http.StatusOK, acct)
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	var req UpdateProfileRequest
	if err := respond.Bind(c, &req); err != nil {
		return err
	}
	user, err := h.auth.UpdateProfile(c.Request().Context(), caller, req)
	if err != nil {
		return err
	}
	return respond.MessageData(c, http.StatusOK, "Profile updated", user)
}

func (h *Handler) ChangePassword(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	var req ChangePasswordRequest
	if err := respond.Bind(c, &req); err != nil {
		return err
	}
	if err := h.auth.ChangePassword(c.Request().Context(), caller, req); err != nil {
		return err
	}
	return respond.Message(c, http.StatusOK, "Password changed")
}

// -- Profile Handlers --

func (h *Handler) GetPatientProfile(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	p, err := h.profiles.PatientForCaller(c.Request().Context(), caller)
	if err != nil {
		return err
	}
	return respond.Data(c, http.StatusOK, p)
}

func (h *Handler) UpdatePatientProfile(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	var req PatientProfileRequest
	if err := respond.Bind(c, &req); err != nil {
		return err
	}
	p, err := h.profiles.UpdatePatientProfile(c.Request().Context(), caller, req)
	if err != nil {
		return err
	}
	return respond.MessageData(c, http.StatusOK, "Profile updated", p)
}

func (h *Handler) GetDoctorProfile(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	d, err := h.profiles.DoctorForCaller(c.Request().Context(), caller)
	if err != nil {
		return err
	}
	return respond.Data(c, http.StatusOK, d)
}

func (h *Handler) UpdateDoctorProfile(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	var req DoctorProfileRequest
	if err := respond.Bind(c, &req); err != nil {
		return err
	}
	d, err := h.profiles.UpdateDoctorProfile(c.Request().Context(), caller, req)
	if err != nil {
		return err
	}
	return respond.MessageData(c, http.StatusOK, "Profile updated", d)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := DoctorFilter{Specialty: c.QueryParam("specialty"), Search: c.QueryParam("search")}
	doctors, total, err := h.profiles.ListDoctors(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(doctors, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetPatient(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.profiles.GetPatient(c.Request().Context(), caller, id)
	if err != nil {
		return err
	}
	return respond.Data(c, http.StatusOK, p)
}
