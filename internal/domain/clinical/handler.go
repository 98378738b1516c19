package clinical

import (
	"fmt"
	"net/http"
	"strconv"

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
	patient.GET("/medical-records", h.ListOwnRecords)
	patient.GET("/medical-records/:id", h.GetRecord)
	patient.GET("/medical-records/:id/file", h.DownloadFile)

	doctor := api.Group("/doctor", auth.RequireRole(auth.RoleDoctor))
	doctor.GET("/patients/:id/medical-records", h.ListPatientRecords)
	doctor.POST("/medical-records", h.CreateRecord)
	doctor.GET("/medical-records/:id", h.GetRecord)
	doctor.PUT("/medical-records/:id", h.UpdateRecord)
	doctor.DELETE("/medical-records/:id", h.DeleteRecord)
	doctor.POST("/medical-records/:id/file", h.UploadFile)
	doctor.GET("/medical-records/:id/file", h.DownloadFile)

	admin := api.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	admin.GET("/patients/:id/medical-records", h.ListPatientRecords)
	admin.DELETE("/medical-records/:id", h.DeleteRecord)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) ListOwnRecords(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListOwn(c.Request().Context(), caller, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListPatientRecords(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	patientID, err := parseID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListForPatient(c.Request().Context(), caller, patientID, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetRecord(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	rec, err := h.svc.Get(c.Request().Context(), caller, id)
	if err != nil {
		return err
	}
	return respond.Data(c, http.StatusOK, rec)
}

func (h *Handler) CreateRecord(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	var req CreateRequest
	if err := respond.Bind(c, &req); err != nil {
		return err
	}
	rec, err := h.svc.Create(c.Request().Context(), caller, req)
	if err != nil {
		return err
	}
	return respond.MessageData(c, http.StatusCreated, "Medical record created", rec)
}

func (h *Handler) UpdateRecord(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req UpdateRequest
	if err := respond.Bind(c, &req); err != nil {
		return err
	}
	rec, err := h.svc.Update(c.Request().Context(), caller, id, req)
	if err != nil {
		return err
	}
	return respond.MessageData(c, http.StatusOK, "Medical record updated", rec)
}

func (h *Handler) DeleteRecord(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), caller, id); err != nil {
		return err
	}
	return respond.Message(c, http.StatusOK, "Medical record deleted")
}

// UploadFile accepts a multipart form with the attachment in the "file" field.
func (h *Handler) UploadFile(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return apierror.InvalidFields(map[string]string{"file": "file is required"})
	}
	f, err := fh.Open()
	if err != nil {
		return apierror.Internal(fmt.Errorf("open upload: %w", err))
	}
	defer f.Close()

	rec, err := h.svc.AttachFile(c.Request().Context(), caller, id, fh.Filename, f)
	if err != nil {
		return err
	}
	return respond.MessageData(c, http.StatusOK, "File uploaded", rec)
}

func (h *Handler) DownloadFile(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	rc, att, err := h.svc.DownloadFile(c.Request().Context(), caller, id)
	if err != nil {
		return err
	}
	defer rc.Close()

	hdr := c.Response().Header()
	hdr.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.FileName))
	hdr.Set("Content-Length", strconv.FormatInt(att.Size, 10))
	hdr.Set("X-Content-Type-Options", "nosniff")
	return c.Stream(http.StatusOK, att.ContentType, rc)
}
