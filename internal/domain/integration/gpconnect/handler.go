package gpconnect

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/careadmin/careadmin/internal/platform/auth"
	"github.com/careadmin/careadmin/internal/platform/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the settings and sync endpoints. mw runs before the
// role check, e.g. a feature gate.
func (h *Handler) RegisterRoutes(api *echo.Group, mw ...echo.MiddlewareFunc) {
	manage := append(append([]echo.MiddlewareFunc{}, mw...), auth.RequireRole(auth.RoleAdmin))
	sync := append(append([]echo.MiddlewareFunc{}, mw...), auth.RequireRole(auth.RoleClinician))

	api.GET("/integrations/gp-connect", h.GetSettings, manage...)
	api.PUT("/integrations/gp-connect", h.UpdateSettings, manage...)
	api.POST("/integrations/gp-connect/sync/:patientId", h.Sync, sync...)
}

func (h *Handler) GetSettings(c echo.Context) error {
	st, err := h.svc.GetSettings(c.Request().Context())
	if err != nil {
		return err
	}
	return response.OK(c, st)
}

func (h *Handler) UpdateSettings(c echo.Context) error {
	var in SettingsInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	st, err := h.svc.UpdateSettings(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return response.OK(c, st)
}

func (h *Handler) Sync(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	job, err := h.svc.RequestSync(c.Request().Context(), patientID)
	if err != nil {
		return err
	}
	return response.Accepted(c, map[string]string{"job_id": job.ID})
}
