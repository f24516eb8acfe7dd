package wearable

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/careadmin/careadmin/internal/platform/auth"
	"github.com/careadmin/careadmin/internal/platform/response"
	"github.com/careadmin/careadmin/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the device and reading endpoints. mw runs before the
// role check on every route, e.g. a feature gate.
func (h *Handler) RegisterRoutes(api *echo.Group, mw ...echo.MiddlewareFunc) {
	chain := func(last echo.MiddlewareFunc) []echo.MiddlewareFunc {
		return append(append([]echo.MiddlewareFunc{}, mw...), last)
	}
	read := chain(auth.RequireRole(auth.RoleViewer, auth.RoleStaff, auth.RoleClinician))
	write := chain(auth.RequireRole(auth.RoleStaff, auth.RoleClinician))

	api.GET("/patients/:id/wearables", h.ListDevices, read...)
	api.POST("/patients/:id/wearables", h.CreateDevice, write...)
	api.GET("/wearables/:deviceId", h.GetDevice, read...)
	api.PUT("/wearables/:deviceId", h.UpdateDevice, write...)
	api.DELETE("/wearables/:deviceId", h.DeleteDevice, write...)
	api.GET("/wearables/:deviceId/readings", h.ListReadings, read...)
	api.POST("/wearables/:deviceId/sync", h.Sync, write...)
}

func pathID(c echo.Context, name, label string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+label+" id")
	}
	return id, nil
}

func (h *Handler) ListDevices(c echo.Context) error {
	patientID, err := pathID(c, "id", "patient")
	if err != nil {
		return err
	}
	items, err := h.svc.ListDevices(c.Request().Context(), patientID)
	if err != nil {
		return err
	}
	return response.OK(c, items)
}

func (h *Handler) CreateDevice(c echo.Context) error {
	patientID, err := pathID(c, "id", "patient")
	if err != nil {
		return err
	}
	var in DeviceInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	d, err := h.svc.CreateDevice(c.Request().Context(), patientID, in)
	if err != nil {
		return err
	}
	return response.Created(c, d)
}

func (h *Handler) GetDevice(c echo.Context) error {
	id, err := pathID(c, "deviceId", "device")
	if err != nil {
		return err
	}
	d, err := h.svc.GetDevice(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return response.OK(c, d)
}

func (h *Handler) UpdateDevice(c echo.Context) error {
	id, err := pathID(c, "deviceId", "device")
	if err != nil {
		return err
	}
	var in DeviceInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	d, err := h.svc.UpdateDevice(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return response.OK(c, d)
}

func (h *Handler) DeleteDevice(c echo.Context) error {
	id, err := pathID(c, "deviceId", "device")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDevice(c.Request().Context(), id); err != nil {
		return err
	}
	return response.OK(c, map[string]string{"id": id.String()})
}

func timeParam(c echo.Context, name string) (*time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, name+" must be an RFC 3339 timestamp")
	}
	return &t, nil
}

func (h *Handler) ListReadings(c echo.Context) error {
	id, err := pathID(c, "deviceId", "device")
	if err != nil {
		return err
	}
	f := ReadingFilter{Type: c.QueryParam("type")}
	if f.From, err = timeParam(c, "from"); err != nil {
		return err
	}
	if f.To, err = timeParam(c, "to"); err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListReadings(c.Request().Context(), id, f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return response.Paginated(c, items, total, pg)
}

func (h *Handler) Sync(c echo.Context) error {
	id, err := pathID(c, "deviceId", "device")
	if err != nil {
		return err
	}
	job, err := h.svc.RequestSync(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return response.Accepted(c, map[string]string{"job_id": job.ID})
}
