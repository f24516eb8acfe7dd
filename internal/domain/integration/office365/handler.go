package office365

import (
	"net/http"

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

func (h *Handler) RegisterRoutes(api *echo.Group, mw ...echo.MiddlewareFunc) {
	manage := append(append([]echo.MiddlewareFunc{}, mw...), auth.RequireRole(auth.RoleAdmin))

	api.GET("/integrations/office365", h.GetSettings, manage...)
	api.PUT("/integrations/office365", h.UpdateSettings, manage...)
	api.GET("/integrations/office365/status", h.Status, manage...)
	api.GET("/integrations/office365/connect", h.Connect, manage...)
	api.POST("/integrations/office365/disconnect", h.Disconnect, manage...)
}

// RegisterCallback mounts the redirect target. Microsoft calls it without
// our bearer token, so it must sit outside the authenticated group.
func (h *Handler) RegisterCallback(e *echo.Echo) {
	e.GET("/api/integrations/office365/callback", h.Callback)
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

func (h *Handler) Status(c echo.Context) error {
	st, err := h.svc.Status(c.Request().Context())
	if err != nil {
		return err
	}
	return response.OK(c, st)
}

func (h *Handler) Connect(c echo.Context) error {
	url, err := h.svc.ConnectURL(c.Request().Context())
	if err != nil {
		return err
	}
	return response.OK(c, map[string]string{"url": url})
}

func (h *Handler) Callback(c echo.Context) error {
	if msg := c.QueryParam("error"); msg != "" {
		return echo.NewHTTPError(http.StatusBadRequest, "authorization failed: "+msg)
	}
	tenantID, err := h.svc.Callback(c.Request().Context(), c.QueryParam("state"), c.QueryParam("code"))
	if err != nil {
		return err
	}
	return response.OK(c, map[string]interface{}{"connected": true, "tenant_id": tenantID})
}

func (h *Handler) Disconnect(c echo.Context) error {
	if err := h.svc.Disconnect(c.Request().Context()); err != nil {
		return err
	}
	return response.OK(c, map[string]bool{"connected": false})
}
