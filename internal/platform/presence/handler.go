package presence

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/careadmin/careadmin/internal/platform/auth"
	"github.com/careadmin/careadmin/internal/platform/db"
	"github.com/careadmin/careadmin/internal/platform/response"
)

type Handler struct {
	tracker *Tracker
}

func NewHandler(t *Tracker) *Handler {
	return &Handler{tracker: t}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/presence", h.Online)
	api.POST("/presence/heartbeat", h.Heartbeat)
	api.DELETE("/presence", h.Leave)
}

type heartbeatRequest struct {
	Status string `json:"status"`
}

func (h *Handler) Heartbeat(c echo.Context) error {
	var req heartbeatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Status != "" && !ValidStatus(req.Status) {
		return echo.NewHTTPError(http.StatusBadRequest, "status must be one of: online, away, busy")
	}
	ctx := c.Request().Context()
	if err := h.tracker.Heartbeat(ctx, db.TenantFromContext(ctx), auth.UserIDFromContext(ctx), req.Status); err != nil {
		return err
	}
	return response.OK(c, map[string]bool{"ok": true})
}

// Online accepts ?window=90s.
func (h *Handler) Online(c echo.Context) error {
	window := DefaultWindow
	if raw := c.QueryParam("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid window")
		}
		window = d
	}
	ctx := c.Request().Context()
	return response.OK(c, h.tracker.Online(ctx, db.TenantFromContext(ctx), window))
}

func (h *Handler) Leave(c echo.Context) error {
	ctx := c.Request().Context()
	h.tracker.Leave(ctx, db.TenantFromContext(ctx), auth.UserIDFromContext(ctx))
	return c.NoContent(http.StatusNoContent)
}
