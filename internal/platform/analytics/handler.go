package analytics

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/careadmin/careadmin/internal/platform/auth"
	"github.com/careadmin/careadmin/internal/platform/db"
	"github.com/careadmin/careadmin/internal/platform/response"
)

// Middleware counts successful GETs under /api by route pattern, so
// /api/patients/:id is one entry however many patients are viewed.
func Middleware(t *Tracker) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			req := c.Request()
			if err != nil || req.Method != http.MethodGet || !strings.HasPrefix(c.Path(), "/api/") {
				return err
			}
			if c.Response().Status >= http.StatusBadRequest {
				return nil
			}
			if tenantID := db.TenantFromContext(req.Context()); tenantID != uuid.Nil {
				t.TrackPageview(req.Context(), tenantID, c.Path())
			}
			return nil
		}
	}
}

type Handler struct {
	tracker *Tracker
}

func NewHandler(t *Tracker) *Handler {
	return &Handler{tracker: t}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/analytics/summary", h.Summary, auth.RequireRole(auth.RoleAdmin))
}

func (h *Handler) Summary(c echo.Context) error {
	days := defaultDay
	if raw := c.QueryParam("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxDays {
			return echo.NewHTTPError(http.StatusBadRequest, "days must be between 1 and 90")
		}
		days = n
	}
	ctx := c.Request().Context()
	return response.OK(c, h.tracker.Summary(ctx, db.TenantFromContext(ctx), days))
}
