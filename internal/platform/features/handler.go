package features

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/careadmin/careadmin/internal/platform/auth"
	"github.com/careadmin/careadmin/internal/platform/db"
	"github.com/careadmin/careadmin/internal/platform/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/features", h.List)

	admin := auth.RequireRole(auth.RoleAdmin)
	api.PUT("/features/:flag", h.SetTenant, admin)
	api.DELETE("/features/:flag", h.ClearTenant, admin)

	api.PUT("/admin/features/:flag", h.SetGlobal, auth.RequireRole(auth.RolePlatformAdmin))
}

type setRequest struct {
	Enabled *bool `json:"enabled"`
}

func bindFlag(c echo.Context) (string, bool, error) {
	flag := c.Param("flag")
	if !ValidFlag(flag) {
		return "", false, echo.NewHTTPError(http.StatusBadRequest, "invalid feature flag name")
	}
	var req setRequest
	if err := c.Bind(&req); err != nil {
		return "", false, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Enabled == nil {
		return "", false, echo.NewHTTPError(http.StatusBadRequest, "enabled is required")
	}
	return flag, *req.Enabled, nil
}

func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	return response.OK(c, h.svc.List(ctx, db.TenantFromContext(ctx)))
}

func (h *Handler) SetTenant(c echo.Context) error {
	flag, enabled, err := bindFlag(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := h.svc.SetTenant(ctx, db.TenantFromContext(ctx), flag, enabled); err != nil {
		return err
	}
	return response.OK(c, map[string]bool{flag: enabled})
}

func (h *Handler) ClearTenant(c echo.Context) error {
	flag := c.Param("flag")
	if !ValidFlag(flag) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid feature flag name")
	}
	ctx := c.Request().Context()
	h.svc.ClearTenant(ctx, db.TenantFromContext(ctx), flag)
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SetGlobal(c echo.Context) error {
	flag, enabled, err := bindFlag(c)
	if err != nil {
		return err
	}
	if err := h.svc.SetGlobal(c.Request().Context(), flag, enabled); err != nil {
		return err
	}
	return response.OK(c, map[string]bool{flag: enabled})
}

// Require rejects requests when flag is off for the current tenant.
func Require(svc *Service, flag string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			if !svc.Enabled(ctx, db.TenantFromContext(ctx), flag) {
				return echo.NewHTTPError(http.StatusForbidden, "feature "+flag+" is not enabled for this tenant")
			}
			return next(c)
		}
	}
}
