package tenant

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/careadmin/careadmin/internal/platform/auth"
	"github.com/careadmin/careadmin/internal/platform/db"
	"github.com/careadmin/careadmin/internal/platform/response"
	"github.com/careadmin/careadmin/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the current-tenant routes on the tenant-scoped group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := auth.RequireRole(auth.RoleViewer, auth.RoleStaff, auth.RoleClinician)
	admin := auth.RequireRole(auth.RoleAdmin)

	api.GET("/tenants", h.Current, read)
	api.PUT("/tenants", h.UpdateCurrent, admin)
	api.GET("/tenants/users", h.ListMembers, admin)
	api.PUT("/tenants/users/:userId/role", h.UpdateMemberRole, admin)
	api.DELETE("/tenants/users/:userId", h.RemoveMember, admin)
	api.GET("/tenants/invitations", h.ListInvitations, admin)
	api.POST("/tenants/invitations", h.Invite, admin)
	api.DELETE("/tenants/invitations/:id", h.RevokeInvitation, admin)
}

// RegisterAccountRoutes mounts routes that need a signed-in user but no
// tenant yet. mw must authenticate the caller.
func (h *Handler) RegisterAccountRoutes(g *echo.Group, mw ...echo.MiddlewareFunc) {
	g.POST("/tenants/invitations/accept", h.Accept, mw...)
}

// RegisterAdminRoutes mounts platform operator routes. They are not scoped
// to a tenant; mw must authenticate the caller.
func (h *Handler) RegisterAdminRoutes(g *echo.Group, mw ...echo.MiddlewareFunc) {
	platform := append(append([]echo.MiddlewareFunc{}, mw...), auth.RequireRole(auth.RolePlatformAdmin))
	g.POST("/admin/tenants", h.Provision, platform...)
	g.GET("/admin/tenants/:id", h.Get, platform...)
	g.PATCH("/admin/tenants/:id/status", h.SetStatus, platform...)
}

func (h *Handler) Current(c echo.Context) error {
	t, err := h.svc.Current(c.Request().Context())
	if err != nil {
		return err
	}
	return response.OK(c, t)
}

func (h *Handler) UpdateCurrent(c echo.Context) error {
	var in UpdateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	t, err := h.svc.UpdateCurrent(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return response.OK(c, t)
}

func (h *Handler) ListMembers(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListMembers(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return response.Paginated(c, items, total, pg)
}

func (h *Handler) UpdateMemberRole(c echo.Context) error {
	var in RoleInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	m, err := h.svc.UpdateMemberRole(c.Request().Context(), c.Param("userId"), in)
	if err != nil {
		return err
	}
	return response.OK(c, m)
}

func (h *Handler) RemoveMember(c echo.Context) error {
	userID := c.Param("userId")
	if err := h.svc.RemoveMember(c.Request().Context(), userID); err != nil {
		return err
	}
	return response.OK(c, map[string]string{"user_id": userID})
}

func (h *Handler) ListInvitations(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListInvitations(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return response.Paginated(c, items, total, pg)
}

func (h *Handler) Invite(c echo.Context) error {
	var in InvitationInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	inv, err := h.svc.Invite(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return response.Created(c, inv)
}

func (h *Handler) RevokeInvitation(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.RevokeInvitation(c.Request().Context(), id); err != nil {
		return err
	}
	return response.OK(c, map[string]string{"id": id.String()})
}

type acceptRequest struct {
	Token string `json:"token"`
}

func (h *Handler) Accept(c echo.Context) error {
	var req acceptRequest
	if err := c.Bind(&req); err != nil || req.Token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "token is required")
	}
	m, err := h.svc.Accept(c.Request().Context(), req.Token)
	if err != nil {
		return err
	}
	return response.Created(c, m)
}

func (h *Handler) Provision(c echo.Context) error {
	var in ProvisionInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := h.svc.Provision(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return response.Created(c, p)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	t, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return response.OK(c, t)
}

func (h *Handler) SetStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in StatusInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	t, err := h.svc.SetStatus(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return response.OK(c, t)
}

// RequireActive rejects requests for suspended or archived tenants.
func RequireActive(svc *Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			t, err := svc.Current(c.Request().Context())
			if errors.Is(err, db.ErrNotFound) {
				return echo.NewHTTPError(http.StatusForbidden, "unknown tenant")
			}
			if err != nil {
				return err
			}
			if t.Status != StatusActive {
				return echo.NewHTTPError(http.StatusForbidden, "tenant is "+t.Status)
			}
			return next(c)
		}
	}
}

// RequireMember admits a caller to a tenant named by header, query or the
// configured default only if they belong to it. Members act with their
// tenant role rather than the roles in their token. Tenants carried in the
// token claim and platform admins pass through unchanged.
func RequireMember(svc *Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if db.TenantSource(c) == db.TenantFromClaim {
				return next(c)
			}
			ctx := c.Request().Context()
			if auth.HasRole(auth.RolesFromContext(ctx), auth.RolePlatformAdmin) {
				return next(c)
			}
			userID := auth.UserIDFromContext(ctx)
			m, err := svc.Member(ctx, db.TenantFromContext(ctx), userID)
			if errors.Is(err, db.ErrNotFound) {
				return echo.NewHTTPError(http.StatusForbidden, "not a member of this tenant")
			}
			if err != nil {
				return err
			}
			ctx = auth.WithIdentity(ctx, userID, auth.EmailFromContext(ctx), []string{m.Role})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
