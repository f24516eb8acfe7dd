package notify

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
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
	g := api.Group("/notifications")
	g.GET("", h.List)
	g.GET("/unread-count", h.UnreadCount)
	g.POST("/read-all", h.MarkAllRead)
	g.POST("/:id/read", h.MarkRead)
	g.DELETE("/:id", h.Delete)
}

func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	items := h.svc.ListForUser(ctx, db.TenantFromContext(ctx), auth.UserIDFromContext(ctx), limit)
	return response.OK(c, items)
}

func (h *Handler) UnreadCount(c echo.Context) error {
	ctx := c.Request().Context()
	n := h.svc.UnreadCount(ctx, db.TenantFromContext(ctx), auth.UserIDFromContext(ctx))
	return response.OK(c, map[string]int{"count": n})
}

func (h *Handler) MarkRead(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	n, err := h.svc.MarkRead(ctx, db.TenantFromContext(ctx), auth.UserIDFromContext(ctx), id)
	if err != nil {
		return notFound(err)
	}
	return response.OK(c, n)
}

func (h *Handler) MarkAllRead(c echo.Context) error {
	ctx := c.Request().Context()
	n, err := h.svc.MarkAllRead(ctx, db.TenantFromContext(ctx), auth.UserIDFromContext(ctx))
	if err != nil {
		return err
	}
	return response.OK(c, map[string]int{"updated": n})
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	if err := h.svc.Delete(ctx, db.TenantFromContext(ctx), auth.UserIDFromContext(ctx), id); err != nil {
		return notFound(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func notFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "notification not found")
	}
	return err
}
