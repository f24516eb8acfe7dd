package careprofessional

import (
	"net/http"
	"strconv"

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

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := auth.RequireRole(auth.RoleViewer, auth.RoleStaff, auth.RoleClinician)
	manage := auth.RequireRole(auth.RoleAdmin)
	assign := auth.RequireRole(auth.RoleStaff, auth.RoleClinician)

	api.GET("/care-professionals", h.List, read)
	api.GET("/care-professionals/:id", h.Get, read)
	api.POST("/care-professionals", h.Create, manage)
	api.PUT("/care-professionals/:id", h.Update, manage)
	api.DELETE("/care-professionals/:id", h.Delete, manage)

	api.GET("/care-professionals/:id/patient-assignments", h.ListAssignments, read)
	api.POST("/care-professionals/:id/patient-assignments", h.Assign, assign)
	api.DELETE("/care-professionals/:id/patient-assignments/:assignmentId", h.Unassign, assign)
}

func (h *Handler) List(c echo.Context) error {
	f := ListFilter{Query: c.QueryParam("q"), Role: c.QueryParam("role")}
	if raw := c.QueryParam("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid active flag")
		}
		f.Active = &active
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return response.Paginated(c, items, total, pg)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return response.OK(c, p)
}

func (h *Handler) Create(c echo.Context) error {
	var in Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := h.svc.Create(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return response.Created(c, p)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := h.svc.Update(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return response.OK(c, p)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return response.OK(c, map[string]string{"id": id.String()})
}

func (h *Handler) ListAssignments(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAssignments(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return response.Paginated(c, items, total, pg)
}

func (h *Handler) Assign(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in AssignmentInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.Assign(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return response.Created(c, a)
}

func (h *Handler) Unassign(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	assignmentID, err := uuid.Parse(c.Param("assignmentId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid assignment id")
	}
	if err := h.svc.Unassign(c.Request().Context(), id, assignmentID); err != nil {
		return err
	}
	return response.OK(c, map[string]string{"id": assignmentID.String()})
}
