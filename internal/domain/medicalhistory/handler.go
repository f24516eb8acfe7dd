package medicalhistory

import (
	"net/http"

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
	write := auth.RequireRole(auth.RoleClinician)

	api.GET("/patients/:id/medical-history", h.List, read)
	api.POST("/patients/:id/medical-history", h.Create, write)
	api.GET("/patients/:id/medical-history/:entryId", h.Get, read)
	api.PUT("/patients/:id/medical-history/:entryId", h.Update, write)
	api.DELETE("/patients/:id/medical-history/:entryId", h.Delete, write)
}

func ids(c echo.Context, withEntry bool) (patientID, entryID uuid.UUID, err error) {
	if patientID, err = uuid.Parse(c.Param("id")); err != nil {
		return patientID, entryID, echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	if withEntry {
		if entryID, err = uuid.Parse(c.Param("entryId")); err != nil {
			return patientID, entryID, echo.NewHTTPError(http.StatusBadRequest, "invalid entry id")
		}
	}
	return patientID, entryID, nil
}

func (h *Handler) List(c echo.Context) error {
	patientID, _, err := ids(c, false)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), patientID, c.QueryParam("category"), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return response.Paginated(c, items, total, pg)
}

func (h *Handler) Create(c echo.Context) error {
	patientID, _, err := ids(c, false)
	if err != nil {
		return err
	}
	var in Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	e, err := h.svc.Create(c.Request().Context(), patientID, in)
	if err != nil {
		return err
	}
	return response.Created(c, e)
}

func (h *Handler) Get(c echo.Context) error {
	patientID, entryID, err := ids(c, true)
	if err != nil {
		return err
	}
	e, err := h.svc.Get(c.Request().Context(), patientID, entryID)
	if err != nil {
		return err
	}
	return response.OK(c, e)
}

func (h *Handler) Update(c echo.Context) error {
	patientID, entryID, err := ids(c, true)
	if err != nil {
		return err
	}
	var in Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	e, err := h.svc.Update(c.Request().Context(), patientID, entryID, in)
	if err != nil {
		return err
	}
	return response.OK(c, e)
}

func (h *Handler) Delete(c echo.Context) error {
	patientID, entryID, err := ids(c, true)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), patientID, entryID); err != nil {
		return err
	}
	return response.OK(c, map[string]string{"id": entryID.String()})
}
