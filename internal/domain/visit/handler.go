package visit

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/adtcore/pkg/pagination"
)

// Handler serves read-only visit queries.
type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/visits/:encounter", h.GetVisit)
	api.GET("/visits/:encounter/audit", h.ListAudit)
}

func (h *Handler) GetVisit(c echo.Context) error {
	v, err := h.lookup(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) ListAudit(c echo.Context) error {
	v, err := h.lookup(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	audits, total, err := h.repo.ListAudit(c.Request().Context(), v.ID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(audits, total, pg.Limit, pg.Offset))
}

func (h *Handler) lookup(c echo.Context) (*Visit, error) {
	encounter := c.Param("encounter")
	if encounter == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "missing encounter")
	}
	v, err := h.repo.FindByEncounter(c.Request().Context(), encounter)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if v == nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "visit not found")
	}
	return v, nil
}
