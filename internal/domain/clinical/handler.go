package clinical

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/adtcore/internal/domain/visit"
)

// VisitFinder resolves encounter numbers for the query endpoints.
type VisitFinder interface {
	FindByEncounter(ctx context.Context, encounter string) (*visit.Visit, error)
}

// Handler serves read-only queries over the clinical rows of a visit.
type Handler struct {
	repo   Repository
	visits VisitFinder
}

func NewHandler(repo Repository, visits VisitFinder) *Handler {
	return &Handler{repo: repo, visits: visits}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/visits/:encounter/lab-orders", h.ListLabOrders)
	api.GET("/visits/:encounter/consults", h.ListConsults)
	api.GET("/visits/:encounter/forms", h.ListForms)
}

// LabOrderView is a lab order with its results.
type LabOrderView struct {
	*LabOrder
	Results []*LabResult `json:"results"`
}

// FormView is a form with its answers.
type FormView struct {
	*Form
	Answers []*FormAnswer `json:"answers"`
}

func (h *Handler) ListLabOrders(c echo.Context) error {
	ctx := c.Request().Context()
	v, err := h.lookup(c)
	if err != nil {
		return err
	}
	orders, err := h.repo.ListLabOrders(ctx, v.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	views := make([]LabOrderView, 0, len(orders))
	for _, o := range orders {
		results, err := h.repo.ListLabResults(ctx, o.ID)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		if results == nil {
			results = []*LabResult{}
		}
		views = append(views, LabOrderView{LabOrder: o, Results: results})
	}
	return c.JSON(http.StatusOK, views)
}

func (h *Handler) ListConsults(c echo.Context) error {
	v, err := h.lookup(c)
	if err != nil {
		return err
	}
	consults, err := h.repo.ListConsults(c.Request().Context(), v.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if consults == nil {
		consults = []*ConsultRequest{}
	}
	return c.JSON(http.StatusOK, consults)
}

func (h *Handler) ListForms(c echo.Context) error {
	ctx := c.Request().Context()
	v, err := h.lookup(c)
	if err != nil {
		return err
	}
	forms, err := h.repo.ListFormsByVisit(ctx, v.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	views := make([]FormView, 0, len(forms))
	for _, f := range forms {
		answers, err := h.repo.ListFormAnswers(ctx, f.ID)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		if answers == nil {
			answers = []*FormAnswer{}
		}
		views = append(views, FormView{Form: f, Answers: answers})
	}
	return c.JSON(http.StatusOK, views)
}

func (h *Handler) lookup(c echo.Context) (*visit.Visit, error) {
	encounter := c.Param("encounter")
	if encounter == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "missing encounter")
	}
	v, err := h.visits.FindByEncounter(c.Request().Context(), encounter)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if v == nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "visit not found")
	}
	return v, nil
}
