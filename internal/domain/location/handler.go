package location

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

// Handler serves read-only location visit queries.
type Handler struct {
	repo   Repository
	visits VisitFinder
}

func NewHandler(repo Repository, visits VisitFinder) *Handler {
	return &Handler{repo: repo, visits: visits}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/visits/:encounter/locations", h.ListForVisit)
	api.GET("/locations/:location/open", h.ListOpen)
}

// LocationVisitView is a location visit with its location string resolved.
type LocationVisitView struct {
	*LocationVisit
	Location string `json:"location"`
}

func (h *Handler) ListForVisit(c echo.Context) error {
	ctx := c.Request().Context()
	v, err := h.visits.FindByEncounter(ctx, c.Param("encounter"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if v == nil {
		return echo.NewHTTPError(http.StatusNotFound, "visit not found")
	}
	rows, err := h.repo.ListByVisit(ctx, v.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	views, err := h.views(ctx, rows)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, views)
}

func (h *Handler) ListOpen(c echo.Context) error {
	ctx := c.Request().Context()
	loc, err := h.repo.FindLocation(ctx, c.Param("location"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if loc == nil {
		return echo.NewHTTPError(http.StatusNotFound, "location not found")
	}
	rows, err := h.repo.ListOpenAtLocation(ctx, loc.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	views := make([]LocationVisitView, 0, len(rows))
	for _, lv := range rows {
		views = append(views, LocationVisitView{LocationVisit: lv, Location: loc.LocationString})
	}
	return c.JSON(http.StatusOK, views)
}

func (h *Handler) views(ctx context.Context, rows []*LocationVisit) ([]LocationVisitView, error) {
	names := make(map[string]string)
	views := make([]LocationVisitView, 0, len(rows))
	for _, lv := range rows {
		key := lv.LocationID.String()
		name, ok := names[key]
		if !ok {
			loc, err := h.repo.GetLocation(ctx, lv.LocationID)
			if err != nil {
				return nil, err
			}
			name = loc.LocationString
			names[key] = name
		}
		views = append(views, LocationVisitView{LocationVisit: lv, Location: name})
	}
	return views, nil
}
