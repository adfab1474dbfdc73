package clinical

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/ehr/adtcore/internal/domain/visit"
	"github.com/ehr/adtcore/internal/interchange"
)

type visitFinder map[string]*visit.Visit

func (f visitFinder) FindByEncounter(_ context.Context, encounter string) (*visit.Visit, error) {
	return f[encounter], nil
}

func newTestHandler(t *testing.T) (*Handler, *echo.Echo, *visit.Visit) {
	t.Helper()
	c, repo := newTestController()
	p := testPatient()
	v := testVisit(p)
	ctx := context.Background()

	if err := c.RecordLabOrder(ctx, v, labOrder(t0, result("HB", "120", t0)), saved); err != nil {
		t.Fatal(err)
	}
	form := &interchange.PatientForm{
		Header: header(t1), FormID: "F-1", FormName: "Falls risk", FiledAt: t1,
		Answers: []interchange.FormAnswer{{QuestionID: "Q1", Value: interchange.Present("yes")}},
	}
	if err := c.RecordForm(ctx, p, v, form, saved); err != nil {
		t.Fatal(err)
	}
	return NewHandler(repo, visitFinder{v.EncounterNumber: v}), echo.New(), v
}

func get(e *echo.Echo, encounter string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("encounter")
	c.SetParamValues(encounter)
	return c, rec
}

func TestHandler_ListLabOrders(t *testing.T) {
	h, e, v := newTestHandler(t)
	c, rec := get(e, v.EncounterNumber)

	if err := h.ListLabOrders(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var views []struct {
		OrderNumber string `json:"order_number"`
		Results     []struct {
			TestCode string `json:"test_code"`
		} `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatal(err)
	}
	if len(views) != 1 || views[0].OrderNumber != "LAB-1" {
		t.Fatalf("expected order LAB-1, got %+v", views)
	}
	if len(views[0].Results) != 1 || views[0].Results[0].TestCode != "HB" {
		t.Errorf("expected the HB result, got %+v", views[0].Results)
	}
}

func TestHandler_ListConsults_Empty(t *testing.T) {
	h, e, v := newTestHandler(t)
	c, rec := get(e, v.EncounterNumber)

	if err := h.ListConsults(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rec.Body.String(); got != "[]\n" {
		t.Errorf("expected an empty list, got %q", got)
	}
}

func TestHandler_ListForms(t *testing.T) {
	h, e, v := newTestHandler(t)
	c, rec := get(e, v.EncounterNumber)

	if err := h.ListForms(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var views []struct {
		SourceFormID string `json:"source_form_id"`
		Answers      []struct {
			QuestionID string `json:"question_id"`
		} `json:"answers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatal(err)
	}
	if len(views) != 1 || views[0].SourceFormID != "F-1" || len(views[0].Answers) != 1 {
		t.Errorf("expected form F-1 with one answer, got %+v", views)
	}
}

func TestHandler_UnknownVisit(t *testing.T) {
	h, e, _ := newTestHandler(t)
	c, _ := get(e, "unknown")

	err := h.ListLabOrders(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}
