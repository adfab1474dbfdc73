// Package deletion removes a patient's visits together with every row that
// hangs off them. Each removed row is audited first; the caller's transaction
// makes the cascade atomic.
package deletion

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/adtcore/internal/domain/clinical"
	"github.com/ehr/adtcore/internal/domain/location"
	"github.com/ehr/adtcore/internal/domain/patient"
	"github.com/ehr/adtcore/internal/domain/visit"
)

// Counts reports how many live rows a cascade removed.
type Counts struct {
	Visits         int `json:"visits"`
	LocationVisits int `json:"location_visits"`
	LabOrders      int `json:"lab_orders"`
	LabResults     int `json:"lab_results"`
	Consults       int `json:"consults"`
	Forms          int `json:"forms"`
	FormAnswers    int `json:"form_answers"`
}

// Add accumulates o into c.
func (c *Counts) Add(o Counts) {
	c.Visits += o.Visits
	c.LocationVisits += o.LocationVisits
	c.LabOrders += o.LabOrders
	c.LabResults += o.LabResults
	c.Consults += o.Consults
	c.Forms += o.Forms
	c.FormAnswers += o.FormAnswers
}

type Controller struct {
	visits    *visit.Controller
	locations *location.Controller
	clinical  *clinical.Controller
	logger    zerolog.Logger
}

func NewController(visits *visit.Controller, locations *location.Controller, clinical *clinical.Controller, logger zerolog.Logger) *Controller {
	return &Controller{
		visits:    visits,
		locations: locations,
		clinical:  clinical,
		logger:    logger.With().Str("component", "deletion").Logger(),
	}
}

// DeleteVisitsAndDependents removes each visit after its location visits, lab
// orders, consult requests and forms.
func (c *Controller) DeleteVisitsAndDependents(ctx context.Context, visits []*visit.Visit, invalidationTime, deletionTime time.Time) (Counts, error) {
	var total Counts
	for _, v := range visits {
		n, err := c.deleteVisit(ctx, v, invalidationTime, deletionTime)
		total.Add(n)
		if err != nil {
			return total, fmt.Errorf("delete visit %s: %w", v.EncounterNumber, err)
		}
	}
	c.logger.Info().
		Int("visits", total.Visits).
		Int("location_visits", total.LocationVisits).
		Int("lab_orders", total.LabOrders).
		Int("consults", total.Consults).
		Int("forms", total.Forms).
		Msg("deleted visits and dependents")
	return total, nil
}

func (c *Controller) deleteVisit(ctx context.Context, v *visit.Visit, vu, su time.Time) (Counts, error) {
	var n Counts
	var err error

	if n.LocationVisits, err = c.locations.DeleteLocationVisits(ctx, []*visit.Visit{v}, vu, su); err != nil {
		return n, err
	}
	if n.LabOrders, n.LabResults, err = c.clinical.DeleteLabOrders(ctx, v, vu, su); err != nil {
		return n, err
	}
	if n.Consults, err = c.clinical.DeleteConsults(ctx, v, vu, su); err != nil {
		return n, err
	}
	forms, err := c.clinical.VisitForms(ctx, v)
	if err != nil {
		return n, err
	}
	if n.Forms, n.FormAnswers, err = c.clinical.DeleteForms(ctx, forms, vu, su); err != nil {
		return n, err
	}
	if err := c.visits.Delete(ctx, v, vu, su); err != nil {
		return n, err
	}
	n.Visits = 1
	return n, nil
}

// DeleteFormsForPatient removes the forms filed against p with no visit.
func (c *Controller) DeleteFormsForPatient(ctx context.Context, p *patient.Patient, invalidationTime, deletionTime time.Time) (Counts, error) {
	forms, err := c.clinical.PatientForms(ctx, p)
	if err != nil {
		return Counts{}, err
	}
	var n Counts
	n.Forms, n.FormAnswers, err = c.clinical.DeleteForms(ctx, forms, invalidationTime, deletionTime)
	if err != nil {
		return n, fmt.Errorf("delete forms of %s: %w", p.Label(), err)
	}
	return n, nil
}
