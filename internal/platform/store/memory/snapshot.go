package memory

import (
	"github.com/google/uuid"

	"github.com/ehr/adtcore/internal/domain/clinical"
	"github.com/ehr/adtcore/internal/domain/location"
	"github.com/ehr/adtcore/internal/domain/patient"
	"github.com/ehr/adtcore/internal/domain/visit"
)

// Snapshot is a serialisable copy of the committed state.
type Snapshot struct {
	Patients            []*patient.Patient              `json:"patients"`
	Visits              []*visit.Visit                  `json:"visits"`
	VisitAudits         []*visit.VisitAudit             `json:"visit_audits"`
	Locations           []*location.Location            `json:"locations"`
	LocationVisits      []*location.LocationVisit       `json:"location_visits"`
	LocationVisitAudits []*location.LocationVisitAudit  `json:"location_visit_audits"`
	LabOrders           []*clinical.LabOrder            `json:"lab_orders"`
	LabOrderAudits      []*clinical.LabOrderAudit       `json:"lab_order_audits"`
	LabResults          []*clinical.LabResult           `json:"lab_results"`
	LabResultAudits     []*clinical.LabResultAudit      `json:"lab_result_audits"`
	Consults            []*clinical.ConsultRequest      `json:"consults"`
	ConsultAudits       []*clinical.ConsultRequestAudit `json:"consult_audits"`
	Forms               []*clinical.Form                `json:"forms"`
	FormAudits          []*clinical.FormAudit           `json:"form_audits"`
	FormAnswers         []*clinical.FormAnswer          `json:"form_answers"`
	FormAnswerAudits    []*clinical.FormAnswerAudit     `json:"form_answer_audits"`
}

func values[V any](m map[uuid.UUID]V) []V {
	out := make([]V, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

func index[V any](rows []V, id func(V) uuid.UUID) map[uuid.UUID]V {
	out := make(map[uuid.UUID]V, len(rows))
	for _, r := range rows {
		out[id(r)] = r
	}
	return out
}

// ExportState returns a copy of the committed state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return exportState(s.state)
}

func exportState(st *state) Snapshot {
	c := st.clone()
	return Snapshot{
		Patients:            values(c.patients),
		Visits:              values(c.visits),
		VisitAudits:         c.visitAudits,
		Locations:           values(c.locations),
		LocationVisits:      values(c.locationVisits),
		LocationVisitAudits: c.lvAudits,
		LabOrders:           values(c.labOrders),
		LabOrderAudits:      c.labOrderAudits,
		LabResults:          values(c.labResults),
		LabResultAudits:     c.labResultAudit,
		Consults:            values(c.consults),
		ConsultAudits:       c.consultAudits,
		Forms:               values(c.forms),
		FormAudits:          c.formAudits,
		FormAnswers:         values(c.answers),
		FormAnswerAudits:    c.answerAudits,
	}
}

// ImportState replaces the committed state with snap.
func (s *Store) ImportState(snap Snapshot) {
	st := &state{
		patients:       index(snap.Patients, func(p *patient.Patient) uuid.UUID { return p.ID }),
		visits:         index(snap.Visits, func(v *visit.Visit) uuid.UUID { return v.ID }),
		visitAudits:    snap.VisitAudits,
		locations:      index(snap.Locations, func(l *location.Location) uuid.UUID { return l.ID }),
		locationVisits: index(snap.LocationVisits, func(lv *location.LocationVisit) uuid.UUID { return lv.ID }),
		lvAudits:       snap.LocationVisitAudits,
		labOrders:      index(snap.LabOrders, func(o *clinical.LabOrder) uuid.UUID { return o.ID }),
		labOrderAudits: snap.LabOrderAudits,
		labResults:     index(snap.LabResults, func(r *clinical.LabResult) uuid.UUID { return r.ID }),
		labResultAudit: snap.LabResultAudits,
		consults:       index(snap.Consults, func(c *clinical.ConsultRequest) uuid.UUID { return c.ID }),
		consultAudits:  snap.ConsultAudits,
		forms:          index(snap.Forms, func(f *clinical.Form) uuid.UUID { return f.ID }),
		formAudits:     snap.FormAudits,
		answers:        index(snap.FormAnswers, func(a *clinical.FormAnswer) uuid.UUID { return a.ID }),
		answerAudits:   snap.FormAnswerAudits,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}
