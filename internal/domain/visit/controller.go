package visit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/adtcore/internal/domain/adterr"
	"github.com/ehr/adtcore/internal/domain/patient"
	"github.com/ehr/adtcore/internal/domain/rowstate"
	"github.com/ehr/adtcore/internal/domain/trust"
	"github.com/ehr/adtcore/internal/interchange"
)

// Controller applies ADT events to hospital visits.
type Controller struct {
	repo   Repository
	trust  trust.Policy
	logger zerolog.Logger
}

func NewController(repo Repository, policy trust.Policy, logger zerolog.Logger) *Controller {
	return &Controller{
		repo:   repo,
		trust:  policy,
		logger: logger.With().Str("component", "visit").Logger(),
	}
}

// UpdateOrCreate reconciles the visit named by msg. It returns nil without
// an error for events that carry no visit.
func (c *Controller) UpdateOrCreate(ctx context.Context, msg interchange.AdtMessage, storedFrom time.Time, p *patient.Patient) (*Visit, error) {
	if _, ok := msg.(*interchange.UpdatePatientInfo); ok {
		return nil, nil
	}
	h := msg.Meta()
	if h.VisitNumber == "" {
		if _, ok := msg.(*interchange.ImpliedAdt); ok {
			c.logger.Debug().Str("patient", p.Label()).Msg("implied event without a visit number")
			return nil, nil
		}
		return nil, adterr.MessageIgnored("%s for %s has no visit number", msg.Kind(), p.Label())
	}

	validFrom := h.ValidFrom()
	state, err := c.getOrCreate(ctx, h.VisitNumber, p.ID, h.SourceSystem, validFrom, storedFrom)
	if err != nil {
		return nil, err
	}

	if c.shouldUpdate(validFrom, h.SourceSystem, state) {
		c.applyGeneric(msg, state)
		switch m := msg.(type) {
		case *interchange.CancelDischargePatient:
			removeDischarge(state, interchange.CancellationTime(m))
		case *interchange.CancelAdmitPatient:
			v := state.Entity()
			rowstate.RemoveIfExists(state, &v.AdmissionTime, interchange.CancellationTime(m))
		}
	}
	c.fillTrustedFacts(msg, state)

	if err := state.SaveOrAudit(ctx, c.repo); err != nil {
		return nil, fmt.Errorf("visit %s: %w", h.VisitNumber, err)
	}
	return state.Entity(), nil
}

// GetOrCreateMinimal returns the visit for encounter, saving a bare visit
// when none exists. Used by events that reference a visit without
// describing it.
func (c *Controller) GetOrCreateMinimal(ctx context.Context, encounter string, p *patient.Patient, sourceSystem string, validFrom, storedFrom time.Time) (*Visit, error) {
	if encounter == "" {
		return nil, adterr.MessageIgnored("no visit number for %s", p.Label())
	}
	state, err := c.getOrCreate(ctx, encounter, p.ID, sourceSystem, validFrom, storedFrom)
	if err != nil {
		return nil, err
	}
	if state.Created() {
		c.logger.Debug().Str("encounter", encounter).Str("patient", p.Label()).Msg("created minimal visit")
		if err := state.SaveOrAudit(ctx, c.repo); err != nil {
			return nil, fmt.Errorf("visit %s: %w", encounter, err)
		}
	}
	return state.Entity(), nil
}

// MoveVisitInformation re-keys the visit named by the previous identifiers
// onto the message's visit number and the current patient.
func (c *Controller) MoveVisitInformation(ctx context.Context, msg *interchange.MoveVisitInformation, storedFrom time.Time, previous, current *patient.Patient) (*Visit, error) {
	if msg.PreviousVisitNumber == "" || msg.VisitNumber == "" {
		return nil, adterr.MessageIgnored("visit move without both visit numbers")
	}
	if msg.PreviousVisitNumber == msg.VisitNumber && previous.ID == current.ID {
		return nil, adterr.IncompatibleDatabaseState("move of visit %s would change neither the visit number nor the patient", msg.VisitNumber)
	}
	if msg.PreviousVisitNumber != msg.VisitNumber {
		existing, err := c.repo.FindByEncounter(ctx, msg.VisitNumber)
		if err != nil {
			return nil, fmt.Errorf("find visit %s: %w", msg.VisitNumber, err)
		}
		if existing != nil {
			return nil, adterr.IncompatibleDatabaseState("move target visit %s already exists", msg.VisitNumber)
		}
	}

	validFrom := msg.ValidFrom()
	state, err := c.getOrCreate(ctx, msg.PreviousVisitNumber, previous.ID, msg.SourceSystem, validFrom, storedFrom)
	if err != nil {
		return nil, err
	}
	if c.shouldUpdate(validFrom, msg.SourceSystem, state) {
		c.applyGeneric(msg, state)
		v := state.Entity()
		rowstate.AssignIfDifferent(state, &v.EncounterNumber, msg.VisitNumber)
		rowstate.AssignIfDifferent(state, &v.PatientID, current.ID)
	}
	if err := state.SaveOrAudit(ctx, c.repo); err != nil {
		return nil, fmt.Errorf("visit %s: %w", msg.PreviousVisitNumber, err)
	}
	c.logger.Info().
		Str("from_encounter", msg.PreviousVisitNumber).
		Str("to_encounter", state.Entity().EncounterNumber).
		Str("patient", current.Label()).
		Msg("moved visit")
	return state.Entity(), nil
}

// OlderVisits returns the patient's visits valid at or before t.
func (c *Controller) OlderVisits(ctx context.Context, p *patient.Patient, t time.Time) ([]*Visit, error) {
	all, err := c.repo.ListByPatient(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("list visits for %s: %w", p.Label(), err)
	}
	var older []*Visit
	for _, v := range all {
		if !v.ValidFrom.After(t) {
			older = append(older, v)
		}
	}
	return older, nil
}

// Delete audits and removes a single visit.
func (c *Controller) Delete(ctx context.Context, v *Visit, validUntil, storedUntil time.Time) error {
	return rowstate.DeleteAudited[*Visit, *VisitAudit](ctx, c.repo, v, validUntil, storedUntil)
}

func (c *Controller) getOrCreate(ctx context.Context, encounter string, patientID uuid.UUID, source string, validFrom, storedFrom time.Time) (*State, error) {
	v, err := c.repo.FindByEncounter(ctx, encounter)
	if err != nil {
		return nil, fmt.Errorf("find visit %s: %w", encounter, err)
	}
	if v != nil {
		return newState(v, validFrom, storedFrom, false), nil
	}
	v = &Visit{
		ID:              uuid.New(),
		EncounterNumber: encounter,
		PatientID:       patientID,
		SourceSystem:    source,
		ValidFrom:       validFrom,
		StoredFrom:      storedFrom,
	}
	return newState(v, validFrom, storedFrom, true), nil
}

// shouldUpdate decides whether msg may overwrite stored facts: always for a
// new visit, otherwise only for a trusted event that is not older than the
// stored row or that replaces an untrusted one.
func (c *Controller) shouldUpdate(msgTime time.Time, source string, state *State) bool {
	if state.Created() {
		return true
	}
	stored := state.Entity()
	return c.trust.IsTrusted(source) &&
		(!c.trust.IsTrusted(stored.SourceSystem) || !stored.ValidFrom.After(msgTime))
}

func (c *Controller) applyGeneric(msg interchange.AdtMessage, state *State) {
	v := state.Entity()
	adt := msg.Adt()
	rowstate.AssignFromValue(state, &v.PatientClass, adt.PatientClass)
	rowstate.AssignFromValue(state, &v.ArrivalMethod, adt.ModeOfArrival)
	rowstate.AssignIfDifferent(state, &v.SourceSystem, msg.Meta().SourceSystem)
}

// fillTrustedFacts adds admission, presentation and discharge times from a
// trusted source whatever the event's age. Feeds picked up mid-stream often
// lack an event time, so the overwrite rule alone would drop them.
func (c *Controller) fillTrustedFacts(msg interchange.AdtMessage, state *State) {
	if !c.trust.IsTrusted(msg.Meta().SourceSystem) {
		return
	}
	v := state.Entity()
	adt := msg.Adt()

	_, isAdmit := msg.(*interchange.AdmitPatient)
	if isAdmit || v.AdmissionTime == nil {
		rowstate.AssignFromValue(state, &v.AdmissionTime, adt.AdmissionTime)
	}
	switch m := msg.(type) {
	case *interchange.RegisterPatient:
		rowstate.AssignFromValue(state, &v.PresentationTime, m.PresentationTime)
	case *interchange.DischargePatient:
		rowstate.AssignPtrIfDifferent(state, &v.DischargeTime, m.DischargeTime)
		rowstate.AssignPtrIfDifferent(state, &v.DischargeDisposition, m.DischargeDisposition)
		rowstate.AssignPtrIfDifferent(state, &v.DischargeDestination, m.DischargeLocation)
	}
}

func removeDischarge(state *State, at time.Time) {
	v := state.Entity()
	rowstate.RemoveIfExists(state, &v.DischargeTime, at)
	rowstate.RemoveIfExists(state, &v.DischargeDisposition, at)
	rowstate.RemoveIfExists(state, &v.DischargeDestination, at)
}
