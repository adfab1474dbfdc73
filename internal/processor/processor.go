// Package processor applies canonical events to the stored state. Processor
// does the work for one event; Dispatcher wraps it in a transaction.
package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/adtcore/internal/domain/adterr"
	"github.com/ehr/adtcore/internal/domain/clinical"
	"github.com/ehr/adtcore/internal/domain/deletion"
	"github.com/ehr/adtcore/internal/domain/location"
	"github.com/ehr/adtcore/internal/domain/patient"
	"github.com/ehr/adtcore/internal/domain/trust"
	"github.com/ehr/adtcore/internal/domain/visit"
	"github.com/ehr/adtcore/internal/interchange"
)

// Repositories are the stores a Processor works against.
type Repositories struct {
	Patients  patient.Repository
	Visits    visit.Repository
	Locations location.Repository
	Clinical  clinical.Repository
}

// Processor routes each event to the controllers that own its rows. It
// never begins or ends a transaction.
type Processor struct {
	patients  *patient.Service
	visits    *visit.Controller
	locations *location.Controller
	clinical  *clinical.Controller
	deletion  *deletion.Controller
	logger    zerolog.Logger
}

// New wires the controllers over repos. cache must wrap repos.Locations.
func New(repos Repositories, cache *location.Cache, policy trust.Policy, logger zerolog.Logger) *Processor {
	visits := visit.NewController(repos.Visits, policy, logger)
	locations := location.NewController(repos.Locations, cache, policy, logger)
	clin := clinical.NewController(repos.Clinical, logger)
	return &Processor{
		patients:  patient.NewService(repos.Patients, logger),
		visits:    visits,
		locations: locations,
		clinical:  clin,
		deletion:  deletion.NewController(visits, locations, clin, logger),
		logger:    logger.With().Str("component", "processor").Logger(),
	}
}

// ProcessMessage applies msg. storedFrom is the time processing started.
func (p *Processor) ProcessMessage(ctx context.Context, msg interchange.Message, storedFrom time.Time) error {
	switch m := msg.(type) {
	case *interchange.AdmitPatient, *interchange.TransferPatient, *interchange.DischargePatient,
		*interchange.RegisterPatient, *interchange.CancelAdmitPatient, *interchange.CancelTransferPatient,
		*interchange.CancelDischargePatient, *interchange.UpdatePatientInfo, *interchange.ImpliedAdt:
		return p.processAdt(ctx, m.(interchange.AdtMessage), storedFrom)
	case *interchange.SwapLocations:
		return p.swapLocations(ctx, m, storedFrom)
	case *interchange.MoveVisitInformation:
		return p.moveVisitInformation(ctx, m, storedFrom)
	case *interchange.DeletePersonInformation:
		return p.deletePersonInformation(ctx, m, storedFrom)
	case *interchange.MergePatient:
		survivor, err := p.patient(ctx, &m.Header, storedFrom)
		if err != nil {
			return err
		}
		return p.patients.Merge(ctx, m.RetiredMrn, m.RetiredNhsNumber, survivor, m.SourceSystem, storedFrom)
	case *interchange.ChangePatientIdentifiers:
		_, err := p.patients.ChangeIdentifiers(ctx, m.PreviousMrn, m.PreviousNhsNumber, m.Mrn, m.NhsNumber, m.SourceSystem, storedFrom)
		return err
	case *interchange.LabOrder:
		pat, v, err := p.visitContext(ctx, m, storedFrom)
		if err != nil {
			return err
		}
		if v == nil {
			return adterr.MessageIgnored("lab order %s for %s has no visit number", m.OrderNumber, pat.Label())
		}
		return p.clinical.RecordLabOrder(ctx, v, m, storedFrom)
	case *interchange.ConsultRequest:
		pat, v, err := p.visitContext(ctx, m, storedFrom)
		if err != nil {
			return err
		}
		if v == nil {
			return adterr.MessageIgnored("consult %s for %s has no visit number", m.ConsultID, pat.Label())
		}
		return p.clinical.RecordConsult(ctx, v, m, storedFrom)
	case *interchange.PatientForm:
		pat, v, err := p.visitContext(ctx, m, storedFrom)
		if err != nil {
			return err
		}
		return p.clinical.RecordForm(ctx, pat, v, m, storedFrom)
	case nil:
		return adterr.MessageIgnored("nil message")
	default:
		return adterr.MessageIgnored("unsupported message kind %s", msg.Kind())
	}
}

func (p *Processor) patient(ctx context.Context, h *interchange.Header, storedFrom time.Time) (*patient.Patient, error) {
	return p.patients.GetOrCreate(ctx, h.Mrn, h.NhsNumber, h.SourceSystem, storedFrom)
}

func (p *Processor) processAdt(ctx context.Context, msg interchange.AdtMessage, storedFrom time.Time) error {
	pat, err := p.patient(ctx, msg.Meta(), storedFrom)
	if err != nil {
		return err
	}
	v, err := p.visits.UpdateOrCreate(ctx, msg, storedFrom, pat)
	if err != nil {
		return err
	}
	return p.locations.ProcessVisitLocation(ctx, v, msg, storedFrom)
}

func (p *Processor) swapLocations(ctx context.Context, msg *interchange.SwapLocations, storedFrom time.Time) error {
	first, err := p.patient(ctx, &msg.Header, storedFrom)
	if err != nil {
		return err
	}
	a, err := p.visits.UpdateOrCreate(ctx, msg, storedFrom, first)
	if err != nil {
		return err
	}

	other, err := p.patients.GetOrCreate(ctx, msg.OtherMrn, msg.OtherNhsNumber, msg.SourceSystem, storedFrom)
	if err != nil {
		return fmt.Errorf("other patient: %w", err)
	}
	b, err := p.visits.GetOrCreateMinimal(ctx, msg.OtherVisitNumber, other, msg.SourceSystem, msg.ValidFrom(), storedFrom)
	if err != nil {
		return fmt.Errorf("other visit: %w", err)
	}
	return p.locations.Swap(ctx, a, b, msg, storedFrom)
}

func (p *Processor) moveVisitInformation(ctx context.Context, msg *interchange.MoveVisitInformation, storedFrom time.Time) error {
	previous, err := p.patients.GetOrCreate(ctx, msg.PreviousMrn, msg.PreviousNhsNumber, msg.SourceSystem, storedFrom)
	if err != nil {
		return fmt.Errorf("previous patient: %w", err)
	}
	current, err := p.patient(ctx, &msg.Header, storedFrom)
	if err != nil {
		return err
	}
	_, err = p.visits.MoveVisitInformation(ctx, msg, storedFrom, previous, current)
	return err
}

// deletePersonInformation removes the visits that were valid at the time of
// the message. Newer visits survive.
func (p *Processor) deletePersonInformation(ctx context.Context, msg *interchange.DeletePersonInformation, storedFrom time.Time) error {
	pat, err := p.patient(ctx, &msg.Header, storedFrom)
	if err != nil {
		return err
	}
	t := msg.ValidFrom()

	older, err := p.visits.OlderVisits(ctx, pat, t)
	if err != nil {
		return err
	}
	if len(older) == 0 {
		p.logger.Warn().Str("patient", pat.Label()).Time("valid_from", t).Msg("no existing visits to delete")
		return nil
	}

	forms, err := p.deletion.DeleteFormsForPatient(ctx, pat, t, storedFrom)
	if err != nil {
		return err
	}
	counts, err := p.deletion.DeleteVisitsAndDependents(ctx, older, t, storedFrom)
	if err != nil {
		return err
	}
	counts.Add(forms)
	p.logger.Info().Str("patient", pat.Label()).Interface("deleted", counts).Msg("deleted person information")
	return nil
}

// visitContext resolves the patient of a clinical event and, when a visit
// number is given, its visit.
func (p *Processor) visitContext(ctx context.Context, msg interchange.Message, storedFrom time.Time) (*patient.Patient, *visit.Visit, error) {
	h := msg.Meta()
	pat, err := p.patient(ctx, h, storedFrom)
	if err != nil {
		return nil, nil, err
	}
	if h.VisitNumber == "" {
		return pat, nil, nil
	}
	v, err := p.visits.GetOrCreateMinimal(ctx, h.VisitNumber, pat, h.SourceSystem, h.ValidFrom(), storedFrom)
	if err != nil {
		return nil, nil, err
	}
	return pat, v, nil
}
