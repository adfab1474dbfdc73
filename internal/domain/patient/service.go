package patient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/adtcore/internal/domain/adterr"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger.With().Str("component", "patient").Logger()}
}

// GetOrCreate resolves a patient by MRN, falling back to the NHS number,
// and creates one when neither matches. Identifiers missing from a stored
// patient are filled in from the event.
func (s *Service) GetOrCreate(ctx context.Context, mrn, nhsNumber, sourceSystem string, storedFrom time.Time) (*Patient, error) {
	mrn = strings.TrimSpace(mrn)
	nhsNumber = strings.TrimSpace(nhsNumber)
	if mrn == "" && nhsNumber == "" {
		return nil, adterr.MessageIgnored("no patient identifiers in message")
	}

	p, err := s.find(ctx, mrn, nhsNumber)
	if err != nil {
		return nil, err
	}

	if p == nil {
		p = &Patient{SourceSystem: sourceSystem, StoredFrom: storedFrom}
		if mrn != "" {
			p.Mrn = &mrn
		}
		if nhsNumber != "" {
			p.NhsNumber = &nhsNumber
		}
		if err := s.repo.Create(ctx, p); err != nil {
			return nil, fmt.Errorf("create patient %s: %w", p.Label(), err)
		}
		s.logger.Debug().Str("patient", p.Label()).Msg("created patient")
		return p, nil
	}

	filled := false
	if p.Mrn == nil && mrn != "" {
		p.Mrn = &mrn
		filled = true
	}
	if p.NhsNumber == nil && nhsNumber != "" {
		p.NhsNumber = &nhsNumber
		filled = true
	}
	if filled {
		if err := s.repo.Update(ctx, p); err != nil {
			return nil, fmt.Errorf("update patient %s: %w", p.Label(), err)
		}
	}
	return s.live(ctx, p)
}

// maxMergeDepth bounds how many merges are followed to the live patient.
const maxMergeDepth = 16

// live follows merges from p to the patient that survived them.
func (s *Service) live(ctx context.Context, p *Patient) (*Patient, error) {
	for depth := 0; p.LiveID != nil; depth++ {
		if depth == maxMergeDepth {
			return nil, adterr.IncompatibleDatabaseState("patient %s is merged more than %d times deep", p.Label(), maxMergeDepth)
		}
		next, err := s.repo.GetByID(ctx, *p.LiveID)
		if err != nil {
			return nil, fmt.Errorf("live patient of %s: %w", p.Label(), err)
		}
		p = next
	}
	return p, nil
}

// Merge retires the patient known by retiredMrn or retiredNhsNumber into
// survivor. A retired patient that was never seen is created already merged
// so later events quoting its identifiers resolve to survivor.
func (s *Service) Merge(ctx context.Context, retiredMrn, retiredNhsNumber string, survivor *Patient, sourceSystem string, storedFrom time.Time) error {
	retiredMrn = strings.TrimSpace(retiredMrn)
	retiredNhsNumber = strings.TrimSpace(retiredNhsNumber)
	if retiredMrn == "" && retiredNhsNumber == "" {
		return adterr.RequiredDataMissing("merge into %s has no retired identifiers", survivor.Label())
	}

	retired, err := s.find(ctx, retiredMrn, retiredNhsNumber)
	if err != nil {
		return err
	}
	if retired == nil {
		retired = &Patient{SourceSystem: sourceSystem, StoredFrom: storedFrom, LiveID: &survivor.ID}
		if retiredMrn != "" {
			retired.Mrn = &retiredMrn
		}
		if retiredNhsNumber != "" {
			retired.NhsNumber = &retiredNhsNumber
		}
		if err := s.repo.Create(ctx, retired); err != nil {
			return fmt.Errorf("create retired patient %s: %w", retired.Label(), err)
		}
		s.logger.Info().Str("retired", retired.Label()).Str("survivor", survivor.Label()).Msg("merged unknown patient")
		return nil
	}

	if retired, err = s.live(ctx, retired); err != nil {
		return err
	}
	if retired.ID == survivor.ID {
		return nil
	}
	retired.LiveID = &survivor.ID
	if err := s.repo.Update(ctx, retired); err != nil {
		return fmt.Errorf("merge patient %s: %w", retired.Label(), err)
	}
	s.logger.Info().Str("retired", retired.Label()).Str("survivor", survivor.Label()).Msg("merged patient")
	return nil
}

// ChangeIdentifiers moves the patient known by the previous identifiers to
// mrn and nhsNumber, creating the patient when the previous identifiers are
// unknown. Taking over an MRN that another patient holds is refused.
func (s *Service) ChangeIdentifiers(ctx context.Context, previousMrn, previousNhsNumber, mrn, nhsNumber, sourceSystem string, storedFrom time.Time) (*Patient, error) {
	previousMrn = strings.TrimSpace(previousMrn)
	previousNhsNumber = strings.TrimSpace(previousNhsNumber)
	mrn = strings.TrimSpace(mrn)
	nhsNumber = strings.TrimSpace(nhsNumber)
	if mrn == "" && nhsNumber == "" {
		return nil, adterr.MessageIgnored("no new patient identifiers in message")
	}

	var previous *Patient
	if previousMrn != "" || previousNhsNumber != "" {
		var err error
		if previous, err = s.find(ctx, previousMrn, previousNhsNumber); err != nil {
			return nil, err
		}
	}
	if mrn != "" {
		holder, err := s.repo.FindByMrn(ctx, mrn)
		if err != nil {
			return nil, err
		}
		if holder != nil && (previous == nil || holder.ID != previous.ID) {
			return nil, adterr.IncompatibleDatabaseState("mrn %s already belongs to another patient", mrn)
		}
	}
	if previous == nil {
		s.logger.Debug().Str("previous_mrn", previousMrn).Msg("previous patient unknown, creating with new identifiers")
		return s.GetOrCreate(ctx, mrn, nhsNumber, sourceSystem, storedFrom)
	}

	if mrn != "" {
		previous.Mrn = &mrn
	}
	if nhsNumber != "" {
		previous.NhsNumber = &nhsNumber
	}
	if err := s.repo.Update(ctx, previous); err != nil {
		return nil, fmt.Errorf("change identifiers of %s: %w", previous.Label(), err)
	}
	return previous, nil
}

func (s *Service) find(ctx context.Context, mrn, nhsNumber string) (*Patient, error) {
	if mrn != "" {
		p, err := s.repo.FindByMrn(ctx, mrn)
		if err != nil || p != nil {
			return p, err
		}
	}
	if nhsNumber != "" {
		p, err := s.repo.FindByNhsNumber(ctx, nhsNumber)
		if err != nil {
			return nil, err
		}
		// An NHS match that already carries a different MRN is another record.
		if p != nil && (mrn == "" || p.Mrn == nil || *p.Mrn == mrn) {
			return p, nil
		}
	}
	return nil, nil
}
