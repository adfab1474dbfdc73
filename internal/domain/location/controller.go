package location

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/adtcore/internal/domain/adterr"
	"github.com/ehr/adtcore/internal/domain/rowstate"
	"github.com/ehr/adtcore/internal/domain/trust"
	"github.com/ehr/adtcore/internal/domain/visit"
	"github.com/ehr/adtcore/internal/interchange"
)

// Controller keeps the location visits of each hospital visit in step with
// ADT events.
type Controller struct {
	repo   Repository
	cache  *Cache
	trust  trust.Policy
	logger zerolog.Logger
}

func NewController(repo Repository, cache *Cache, policy trust.Policy, logger zerolog.Logger) *Controller {
	return &Controller{
		repo:   repo,
		cache:  cache,
		trust:  policy,
		logger: logger.With().Str("component", "location").Logger(),
	}
}

// stay describes a location visit about to be created.
type stay struct {
	location          *Location
	admission         time.Time
	discharge         *time.Time
	inferredAdmission bool
	source            string
}

// ProcessVisitLocation applies msg to the location visits of v. Swaps and
// visit moves are handled elsewhere.
func (c *Controller) ProcessVisitLocation(ctx context.Context, v *visit.Visit, msg interchange.AdtMessage, storedFrom time.Time) error {
	if v == nil {
		return nil
	}
	var err error
	switch m := msg.(type) {
	case *interchange.DischargePatient:
		err = c.discharge(ctx, v, m, storedFrom)
	case *interchange.CancelAdmitPatient:
		err = c.cancelAdmit(ctx, v, m, storedFrom)
	case *interchange.CancelTransferPatient:
		err = c.cancelTransfer(ctx, v, m, storedFrom)
	case *interchange.CancelDischargePatient:
		err = c.cancelDischarge(ctx, v, m, storedFrom)
	case *interchange.SwapLocations, *interchange.MoveVisitInformation:
		return nil
	default:
		err = c.admitOrTransfer(ctx, v, msg, storedFrom)
	}
	if err != nil {
		return err
	}
	return c.checkOpen(ctx, v)
}

// FindOpen returns the open location visit of v, or nil. More than one open
// stay is a broken invariant.
func (c *Controller) FindOpen(ctx context.Context, visitID uuid.UUID) (*LocationVisit, error) {
	rows, err := c.repo.ListByVisit(ctx, visitID)
	if err != nil {
		return nil, fmt.Errorf("list location visits: %w", err)
	}
	return findOpen(rows)
}

// Swap exchanges the beds of two visits: a ends up at the message's location
// and b at the other location.
func (c *Controller) Swap(ctx context.Context, a, b *visit.Visit, msg *interchange.SwapLocations, storedFrom time.Time) error {
	if a == nil || b == nil {
		return adterr.RequiredDataMissing("swap needs both visits")
	}
	if !msg.FullLocation.IsPresent() || !msg.OtherFullLocation.IsPresent() {
		return adterr.RequiredDataMissing("swap for %s needs both locations", a.EncounterNumber)
	}
	locA, err := c.cache.GetOrCreate(ctx, msg.FullLocation.OrElse(""))
	if err != nil {
		return err
	}
	locB, err := c.cache.GetOrCreate(ctx, msg.OtherFullLocation.OrElse(""))
	if err != nil {
		return err
	}

	t := msg.ValidFrom()
	moves := []struct {
		visit *visit.Visit
		to    *Location
	}{{a, locA}, {b, locB}}
	for _, mv := range moves {
		if err := c.moveOpen(ctx, mv.visit, mv.to, t, msg.SourceSystem, storedFrom); err != nil {
			return err
		}
	}
	if err := c.checkOpen(ctx, a); err != nil {
		return err
	}
	return c.checkOpen(ctx, b)
}

// DeleteLocationVisits audits and removes every location visit of visits.
// It returns the number of rows removed.
func (c *Controller) DeleteLocationVisits(ctx context.Context, visits []*visit.Visit, validUntil, storedUntil time.Time) (int, error) {
	deleted := 0
	for _, v := range visits {
		rows, err := c.repo.ListByVisit(ctx, v.ID)
		if err != nil {
			return deleted, fmt.Errorf("list location visits of %s: %w", v.EncounterNumber, err)
		}
		for _, lv := range rows {
			if err := c.remove(ctx, lv, validUntil, storedUntil); err != nil {
				return deleted, err
			}
			deleted++
		}
	}
	return deleted, nil
}

func (c *Controller) admitOrTransfer(ctx context.Context, v *visit.Visit, msg interchange.AdtMessage, storedFrom time.Time) error {
	name := msg.Adt().FullLocation.OrElse("")
	if name == "" {
		return nil
	}
	loc, err := c.cache.GetOrCreate(ctx, name)
	if err != nil {
		return err
	}
	h := msg.Meta()
	t := h.ValidFrom()

	rows, err := c.repo.ListByVisit(ctx, v.ID)
	if err != nil {
		return fmt.Errorf("list location visits: %w", err)
	}
	open, err := findOpen(rows)
	if err != nil {
		return err
	}
	next := stay{location: loc, admission: t, inferredAdmission: !movesPatient(msg), source: h.SourceSystem}

	if open == nil {
		for _, lv := range rows {
			if lv.DischargeTime != nil && lv.DischargeTime.After(t) {
				c.logger.Debug().Str("encounter", v.EncounterNumber).Time("event", t).
					Msg("visit already discharged after event, not reopening a location")
				return nil
			}
		}
		return c.create(ctx, v, next, t, storedFrom)
	}
	if open.LocationID == loc.ID {
		return nil
	}
	if !c.mayMove(msg, open, t) {
		c.logger.Debug().Str("encounter", v.EncounterNumber).Str("source", h.SourceSystem).
			Msg("event may not move an open location visit")
		return nil
	}

	if err := c.close(ctx, open, t, true, storedFrom); err != nil {
		return err
	}
	return c.create(ctx, v, next, t, storedFrom)
}

// mayMove reports whether msg may replace the open stay: only trusted,
// direct events, and older ones only when the stay came from an untrusted
// source.
func (c *Controller) mayMove(msg interchange.AdtMessage, open *LocationVisit, t time.Time) bool {
	if _, implied := msg.(*interchange.ImpliedAdt); implied {
		return false
	}
	if !c.trust.IsTrusted(msg.Meta().SourceSystem) {
		return false
	}
	return !c.trust.IsTrusted(open.SourceSystem) || !t.Before(open.ValidFrom)
}

func (c *Controller) discharge(ctx context.Context, v *visit.Visit, msg *interchange.DischargePatient, storedFrom time.Time) error {
	dischargeAt := msg.ValidFrom()
	if msg.DischargeTime != nil {
		dischargeAt = *msg.DischargeTime
	}

	rows, err := c.repo.ListByVisit(ctx, v.ID)
	if err != nil {
		return fmt.Errorf("list location visits: %w", err)
	}
	target, err := findOpen(rows)
	if err != nil {
		return err
	}

	var loc *Location
	if name := msg.FullLocation.OrElse(""); name != "" {
		if loc, err = c.cache.GetOrCreate(ctx, name); err != nil {
			return err
		}
	}
	if target == nil && loc != nil {
		target = latest(rows, func(lv *LocationVisit) bool { return lv.LocationID == loc.ID })
	}

	if target == nil {
		if loc == nil {
			return nil
		}
		admission := dischargeAt
		if at, ok := msg.AdmissionTime.Get(); ok && !at.After(dischargeAt) {
			admission = at
		}
		return c.create(ctx, v, stay{
			location:          loc,
			admission:         admission,
			discharge:         &dischargeAt,
			inferredAdmission: true,
			source:            msg.SourceSystem,
		}, msg.ValidFrom(), storedFrom)
	}

	if dischargeAt.Before(target.AdmissionTime) {
		c.logger.Warn().Str("encounter", v.EncounterNumber).Time("discharge", dischargeAt).
			Time("admission", target.AdmissionTime).Msg("discharge before location admission ignored")
		return nil
	}
	if target.DischargeTime != nil && !c.trust.IsTrusted(msg.SourceSystem) {
		return nil
	}
	return c.close(ctx, target, dischargeAt, false, storedFrom)
}

func (c *Controller) cancelAdmit(ctx context.Context, v *visit.Visit, msg *interchange.CancelAdmitPatient, storedFrom time.Time) error {
	rows, err := c.repo.ListByVisit(ctx, v.ID)
	if err != nil {
		return fmt.Errorf("list location visits: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}
	matchesLocation, err := c.locationMatcher(ctx, msg.FullLocation)
	if err != nil {
		return err
	}
	at := interchange.CancellationTime(msg)

	if ct := msg.CancelledAt; ct != nil {
		target := latest(rows, func(lv *LocationVisit) bool {
			return lv.AdmissionTime.Equal(*ct) && matchesLocation(lv)
		})
		if target == nil {
			c.logger.Debug().Str("encounter", v.EncounterNumber).Time("cancelled", *ct).
				Msg("no location visit admitted at cancelled time")
			return nil
		}
		return c.remove(ctx, target, at, storedFrom)
	}

	if len(rows) != 1 || !matchesLocation(rows[0]) {
		return adterr.RequiredDataMissing("cannot choose which of %d location visits of %s to cancel", len(rows), v.EncounterNumber)
	}
	return c.remove(ctx, rows[0], at, storedFrom)
}

func (c *Controller) cancelTransfer(ctx context.Context, v *visit.Visit, msg *interchange.CancelTransferPatient, storedFrom time.Time) error {
	rows, err := c.repo.ListByVisit(ctx, v.ID)
	if err != nil {
		return fmt.Errorf("list location visits: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}
	open, err := findOpen(rows)
	if err != nil {
		return err
	}
	at := interchange.CancellationTime(msg)

	var returnedTo *Location
	if name := msg.FullLocation.OrElse(""); name != "" {
		if returnedTo, err = c.cache.GetOrCreate(ctx, name); err != nil {
			return err
		}
	}

	var cancelled *LocationVisit
	if msg.CancelledLocation.IsPresent() {
		loc, err := c.cache.Find(ctx, msg.CancelledLocation.OrElse(""))
		if err != nil {
			return err
		}
		if loc != nil {
			atCancelled := func(lv *LocationVisit) bool { return lv.LocationID == loc.ID }
			if open != nil && atCancelled(open) {
				cancelled = open
			} else {
				cancelled = latest(rows, atCancelled)
			}
		}
	} else if open != nil && (returnedTo == nil || open.LocationID != returnedTo.ID) {
		cancelled = open
	}

	if cancelled != nil {
		if err := c.remove(ctx, cancelled, at, storedFrom); err != nil {
			return err
		}
		if cancelled == open {
			open = nil
		}
	}
	if returnedTo == nil {
		return nil
	}
	if open != nil {
		if open.LocationID != returnedTo.ID {
			c.logger.Warn().Str("encounter", v.EncounterNumber).
				Msg("cancelled transfer left another location open, not reopening")
		}
		return nil
	}

	reopen := latestDischarged(rows, func(lv *LocationVisit) bool {
		return lv != cancelled && lv.LocationID == returnedTo.ID && !lv.DischargeTime.After(at)
	})
	if reopen != nil {
		return c.reopen(ctx, reopen, at, storedFrom)
	}
	if cancelled == nil {
		return nil
	}
	return c.create(ctx, v, stay{
		location:          returnedTo,
		admission:         at,
		inferredAdmission: true,
		source:            msg.SourceSystem,
	}, at, storedFrom)
}

func (c *Controller) cancelDischarge(ctx context.Context, v *visit.Visit, msg *interchange.CancelDischargePatient, storedFrom time.Time) error {
	rows, err := c.repo.ListByVisit(ctx, v.ID)
	if err != nil {
		return fmt.Errorf("list location visits: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}
	open, err := findOpen(rows)
	if err != nil {
		return err
	}
	at := interchange.CancellationTime(msg)

	var loc *Location
	if name := msg.FullLocation.OrElse(""); name != "" {
		if loc, err = c.cache.GetOrCreate(ctx, name); err != nil {
			return err
		}
	}

	if open != nil && (loc == nil || open.LocationID == loc.ID) {
		return nil
	}

	// Stays closed by a transfer were never discharged.
	target := latestDischarged(rows, func(lv *LocationVisit) bool {
		if lv.InferredDischarge || (loc != nil && lv.LocationID != loc.ID) {
			return false
		}
		return open == nil || !lv.DischargeTime.Before(open.AdmissionTime)
	})
	if target != nil {
		if open != nil {
			if err := c.remove(ctx, open, at, storedFrom); err != nil {
				return err
			}
		}
		return c.reopen(ctx, target, at, storedFrom)
	}
	if loc == nil {
		return nil
	}

	c.logger.Warn().Str("encounter", v.EncounterNumber).Str("location", loc.LocationString).
		Msg("no discharged location visit to reopen, repairing from cancel discharge")
	if open != nil {
		if err := c.close(ctx, open, at, true, storedFrom); err != nil {
			return err
		}
	}
	return c.create(ctx, v, stay{
		location:          loc,
		admission:         at,
		inferredAdmission: true,
		source:            msg.SourceSystem,
	}, at, storedFrom)
}

// moveOpen changes the location of the open stay of v, creating one when
// the visit has none.
func (c *Controller) moveOpen(ctx context.Context, v *visit.Visit, to *Location, t time.Time, source string, storedFrom time.Time) error {
	open, err := c.FindOpen(ctx, v.ID)
	if err != nil {
		return err
	}
	if open == nil {
		return c.create(ctx, v, stay{location: to, admission: t, inferredAdmission: true, source: source}, t, storedFrom)
	}
	if open.LocationID == to.ID {
		return nil
	}
	// A swap corrects the bed in place; the row keeps no history of it.
	open.LocationID = to.ID
	open.ValidFrom = t
	open.StoredFrom = storedFrom
	if err := c.repo.Save(ctx, open); err != nil {
		return fmt.Errorf("save location visit: %w", err)
	}
	return nil
}

func (c *Controller) create(ctx context.Context, v *visit.Visit, s stay, validFrom, storedFrom time.Time) error {
	lv := &LocationVisit{
		ID:                uuid.New(),
		VisitID:           v.ID,
		LocationID:        s.location.ID,
		AdmissionTime:     s.admission,
		DischargeTime:     s.discharge,
		InferredAdmission: s.inferredAdmission,
		SourceSystem:      s.source,
		ValidFrom:         validFrom,
		StoredFrom:        storedFrom,
	}
	c.logger.Debug().Str("encounter", v.EncounterNumber).Str("location", s.location.LocationString).
		Bool("inferred", s.inferredAdmission).Msg("creating location visit")
	return c.save(ctx, newState(lv, validFrom, storedFrom, true))
}

func (c *Controller) close(ctx context.Context, lv *LocationVisit, at time.Time, inferred bool, storedFrom time.Time) error {
	state := newState(lv, at, storedFrom, false)
	rowstate.AssignPtrIfDifferent(state, &lv.DischargeTime, &at)
	rowstate.AssignIfDifferent(state, &lv.InferredDischarge, inferred)
	return c.save(ctx, state)
}

func (c *Controller) reopen(ctx context.Context, lv *LocationVisit, at time.Time, storedFrom time.Time) error {
	state := newState(lv, at, storedFrom, false)
	rowstate.RemoveIfExists(state, &lv.DischargeTime, at)
	rowstate.AssignIfDifferent(state, &lv.InferredDischarge, false)
	return c.save(ctx, state)
}

func (c *Controller) remove(ctx context.Context, lv *LocationVisit, validUntil, storedUntil time.Time) error {
	if err := rowstate.DeleteAudited[*LocationVisit, *LocationVisitAudit](ctx, c.repo, lv, validUntil, storedUntil); err != nil {
		return fmt.Errorf("location visit %s: %w", lv.ID, err)
	}
	return nil
}

func (c *Controller) save(ctx context.Context, state *State) error {
	if err := state.SaveOrAudit(ctx, c.repo); err != nil {
		return fmt.Errorf("location visit %s: %w", state.Entity().ID, err)
	}
	return nil
}

func (c *Controller) checkOpen(ctx context.Context, v *visit.Visit) error {
	if _, err := c.FindOpen(ctx, v.ID); err != nil {
		return fmt.Errorf("visit %s: %w", v.EncounterNumber, err)
	}
	return nil
}

// locationMatcher returns a predicate matching stays at the location named
// by value, or every stay when no location is given.
func (c *Controller) locationMatcher(ctx context.Context, value interchange.Value[string]) (func(*LocationVisit) bool, error) {
	name := value.OrElse("")
	if name == "" {
		return func(*LocationVisit) bool { return true }, nil
	}
	loc, err := c.cache.Find(ctx, name)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		return func(*LocationVisit) bool { return false }, nil
	}
	return func(lv *LocationVisit) bool { return lv.LocationID == loc.ID }, nil
}

func findOpen(rows []*LocationVisit) (*LocationVisit, error) {
	var open *LocationVisit
	for _, lv := range rows {
		if !lv.IsOpen() {
			continue
		}
		if open != nil {
			return nil, adterr.IncompatibleDatabaseState("more than one open location visit for visit %s", lv.VisitID)
		}
		open = lv
	}
	return open, nil
}

// latest returns the matching stay with the latest admission.
func latest(rows []*LocationVisit, match func(*LocationVisit) bool) *LocationVisit {
	var found *LocationVisit
	for _, lv := range rows {
		if match(lv) && (found == nil || !lv.AdmissionTime.Before(found.AdmissionTime)) {
			found = lv
		}
	}
	return found
}

// latestDischarged returns the matching discharged stay with the latest
// discharge time.
func latestDischarged(rows []*LocationVisit, match func(*LocationVisit) bool) *LocationVisit {
	var found *LocationVisit
	for _, lv := range rows {
		if lv.IsOpen() || !match(lv) {
			continue
		}
		if found == nil || lv.DischargeTime.After(*found.DischargeTime) {
			found = lv
		}
	}
	return found
}

// movesPatient reports whether msg is a direct statement of where the
// patient is, as opposed to one that only mentions a location.
func movesPatient(msg interchange.Message) bool {
	switch msg.(type) {
	case *interchange.AdmitPatient, *interchange.TransferPatient, *interchange.RegisterPatient:
		return true
	}
	return false
}
