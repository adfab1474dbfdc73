// Package rowstate reconciles one incoming fact against one stored row.
//
// A RowState wraps a live entity for the duration of a single event. Field
// changes are computed by pure Next* functions and written through the
// Assign* helpers, which record whether anything actually changed.
// SaveOrAudit then persists a new row, or audits the pre-change snapshot and
// persists the changed row, or does nothing.
package rowstate

import (
	"context"
	"fmt"
	"time"
)

// Entity is a live row that can copy itself and produce its audit record.
type Entity[E any, A any] interface {
	Clone() E
	AuditRecord(validUntil, storedUntil time.Time) A
	SetValidFrom(t time.Time)
	SetStoredFrom(t time.Time)
}

// Store persists live rows and audit records of one entity type.
type Store[E any, A any] interface {
	Save(ctx context.Context, entity E) error
	SaveAudit(ctx context.Context, audit A) error
}

// Remover deletes live rows after auditing them.
type Remover[E any, A any] interface {
	SaveAudit(ctx context.Context, audit A) error
	Delete(ctx context.Context, entity E) error
}

// Funcs adapts plain functions to Store and Remover, for repositories that
// hold several entity types.
type Funcs[E any, A any] struct {
	SaveFn      func(ctx context.Context, entity E) error
	SaveAuditFn func(ctx context.Context, audit A) error
	DeleteFn    func(ctx context.Context, entity E) error
}

func (f Funcs[E, A]) Save(ctx context.Context, entity E) error { return f.SaveFn(ctx, entity) }
func (f Funcs[E, A]) SaveAudit(ctx context.Context, audit A) error {
	return f.SaveAuditFn(ctx, audit)
}
func (f Funcs[E, A]) Delete(ctx context.Context, entity E) error { return f.DeleteFn(ctx, entity) }

// Tracker records the outcome of field assignments. *RowState implements it.
type Tracker interface {
	markUpdated()
	moveValidFrom(t time.Time)
}

// RowState pairs a live entity with the create/update decision for one event.
type RowState[E Entity[E, A], A any] struct {
	entity     E
	snapshot   E
	validFrom  time.Time
	storedFrom time.Time
	created    bool
	updated    bool
}

// New wraps entity. validFrom is the event's time and storedFrom the
// processing time; created reports whether the entity was just built.
func New[E Entity[E, A], A any](entity E, validFrom, storedFrom time.Time, created bool) *RowState[E, A] {
	return &RowState[E, A]{
		entity:     entity,
		snapshot:   entity.Clone(),
		validFrom:  validFrom,
		storedFrom: storedFrom,
		created:    created,
	}
}

func (r *RowState[E, A]) Entity() E             { return r.entity }
func (r *RowState[E, A]) Created() bool         { return r.created }
func (r *RowState[E, A]) Updated() bool         { return r.updated }
func (r *RowState[E, A]) ValidFrom() time.Time  { return r.validFrom }
func (r *RowState[E, A]) StoredFrom() time.Time { return r.storedFrom }

func (r *RowState[E, A]) markUpdated() { r.updated = true }

func (r *RowState[E, A]) moveValidFrom(t time.Time) {
	if !t.IsZero() {
		r.validFrom = t
	}
}

// SaveOrAudit persists a created entity, or audits and persists an updated
// one. Unchanged entities are left alone.
func (r *RowState[E, A]) SaveOrAudit(ctx context.Context, store Store[E, A]) error {
	switch {
	case r.created:
		if err := store.Save(ctx, r.entity); err != nil {
			return fmt.Errorf("save new row: %w", err)
		}
	case r.updated:
		if err := store.SaveAudit(ctx, r.snapshot.AuditRecord(r.validFrom, r.storedFrom)); err != nil {
			return fmt.Errorf("save audit row: %w", err)
		}
		r.entity.SetValidFrom(r.validFrom)
		r.entity.SetStoredFrom(r.storedFrom)
		if err := store.Save(ctx, r.entity); err != nil {
			return fmt.Errorf("save updated row: %w", err)
		}
	default:
		return nil
	}
	r.snapshot = r.entity.Clone()
	r.created = false
	r.updated = false
	return nil
}

// Delete audits the entity as it was before this event and removes it. A
// created entity was never persisted, so there is nothing to remove.
func (r *RowState[E, A]) Delete(ctx context.Context, remover Remover[E, A], validUntil, storedUntil time.Time) error {
	if r.created {
		return nil
	}
	return DeleteAudited(ctx, remover, r.snapshot, validUntil, storedUntil)
}

// DeleteAudited writes one audit record for a persisted entity and deletes it.
func DeleteAudited[E Entity[E, A], A any](ctx context.Context, remover Remover[E, A], entity E, validUntil, storedUntil time.Time) error {
	if err := remover.SaveAudit(ctx, entity.AuditRecord(validUntil, storedUntil)); err != nil {
		return fmt.Errorf("save deletion audit: %w", err)
	}
	if err := remover.Delete(ctx, entity); err != nil {
		return fmt.Errorf("delete row: %w", err)
	}
	return nil
}
