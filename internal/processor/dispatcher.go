package processor

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/adtcore/internal/domain/adterr"
	"github.com/ehr/adtcore/internal/interchange"
)

// Transactor runs a unit of work atomically. db.Transactor and the embedded
// stores implement it.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Purger drops cached state that a rolled back transaction may have seen.
type Purger interface {
	Purge()
}

// Recorder receives one observation per dispatched event.
type Recorder interface {
	ObserveMessage(kind, outcome string, elapsed time.Duration)
	CachePurged()
}

type nopRecorder struct{}

func (nopRecorder) ObserveMessage(string, string, time.Duration) {}
func (nopRecorder) CachePurged()                                 {}

// Dispatcher runs each event in its own transaction.
type Dispatcher struct {
	tx      Transactor
	proc    *Processor
	cache   Purger
	metrics Recorder
	now     func() time.Time
	logger  zerolog.Logger
}

type Option func(*Dispatcher)

// WithClock overrides the source of storedFrom stamps.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func WithMetrics(r Recorder) Option {
	return func(d *Dispatcher) { d.metrics = r }
}

// WithCache registers a cache to purge whenever a transaction rolls back.
func WithCache(p Purger) Option {
	return func(d *Dispatcher) { d.cache = p }
}

func NewDispatcher(tx Transactor, proc *Processor, logger zerolog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		tx:      tx,
		proc:    proc,
		metrics: nopRecorder{},
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger.With().Str("component", "dispatcher").Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch processes msg in one transaction. An ignored event is rolled back
// and reported as success; every other error is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, msg interchange.Message) error {
	if msg == nil {
		d.logger.Warn().Msg("nil message ignored")
		return nil
	}
	start := time.Now()
	storedFrom := d.now()
	kind := string(msg.Kind())
	h := msg.Meta()

	err := d.tx.RunInTx(ctx, func(ctx context.Context) error {
		return d.proc.ProcessMessage(ctx, msg, storedFrom)
	})
	if err != nil && d.cache != nil {
		d.cache.Purge()
		d.metrics.CachePurged()
	}

	class := adterr.Classify(err)
	d.metrics.ObserveMessage(kind, string(class), time.Since(start))

	logCtx := d.logger.With().
		Str("kind", kind).
		Str("source", h.SourceSystem).
		Str("source_message_id", h.SourceMessageID).
		Str("visit", h.VisitNumber).
		Logger()

	switch {
	case err == nil:
		logCtx.Debug().Dur("elapsed", time.Since(start)).Msg("processed")
		return nil
	case errors.Is(err, adterr.ErrMessageIgnored):
		logCtx.Warn().Err(err).Msg("message ignored")
		return nil
	case adterr.Retryable(err):
		logCtx.Error().Err(err).Msg("processing failed")
	default:
		logCtx.Warn().Err(err).Str("outcome", string(class)).Msg("message rejected")
	}
	return err
}
