package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/adtcore/internal/domain/adterr"
	"github.com/ehr/adtcore/internal/domain/location"
	"github.com/ehr/adtcore/internal/domain/trust"
	"github.com/ehr/adtcore/internal/interchange"
	"github.com/ehr/adtcore/internal/platform/telemetry"
	"github.com/ehr/adtcore/internal/processor"
)

// maxLineBytes bounds one NDJSON event.
const maxLineBytes = 4 << 20

func (a *app) processCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process [file]",
		Short: "Apply NDJSON events from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			in := io.Reader(os.Stdin)
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open events: %w", err)
				}
				defer f.Close()
				in = f
			}

			be, err := openBackend(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer be.close()

			d, _, err := a.pipeline(be, nil)
			if err != nil {
				return err
			}
			stats, err := processStream(ctx, in, d, a.logger)
			a.logger.Info().
				Int("lines", stats.Lines).
				Int("processed", stats.Processed).
				Int("rejected", stats.Rejected).
				Int("malformed", stats.Malformed).
				Msg("event stream finished")
			return err
		},
	}
}

// pipeline builds the location cache, processor and dispatcher over be.
// metrics may be nil.
func (a *app) pipeline(be *backend, metrics *telemetry.Metrics) (*processor.Dispatcher, *location.Cache, error) {
	cache, err := location.NewCache(be.repos.Locations, a.cfg.LocationCacheSize)
	if err != nil {
		return nil, nil, err
	}
	policy := trust.NewPolicy(a.cfg.TrustedSources...)
	proc := processor.New(be.repos, cache, policy, a.logger)

	opts := []processor.Option{processor.WithCache(cache)}
	if metrics != nil {
		opts = append(opts, processor.WithMetrics(metrics))
	}
	return processor.NewDispatcher(be.tx, proc, a.logger, opts...), cache, nil
}

type dispatcher interface {
	Dispatch(ctx context.Context, msg interchange.Message) error
}

type streamStats struct {
	Lines     int
	Processed int
	Rejected  int
	Malformed int
}

// processStream dispatches one event per non-blank line. Lines that do not
// decode and events the processor rejects are logged and skipped; an
// infrastructure failure stops the stream.
func processStream(ctx context.Context, r io.Reader, d dispatcher, logger zerolog.Logger) (streamStats, error) {
	var stats streamStats
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Lines++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		msg, err := interchange.Decode(line)
		if err != nil {
			stats.Malformed++
			logger.Warn().Err(err).Int("line", stats.Lines).Msg("skipping undecodable event")
			continue
		}

		if err := d.Dispatch(ctx, msg); err != nil {
			if adterr.Retryable(err) {
				return stats, fmt.Errorf("line %d: %w", stats.Lines, err)
			}
			stats.Rejected++
			continue
		}
		stats.Processed++
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("read events: %w", err)
	}
	return stats, nil
}
