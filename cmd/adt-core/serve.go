package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/adtcore/internal/config"
	"github.com/ehr/adtcore/internal/domain/clinical"
	"github.com/ehr/adtcore/internal/domain/location"
	"github.com/ehr/adtcore/internal/domain/visit"
	"github.com/ehr/adtcore/internal/platform/auth"
	"github.com/ehr/adtcore/internal/platform/db"
	"github.com/ehr/adtcore/internal/platform/middleware"
	"github.com/ehr/adtcore/internal/platform/telemetry"
)

const requestTimeout = 30 * time.Second

func (a *app) serveCmd() *cobra.Command {
	var replay string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the query API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.runServer(ctx, replay)
		},
	}
	cmd.Flags().StringVar(&replay, "replay", "", "NDJSON events to apply before serving")
	return cmd
}

func (a *app) runServer(ctx context.Context, replay string) error {
	be, err := openBackend(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer be.close()
	a.logger.Info().Str("store", be.name).Msg("store opened")

	metrics := telemetry.NewMetrics()
	d, cache, err := a.pipeline(be, metrics)
	if err != nil {
		return err
	}
	metrics.RegisterGaugeFunc("location_cache_entries", "Locations held in the lookup cache.",
		func() float64 { return float64(cache.Len()) })

	if replay != "" {
		f, err := os.Open(replay)
		if err != nil {
			return err
		}
		stats, err := processStream(ctx, f, d, a.logger)
		f.Close()
		if err != nil {
			return err
		}
		a.logger.Info().Int("processed", stats.Processed).Int("rejected", stats.Rejected).Msg("replay applied")
	}

	e := newServer(a.cfg, be, metrics, a.logger)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + a.cfg.Port
		a.logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	a.logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	a.logger.Info().Msg("server stopped")
	return nil
}

// newServer assembles the echo instance: infrastructure routes at the root
// and the authenticated query API under /api/v1.
func newServer(cfg *config.Config, be *backend, metrics *telemetry.Metrics, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(metrics.MetricsMiddleware())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())

	e.GET("/health", db.HealthHandler(be.ping, be.name))
	e.GET("/metrics", metrics.Handler())

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RequestTimeout(requestTimeout))
	if cfg.IsDev() {
		apiV1.Use(auth.DevAuthMiddleware())
	} else {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	}

	visits := be.repos.Visits
	visit.NewHandler(visits).RegisterRoutes(apiV1)
	location.NewHandler(be.repos.Locations, visits).RegisterRoutes(apiV1)
	clinical.NewHandler(be.repos.Clinical, visits).RegisterRoutes(apiV1)
	return e
}
