// Package app wires the pipeline, scheduler and management API together and
// manages their lifecycle.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/snowrank/snowrank/internal/alert"
	"github.com/snowrank/snowrank/internal/database"
	"github.com/snowrank/snowrank/internal/fetch"
	"github.com/snowrank/snowrank/internal/log"
	"github.com/snowrank/snowrank/internal/management"
	"github.com/snowrank/snowrank/internal/observability"
	"github.com/snowrank/snowrank/internal/pipeline"
	"github.com/snowrank/snowrank/internal/scheduler"
	"github.com/snowrank/snowrank/internal/scoring"
	"github.com/snowrank/snowrank/internal/sources"
	"github.com/snowrank/snowrank/pkg/config"
	"go.uber.org/zap"
)

// App represents the main application.
type App struct {
	cfg    *config.Config
	logger *zap.SugaredLogger
}

// New creates a new application instance.
func New(cfg *config.Config, logger *zap.SugaredLogger) *App {
	return &App{cfg: cfg, logger: logger}
}

// Run starts the application and blocks until shutdown. With runOnce set it
// executes a single pipeline run and exits instead of serving.
func (a *App) Run(ctx context.Context, runOnce bool) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	db, err := database.NewClient(a.cfg.Database.ConnectionString, a.logger)
	if err != nil {
		return fmt.Errorf("error connecting to database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("error migrating database: %w", err)
	}
	gateway := database.NewGateway(db.DB)

	metrics := observability.New()
	runner, err := a.buildRunner(gateway, metrics)
	if err != nil {
		return err
	}

	if runOnce {
		summary, err := runner.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("pipeline run failed: %w", err)
		}
		log.Infof("run complete: %d resorts, %d snapshots, %d scores, %d failed fetches",
			summary.Resorts, summary.SnapshotsWritten, summary.ScoresWritten,
			len(summary.FailedResortIDs))
		return nil
	}

	sched := scheduler.New(runner, a.cfg.Pipeline.CronSchedule, a.logger)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("error starting scheduler: %w", err)
	}

	mgmt, err := management.NewController(ctx, &wg, a.cfg.Management, runner, gateway, metrics, a.logger)
	if err != nil {
		return fmt.Errorf("error creating management API: %w", err)
	}
	if err := mgmt.StartController(); err != nil {
		return fmt.Errorf("error starting management API: %w", err)
	}

	log.Info("application started successfully")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigs:
		log.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		log.Info("context cancelled, shutting down...")
	}

	cancel()

	log.Info("waiting for all workers to terminate...")
	wg.Wait()
	log.Info("shutdown complete")

	return nil
}

// buildRunner constructs the acquisition sources and the pipeline runner
// from configuration.
func (a *App) buildRunner(gateway *database.Gateway, metrics *observability.Metrics) (*pipeline.Runner, error) {
	cfg := a.cfg
	clock := clockwork.NewRealClock()

	grid := sources.NewOpenMeteoClient(
		sources.NewClient("openmeteo", cfg.OpenMeteoTimeout(), cfg.Pipeline.Retries, cfg.BackoffBase(), a.logger),
		cfg.Sources.OpenMeteo.BaseURL, cfg.Pipeline.ForecastDays, a.logger)

	var overlay fetch.OverlaySource
	if len(cfg.Sources.NWS.Countries) > 0 {
		nwsTimeout := cfg.OpenMeteoTimeout()
		if cfg.Sources.NWS.TimeoutSeconds > 0 {
			nwsTimeout = time.Duration(cfg.Sources.NWS.TimeoutSeconds) * time.Second
		}
		overlay = sources.NewNWSClient(
			sources.NewClient("nws", nwsTimeout, cfg.Pipeline.Retries, cfg.BackoffBase(), a.logger),
			cfg.Sources.NWS.BaseURL, cfg.Sources.NWS.UserAgent, a.logger)
	}

	var primary, secondary fetch.StationSource
	if cfg.Sources.Synoptic.StationMapFile != "" {
		stationMap, err := sources.LoadStationMap(cfg.Sources.Synoptic.StationMapFile)
		if err != nil {
			return nil, fmt.Errorf("error loading synoptic station map: %w", err)
		}
		synopticTimeout := time.Duration(cfg.Sources.Synoptic.TimeoutSeconds) * time.Second
		client := sources.NewSynopticClient(
			sources.NewClient("synoptic", synopticTimeout, cfg.Pipeline.Retries, cfg.BackoffBase(), a.logger),
			cfg.Sources.Synoptic.BaseURL, cfg.Sources.Synoptic.Token, stationMap,
			cfg.Sources.Synoptic.BatchSize, cfg.Sources.Synoptic.RecentMinutes, a.logger)
		if client != nil {
			primary = client
		}
	}
	if cfg.Sources.Snotel.StationMapFile != "" {
		stationMap, err := sources.LoadStationMap(cfg.Sources.Snotel.StationMapFile)
		if err != nil {
			return nil, fmt.Errorf("error loading snotel station map: %w", err)
		}
		snotelTimeout := time.Duration(cfg.Sources.Snotel.TimeoutSeconds) * time.Second
		secondary = sources.NewSnotelClient(
			sources.NewClient("snotel", snotelTimeout, cfg.Pipeline.Retries, cfg.BackoffBase(), a.logger),
			cfg.Sources.Snotel.BaseURL, stationMap, cfg.Sources.Snotel.LookbackDays, clock, a.logger)
	}

	fetcher := fetch.New(grid, overlay, primary, secondary,
		cfg.Pipeline.BatchSize, cfg.Sources.NWS.Countries, cfg.Sources.NWS.MaxConcurrent, a.logger)

	engine := scoring.NewEngine(cfg.Scoring)
	notifier := alert.NewWebhookNotifier(cfg.Pipeline.AlertWebhookURL, a.logger)

	return pipeline.New(gateway, fetcher, engine, notifier, metrics, cfg, clock, a.logger), nil
}
