// Package pipeline orchestrates one end-to-end run: acquire, reconcile,
// validate, persist, score, rank.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/snowrank/snowrank/internal/alert"
	"github.com/snowrank/snowrank/internal/fetch"
	"github.com/snowrank/snowrank/internal/observability"
	"github.com/snowrank/snowrank/internal/quality"
	"github.com/snowrank/snowrank/internal/reconcile"
	"github.com/snowrank/snowrank/internal/scoring"
	"github.com/snowrank/snowrank/internal/types"
	"github.com/snowrank/snowrank/pkg/config"
	"go.uber.org/zap"
)

// ErrRunInProgress is returned when a run is requested while another is
// still executing.
var ErrRunInProgress = errors.New("pipeline run already in progress")

// Gateway is the persistence surface the runner depends on.
type Gateway interface {
	ActiveResorts() ([]types.Resort, error)
	PreviousDepths(day time.Time) (map[uuid.UUID]float64, error)
	UpsertSnapshot(resortID uuid.UUID, day time.Time, reading types.ReconciledReading,
		assessment types.QualityAssessment, previousDepthCM *float64) error
	ReplaceForecast(resortID uuid.UUID, fetchedAt time.Time, days []types.ForecastDay) error
	UpsertScore(resortID uuid.UUID, horizonDays int, result types.ScoreResult, scoredAt time.Time) error
	AssignGlobalRank(horizonDays int) error
	ActiveOverrides() (map[uuid.UUID]types.Override, error)
	UpdateOverride(id uuid.UUID, cumulativeCM float64, active bool) error
}

// Fetcher is the acquisition surface the runner depends on.
type Fetcher interface {
	FetchAll(ctx context.Context, resorts []types.Resort) (*fetch.Result, error)
}

// Runner executes pipeline runs. At most one run is active at a time;
// overlapping requests fail fast with ErrRunInProgress.
type Runner struct {
	gateway    Gateway
	fetcher    Fetcher
	reconciler *reconcile.Reconciler
	validator  *quality.Validator
	engine     *scoring.Engine
	notifier   alert.Notifier
	metrics    *observability.Metrics
	cfg        *config.Config
	clock      clockwork.Clock
	logger     *zap.SugaredLogger

	running chan struct{}
}

// New creates a Runner.
func New(gateway Gateway, fetcher Fetcher, engine *scoring.Engine, notifier alert.Notifier,
	metrics *observability.Metrics, cfg *config.Config, clock clockwork.Clock, logger *zap.SugaredLogger) *Runner {

	running := make(chan struct{}, 1)
	running <- struct{}{}

	return &Runner{
		gateway:    gateway,
		fetcher:    fetcher,
		reconciler: reconcile.New(logger),
		validator:  quality.New(logger),
		engine:     engine,
		notifier:   notifier,
		metrics:    metrics,
		cfg:        cfg,
		clock:      clock,
		logger:     logger,
		running:    running,
	}
}

// RunOnce executes a full pipeline run. Cancellation stops processing at the
// next resort boundary; work already persisted stays persisted.
func (r *Runner) RunOnce(ctx context.Context) (*types.RunSummary, error) {
	select {
	case <-r.running:
		defer func() { r.running <- struct{}{} }()
	default:
		return nil, ErrRunInProgress
	}

	startedAt := r.clock.Now().UTC()
	runDate := startedAt.Truncate(24 * time.Hour)
	r.metrics.RunsTotal.Inc()
	r.logger.Infow("pipeline run starting", "run_date", runDate.Format("2006-01-02"))

	summary := &types.RunSummary{StartedAt: startedAt}
	defer func() {
		summary.FinishedAt = r.clock.Now().UTC()
		r.metrics.RunDuration.Observe(summary.FinishedAt.Sub(startedAt).Seconds())
	}()

	resorts, err := r.gateway.ActiveResorts()
	if err != nil {
		return summary, fmt.Errorf("error loading resorts: %w", err)
	}
	summary.Resorts = len(resorts)
	r.metrics.ResortsProcessed.Set(float64(len(resorts)))
	if len(resorts) == 0 {
		r.logger.Warn("no active resorts; nothing to do")
		return summary, nil
	}

	previousDepths, err := r.gateway.PreviousDepths(runDate)
	if err != nil {
		return summary, fmt.Errorf("error loading previous depths: %w", err)
	}

	overrides, err := r.gateway.ActiveOverrides()
	if err != nil {
		return summary, fmt.Errorf("error loading overrides: %w", err)
	}

	result, err := r.fetcher.FetchAll(ctx, resorts)
	if err != nil {
		return summary, fmt.Errorf("error during acquisition: %w", err)
	}
	summary.Fetched = len(result.Readings)
	summary.FailedResortIDs = result.FailedIDs
	r.metrics.FetchFailures.WithLabelValues("openmeteo").Add(float64(len(result.FailedIDs)))

	qualityCounts := map[types.QualityLevel]int{}

	for _, resort := range resorts {
		if ctx.Err() != nil {
			r.logger.Warnw("run cancelled; stopping at resort boundary", "resort", resort.Slug)
			break
		}

		model := result.Readings[resort.ID]
		station := stationFor(result.Stations, resort.Slug)
		override := overrideFor(overrides, resort.ID)

		if model == nil && station == nil {
			continue // counted in FailedResortIDs
		}

		reading, update := r.reconciler.Reconcile(resort, model, station, override)
		if update != nil {
			if err := r.gateway.UpdateOverride(update.Override.ID, update.Cumulative, update.Active); err != nil {
				r.logger.Errorf("error persisting override state for %s: %v", resort.Slug, err)
				r.metrics.WriteFailures.WithLabelValues("override").Inc()
			}
		}

		var previous *float64
		if depth, ok := previousDepths[resort.ID]; ok {
			previous = types.Float(depth)
		}

		assessment := r.validator.Assess(resort, reading, previous, runDate)
		qualityCounts[assessment.Level]++

		if err := r.gateway.UpsertSnapshot(resort.ID, runDate, reading, assessment, previous); err != nil {
			r.logger.Errorf("error writing snapshot for %s: %v", resort.Slug, err)
			r.metrics.WriteFailures.WithLabelValues("snapshot").Inc()
			summary.SnapshotFailures++
			continue
		}
		summary.SnapshotsWritten++

		if err := r.gateway.ReplaceForecast(resort.ID, reading.FetchedAt, reading.Forecasts); err != nil {
			r.logger.Errorf("error writing forecasts for %s: %v", resort.Slug, err)
			r.metrics.WriteFailures.WithLabelValues("forecast").Inc()
		}

		r.scoreResort(resort, reading, startedAt, runDate, summary)
	}

	for level, count := range qualityCounts {
		r.metrics.QualityLevels.WithLabelValues(string(level)).Set(float64(count))
	}

	for _, horizon := range r.cfg.Pipeline.Horizons {
		if err := r.gateway.AssignGlobalRank(horizon); err != nil {
			r.logger.Errorf("error assigning ranks for horizon %d: %v", horizon, err)
		}
	}

	if len(resorts) > 0 {
		summary.FailureRate = float64(len(summary.FailedResortIDs)) / float64(len(resorts))
	}
	if summary.FailureRate > r.cfg.Pipeline.AlertFailureThreshold {
		summary.Alerted = true
		subject := "snowrank: elevated fetch failure rate"
		body := fmt.Sprintf("%d of %d resorts failed acquisition (%.1f%%) on %s",
			len(summary.FailedResortIDs), len(resorts), summary.FailureRate*100,
			runDate.Format("2006-01-02"))
		if err := r.notifier.Notify(ctx, subject, body); err != nil {
			r.logger.Errorf("error delivering alert: %v", err)
		}
	}

	r.logger.Infow("pipeline run finished",
		"resorts", summary.Resorts,
		"fetched", summary.Fetched,
		"failed", len(summary.FailedResortIDs),
		"snapshots", summary.SnapshotsWritten,
		"scores", summary.ScoresWritten,
		"duration", r.clock.Now().UTC().Sub(startedAt).String(),
	)
	return summary, nil
}

// scoreResort computes and persists the composite score at every configured
// horizon. A failed write at one horizon does not stop the others.
func (r *Runner) scoreResort(resort types.Resort, reading types.ReconciledReading,
	scoredAt, runDate time.Time, summary *types.RunSummary) {

	current := scoring.CurrentConditions{
		SnowDepthCM:  reading.SnowDepthCM,
		NewSnow72hCM: reading.NewSnow72hCM,
		TemperatureC: reading.TemperatureC,
		WindSpeedKMH: reading.WindSpeedKMH,
	}
	meta := scoring.ResortMeta{
		ElevationSummitM: resort.ElevationSummitM,
		Aspect:           resort.Aspect,
		SeasonStartMonth: resort.SeasonStartMonth,
		SeasonEndMonth:   resort.SeasonEndMonth,
	}
	forecastDays := scoringForecast(reading.Forecasts, runDate)

	for _, horizon := range r.cfg.Pipeline.Horizons {
		result := r.engine.Compute(current, forecastDays, meta, horizon,
			resort.HistoricalAvgDepthCM, int(runDate.Month()))

		scoreResult := types.ScoreResult{
			Total:       result.Total,
			BaseDepth:   result.BaseDepth,
			FreshSnow:   result.FreshSnow,
			Temperature: result.Temperature,
			Wind:        result.Wind,
			Forecast:    result.Forecast,
		}
		if err := r.gateway.UpsertScore(resort.ID, horizon, scoreResult, scoredAt); err != nil {
			r.logger.Errorf("error writing score for %s horizon %d: %v", resort.Slug, horizon, err)
			r.metrics.WriteFailures.WithLabelValues("score").Inc()
			summary.ScoreFailures++
			continue
		}
		summary.ScoresWritten++
	}
}

// scoringForecast converts persisted forecast days into scorer inputs, with
// each day's distance measured in whole days from the run date.
func scoringForecast(days []types.ForecastDay, runDate time.Time) []scoring.ForecastDay {
	out := make([]scoring.ForecastDay, 0, len(days))
	for _, day := range days {
		distance := int(day.Date.UTC().Truncate(24*time.Hour).Sub(runDate).Hours() / 24)
		if distance < 0 {
			continue
		}
		out = append(out, scoring.ForecastDay{
			DistanceDays: distance,
			SnowfallCM:   day.SnowfallCM,
			Confidence:   day.Confidence,
		})
	}
	return out
}

func stationFor(stations map[string]types.StationReading, slug string) *types.StationReading {
	if reading, ok := stations[slug]; ok {
		return &reading
	}
	return nil
}

func overrideFor(overrides map[uuid.UUID]types.Override, id uuid.UUID) *types.Override {
	if override, ok := overrides[id]; ok {
		return &override
	}
	return nil
}
