// Package fetch implements the concurrent multi-source acquisition phase of
// the pipeline: batched grid-model requests, the bounded-parallelism NWS
// snowfall overlay, and the station-network depth lookups.
package fetch

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/snowrank/snowrank/internal/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// GridSource fetches model readings for a batch of resorts in one request.
type GridSource interface {
	FetchBatch(ctx context.Context, resorts []types.Resort) ([]types.RawReading, error)
}

// OverlaySource resolves a single coordinate to daily snowfall totals in cm,
// keyed by UTC calendar day ("2006-01-02").
type OverlaySource interface {
	DailySnowfall(ctx context.Context, lat, lon float64) (map[string]float64, error)
}

// StationSource returns the latest station snow depth per resort slug.
type StationSource interface {
	FetchDepths(ctx context.Context, slugs []string) (map[string]types.StationReading, error)
}

// Result aggregates one acquisition pass over all active resorts.
type Result struct {
	// Readings holds the model reading per resort, with the overlay already
	// applied to forecast snowfall where available.
	Readings map[uuid.UUID]*types.RawReading
	// Stations holds on-mountain depth readings keyed by resort slug.
	Stations map[string]types.StationReading
	// FailedIDs lists resorts that produced no model reading at all.
	FailedIDs []uuid.UUID
}

// Fetcher coordinates the acquisition phase. Sources fail independently; a
// batch or overlay failure never discards another resort's data.
type Fetcher struct {
	grid             GridSource
	overlay          OverlaySource
	stationPrimary   StationSource
	stationSecondary StationSource

	batchSize        int
	overlayCountries map[string]bool
	overlaySem       *semaphore.Weighted
	logger           *zap.SugaredLogger
}

// New creates a Fetcher. overlay, stationPrimary and stationSecondary may be
// nil when the corresponding source is not configured.
func New(grid GridSource, overlay OverlaySource, stationPrimary, stationSecondary StationSource,
	batchSize int, overlayCountries []string, overlayConcurrency int, logger *zap.SugaredLogger) *Fetcher {

	countries := make(map[string]bool, len(overlayCountries))
	for _, c := range overlayCountries {
		countries[c] = true
	}
	if overlayConcurrency < 1 {
		overlayConcurrency = 1
	}

	return &Fetcher{
		grid:             grid,
		overlay:          overlay,
		stationPrimary:   stationPrimary,
		stationSecondary: stationSecondary,
		batchSize:        batchSize,
		overlayCountries: countries,
		overlaySem:       semaphore.NewWeighted(int64(overlayConcurrency)),
		logger:           logger,
	}
}

// FetchAll runs the full acquisition pass for the given resorts.
func (f *Fetcher) FetchAll(ctx context.Context, resorts []types.Resort) (*Result, error) {
	result := &Result{
		Readings: make(map[uuid.UUID]*types.RawReading),
		Stations: make(map[string]types.StationReading),
	}
	if len(resorts) == 0 {
		return result, nil
	}

	f.fetchModel(ctx, resorts, result)
	f.applyOverlay(ctx, resorts, result)
	f.fetchStations(ctx, resorts, result)

	return result, nil
}

// fetchModel issues one grid-model request per batch of resorts, all batches
// concurrently, and records which resorts never appeared in a successful
// outcome.
func (f *Fetcher) fetchModel(ctx context.Context, resorts []types.Resort, result *Result) {
	batches := partition(resorts, f.batchSize)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, batch := range batches {
		batch := batch
		g.Go(func() error {
			readings, err := f.grid.FetchBatch(gctx, batch)
			if err != nil {
				// Failure stays local to this batch.
				f.logger.Errorf("grid batch fetch failed for %d resorts: %v", len(batch), err)
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			for i := range readings {
				r := readings[i]
				result.Readings[r.ResortID] = &r
			}
			return nil
		})
	}
	g.Wait()

	for _, resort := range resorts {
		if _, ok := result.Readings[resort.ID]; !ok {
			result.FailedIDs = append(result.FailedIDs, resort.ID)
		}
	}
}

// applyOverlay fetches high-resolution snowfall for resorts in the overlay
// countries and overwrites the matching forecast days. Any per-resort or
// whole-overlay failure leaves the base forecast untouched.
func (f *Fetcher) applyOverlay(ctx context.Context, resorts []types.Resort, result *Result) {
	if f.overlay == nil {
		return
	}

	var candidates []types.Resort
	for _, resort := range resorts {
		if f.overlayCountries[resort.Country] && result.Readings[resort.ID] != nil {
			candidates = append(candidates, resort)
		}
	}
	if len(candidates) == 0 {
		return
	}

	f.logger.Infof("fetching snowfall overlays for %d resorts", len(candidates))

	var mu sync.Mutex
	applied := 0
	var wg sync.WaitGroup
	for _, resort := range candidates {
		resort := resort
		if err := f.overlaySem.Acquire(ctx, 1); err != nil {
			break // run cancelled
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer f.overlaySem.Release(1)

			daily, err := f.overlay.DailySnowfall(ctx, resort.Latitude, resort.Longitude)
			if err != nil {
				f.logger.Warnf("snowfall overlay failed for %s: %v", resort.Slug, err)
				return
			}

			mu.Lock()
			defer mu.Unlock()
			reading := result.Readings[resort.ID]
			if reading == nil {
				return
			}
			for i := range reading.Forecasts {
				day := reading.Forecasts[i].Date.Format("2006-01-02")
				if snowfall, ok := daily[day]; ok {
					reading.Forecasts[i].SnowfallCM = types.Float(snowfall)
					reading.Forecasts[i].Source = "nws_hrrr"
				}
			}
			applied++
		}()
	}
	wg.Wait()

	f.logger.Infof("applied snowfall overlay to %d/%d resorts", applied, len(candidates))
}

// fetchStations queries both station networks over the precomputed mappings.
// The primary network wins when both report a depth for the same resort.
func (f *Fetcher) fetchStations(ctx context.Context, resorts []types.Resort, result *Result) {
	slugs := make([]string, len(resorts))
	for i, resort := range resorts {
		slugs[i] = resort.Slug
	}

	if f.stationSecondary != nil {
		readings, err := f.stationSecondary.FetchDepths(ctx, slugs)
		if err != nil {
			f.logger.Errorf("secondary station fetch failed: %v", err)
		} else {
			for slug, reading := range readings {
				result.Stations[slug] = reading
			}
		}
	}

	if f.stationPrimary != nil {
		readings, err := f.stationPrimary.FetchDepths(ctx, slugs)
		if err != nil {
			f.logger.Errorf("primary station fetch failed: %v", err)
		} else {
			for slug, reading := range readings {
				result.Stations[slug] = reading
			}
		}
	}
}

func partition(resorts []types.Resort, size int) [][]types.Resort {
	if size < 1 {
		size = 1
	}
	var batches [][]types.Resort
	for start := 0; start < len(resorts); start += size {
		end := start + size
		if end > len(resorts) {
			end = len(resorts)
		}
		batches = append(batches, resorts[start:end])
	}
	return batches
}
