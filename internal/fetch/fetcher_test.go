package fetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/snowrank/snowrank/internal/types"
	"go.uber.org/zap"
)

type fakeGrid struct {
	failSlugs map[string]bool
}

func (f *fakeGrid) FetchBatch(ctx context.Context, resorts []types.Resort) ([]types.RawReading, error) {
	for _, resort := range resorts {
		if f.failSlugs[resort.Slug] {
			return nil, errors.New("upstream 500")
		}
	}
	readings := make([]types.RawReading, len(resorts))
	for i, resort := range resorts {
		readings[i] = types.RawReading{
			ResortID:    resort.ID,
			FetchedAt:   time.Now().UTC(),
			SnowDepthCM: types.Float(100),
			Forecasts: []types.ForecastDay{
				{Date: day(0), SnowfallCM: types.Float(2), Confidence: 1.0, Source: "openmeteo"},
				{Date: day(1), SnowfallCM: types.Float(4), Confidence: 0.97, Source: "openmeteo"},
			},
		}
	}
	return readings, nil
}

type fakeOverlay struct {
	daily map[string]float64
	err   error
}

func (f *fakeOverlay) DailySnowfall(ctx context.Context, lat, lon float64) (map[string]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.daily, nil
}

type fakeStations struct {
	readings map[string]types.StationReading
	err      error
}

func (f *fakeStations) FetchDepths(ctx context.Context, slugs []string) (map[string]types.StationReading, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.readings, nil
}

func day(offset int) time.Time {
	base := time.Now().UTC().Truncate(24 * time.Hour)
	return base.AddDate(0, 0, offset)
}

func makeResorts(n int, country string) []types.Resort {
	resorts := make([]types.Resort, n)
	for i := range resorts {
		resorts[i] = types.Resort{
			ID:      uuid.New(),
			Slug:    string(rune('a'+i)) + "-resort",
			Country: country,
		}
	}
	return resorts
}

func TestFetchAllBatchFailureIsolated(t *testing.T) {
	resorts := makeResorts(4, "FR")
	// Batch size 2: [0,1] fails, [2,3] succeeds.
	grid := &fakeGrid{failSlugs: map[string]bool{resorts[0].Slug: true}}

	f := New(grid, nil, nil, nil, 2, nil, 1, zap.NewNop().Sugar())
	result, err := f.FetchAll(context.Background(), resorts)
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Readings) != 2 {
		t.Errorf("readings = %d, want 2", len(result.Readings))
	}
	if len(result.FailedIDs) != 2 {
		t.Fatalf("failed = %d, want 2", len(result.FailedIDs))
	}
	failed := map[uuid.UUID]bool{result.FailedIDs[0]: true, result.FailedIDs[1]: true}
	if !failed[resorts[0].ID] || !failed[resorts[1].ID] {
		t.Errorf("wrong failed ids: %v", result.FailedIDs)
	}
	if result.Readings[resorts[2].ID] == nil || result.Readings[resorts[3].ID] == nil {
		t.Error("surviving batch readings missing")
	}
}

func TestOverlayOverwritesMatchingDays(t *testing.T) {
	resorts := makeResorts(1, "US")
	overlay := &fakeOverlay{daily: map[string]float64{day(1).Format("2006-01-02"): 9.5}}

	f := New(&fakeGrid{}, overlay, nil, nil, 50, []string{"US"}, 4, zap.NewNop().Sugar())
	result, err := f.FetchAll(context.Background(), resorts)
	if err != nil {
		t.Fatal(err)
	}

	forecasts := result.Readings[resorts[0].ID].Forecasts
	if *forecasts[0].SnowfallCM != 2 || forecasts[0].Source != "openmeteo" {
		t.Errorf("day 0 should be untouched: %+v", forecasts[0])
	}
	if *forecasts[1].SnowfallCM != 9.5 || forecasts[1].Source != "nws_hrrr" {
		t.Errorf("day 1 should carry the overlay: %+v", forecasts[1])
	}
}

func TestOverlaySkipsOtherCountries(t *testing.T) {
	resorts := makeResorts(1, "FR")
	overlay := &fakeOverlay{daily: map[string]float64{day(0).Format("2006-01-02"): 9.5}}

	f := New(&fakeGrid{}, overlay, nil, nil, 50, []string{"US"}, 4, zap.NewNop().Sugar())
	result, _ := f.FetchAll(context.Background(), resorts)

	forecasts := result.Readings[resorts[0].ID].Forecasts
	if forecasts[0].Source != "openmeteo" {
		t.Errorf("non-overlay country should keep base forecast: %+v", forecasts[0])
	}
}

func TestOverlayFailureLeavesBaseForecast(t *testing.T) {
	resorts := makeResorts(1, "US")
	overlay := &fakeOverlay{err: errors.New("grid endpoint down")}

	f := New(&fakeGrid{}, overlay, nil, nil, 50, []string{"US"}, 4, zap.NewNop().Sugar())
	result, err := f.FetchAll(context.Background(), resorts)
	if err != nil {
		t.Fatal(err)
	}

	forecasts := result.Readings[resorts[0].ID].Forecasts
	if *forecasts[0].SnowfallCM != 2 || forecasts[0].Source != "openmeteo" {
		t.Errorf("overlay failure must not clobber base forecast: %+v", forecasts[0])
	}
	if len(result.FailedIDs) != 0 {
		t.Errorf("overlay failure should not mark the resort failed: %v", result.FailedIDs)
	}
}

func TestStationPrimaryWins(t *testing.T) {
	resorts := makeResorts(1, "US")
	slug := resorts[0].Slug

	primary := &fakeStations{readings: map[string]types.StationReading{
		slug: {ResortSlug: slug, SnowDepthCM: 110, Network: "synoptic"},
	}}
	secondary := &fakeStations{readings: map[string]types.StationReading{
		slug: {ResortSlug: slug, SnowDepthCM: 95, Network: "snotel"},
	}}

	f := New(&fakeGrid{}, nil, primary, secondary, 50, nil, 1, zap.NewNop().Sugar())
	result, _ := f.FetchAll(context.Background(), resorts)

	got, ok := result.Stations[slug]
	if !ok {
		t.Fatal("station reading missing")
	}
	if got.Network != "synoptic" || got.SnowDepthCM != 110 {
		t.Errorf("primary network should win: %+v", got)
	}
}

func TestStationFailureKeepsOtherNetwork(t *testing.T) {
	resorts := makeResorts(1, "US")
	slug := resorts[0].Slug

	primary := &fakeStations{err: errors.New("token rejected")}
	secondary := &fakeStations{readings: map[string]types.StationReading{
		slug: {ResortSlug: slug, SnowDepthCM: 95, Network: "snotel"},
	}}

	f := New(&fakeGrid{}, nil, primary, secondary, 50, nil, 1, zap.NewNop().Sugar())
	result, _ := f.FetchAll(context.Background(), resorts)

	got, ok := result.Stations[slug]
	if !ok || got.Network != "snotel" {
		t.Errorf("secondary reading should survive primary failure: %+v", got)
	}
}

func TestFetchAllEmptyResorts(t *testing.T) {
	f := New(&fakeGrid{}, nil, nil, nil, 50, nil, 1, zap.NewNop().Sugar())
	result, err := f.FetchAll(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Readings) != 0 || len(result.FailedIDs) != 0 {
		t.Errorf("empty input should produce empty result: %+v", result)
	}
}
