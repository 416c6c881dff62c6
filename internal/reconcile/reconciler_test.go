package reconcile

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/snowrank/snowrank/internal/types"
	"go.uber.org/zap"
)

func testReconciler() *Reconciler {
	return New(zap.NewNop().Sugar())
}

func floatPtr(v float64) *float64 { return &v }

func testResort() types.Resort {
	return types.Resort{ID: uuid.New(), Slug: "test-resort"}
}

func modelReading(resortID uuid.UUID, depth float64) *types.RawReading {
	return &types.RawReading{
		ResortID:    resortID,
		FetchedAt:   time.Date(2026, 1, 15, 6, 0, 0, 0, time.UTC),
		SnowDepthCM: floatPtr(depth),
	}
}

func TestReconcileModelOnly(t *testing.T) {
	r := testReconciler()
	resort := testResort()

	reading, update := r.Reconcile(resort, modelReading(resort.ID, 80), nil, nil)

	if update != nil {
		t.Error("no override should mean no update")
	}
	if reading.DepthSource != types.SourceModel {
		t.Errorf("source = %s, want model", reading.DepthSource)
	}
	if *reading.SnowDepthCM != 80 || *reading.ModelDepthCM != 80 {
		t.Errorf("depths = %v / %v, want 80 / 80", *reading.SnowDepthCM, *reading.ModelDepthCM)
	}
}

func TestReconcileStationWinsOverModel(t *testing.T) {
	r := testReconciler()
	resort := testResort()
	station := &types.StationReading{ResortSlug: resort.Slug, SnowDepthCM: 95, StationID: "ABC", Network: "synoptic"}

	reading, _ := r.Reconcile(resort, modelReading(resort.ID, 80), station, nil)

	if reading.DepthSource != types.SourceStation {
		t.Errorf("source = %s, want station", reading.DepthSource)
	}
	if *reading.SnowDepthCM != 95 {
		t.Errorf("accepted depth = %v, want 95", *reading.SnowDepthCM)
	}
	if *reading.ModelDepthCM != 80 {
		t.Errorf("model depth must be retained, got %v", *reading.ModelDepthCM)
	}
}

func TestReconcileOverrideWinsOverStation(t *testing.T) {
	r := testReconciler()
	resort := testResort()
	station := &types.StationReading{ResortSlug: resort.Slug, SnowDepthCM: 95}
	override := &types.Override{
		ID:          uuid.New(),
		ResortID:    resort.ID,
		DepthCM:     120,
		ThresholdCM: 20,
		Active:      true,
	}

	model := modelReading(resort.ID, 80)
	model.NewSnow24hCM = floatPtr(5)

	reading, update := r.Reconcile(resort, model, station, override)

	if reading.DepthSource != types.SourceOverride {
		t.Errorf("source = %s, want manual_override", reading.DepthSource)
	}
	if *reading.SnowDepthCM != 120 {
		t.Errorf("accepted depth = %v, want 120", *reading.SnowDepthCM)
	}
	if update == nil {
		t.Fatal("override update missing")
	}
	if update.Cumulative != 5 || !update.Active || update.Expired {
		t.Errorf("update = %+v, want cumulative 5, still active", update)
	}
}

func TestOverrideExpiresAtThreshold(t *testing.T) {
	r := testReconciler()
	resort := testResort()
	override := &types.Override{
		ID:                  uuid.New(),
		ResortID:            resort.ID,
		DepthCM:             120,
		CumulativeNewSnowCM: 15,
		ThresholdCM:         20,
		Active:              true,
	}

	model := modelReading(resort.ID, 80)
	model.NewSnow24hCM = floatPtr(5) // reaches exactly 20

	reading, update := r.Reconcile(resort, model, nil, override)

	if update == nil {
		t.Fatal("override update missing")
	}
	if !update.Expired || update.Active {
		t.Errorf("update = %+v, want expired and inactive", update)
	}
	if update.Cumulative != 20 {
		t.Errorf("cumulative = %v, want 20", update.Cumulative)
	}
	// Expiry takes effect this run: the override depth is not applied.
	if reading.DepthSource != types.SourceModel || *reading.SnowDepthCM != 80 {
		t.Errorf("reading = %s/%v, want model/80", reading.DepthSource, *reading.SnowDepthCM)
	}
}

func TestOverrideNilNewSnowCountsAsZero(t *testing.T) {
	r := testReconciler()
	resort := testResort()
	override := &types.Override{
		ID:                  uuid.New(),
		ResortID:            resort.ID,
		DepthCM:             120,
		CumulativeNewSnowCM: 10,
		ThresholdCM:         20,
		Active:              true,
	}

	_, update := r.Reconcile(resort, modelReading(resort.ID, 80), nil, override)

	if update == nil {
		t.Fatal("override update missing")
	}
	if update.Cumulative != 10 || !update.Active {
		t.Errorf("update = %+v, want cumulative unchanged at 10", update)
	}
}

func TestReconcileNoModelStillAppliesStation(t *testing.T) {
	r := testReconciler()
	resort := testResort()
	station := &types.StationReading{ResortSlug: resort.Slug, SnowDepthCM: 95}

	reading, _ := r.Reconcile(resort, nil, station, nil)

	if reading.DepthSource != types.SourceStation || *reading.SnowDepthCM != 95 {
		t.Errorf("reading = %s/%v, want station/95", reading.DepthSource, *reading.SnowDepthCM)
	}
	if reading.ModelDepthCM != nil {
		t.Errorf("model depth should be nil, got %v", *reading.ModelDepthCM)
	}
}
