// Package reconcile merges model, station and operator-override snow depths
// into the single accepted reading used downstream.
//
// Precedence, highest first: active override > station reading > model
// reading. The model depth is always retained separately because the quality
// validator cross-checks it against the accepted value.
package reconcile

import (
	"github.com/snowrank/snowrank/internal/types"
	"go.uber.org/zap"
)

// OverrideUpdate records the new lifecycle state of an override after a run.
type OverrideUpdate struct {
	Override   types.Override
	Cumulative float64
	Active     bool
	Expired    bool
}

// Reconciler applies source precedence and advances override lifecycles.
type Reconciler struct {
	logger *zap.SugaredLogger
}

// New creates a Reconciler.
func New(logger *zap.SugaredLogger) *Reconciler {
	return &Reconciler{logger: logger}
}

// Reconcile produces the accepted reading for one resort. station and
// override may be nil. When an override is present its lifecycle advances:
// the 24h new snow is added to the cumulative counter, and once the counter
// reaches the threshold the override expires and no longer wins precedence —
// starting with this run. The returned update must be persisted by the
// caller.
func (r *Reconciler) Reconcile(resort types.Resort, model *types.RawReading, station *types.StationReading, override *types.Override) (types.ReconciledReading, *OverrideUpdate) {
	reading := types.ReconciledReading{
		ResortID:    resort.ID,
		DepthSource: types.SourceModel,
	}

	if model != nil {
		reading.FetchedAt = model.FetchedAt
		reading.SnowDepthCM = model.SnowDepthCM
		reading.ModelDepthCM = model.SnowDepthCM
		reading.NewSnow24hCM = model.NewSnow24hCM
		reading.NewSnow72hCM = model.NewSnow72hCM
		reading.TemperatureC = model.TemperatureC
		reading.AvgTemp72hC = model.AvgTemp72hC
		reading.WindSpeedKMH = model.WindSpeedKMH
		reading.WeatherCode = model.WeatherCode
		reading.Forecasts = model.Forecasts
	}

	if station != nil {
		reading.SnowDepthCM = types.Float(station.SnowDepthCM)
		reading.DepthSource = types.SourceStation
		r.logger.Infof("station depth for %s: %.1f cm (station=%s, network=%s, date=%s)",
			resort.Slug, station.SnowDepthCM, station.StationID, station.Network, station.DataDate)
	}

	var update *OverrideUpdate
	if override != nil && override.Active {
		update = r.advanceOverride(resort, override, reading.NewSnow24hCM)
		if update.Active {
			reading.SnowDepthCM = types.Float(override.DepthCM)
			reading.DepthSource = types.SourceOverride
		}
	}

	return reading, update
}

// advanceOverride increments the cumulative new-snow counter and expires the
// override once the counter reaches its threshold. Null new snow counts as
// zero. Expiry is recorded for audit and takes effect immediately: the
// override depth is not applied for the run in which it expires.
func (r *Reconciler) advanceOverride(resort types.Resort, override *types.Override, newSnow24h *float64) *OverrideUpdate {
	newSnow := 0.0
	if newSnow24h != nil {
		newSnow = *newSnow24h
	}
	cumulative := override.CumulativeNewSnowCM + newSnow

	if cumulative >= override.ThresholdCM {
		r.logger.Infof("override expired for %s: cumulative new snow %.1f cm reached threshold %.1f cm",
			resort.Slug, cumulative, override.ThresholdCM)
		return &OverrideUpdate{Override: *override, Cumulative: cumulative, Active: false, Expired: true}
	}

	r.logger.Infof("override active for %s: depth %.1f cm, cumulative new snow %.1f/%.1f cm",
		resort.Slug, override.DepthCM, cumulative, override.ThresholdCM)
	return &OverrideUpdate{Override: *override, Cumulative: cumulative, Active: true}
}
