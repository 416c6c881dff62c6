// Package types contains the core data types shared between snowrank components.
package types

import (
	"time"

	"github.com/google/uuid"
)

// Provenance tags for the accepted snow depth of a resort.
const (
	SourceModel    = "model"
	SourceStation  = "station"
	SourceOverride = "manual_override"
)

// QualityLevel is the data-quality rating assigned to a reconciled reading.
type QualityLevel string

const (
	QualityVerified   QualityLevel = "verified"   // station data, all rules pass
	QualityGood       QualityLevel = "good"       // model data, all rules pass
	QualitySuspect    QualityLevel = "suspect"    // exactly one rule flagged
	QualityUnreliable QualityLevel = "unreliable" // two or more rules flagged
)

// Resort describes a ski resort. Read-only to the pipeline for the duration
// of a run.
type Resort struct {
	ID                   uuid.UUID
	Name                 string
	Slug                 string
	Country              string
	Latitude             float64
	Longitude            float64
	ElevationSummitM     *int
	Aspect               *string // one of the 8 compass octants, nil when unknown
	SeasonStartMonth     *int
	SeasonEndMonth       *int
	HistoricalAvgDepthCM *float64
}

// RawReading is the per-(resort, source) result of one acquisition run.
// Held in memory only; nil fields mean the source had no usable value.
type RawReading struct {
	ResortID     uuid.UUID
	FetchedAt    time.Time
	SnowDepthCM  *float64
	NewSnow24hCM *float64
	NewSnow72hCM *float64
	TemperatureC *float64
	AvgTemp72hC  *float64
	WindSpeedKMH *float64
	WeatherCode  *int
	Forecasts    []ForecastDay
}

// StationReading is a snow depth observation from an on-mountain station
// network, already normalized to centimeters.
type StationReading struct {
	ResortSlug  string
	SnowDepthCM float64
	StationID   string
	DataDate    string
	Network     string
}

// ForecastDay is one day of forecast data for a resort. Confidence decays
// linearly from 1.0 at day 0 to 0.5 at day 16, floored at 0.1.
type ForecastDay struct {
	Date            time.Time
	SnowfallCM      *float64
	TemperatureMaxC *float64
	TemperatureMinC *float64
	WindSpeedMaxKMH *float64
	PrecipProbPct   *int
	WeatherCode     *int
	Confidence      float64
	Source          string
}

// ReconciledReading is the single accepted view of a resort's conditions for
// one run, produced by the reconciler. ModelDepthCM always carries the grid
// model's depth even when a station or override won precedence.
type ReconciledReading struct {
	ResortID     uuid.UUID
	FetchedAt    time.Time
	SnowDepthCM  *float64
	DepthSource  string
	ModelDepthCM *float64
	NewSnow24hCM *float64
	NewSnow72hCM *float64
	TemperatureC *float64
	AvgTemp72hC  *float64
	WindSpeedKMH *float64
	WeatherCode  *int
	Forecasts    []ForecastDay
}

// Override is an operator-set base depth that takes precedence over all live
// sources until enough new snow has fallen since it was set.
type Override struct {
	ID                  uuid.UUID
	ResortID            uuid.UUID
	DepthCM             float64
	Reason              string
	SetAt               time.Time
	CumulativeNewSnowCM float64
	ThresholdCM         float64
	Active              bool
}

// QualityAssessment is the validator's verdict for one resort and run.
type QualityAssessment struct {
	Level QualityLevel
	Flags []string
}

// ScoreResult holds the composite score and its five sub-scores for one
// resort at one horizon. All values are in [0,100].
type ScoreResult struct {
	Total       float64
	BaseDepth   float64
	FreshSnow   float64
	Temperature float64
	Wind        float64
	Forecast    float64
}

// RunSummary is returned by a pipeline run.
type RunSummary struct {
	StartedAt        time.Time
	FinishedAt       time.Time
	Resorts          int
	Fetched          int
	FailedResortIDs  []uuid.UUID
	SnapshotsWritten int
	SnapshotFailures int
	ScoresWritten    int
	ScoreFailures    int
	FailureRate      float64
	Alerted          bool
}

// Float returns a pointer to v. Convenience for optional fields.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v. Convenience for optional fields.
func Int(v int) *int { return &v }
