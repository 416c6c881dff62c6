package database

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Resort is a ski resort row. Immutable to the pipeline during a run.
type Resort struct {
	ID                   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name                 string    `gorm:"size:200;not null"`
	Slug                 string    `gorm:"size:200;uniqueIndex;not null"`
	Country              string    `gorm:"size:100"`
	Latitude             float64   `gorm:"not null"`
	Longitude            float64   `gorm:"not null"`
	ElevationSummitM     *int
	Aspect               *string `gorm:"size:20"`
	SeasonStartMonth     *int
	SeasonEndMonth       *int
	HistoricalAvgDepthCM *float64
	Active               bool `gorm:"default:true;not null"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (Resort) TableName() string {
	return "resorts"
}

// WeatherSnapshot is the accepted reading for one resort and calendar day.
// The (resort_id, data_date) unique index is what makes re-runs replace
// rather than duplicate.
type WeatherSnapshot struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	ResortID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_snapshot_resort_day"`
	DataDate        time.Time `gorm:"type:date;not null;uniqueIndex:idx_snapshot_resort_day"`
	FetchedAt       time.Time `gorm:"not null"`
	SnowDepthCM     *float64
	DepthSource     string `gorm:"size:50"`
	ModelDepthCM    *float64
	NewSnow24hCM    *float64
	NewSnow72hCM    *float64
	TemperatureC    *float64
	AvgTemp72hC     *float64
	WindSpeedKMH    *float64
	WeatherCode     *int
	DataQuality     string         `gorm:"size:20;default:good"`
	QualityFlags    datatypes.JSON `gorm:"default:'[]'"`
	PreviousDepthCM *float64
}

func (WeatherSnapshot) TableName() string {
	return "weather_snapshots"
}

// ForecastSnapshot is one forecast day for a resort. A resort's forecasts
// are replaced wholesale each run.
type ForecastSnapshot struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	ResortID        uuid.UUID `gorm:"type:uuid;not null;index"`
	FetchedAt       time.Time `gorm:"not null"`
	ForecastDate    time.Time `gorm:"type:date;not null"`
	SnowfallCM      *float64
	TemperatureMaxC *float64
	TemperatureMinC *float64
	WindSpeedMaxKMH *float64
	PrecipProbPct   *int
	WeatherCode     *int
	Confidence      float64
	Source          string `gorm:"size:50"`
}

func (ForecastSnapshot) TableName() string {
	return "forecast_snapshots"
}

// ResortScore is the composite score for one resort at one horizon. One row
// per (resort, horizon), replaced on every run.
type ResortScore struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	ResortID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_score_resort_horizon"`
	HorizonDays      int       `gorm:"not null;uniqueIndex:idx_score_resort_horizon"`
	ScoredAt         time.Time `gorm:"not null"`
	ScoreTotal       *float64
	ScoreBaseDepth   *float64
	ScoreFreshSnow   *float64
	ScoreTemperature *float64
	ScoreWind        *float64
	ScoreForecast    *float64
	RankGlobal       *int
}

func (ResortScore) TableName() string {
	return "resort_scores"
}

// DepthOverride is an operator-set base depth for a resort. At most one row
// per resort; deactivated when cumulative new snow reaches the threshold,
// never deleted.
type DepthOverride struct {
	ID                  uuid.UUID `gorm:"type:uuid;primaryKey"`
	ResortID            uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	DepthCM             float64   `gorm:"not null"`
	Reason              string    `gorm:"size:500"`
	SetAt               time.Time `gorm:"not null"`
	CumulativeNewSnowCM float64   `gorm:"default:0;not null"`
	ThresholdCM         float64   `gorm:"default:20;not null"`
	Active              bool      `gorm:"default:true;not null"`
}

func (DepthOverride) TableName() string {
	return "resort_depth_overrides"
}
