package database

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/snowrank/snowrank/internal/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Gateway implements the persistence operations the pipeline and the
// management API depend on. All pipeline writes are idempotent: re-running a
// day replaces rows instead of duplicating them.
type Gateway struct {
	db *gorm.DB
}

// NewGateway creates a Gateway over an open GORM connection.
func NewGateway(db *gorm.DB) *Gateway {
	return &Gateway{db: db}
}

// ActiveResorts returns all active resorts.
func (g *Gateway) ActiveResorts() ([]types.Resort, error) {
	var rows []Resort
	if err := g.db.Where("active = ?", true).Order("slug").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("error loading active resorts: %w", err)
	}

	resorts := make([]types.Resort, len(rows))
	for i, row := range rows {
		resorts[i] = types.Resort{
			ID:                   row.ID,
			Name:                 row.Name,
			Slug:                 row.Slug,
			Country:              row.Country,
			Latitude:             row.Latitude,
			Longitude:            row.Longitude,
			ElevationSummitM:     row.ElevationSummitM,
			Aspect:               row.Aspect,
			SeasonStartMonth:     row.SeasonStartMonth,
			SeasonEndMonth:       row.SeasonEndMonth,
			HistoricalAvgDepthCM: row.HistoricalAvgDepthCM,
		}
	}
	return resorts, nil
}

// PreviousDepths returns the most recent accepted snow depth per resort from
// snapshots taken before the given day. Resorts with no prior non-null depth
// are absent from the map.
func (g *Gateway) PreviousDepths(day time.Time) (map[uuid.UUID]float64, error) {
	var rows []WeatherSnapshot
	err := g.db.
		Where("data_date < ?", day.Format("2006-01-02")).
		Order("resort_id, data_date desc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error loading previous depths: %w", err)
	}

	depths := make(map[uuid.UUID]float64)
	seen := make(map[uuid.UUID]bool)
	for _, row := range rows {
		if seen[row.ResortID] {
			continue
		}
		seen[row.ResortID] = true
		if row.SnowDepthCM != nil {
			depths[row.ResortID] = *row.SnowDepthCM
		}
	}
	return depths, nil
}

// UpsertSnapshot writes the accepted reading for (resort, day), replacing
// any prior row for the same key.
func (g *Gateway) UpsertSnapshot(resortID uuid.UUID, day time.Time, reading types.ReconciledReading,
	assessment types.QualityAssessment, previousDepthCM *float64) error {

	flags, err := json.Marshal(assessment.Flags)
	if err != nil {
		return fmt.Errorf("error encoding quality flags: %w", err)
	}
	if assessment.Flags == nil {
		flags = []byte("[]")
	}

	row := WeatherSnapshot{
		ID:              uuid.New(),
		ResortID:        resortID,
		DataDate:        day,
		FetchedAt:       reading.FetchedAt,
		SnowDepthCM:     reading.SnowDepthCM,
		DepthSource:     reading.DepthSource,
		ModelDepthCM:    reading.ModelDepthCM,
		NewSnow24hCM:    reading.NewSnow24hCM,
		NewSnow72hCM:    reading.NewSnow72hCM,
		TemperatureC:    reading.TemperatureC,
		AvgTemp72hC:     reading.AvgTemp72hC,
		WindSpeedKMH:    reading.WindSpeedKMH,
		WeatherCode:     reading.WeatherCode,
		DataQuality:     string(assessment.Level),
		QualityFlags:    flags,
		PreviousDepthCM: previousDepthCM,
	}

	err = g.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "resort_id"}, {Name: "data_date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"fetched_at", "snow_depth_cm", "depth_source", "model_depth_cm",
			"new_snow24h_cm", "new_snow72h_cm", "temperature_c", "avg_temp72h_c",
			"wind_speed_kmh", "weather_code", "data_quality", "quality_flags",
			"previous_depth_cm",
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("error upserting snapshot for resort %s: %w", resortID, err)
	}
	return nil
}

// ReplaceForecast atomically replaces a resort's forecast days with this
// run's set, so stale forecasts never persist alongside fresh ones.
func (g *Gateway) ReplaceForecast(resortID uuid.UUID, fetchedAt time.Time, days []types.ForecastDay) error {
	return g.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("resort_id = ?", resortID).Delete(&ForecastSnapshot{}).Error; err != nil {
			return fmt.Errorf("error clearing forecasts for resort %s: %w", resortID, err)
		}

		if len(days) == 0 {
			return nil
		}

		rows := make([]ForecastSnapshot, len(days))
		for i, day := range days {
			rows[i] = ForecastSnapshot{
				ID:              uuid.New(),
				ResortID:        resortID,
				FetchedAt:       fetchedAt,
				ForecastDate:    day.Date,
				SnowfallCM:      day.SnowfallCM,
				TemperatureMaxC: day.TemperatureMaxC,
				TemperatureMinC: day.TemperatureMinC,
				WindSpeedMaxKMH: day.WindSpeedMaxKMH,
				PrecipProbPct:   day.PrecipProbPct,
				WeatherCode:     day.WeatherCode,
				Confidence:      day.Confidence,
				Source:          day.Source,
			}
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("error writing forecasts for resort %s: %w", resortID, err)
		}
		return nil
	})
}

// UpsertScore writes the score for (resort, horizon), replacing any prior
// row for the same key. The rank is cleared; AssignGlobalRank recomputes it.
func (g *Gateway) UpsertScore(resortID uuid.UUID, horizonDays int, result types.ScoreResult, scoredAt time.Time) error {
	row := ResortScore{
		ID:               uuid.New(),
		ResortID:         resortID,
		HorizonDays:      horizonDays,
		ScoredAt:         scoredAt,
		ScoreTotal:       types.Float(result.Total),
		ScoreBaseDepth:   types.Float(result.BaseDepth),
		ScoreFreshSnow:   types.Float(result.FreshSnow),
		ScoreTemperature: types.Float(result.Temperature),
		ScoreWind:        types.Float(result.Wind),
		ScoreForecast:    types.Float(result.Forecast),
	}

	err := g.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "resort_id"}, {Name: "horizon_days"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"scored_at", "score_total", "score_base_depth", "score_fresh_snow",
			"score_temperature", "score_wind", "score_forecast",
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("error upserting score for resort %s horizon %d: %w", resortID, horizonDays, err)
	}
	return nil
}

// AssignGlobalRank ranks the latest scores for a horizon: descending by
// total, nulls last, 1-based.
func (g *Gateway) AssignGlobalRank(horizonDays int) error {
	var rows []ResortScore
	if err := g.db.Where("horizon_days = ?", horizonDays).Find(&rows).Error; err != nil {
		return fmt.Errorf("error loading scores for horizon %d: %w", horizonDays, err)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].ScoreTotal, rows[j].ScoreTotal
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a > *b
		}
	})

	return g.db.Transaction(func(tx *gorm.DB) error {
		for rank, row := range rows {
			assigned := rank + 1
			if err := tx.Model(&ResortScore{}).Where("id = ?", row.ID).
				Update("rank_global", assigned).Error; err != nil {
				return fmt.Errorf("error assigning rank for score %s: %w", row.ID, err)
			}
		}
		return nil
	})
}

// ActiveOverrides returns the active depth overrides keyed by resort id.
func (g *Gateway) ActiveOverrides() (map[uuid.UUID]types.Override, error) {
	var rows []DepthOverride
	if err := g.db.Where("active = ?", true).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("error loading active overrides: %w", err)
	}

	overrides := make(map[uuid.UUID]types.Override, len(rows))
	for _, row := range rows {
		overrides[row.ResortID] = types.Override{
			ID:                  row.ID,
			ResortID:            row.ResortID,
			DepthCM:             row.DepthCM,
			Reason:              row.Reason,
			SetAt:               row.SetAt,
			CumulativeNewSnowCM: row.CumulativeNewSnowCM,
			ThresholdCM:         row.ThresholdCM,
			Active:              row.Active,
		}
	}
	return overrides, nil
}

// UpdateOverride persists an override's advanced lifecycle state.
func (g *Gateway) UpdateOverride(id uuid.UUID, cumulativeCM float64, active bool) error {
	err := g.db.Model(&DepthOverride{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"cumulative_new_snow_cm": cumulativeCM,
			"active":                 active,
		}).Error
	if err != nil {
		return fmt.Errorf("error updating override %s: %w", id, err)
	}
	return nil
}

// SetOverride creates or replaces the override for a resort, resetting the
// cumulative counter and reactivating it.
func (g *Gateway) SetOverride(resortSlug string, depthCM float64, reason string, thresholdCM float64, setAt time.Time) (types.Override, error) {
	var resort Resort
	if err := g.db.Where("slug = ?", resortSlug).First(&resort).Error; err != nil {
		return types.Override{}, fmt.Errorf("resort %q not found: %w", resortSlug, err)
	}

	row := DepthOverride{
		ID:                  uuid.New(),
		ResortID:            resort.ID,
		DepthCM:             depthCM,
		Reason:              reason,
		SetAt:               setAt,
		CumulativeNewSnowCM: 0,
		ThresholdCM:         thresholdCM,
		Active:              true,
	}

	err := g.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "resort_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"depth_cm", "reason", "set_at", "cumulative_new_snow_cm",
			"threshold_cm", "active",
		}),
	}).Create(&row).Error
	if err != nil {
		return types.Override{}, fmt.Errorf("error setting override for %s: %w", resortSlug, err)
	}

	var saved DepthOverride
	if err := g.db.Where("resort_id = ?", resort.ID).First(&saved).Error; err != nil {
		return types.Override{}, fmt.Errorf("error reading back override for %s: %w", resortSlug, err)
	}
	return types.Override{
		ID:                  saved.ID,
		ResortID:            saved.ResortID,
		DepthCM:             saved.DepthCM,
		Reason:              saved.Reason,
		SetAt:               saved.SetAt,
		CumulativeNewSnowCM: saved.CumulativeNewSnowCM,
		ThresholdCM:         saved.ThresholdCM,
		Active:              saved.Active,
	}, nil
}

// ClearOverride deactivates a resort's override without deleting it.
func (g *Gateway) ClearOverride(resortSlug string) error {
	var resort Resort
	if err := g.db.Where("slug = ?", resortSlug).First(&resort).Error; err != nil {
		return fmt.Errorf("resort %q not found: %w", resortSlug, err)
	}

	err := g.db.Model(&DepthOverride{}).Where("resort_id = ?", resort.ID).
		Update("active", false).Error
	if err != nil {
		return fmt.Errorf("error clearing override for %s: %w", resortSlug, err)
	}
	return nil
}

// QualityRow is one resort's latest quality state, for the admin report.
type QualityRow struct {
	ResortID    uuid.UUID
	Name        string
	Slug        string
	DataQuality string
	Flags       []string
	SnowDepthCM *float64
	FetchedAt   time.Time
}

// LatestQuality returns the most recent snapshot quality per resort.
func (g *Gateway) LatestQuality() ([]QualityRow, error) {
	var resorts []Resort
	if err := g.db.Where("active = ?", true).Order("name").Find(&resorts).Error; err != nil {
		return nil, fmt.Errorf("error loading resorts: %w", err)
	}

	var report []QualityRow
	for _, resort := range resorts {
		var snapshot WeatherSnapshot
		err := g.db.Where("resort_id = ?", resort.ID).
			Order("data_date desc").First(&snapshot).Error
		if err == gorm.ErrRecordNotFound {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("error loading latest snapshot for %s: %w", resort.Slug, err)
		}

		var flags []string
		if len(snapshot.QualityFlags) > 0 {
			json.Unmarshal(snapshot.QualityFlags, &flags)
		}

		report = append(report, QualityRow{
			ResortID:    resort.ID,
			Name:        resort.Name,
			Slug:        resort.Slug,
			DataQuality: snapshot.DataQuality,
			Flags:       flags,
			SnowDepthCM: snapshot.SnowDepthCM,
			FetchedAt:   snapshot.FetchedAt,
		})
	}
	return report, nil
}
