// Package scoring computes the composite ski-quality score for a resort at a
// forecast horizon.
//
// Everything here is a pure function of its inputs: no clocks, no I/O, no
// shared state. Missing values never propagate errors; every sub-score has a
// documented neutral or zero default, because resorts routinely have partial
// data. All sub-scores and the composite lie in [0,100].
package scoring

import (
	"math"

	"github.com/snowrank/snowrank/pkg/config"
)

// CurrentConditions carries the reconciled observations feeding the score.
type CurrentConditions struct {
	SnowDepthCM  *float64
	NewSnow72hCM *float64
	TemperatureC *float64
	WindSpeedKMH *float64
}

// ForecastDay is one forecast day as seen by the scorer.
type ForecastDay struct {
	DistanceDays int
	SnowfallCM   *float64
	Confidence   float64
}

// ResortMeta carries the resort attributes that modulate the score.
type ResortMeta struct {
	ElevationSummitM *int
	Aspect           *string
	SeasonStartMonth *int
	SeasonEndMonth   *int
}

// Result is the composite score and its five sub-scores.
type Result struct {
	Total       float64
	BaseDepth   float64
	FreshSnow   float64
	Temperature float64
	Wind        float64
	Forecast    float64
}

// horizonMix maps a horizon to its (current, forecast) blend weights.
// Horizons outside the table score on current conditions alone.
var horizonMix = map[int][2]float64{
	0:  {1.00, 0.00},
	3:  {0.60, 0.40},
	7:  {0.30, 0.70},
	14: {0.10, 0.90},
}

var springMonths = map[int]bool{3: true, 4: true, 5: true}

var (
	northAspects = map[string]bool{"N": true, "NE": true, "NW": true}
	southAspects = map[string]bool{"S": true, "SE": true, "SW": true}
)

// Engine evaluates scores using validated configuration.
type Engine struct {
	weights config.WeightsConfig
	bands   []config.DepthBand
}

// NewEngine creates a scoring engine from validated configuration. The
// weights are assumed to already sum to 1.
func NewEngine(cfg config.ScoringConfig) *Engine {
	return &Engine{weights: cfg.Weights, bands: cfg.DepthBands}
}

// Compute evaluates the composite score for one resort at one horizon. Only
// forecast days with DistanceDays <= horizonDays feed the fresh-snow and
// forecast-confidence sub-scores. At horizons beyond 0 the weighted sum is
// additionally scaled by forecast confidence, so low-trust forecasts pull
// the score down rather than toward neutral.
func (e *Engine) Compute(current CurrentConditions, forecastDays []ForecastDay, meta ResortMeta,
	horizonDays int, historicalAvgCM *float64, currentMonth int) Result {

	var horizonForecasts []ForecastDay
	for _, day := range forecastDays {
		if day.DistanceDays <= horizonDays {
			horizonForecasts = append(horizonForecasts, day)
		}
	}

	base := e.BaseDepthScore(current.SnowDepthCM, historicalAvgCM, meta.ElevationSummitM)
	fresh := FreshSnowScore(current.NewSnow72hCM, horizonForecasts)
	temp := TemperatureScore(current.TemperatureC)
	wind := WindScore(current.WindSpeedKMH)
	forecast := ForecastConfidenceScore(horizonForecasts)

	temp, base = applyAspectElevation(temp, base, meta, currentMonth)

	mix, ok := horizonMix[horizonDays]
	if !ok {
		mix = [2]float64{1.0, 0.0}
	}
	currentW, forecastW := mix[0], mix[1]

	total := e.weights.BaseDepth*base +
		e.weights.FreshSnow*fresh +
		e.weights.Temperature*temp +
		e.weights.Wind*wind +
		e.weights.Forecast*forecast

	// Dampen future-horizon scores by forecast confidence.
	total = total * (currentW + forecastW*(forecast/100))

	return Result{
		Total:       round1(clamp(total)),
		BaseDepth:   base,
		FreshSnow:   fresh,
		Temperature: temp,
		Wind:        wind,
		Forecast:    forecast,
	}
}

// BaseDepthScore rates the current depth against a reference: a per-resort
// historical average when available, otherwise an elevation-banded fallback.
// A nil depth scores 0.
func (e *Engine) BaseDepthScore(depthCM, historicalAvgCM *float64, elevationM *int) float64 {
	if depthCM == nil {
		return 0
	}

	reference := 100.0
	switch {
	case historicalAvgCM != nil && *historicalAvgCM > 0:
		reference = *historicalAvgCM
	case elevationM != nil:
		for _, band := range e.bands {
			if *elevationM < band.MaxElevationM {
				reference = band.ReferenceCM
				break
			}
		}
	}

	return math.Min(100, round1(*depthCM/reference*100))
}

// FreshSnowScore rates recent snowfall plus distance-discounted forecast
// snowfall within the horizon window.
func FreshSnowScore(newSnow72hCM *float64, forecastDays []ForecastDay) float64 {
	recent := 0.0
	if newSnow72hCM != nil {
		recent = math.Min(40, *newSnow72hCM*1.5)
	}

	forecastPts := 0.0
	for _, day := range forecastDays {
		if day.SnowfallCM == nil {
			continue
		}
		discount := day.Confidence * (1.0 - (float64(day.DistanceDays)/16)*0.5)
		forecastPts += math.Min(30, *day.SnowfallCM*2) * discount
	}
	forecastPts = math.Min(60, forecastPts)

	return math.Min(100, round1(recent+forecastPts))
}

// TemperatureScore rates skiing suitability of the current temperature.
// The ideal band is (-15,-5]. Unknown temperature is neutral.
func TemperatureScore(temperatureC *float64) float64 {
	if temperatureC == nil {
		return 50
	}
	t := *temperatureC
	switch {
	case t > 2:
		return 0
	case t > 0:
		return 20
	case t > -5:
		return 60
	case t > -15:
		return 100
	case t > -25:
		return 80
	default:
		return 50
	}
}

// WindScore rates wind exposure; high winds close lifts and strip snow.
// Unknown wind is assumed acceptable.
func WindScore(windSpeedKMH *float64) float64 {
	if windSpeedKMH == nil {
		return 80
	}
	w := *windSpeedKMH
	switch {
	case w < 20:
		return 100
	case w < 40:
		return 80
	case w < 60:
		return 50
	case w < 80:
		return 20
	default:
		return 0
	}
}

// ForecastConfidenceScore averages the confidence of the horizon's forecast
// days. With no applicable days it returns 100: a horizon-0 score rests
// entirely on current data.
func ForecastConfidenceScore(forecastDays []ForecastDay) float64 {
	if len(forecastDays) == 0 {
		return 100
	}
	var sum float64
	for _, day := range forecastDays {
		sum += day.Confidence
	}
	return round1(sum / float64(len(forecastDays)) * 100)
}

// applyAspectElevation applies the spring aspect and summit-elevation
// multipliers to the temperature and base-depth sub-scores.
func applyAspectElevation(tempScore, baseScore float64, meta ResortMeta, currentMonth int) (float64, float64) {
	spring := springMonths[currentMonth]

	if spring && meta.Aspect != nil {
		switch {
		case northAspects[*meta.Aspect]:
			tempScore = math.Min(100, tempScore*1.08)
		case southAspects[*meta.Aspect]:
			tempScore = math.Min(100, tempScore*0.95)
		}
	}

	if meta.ElevationSummitM != nil {
		switch summit := *meta.ElevationSummitM; {
		case summit > 3000:
			baseScore = math.Min(100, baseScore*1.10)
		case summit < 2000 && spring:
			baseScore = math.Min(100, baseScore*0.90)
		}
	}

	return round1(tempScore), round1(baseScore)
}

func clamp(v float64) float64 {
	return math.Min(100, math.Max(0, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
