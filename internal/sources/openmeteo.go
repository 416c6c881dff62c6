package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/snowrank/snowrank/internal/types"
	"go.uber.org/zap"
)

// Open-Meteo variable names requested per batch.
var (
	openMeteoHourlyVars = []string{"snow_depth", "snowfall", "temperature_2m", "windspeed_10m", "weathercode"}
	openMeteoDailyVars  = []string{
		"snowfall_sum",
		"temperature_2m_max",
		"temperature_2m_min",
		"windspeed_10m_max",
		"precipitation_probability_max",
		"weathercode",
	}
)

// OpenMeteoClient fetches current conditions and daily forecasts from the
// Open-Meteo grid model. The /v1/forecast endpoint accepts comma-separated
// coordinate lists, so one request covers a whole resort batch.
type OpenMeteoClient struct {
	client       *Client
	baseURL      string
	forecastDays int
	logger       *zap.SugaredLogger
}

// NewOpenMeteoClient creates an Open-Meteo client.
func NewOpenMeteoClient(client *Client, baseURL string, forecastDays int, logger *zap.SugaredLogger) *OpenMeteoClient {
	return &OpenMeteoClient{
		client:       client,
		baseURL:      strings.TrimRight(baseURL, "/"),
		forecastDays: forecastDays,
		logger:       logger,
	}
}

type openMeteoResponse struct {
	Error  bool            `json:"error"`
	Reason string          `json:"reason"`
	Hourly openMeteoHourly `json:"hourly"`
	Daily  openMeteoDaily  `json:"daily"`
}

type openMeteoHourly struct {
	SnowDepth     []*float64 `json:"snow_depth"`
	Snowfall      []*float64 `json:"snowfall"`
	Temperature2M []*float64 `json:"temperature_2m"`
	WindSpeed10M  []*float64 `json:"windspeed_10m"`
	WeatherCode   []*float64 `json:"weathercode"`
}

type openMeteoDaily struct {
	Time           []string   `json:"time"`
	SnowfallSum    []*float64 `json:"snowfall_sum"`
	TemperatureMax []*float64 `json:"temperature_2m_max"`
	TemperatureMin []*float64 `json:"temperature_2m_min"`
	WindSpeedMax   []*float64 `json:"windspeed_10m_max"`
	PrecipProbMax  []*float64 `json:"precipitation_probability_max"`
	WeatherCode    []*float64 `json:"weathercode"`
}

// FetchBatch fetches one batch of resorts from the grid model. Resorts whose
// slot in the multi-coordinate response carries an error are skipped; the
// caller detects them by their absence from the returned slice.
func (o *OpenMeteoClient) FetchBatch(ctx context.Context, resorts []types.Resort) ([]types.RawReading, error) {
	if len(resorts) == 0 {
		return nil, nil
	}

	lats := make([]string, len(resorts))
	lons := make([]string, len(resorts))
	for i, r := range resorts {
		lats[i] = strconv.FormatFloat(r.Latitude, 'f', -1, 64)
		lons[i] = strconv.FormatFloat(r.Longitude, 'f', -1, 64)
	}

	params := url.Values{}
	params.Set("latitude", strings.Join(lats, ","))
	params.Set("longitude", strings.Join(lons, ","))
	params.Set("hourly", strings.Join(openMeteoHourlyVars, ","))
	params.Set("daily", strings.Join(openMeteoDailyVars, ","))
	params.Set("forecast_days", strconv.Itoa(o.forecastDays))
	params.Set("timezone", "UTC")
	params.Set("timeformat", "iso8601")

	// Sample at summit altitude rather than the valley floor, but only when
	// every resort in the batch has a summit elevation: the elevation list
	// must match the coordinate list element for element.
	if elevations, ok := summitElevations(resorts); ok {
		params.Set("elevation", strings.Join(elevations, ","))
	}

	var raw json.RawMessage
	if err := o.client.GetJSON(ctx, o.baseURL+"/v1/forecast", params, &raw); err != nil {
		return nil, err
	}

	items, err := decodeBatchItems(raw)
	if err != nil {
		return nil, fmt.Errorf("openmeteo: %w", err)
	}

	fetchedAt := time.Now().UTC()
	readings := make([]types.RawReading, 0, len(resorts))
	for i, r := range resorts {
		if i >= len(items) {
			break
		}
		if items[i].Error {
			o.logger.Errorf("openmeteo error for resort %s: %s", r.Slug, items[i].Reason)
			continue
		}
		readings = append(readings, parseResortItem(r.ID, items[i], fetchedAt))
	}
	return readings, nil
}

// decodeBatchItems handles the two response shapes: a JSON array for
// multi-coordinate requests, a single object for one coordinate.
func decodeBatchItems(raw json.RawMessage) ([]openMeteoResponse, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var items []openMeteoResponse
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("error decoding batch response: %w", err)
		}
		return items, nil
	}
	var single openMeteoResponse
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}
	return []openMeteoResponse{single}, nil
}

func parseResortItem(resortID uuid.UUID, item openMeteoResponse, fetchedAt time.Time) types.RawReading {
	reading := types.RawReading{
		ResortID:  resortID,
		FetchedAt: fetchedAt,
	}

	// Current snow depth: latest non-null hourly value, meters to cm.
	if depth := latestValue(item.Hourly.SnowDepth); depth != nil {
		reading.SnowDepthCM = types.Float(round1(*depth * 100))
	}

	// New snow: hourly snowfall (mm) summed over trailing 24h/72h windows.
	new24 := sumTrailing(item.Hourly.Snowfall, 24)
	new72 := sumTrailing(item.Hourly.Snowfall, 72)
	reading.NewSnow24hCM = types.Float(round1(new24 / 10))
	reading.NewSnow72hCM = types.Float(round1(new72 / 10))

	reading.TemperatureC = latestValue(item.Hourly.Temperature2M)

	if avg := avgTrailing(item.Hourly.Temperature2M, 72); avg != nil {
		reading.AvgTemp72hC = types.Float(round1(*avg))
	}

	// Wind: max over last 24h of hourly values; gusts matter more than a
	// point-in-time reading. Fall back to today's daily max when the hourly
	// series is empty.
	if wind := maxTrailing(item.Hourly.WindSpeed10M, 24); wind != nil {
		reading.WindSpeedKMH = wind
	} else if len(item.Daily.WindSpeedMax) > 0 && item.Daily.WindSpeedMax[0] != nil {
		reading.WindSpeedKMH = types.Float(*item.Daily.WindSpeedMax[0])
	}

	if code := latestValue(item.Hourly.WeatherCode); code != nil {
		reading.WeatherCode = types.Int(int(*code))
	}

	reading.Forecasts = parseForecastDays(item.Daily)
	return reading
}

func parseForecastDays(daily openMeteoDaily) []types.ForecastDay {
	forecasts := make([]types.ForecastDay, 0, len(daily.Time))
	for i, dateStr := range daily.Time {
		day, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			continue
		}
		fc := types.ForecastDay{
			Date:            day,
			SnowfallCM:      floatAt(daily.SnowfallSum, i),
			TemperatureMaxC: floatAt(daily.TemperatureMax, i),
			TemperatureMinC: floatAt(daily.TemperatureMin, i),
			WindSpeedMaxKMH: floatAt(daily.WindSpeedMax, i),
			PrecipProbPct:   intAt(daily.PrecipProbMax, i),
			WeatherCode:     intAt(daily.WeatherCode, i),
			Confidence:      ForecastConfidence(i),
			Source:          "open_meteo",
		}
		forecasts = append(forecasts, fc)
	}
	return forecasts
}

// ForecastConfidence returns the trust factor for a forecast at the given
// distance in days: linear decay from 1.0 at day 0 to 0.5 at day 16, floored
// at 0.1.
func ForecastConfidence(distanceDays int) float64 {
	confidence := 1.0 - (float64(distanceDays)/16)*0.5
	if confidence < 0.1 {
		confidence = 0.1
	}
	return round3(confidence)
}

func summitElevations(resorts []types.Resort) ([]string, bool) {
	elevations := make([]string, len(resorts))
	for i, r := range resorts {
		if r.ElevationSummitM == nil {
			return nil, false
		}
		elevations[i] = strconv.Itoa(*r.ElevationSummitM)
	}
	return elevations, true
}

// latestValue walks a series backwards and returns the most recent non-null
// value.
func latestValue(series []*float64) *float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if series[i] != nil {
			v := *series[i]
			return &v
		}
	}
	return nil
}

// sumTrailing sums the non-null values in the last n entries of a series.
func sumTrailing(series []*float64, n int) float64 {
	var sum float64
	for _, v := range trailing(series, n) {
		if v != nil {
			sum += *v
		}
	}
	return sum
}

// maxTrailing returns the maximum non-null value in the last n entries, or
// nil when the window holds no values.
func maxTrailing(series []*float64, n int) *float64 {
	var max *float64
	for _, v := range trailing(series, n) {
		if v == nil {
			continue
		}
		if max == nil || *v > *max {
			value := *v
			max = &value
		}
	}
	return max
}

// avgTrailing averages the non-null values in the last n entries, or nil
// when the window holds no values.
func avgTrailing(series []*float64, n int) *float64 {
	var sum float64
	var count int
	for _, v := range trailing(series, n) {
		if v != nil {
			sum += *v
			count++
		}
	}
	if count == 0 {
		return nil
	}
	avg := sum / float64(count)
	return &avg
}

func trailing(series []*float64, n int) []*float64 {
	if len(series) <= n {
		return series
	}
	return series[len(series)-n:]
}

func floatAt(series []*float64, i int) *float64 {
	if i >= len(series) || series[i] == nil {
		return nil
	}
	v := *series[i]
	return &v
}

func intAt(series []*float64, i int) *int {
	if i >= len(series) || series[i] == nil {
		return nil
	}
	v := int(*series[i])
	return &v
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
