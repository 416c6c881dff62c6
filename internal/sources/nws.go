package sources

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// NWSClient fetches high-resolution gridpoint snowfall forecasts from the
// National Weather Service. More accurate than the global grid model over
// complex mountain terrain, but only available for US resorts.
type NWSClient struct {
	client  *Client
	baseURL string
	logger  *zap.SugaredLogger
}

// NewNWSClient creates an NWS gridpoint client. The NWS API requires a
// User-Agent identifying the caller.
func NewNWSClient(client *Client, baseURL, userAgent string, logger *zap.SugaredLogger) *NWSClient {
	client.SetHeader("User-Agent", userAgent)
	client.SetHeader("Accept", "application/geo+json")
	return &NWSClient{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

type nwsPointsResponse struct {
	Properties struct {
		ForecastGridData string `json:"forecastGridData"`
	} `json:"properties"`
}

type nwsGridResponse struct {
	Properties struct {
		SnowfallAmount struct {
			UOM    string `json:"uom"`
			Values []struct {
				ValidTime string   `json:"validTime"`
				Value     *float64 `json:"value"`
			} `json:"values"`
		} `json:"snowfallAmount"`
	} `json:"properties"`
}

// DailySnowfall resolves a coordinate to its forecast grid cell and returns
// snowfall totals in centimeters keyed by UTC calendar day ("2006-01-02").
// Any failure returns an error so the caller keeps the base forecast values.
func (n *NWSClient) DailySnowfall(ctx context.Context, lat, lon float64) (map[string]float64, error) {
	// Step 1: resolve the forecast office grid cell for the coordinate.
	var points nwsPointsResponse
	pointsURL := fmt.Sprintf("%s/points/%.4f,%.4f", n.baseURL, lat, lon)
	if err := n.client.GetJSON(ctx, pointsURL, nil, &points); err != nil {
		return nil, fmt.Errorf("nws points lookup failed for %.4f,%.4f: %w", lat, lon, err)
	}
	gridURL := points.Properties.ForecastGridData
	if gridURL == "" {
		return nil, fmt.Errorf("nws points response for %.4f,%.4f has no grid URL", lat, lon)
	}

	// Step 2: fetch the gridpoint forecast time series.
	var grid nwsGridResponse
	if err := n.client.GetJSON(ctx, gridURL, nil, &grid); err != nil {
		return nil, fmt.Errorf("nws grid data failed: %w", err)
	}

	values := grid.Properties.SnowfallAmount.Values
	if len(values) == 0 {
		return nil, fmt.Errorf("nws returned no snowfall values")
	}

	// Sum interval values per UTC calendar day. validTime has the form
	// "2026-02-26T06:00:00+00:00/PT6H"; only the start instant matters for
	// day attribution.
	daily := make(map[string]float64)
	for _, entry := range values {
		if entry.Value == nil {
			continue
		}
		start, _, found := strings.Cut(entry.ValidTime, "/")
		if !found {
			start = entry.ValidTime
		}
		t, err := time.Parse(time.RFC3339, start)
		if err != nil {
			continue
		}
		day := t.UTC().Format("2006-01-02")
		daily[day] += *entry.Value
	}

	if len(daily) == 0 {
		return nil, fmt.Errorf("nws snowfall values all null")
	}

	uom := grid.Properties.SnowfallAmount.UOM
	for day, v := range daily {
		daily[day] = snowfallToCM(v, uom)
	}
	return daily, nil
}

// snowfallToCM converts an NWS snowfall total to centimeters based on the
// stated unit of measure. NWS reports SI units (wmoUnit:mm) even for US
// forecasts.
func snowfallToCM(v float64, uom string) float64 {
	switch {
	case strings.Contains(uom, "mm"):
		return round1(v / 10)
	case strings.Contains(uom, "in"):
		return round1(v * 2.54)
	default:
		return round1(v)
	}
}
