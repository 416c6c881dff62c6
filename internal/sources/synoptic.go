package sources

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/snowrank/snowrank/internal/types"
	"go.uber.org/zap"
)

// SynopticClient fetches snow depth observations from the Synoptic Data API,
// which aggregates SNOTEL, SCAN, Environment Canada, SYNOP, JMA and other
// networks behind a single endpoint.
type SynopticClient struct {
	client        *Client
	baseURL       string
	token         string
	stationMap    map[string]StationMapping
	batchSize     int
	recentMinutes int
	logger        *zap.SugaredLogger
}

// NewSynopticClient creates a Synoptic station client. stationMap may be nil
// when no mapping file is present; FetchDepths then returns nothing.
func NewSynopticClient(client *Client, baseURL, token string, stationMap map[string]StationMapping, batchSize, recentMinutes int, logger *zap.SugaredLogger) *SynopticClient {
	return &SynopticClient{
		client:        client,
		baseURL:       strings.TrimRight(baseURL, "/"),
		token:         token,
		stationMap:    stationMap,
		batchSize:     batchSize,
		recentMinutes: recentMinutes,
		logger:        logger,
	}
}

type synopticResponse struct {
	Units   map[string]string `json:"UNITS"`
	Station []struct {
		STID         string                     `json:"STID"`
		Observations map[string]json.RawMessage `json:"OBSERVATIONS"`
	} `json:"STATION"`
}

// FetchDepths returns the most recent non-null snow depth per resort slug,
// normalized to centimeters. Slugs with no mapping or no recent data are
// omitted, never errors; callers fall back to the grid model for those.
func (s *SynopticClient) FetchDepths(ctx context.Context, slugs []string) (map[string]types.StationReading, error) {
	if s.token == "" {
		s.logger.Warn("synoptic token not set, skipping station snow-depth fetch")
		return nil, nil
	}
	byStation := invertStationMap(s.stationMap, slugs)
	if len(byStation) == 0 {
		return nil, nil
	}

	stationIDs := make([]string, 0, len(byStation))
	for stid := range byStation {
		stationIDs = append(stationIDs, stid)
	}

	s.logger.Infof("fetching synoptic snow_depth for %d stations (last %d min)", len(stationIDs), s.recentMinutes)

	results := make(map[string]types.StationReading)
	for start := 0; start < len(stationIDs); start += s.batchSize {
		end := start + s.batchSize
		if end > len(stationIDs) {
			end = len(stationIDs)
		}
		batch, err := s.fetchBatch(ctx, stationIDs[start:end], byStation)
		if err != nil {
			// One failed batch must not discard readings from the others.
			s.logger.Errorf("synoptic timeseries batch failed: %v", err)
			continue
		}
		for slug, reading := range batch {
			results[slug] = reading
		}
	}

	s.logger.Infof("synoptic returned readings for %d resorts", len(results))
	return results, nil
}

func (s *SynopticClient) fetchBatch(ctx context.Context, stationIDs []string, byStation map[string][]string) (map[string]types.StationReading, error) {
	params := url.Values{}
	params.Set("token", s.token)
	params.Set("stid", strings.Join(stationIDs, ","))
	params.Set("recent", strconv.Itoa(s.recentMinutes))
	params.Set("vars", "snow_depth")
	params.Set("units", "metric")
	params.Set("output", "json")

	var resp synopticResponse
	if err := s.client.GetJSON(ctx, s.baseURL+"/stations/timeseries", params, &resp); err != nil {
		return nil, err
	}

	unit := resp.Units["snow_depth"]
	if unit == "" {
		unit = "Meters" // metric default
	}

	results := make(map[string]types.StationReading)
	for _, station := range resp.Station {
		slugs := byStation[station.STID]
		if len(slugs) == 0 {
			continue
		}

		depths, timestamps, ok := extractDepthSeries(station.Observations)
		if !ok {
			s.logger.Debugf("no snow_depth observations for station %s", station.STID)
			continue
		}

		// Walk backwards for the most recent non-null value.
		var depthCM *float64
		var dataDate string
		for i := len(depths) - 1; i >= 0; i-- {
			if depths[i] == nil {
				continue
			}
			cm, ok := snowDepthToCM(*depths[i], unit)
			if !ok {
				s.logger.Warnf("unknown snow_depth unit %q for station %s, skipping value", unit, station.STID)
				continue
			}
			depthCM = &cm
			if i < len(timestamps) && len(timestamps[i]) >= 10 {
				dataDate = timestamps[i][:10]
			}
			break
		}
		if depthCM == nil {
			continue
		}

		for _, slug := range slugs {
			results[slug] = types.StationReading{
				ResortSlug:  slug,
				SnowDepthCM: *depthCM,
				StationID:   station.STID,
				DataDate:    dataDate,
				Network:     "synoptic",
			}
		}
	}
	return results, nil
}

// extractDepthSeries pulls the snow depth and timestamp series out of the
// observation map. Synoptic suffixes variables with set numbers
// (snow_depth_set_1), so the first key with the snow_depth prefix wins.
func extractDepthSeries(observations map[string]json.RawMessage) ([]*float64, []string, bool) {
	var depthKey string
	for key := range observations {
		if strings.HasPrefix(key, "snow_depth") {
			if depthKey == "" || key < depthKey {
				depthKey = key
			}
		}
	}
	if depthKey == "" {
		return nil, nil, false
	}

	var depths []*float64
	if err := json.Unmarshal(observations[depthKey], &depths); err != nil {
		return nil, nil, false
	}

	var timestamps []string
	if raw, ok := observations["date_time"]; ok {
		if err := json.Unmarshal(raw, &timestamps); err != nil {
			timestamps = nil
		}
	}
	return depths, timestamps, true
}

// snowDepthToCM converts a Synoptic snow depth value to centimeters based on
// the unit string the API reported.
func snowDepthToCM(v float64, unit string) (float64, bool) {
	switch lower := strings.ToLower(unit); {
	case strings.Contains(lower, "millimeter") || lower == "mm":
		return round1(v / 10), true
	case strings.Contains(lower, "centimeter") || lower == "cm":
		return round1(v), true
	case strings.Contains(lower, "meter"):
		return round1(v * 100), true
	case strings.Contains(lower, "inch"):
		return round1(v * 2.54), true
	default:
		return 0, false
	}
}
