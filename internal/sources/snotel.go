package sources

import (
	"context"
	"net/url"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/snowrank/snowrank/internal/types"
	"go.uber.org/zap"
)

// SnotelClient fetches daily snow depth (SNWD) readings from the USDA NRCS
// AWDB REST API. Station ids in the mapping file are AWDB station triplets.
type SnotelClient struct {
	client       *Client
	baseURL      string
	stationMap   map[string]StationMapping
	lookbackDays int
	clock        clockwork.Clock
	logger       *zap.SugaredLogger
}

// NewSnotelClient creates a SNOTEL/AWDB station client.
func NewSnotelClient(client *Client, baseURL string, stationMap map[string]StationMapping, lookbackDays int, clock clockwork.Clock, logger *zap.SugaredLogger) *SnotelClient {
	return &SnotelClient{
		client:       client,
		baseURL:      strings.TrimRight(baseURL, "/"),
		stationMap:   stationMap,
		lookbackDays: lookbackDays,
		clock:        clock,
		logger:       logger,
	}
}

type snotelStation struct {
	StationTriplet string `json:"stationTriplet"`
	Data           []struct {
		Values []struct {
			Date  string   `json:"date"`
			Value *float64 `json:"value"`
		} `json:"values"`
	} `json:"data"`
}

// FetchDepths returns the most recent non-null snow depth per resort slug,
// converted from inches to centimeters. All mapped stations are queried in a
// single request covering the trailing lookback window, which absorbs station
// reporting lag.
func (s *SnotelClient) FetchDepths(ctx context.Context, slugs []string) (map[string]types.StationReading, error) {
	byStation := invertStationMap(s.stationMap, slugs)
	if len(byStation) == 0 {
		return nil, nil
	}

	triplets := make([]string, 0, len(byStation))
	for triplet := range byStation {
		triplets = append(triplets, triplet)
	}

	today := s.clock.Now().UTC()
	params := url.Values{}
	params.Set("stationTriplets", strings.Join(triplets, ","))
	params.Set("elements", "SNWD")
	params.Set("beginDate", today.AddDate(0, 0, -s.lookbackDays).Format("2006-01-02"))
	params.Set("endDate", today.Format("2006-01-02"))

	s.logger.Infof("fetching snotel SNWD for %d stations", len(triplets))

	var stations []snotelStation
	if err := s.client.GetJSON(ctx, s.baseURL+"/data", params, &stations); err != nil {
		return nil, err
	}

	results := make(map[string]types.StationReading)
	for _, station := range stations {
		resortSlugs := byStation[station.StationTriplet]
		if len(resortSlugs) == 0 || len(station.Data) == 0 {
			continue
		}

		// One element record per request (SNWD); walk its daily values
		// backwards for the most recent non-null reading.
		values := station.Data[0].Values
		for i := len(values) - 1; i >= 0; i-- {
			if values[i].Value == nil {
				continue
			}
			depthCM := round1(*values[i].Value * 2.54)
			for _, slug := range resortSlugs {
				results[slug] = types.StationReading{
					ResortSlug:  slug,
					SnowDepthCM: depthCM,
					StationID:   station.StationTriplet,
					DataDate:    values[i].Date,
					Network:     "snotel",
				}
			}
			break
		}
	}

	s.logger.Infof("snotel returned readings for %d resorts", len(results))
	return results, nil
}
