package sources

import (
	"encoding/json"
	"fmt"
	"os"
)

// StationMapping links a resort to its nearest on-mountain station. The map
// files are built offline and consumed here as static lookup tables.
type StationMapping struct {
	StationID  string  `json:"stid"`
	Name       string  `json:"name"`
	DistanceKM float64 `json:"distance_km"`
}

// LoadStationMap reads a resort-slug to station mapping file. A missing file
// is not an error: the pipeline simply runs without that station network.
func LoadStationMap(filename string) (map[string]StationMapping, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("error reading station map %s: %w", filename, err)
	}

	stationMap := make(map[string]StationMapping)
	if err := json.Unmarshal(raw, &stationMap); err != nil {
		return nil, fmt.Errorf("error parsing station map %s: %w", filename, err)
	}
	return stationMap, nil
}

// invertStationMap builds station-id → resort slugs, restricted to the given
// slugs. Multiple resorts may share one station; a single reading is then
// applied to all of them.
func invertStationMap(stationMap map[string]StationMapping, slugs []string) map[string][]string {
	byStation := make(map[string][]string)
	for _, slug := range slugs {
		mapping, ok := stationMap[slug]
		if !ok {
			continue
		}
		byStation[mapping.StationID] = append(byStation[mapping.StationID], slug)
	}
	return byStation
}
