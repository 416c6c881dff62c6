package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

func snotelTestMap() map[string]StationMapping {
	return map[string]StationMapping{
		"alta":     {StationID: "766:UT:SNTL", Name: "Atwater", DistanceKM: 2.0},
		"snowbird": {StationID: "766:UT:SNTL", Name: "Atwater", DistanceKM: 2.5},
	}
}

func TestSnotelFetchDepths(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("elements") != "SNWD" {
			t.Errorf("elements = %q, want SNWD", q.Get("elements"))
		}
		if q.Get("beginDate") != "2026-01-12" || q.Get("endDate") != "2026-01-15" {
			t.Errorf("window = %q..%q", q.Get("beginDate"), q.Get("endDate"))
		}
		w.Write([]byte(`[
			{
				"stationTriplet": "766:UT:SNTL",
				"data": [
					{
						"values": [
							{"date": "2026-01-13", "value": 50.0},
							{"date": "2026-01-14", "value": 52.0},
							{"date": "2026-01-15", "value": null}
						]
					}
				]
			}
		]`))
	}))
	defer server.Close()

	c := NewSnotelClient(testSourceClient(5*time.Second), server.URL, snotelTestMap(), 3, clock, zap.NewNop().Sugar())
	got, err := c.FetchDepths(context.Background(), []string{"alta", "snowbird"})
	if err != nil {
		t.Fatal(err)
	}

	// Latest non-null is the 14th: 52in -> 132.1cm, fanned out to both
	// resorts sharing the station.
	for _, slug := range []string{"alta", "snowbird"} {
		reading, ok := got[slug]
		if !ok {
			t.Fatalf("missing reading for %s", slug)
		}
		if reading.SnowDepthCM != 132.1 {
			t.Errorf("%s depth = %v, want 132.1", slug, reading.SnowDepthCM)
		}
		if reading.DataDate != "2026-01-14" {
			t.Errorf("%s data date = %q", slug, reading.DataDate)
		}
		if reading.Network != "snotel" {
			t.Errorf("%s network = %q", slug, reading.Network)
		}
	}
}

func TestSnotelNoMappedStations(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewSnotelClient(testSourceClient(time.Second), "http://unused", snotelTestMap(), 3, clock, zap.NewNop().Sugar())

	got, err := c.FetchDepths(context.Background(), []string{"unmapped-resort"})
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("got %v, want nil", got)
	}
}
