package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func synopticTestMap() map[string]StationMapping {
	return map[string]StationMapping{
		"alta":      {StationID: "ATAUT", Name: "Alta Base", DistanceKM: 1.2},
		"snowbird":  {StationID: "ATAUT", Name: "Alta Base", DistanceKM: 3.4},
		"brighton":  {StationID: "BRGUT", Name: "Brighton", DistanceKM: 0.8},
		"solitude":  {StationID: "SOLUT", Name: "Solitude", DistanceKM: 1.1},
	}
}

func TestSynopticFetchDepths(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("token") != "tok" || q.Get("vars") != "snow_depth" || q.Get("units") != "metric" {
			t.Errorf("unexpected query: %v", q)
		}
		w.Write([]byte(`{
			"UNITS": {"snow_depth": "Millimeters"},
			"STATION": [
				{
					"STID": "ATAUT",
					"OBSERVATIONS": {
						"date_time": ["2026-01-15T10:00:00Z", "2026-01-15T11:00:00Z"],
						"snow_depth_set_1": [1400.0, null]
					}
				},
				{
					"STID": "BRGUT",
					"OBSERVATIONS": {
						"date_time": ["2026-01-15T11:00:00Z"],
						"snow_depth_set_1": [null]
					}
				}
			]
		}`))
	}))
	defer server.Close()

	c := NewSynopticClient(testSourceClient(5*time.Second), server.URL, "tok", synopticTestMap(), 50, 120, zap.NewNop().Sugar())
	got, err := c.FetchDepths(context.Background(), []string{"alta", "snowbird", "brighton"})
	if err != nil {
		t.Fatal(err)
	}

	// The shared ATAUT reading fans out to both resorts; 1400mm -> 140cm.
	for _, slug := range []string{"alta", "snowbird"} {
		reading, ok := got[slug]
		if !ok {
			t.Fatalf("missing reading for %s", slug)
		}
		if reading.SnowDepthCM != 140 {
			t.Errorf("%s depth = %v, want 140", slug, reading.SnowDepthCM)
		}
		if reading.DataDate != "2026-01-15" {
			t.Errorf("%s data date = %q", slug, reading.DataDate)
		}
	}

	// All-null station produces nothing.
	if _, ok := got["brighton"]; ok {
		t.Error("brighton should have no reading")
	}
}

func TestSynopticEmptyTokenSkips(t *testing.T) {
	c := NewSynopticClient(testSourceClient(time.Second), "http://unused", "", synopticTestMap(), 50, 120, zap.NewNop().Sugar())
	got, err := c.FetchDepths(context.Background(), []string{"alta"})
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("got %v, want nil", got)
	}
}

func TestSynopticFailedBatchKeepsOthers(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "boom", http.StatusBadRequest) // permanent, no retry
			return
		}
		w.Write([]byte(`{
			"UNITS": {"snow_depth": "Centimeters"},
			"STATION": [
				{
					"STID": "SOLUT",
					"OBSERVATIONS": {
						"date_time": ["2026-01-15T11:00:00Z"],
						"snow_depth_set_1": [95.0]
					}
				}
			]
		}`))
	}))
	defer server.Close()

	// Batch size 1 over three distinct stations: the first batch fails, the
	// rest must still be attempted.
	c := NewSynopticClient(testSourceClient(5*time.Second), server.URL, "tok", synopticTestMap(), 1, 120, zap.NewNop().Sugar())
	got, err := c.FetchDepths(context.Background(), []string{"alta", "brighton", "solitude"})
	if err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(got) == 0 {
		t.Error("surviving batches should yield readings")
	}
}

func TestSnowDepthToCM(t *testing.T) {
	tests := []struct {
		v    float64
		unit string
		want float64
		ok   bool
	}{
		{1400, "Millimeters", 140, true},
		{95, "Centimeters", 95, true},
		{1.4, "Meters", 140, true},
		{10, "Inches", 25.4, true},
		{5, "Furlongs", 0, false},
	}
	for _, tt := range tests {
		got, ok := snowDepthToCM(tt.v, tt.unit)
		if got != tt.want || ok != tt.ok {
			t.Errorf("snowDepthToCM(%v, %q) = (%v, %v), want (%v, %v)", tt.v, tt.unit, got, ok, tt.want, tt.ok)
		}
	}
}
