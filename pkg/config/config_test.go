package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return file
}

const minimalConfig = `
database:
  connection_string: "host=localhost user=snowrank dbname=snowrank"
`

func TestLoadMinimalConfigAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Pipeline.BatchSize != 50 {
		t.Errorf("batch size = %d, want 50", cfg.Pipeline.BatchSize)
	}
	if cfg.Pipeline.CronSchedule != "0 6 * * *" {
		t.Errorf("cron = %q", cfg.Pipeline.CronSchedule)
	}
	if len(cfg.Pipeline.Horizons) != 4 {
		t.Errorf("horizons = %v", cfg.Pipeline.Horizons)
	}
	if cfg.Sources.OpenMeteo.BaseURL != "https://api.open-meteo.com" {
		t.Errorf("openmeteo url = %q", cfg.Sources.OpenMeteo.BaseURL)
	}
	if len(cfg.Scoring.DepthBands) != 3 {
		t.Errorf("depth bands = %v", cfg.Scoring.DepthBands)
	}

	sum := cfg.Scoring.Weights.BaseDepth + cfg.Scoring.Weights.FreshSnow +
		cfg.Scoring.Weights.Temperature + cfg.Scoring.Weights.Wind + cfg.Scoring.Weights.Forecast
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("default weights sum = %v, want 1", sum)
	}
}

func TestLoadMissingDatabaseFails(t *testing.T) {
	if _, err := Load(writeConfig(t, "pipeline:\n  batch_size: 10\n")); err == nil {
		t.Error("missing connection string should fail validation")
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("missing file should error")
	}
}

func TestWeightsRenormalized(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
scoring:
  weights:
    base_depth: 3
    fresh_snow: 3
    temperature: 2
    wind: 1
    forecast: 1
`))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Scoring.Weights.BaseDepth != 0.3 {
		t.Errorf("base depth weight = %v, want 0.3", cfg.Scoring.Weights.BaseDepth)
	}
	if cfg.Scoring.Weights.Wind != 0.1 {
		t.Errorf("wind weight = %v, want 0.1", cfg.Scoring.Weights.Wind)
	}
}

func TestDepthBandValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			"unsorted bands",
			`
scoring:
  depth_bands:
    - {max_elevation_m: 2500, reference_cm: 120}
    - {max_elevation_m: 1500, reference_cm: 60}
`,
		},
		{
			"duplicate ceiling",
			`
scoring:
  depth_bands:
    - {max_elevation_m: 1500, reference_cm: 60}
    - {max_elevation_m: 1500, reference_cm: 90}
`,
		},
		{
			"non-positive reference",
			`
scoring:
  depth_bands:
    - {max_elevation_m: 1500, reference_cm: 0}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, minimalConfig+tt.yaml)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestInvalidPipelineSettings(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"zero batch size", "pipeline:\n  batch_size: 0\n"},
		{"forecast days out of range", "pipeline:\n  forecast_days: 20\n"},
		{"threshold above one", "pipeline:\n  alert_failure_threshold: 1.5\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, minimalConfig+tt.yaml)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestBackoffBase(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+"pipeline:\n  backoff_base_seconds: 0.5\n"))
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.BackoffBase().Milliseconds(); got != 500 {
		t.Errorf("backoff base = %dms, want 500ms", got)
	}
}
