// Package config loads and validates the snowrank YAML configuration.
//
// All tunables the pipeline depends on (batch sizes, retry policy, scoring
// weights, elevation bands) are immutable after Load returns; components
// receive the struct by pointer and never mutate it.
package config

import (
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is the complete snowrank configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Sources    SourcesConfig    `yaml:"sources"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Scoring    ScoringConfig    `yaml:"scoring"`
	Management ManagementConfig `yaml:"management"`
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	ConnectionString string `yaml:"connection_string"`
}

// SourcesConfig groups the per-source client settings.
type SourcesConfig struct {
	OpenMeteo OpenMeteoConfig `yaml:"openmeteo"`
	NWS       NWSConfig       `yaml:"nws"`
	Synoptic  SynopticConfig  `yaml:"synoptic"`
	Snotel    SnotelConfig    `yaml:"snotel"`
}

// OpenMeteoConfig configures the gridded weather model source.
type OpenMeteoConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// NWSConfig configures the high-resolution snowfall overlay source.
type NWSConfig struct {
	BaseURL        string   `yaml:"base_url"`
	UserAgent      string   `yaml:"user_agent"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	MaxConcurrent  int      `yaml:"max_concurrent"`
	Countries      []string `yaml:"countries"`
}

// SynopticConfig configures the Synoptic station network source.
type SynopticConfig struct {
	BaseURL        string `yaml:"base_url"`
	Token          string `yaml:"token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	StationMapFile string `yaml:"station_map_file"`
	BatchSize      int    `yaml:"batch_size"`
	RecentMinutes  int    `yaml:"recent_minutes"`
}

// SnotelConfig configures the USDA AWDB station network source.
type SnotelConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	StationMapFile string `yaml:"station_map_file"`
	LookbackDays   int    `yaml:"lookback_days"`
}

// PipelineConfig configures batching, retries, scheduling and alerting.
type PipelineConfig struct {
	BatchSize             int     `yaml:"batch_size"`
	Retries               int     `yaml:"retries"`
	BackoffBaseSeconds    float64 `yaml:"backoff_base_seconds"`
	ForecastDays          int     `yaml:"forecast_days"`
	CronSchedule          string  `yaml:"cron_schedule"`
	Horizons              []int   `yaml:"horizons"`
	AlertFailureThreshold float64 `yaml:"alert_failure_threshold"`
	AlertWebhookURL       string  `yaml:"alert_webhook_url"`
}

// DepthBand maps a summit elevation ceiling to a reference base depth used
// when a resort has no historical average.
type DepthBand struct {
	MaxElevationM int     `yaml:"max_elevation_m"`
	ReferenceCM   float64 `yaml:"reference_cm"`
}

// ScoringConfig holds the composite-score weights and elevation bands.
// Weights are re-normalized to sum to 1 during validation.
type ScoringConfig struct {
	Weights    WeightsConfig `yaml:"weights"`
	DepthBands []DepthBand   `yaml:"depth_bands"`
}

// WeightsConfig holds the five sub-score weights.
type WeightsConfig struct {
	BaseDepth   float64 `yaml:"base_depth"`
	FreshSnow   float64 `yaml:"fresh_snow"`
	Temperature float64 `yaml:"temperature"`
	Wind        float64 `yaml:"wind"`
	Forecast    float64 `yaml:"forecast"`
}

// ManagementConfig configures the admin/metrics HTTP listener.
type ManagementConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	AdminKey   string `yaml:"admin_key"`
}

// Load reads and validates a configuration file.
func Load(filename string) (*Config, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", filename, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", filename, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Sources: SourcesConfig{
			OpenMeteo: OpenMeteoConfig{
				BaseURL:        "https://api.open-meteo.com",
				TimeoutSeconds: 30,
			},
			NWS: NWSConfig{
				BaseURL:        "https://api.weather.gov",
				UserAgent:      "snowrank/1.0 (snowrank.app)",
				TimeoutSeconds: 20,
				MaxConcurrent:  8,
				Countries:      []string{"US"},
			},
			Synoptic: SynopticConfig{
				BaseURL:        "https://api.synopticdata.com/v2",
				TimeoutSeconds: 30,
				StationMapFile: "data/resort_station_map.json",
				BatchSize:      100,
				RecentMinutes:  4320,
			},
			Snotel: SnotelConfig{
				BaseURL:        "https://wcc.sc.egov.usda.gov/awdbRestApi/services/v1",
				TimeoutSeconds: 30,
				StationMapFile: "data/resort_snotel_map.json",
				LookbackDays:   3,
			},
		},
		Pipeline: PipelineConfig{
			BatchSize:             50,
			Retries:               3,
			BackoffBaseSeconds:    1.0,
			ForecastDays:          16,
			CronSchedule:          "0 6 * * *",
			Horizons:              []int{0, 3, 7, 14},
			AlertFailureThreshold: 0.05,
		},
		Scoring: ScoringConfig{
			Weights: WeightsConfig{
				BaseDepth:   0.25,
				FreshSnow:   0.35,
				Temperature: 0.20,
				Wind:        0.10,
				Forecast:    0.10,
			},
			DepthBands: []DepthBand{
				{MaxElevationM: 1500, ReferenceCM: 60},
				{MaxElevationM: 2500, ReferenceCM: 120},
				{MaxElevationM: 9999, ReferenceCM: 180},
			},
		},
		Management: ManagementConfig{
			ListenAddr: ":8090",
		},
	}
}

func (c *Config) validate() error {
	if c.Database.ConnectionString == "" {
		return fmt.Errorf("database.connection_string is required")
	}
	if c.Pipeline.BatchSize < 1 {
		return fmt.Errorf("pipeline.batch_size must be at least 1, got %d", c.Pipeline.BatchSize)
	}
	if c.Pipeline.Retries < 1 {
		return fmt.Errorf("pipeline.retries must be at least 1, got %d", c.Pipeline.Retries)
	}
	if c.Pipeline.ForecastDays < 1 || c.Pipeline.ForecastDays > 16 {
		return fmt.Errorf("pipeline.forecast_days must be within 1..16, got %d", c.Pipeline.ForecastDays)
	}
	if len(c.Pipeline.Horizons) == 0 {
		return fmt.Errorf("pipeline.horizons must not be empty")
	}
	if c.Pipeline.AlertFailureThreshold < 0 || c.Pipeline.AlertFailureThreshold > 1 {
		return fmt.Errorf("pipeline.alert_failure_threshold must be within [0,1]")
	}
	if c.Sources.NWS.MaxConcurrent < 1 {
		return fmt.Errorf("sources.nws.max_concurrent must be at least 1")
	}
	if c.Sources.Synoptic.BatchSize < 1 {
		return fmt.Errorf("sources.synoptic.batch_size must be at least 1")
	}

	if err := c.Scoring.normalize(); err != nil {
		return err
	}
	return nil
}

// normalize re-scales the weights so they sum to exactly 1 and verifies the
// depth bands are sorted and non-overlapping.
func (s *ScoringConfig) normalize() error {
	w := &s.Weights
	sum := w.BaseDepth + w.FreshSnow + w.Temperature + w.Wind + w.Forecast
	if sum <= 0 {
		return fmt.Errorf("scoring.weights must have a positive sum, got %.3f", sum)
	}
	if math.Abs(sum-1.0) > 1e-9 {
		w.BaseDepth /= sum
		w.FreshSnow /= sum
		w.Temperature /= sum
		w.Wind /= sum
		w.Forecast /= sum
	}

	if len(s.DepthBands) == 0 {
		return fmt.Errorf("scoring.depth_bands must not be empty")
	}
	if !sort.SliceIsSorted(s.DepthBands, func(i, j int) bool {
		return s.DepthBands[i].MaxElevationM < s.DepthBands[j].MaxElevationM
	}) {
		return fmt.Errorf("scoring.depth_bands must be sorted by max_elevation_m")
	}
	for i := 1; i < len(s.DepthBands); i++ {
		if s.DepthBands[i].MaxElevationM == s.DepthBands[i-1].MaxElevationM {
			return fmt.Errorf("scoring.depth_bands contain duplicate ceiling %dm", s.DepthBands[i].MaxElevationM)
		}
	}
	for _, band := range s.DepthBands {
		if band.ReferenceCM <= 0 {
			return fmt.Errorf("scoring.depth_bands reference_cm must be positive")
		}
	}
	return nil
}

// OpenMeteoTimeout returns the grid model request timeout as a duration.
func (c *Config) OpenMeteoTimeout() time.Duration {
	return time.Duration(c.Sources.OpenMeteo.TimeoutSeconds) * time.Second
}

// BackoffBase returns the retry backoff base interval as a duration.
func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.Pipeline.BackoffBaseSeconds * float64(time.Second))
}
