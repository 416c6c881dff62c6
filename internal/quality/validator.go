// Package quality runs plausibility checks against a reconciled reading and
// assigns a data-quality rating.
//
// Each rule is independent and never errors: implausible data surfaces as a
// flag, not a failure. The rating is a deterministic function of the number
// of flagged rules and the reading's provenance.
package quality

import (
	"fmt"
	"time"

	"github.com/snowrank/snowrank/internal/types"
	"go.uber.org/zap"
)

// Maximum plausible depth per summit elevation ceiling.
var elevationDepthCeilings = []struct {
	maxElevationM int
	maxDepthCM    float64
}{
	{1500, 250},
	{2000, 350},
	{2500, 450},
	{3000, 550},
	{9999, 700},
}

// Validator assesses reconciled readings.
type Validator struct {
	logger *zap.SugaredLogger
}

// New creates a Validator.
func New(logger *zap.SugaredLogger) *Validator {
	return &Validator{logger: logger}
}

// Assess runs all rules and aggregates them into a quality level plus the
// ordered list of flag codes. previousDepthCM is the prior run's accepted
// depth, nil when the resort has no history.
func (v *Validator) Assess(resort types.Resort, reading types.ReconciledReading, previousDepthCM *float64, runDate time.Time) types.QualityAssessment {
	var flags []string

	checks := []func() (bool, string){
		func() (bool, string) {
			return validateSeasonal(resort.Latitude, resort.ElevationSummitM, reading.SnowDepthCM, runDate)
		},
		func() (bool, string) {
			return validateDepthChange(previousDepthCM, reading.SnowDepthCM, reading.NewSnow24hCM)
		},
		func() (bool, string) {
			// Cross-source agreement only applies when a station won
			// precedence; model-only and override readings skip it.
			if reading.DepthSource != types.SourceStation {
				return true, ""
			}
			return validateCrossSource(reading.SnowDepthCM, reading.ModelDepthCM)
		},
		func() (bool, string) {
			return validateTempDepthConsistency(reading.SnowDepthCM, reading.AvgTemp72hC)
		},
	}

	for _, check := range checks {
		if ok, flag := check(); !ok && flag != "" {
			flags = append(flags, flag)
		}
	}

	level := aggregate(len(flags), reading.DepthSource)
	if len(flags) > 0 {
		v.logger.Infof("quality flags for %s: quality=%s flags=%v", resort.Slug, level, flags)
	}
	return types.QualityAssessment{Level: level, Flags: flags}
}

// aggregate maps the failed-rule count and depth provenance to a level:
// zero failures rate verified for station data and good otherwise, one
// failure rates suspect, two or more rate unreliable.
func aggregate(failed int, depthSource string) types.QualityLevel {
	switch {
	case failed == 0 && depthSource == types.SourceStation:
		return types.QualityVerified
	case failed == 0:
		return types.QualityGood
	case failed == 1:
		return types.QualitySuspect
	default:
		return types.QualityUnreliable
	}
}

// validateSeasonal flags a depth implausible for the resort's hemisphere and
// month, and a depth above the elevation-banded ceiling.
func validateSeasonal(latitude float64, elevationM *int, depthCM *float64, runDate time.Time) (bool, string) {
	if depthCM == nil || *depthCM <= 0 {
		return true, ""
	}

	month := int(runDate.Month())
	if offSeason(latitude > 0, month) && *depthCM > 50 {
		return false, "depth_implausible_offseason"
	}

	if elevationM != nil {
		for _, band := range elevationDepthCeilings {
			if *elevationM < band.maxElevationM {
				if *depthCM > band.maxDepthCM {
					return false, fmt.Sprintf("depth_exceeds_elevation_maximum_%.0fcm", band.maxDepthCM)
				}
				break
			}
		}
	}

	return true, ""
}

// offSeason reports whether a month falls outside the expected snow season
// for the hemisphere.
func offSeason(northern bool, month int) bool {
	if northern {
		return month >= 5 && month <= 10
	}
	return month >= 11 || month <= 4
}

// validateDepthChange flags day-over-day depth changes that snowfall or
// natural settling cannot explain.
func validateDepthChange(previousCM, currentCM, newSnow24hCM *float64) (bool, string) {
	if previousCM == nil || currentCM == nil {
		return true, ""
	}

	change := *currentCM - *previousCM
	snowfall := 0.0
	if newSnow24hCM != nil {
		snowfall = *newSnow24hCM
	}

	if change > 30 && snowfall < change*0.5 {
		return false, "depth_gain_unexplained_by_snowfall"
	}
	if change < -60 {
		return false, "depth_loss_implausibly_large"
	}
	return true, ""
}

// validateCrossSource flags when station and model depths disagree by more
// than 3x. Skipped when either is missing or zero.
func validateCrossSource(stationCM, modelCM *float64) (bool, string) {
	if stationCM == nil || modelCM == nil {
		return true, ""
	}
	if *stationCM == 0 || *modelCM == 0 {
		return true, ""
	}

	ratio := *stationCM / *modelCM
	if ratio < 1 {
		ratio = 1 / ratio
	}
	if ratio > 3.0 {
		return false, fmt.Sprintf("cross_source_variance_ratio_%.1fx", ratio)
	}
	return true, ""
}

// validateTempDepthConsistency flags a high base depth paired with sustained
// above-freezing temperatures.
func validateTempDepthConsistency(depthCM, avgTemp72hC *float64) (bool, string) {
	if depthCM == nil || avgTemp72hC == nil {
		return true, ""
	}
	if *avgTemp72hC > 3 && *depthCM > 150 {
		return false, "high_depth_inconsistent_with_warm_temps"
	}
	return true, ""
}
