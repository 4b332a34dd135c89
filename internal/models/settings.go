package models

import (
	"math"

	"github.com/pkg/errors"
)

// Settings holds the per-kind parameters of a subscription. Fields left unset
// fall back to the kind's defaults.
type Settings struct {
	Threshold *float64 `json:"threshold,omitempty"`
	// SensorID restricts temperature kinds to one sensor of the device.
	SensorID string `json:"sensor_id,omitempty"`
}

// ThresholdOr returns the configured threshold or def when unset.
func (s Settings) ThresholdOr(def float64) float64 {
	if s.Threshold == nil {
		return def
	}
	return *s.Threshold
}

// ThresholdFor resolves the threshold for kind using the catalogue default.
func (s Settings) ThresholdFor(kind AlertKind) float64 {
	def := kind.Info().DefaultThreshold
	if def == nil {
		return s.ThresholdOr(0)
	}
	return s.ThresholdOr(*def)
}

// Validate rejects settings that cannot be evaluated for kind. Settings that
// a kind does not use are ignored.
func (s Settings) Validate(kind AlertKind) error {
	if s.Threshold == nil || !kind.TakesThreshold() {
		return nil
	}
	t := *s.Threshold
	if math.IsNaN(t) || math.IsInf(t, 0) {
		return errors.New("threshold must be a finite number")
	}
	if kind == KindTempRapidChange && t <= 0 {
		return errors.New("rapid change threshold must be greater than zero")
	}
	return nil
}
