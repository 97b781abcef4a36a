package markers

import (
	"fmt"

	"github.com/banshee-data/markerpose/internal/config"
)

// DetectionConfig holds the parameters consumed by the completion
// strategies. It is copied into each strategy when the strategy is built.
type DetectionConfig struct {
	Behavior Behavior

	RequiredObservations int // samples needed before completion is attempted
	RequiredInlierCount  int // stationary only

	MaximumMarkerSampleCount                 int     // stationary buffer capacity
	MaximumPositionDistanceStandardDeviation float64 // metres
	MaximumRotationAngleStandardDeviation    float64 // degrees
	MarkerInlierStandardDeviationThreshold   float64 // outlier cutoff multiplier
}

// DefaultDetectionConfig returns the detection parameters from the canonical
// defaults file. It panics if the file cannot be found, so it is intended
// for tests and tools run from the repository.
func DefaultDetectionConfig() DetectionConfig {
	cfg := config.MustLoadDefaultConfig()
	return DetectionConfigFromTuning(cfg)
}

// DetectionConfigFromTuning builds a DetectionConfig from a loaded TuningConfig.
// Use this in production code where the TuningConfig is already loaded.
func DetectionConfigFromTuning(cfg *config.TuningConfig) DetectionConfig {
	return DetectionConfig{
		Behavior:                                 Behavior(cfg.GetMarkerPositionBehavior()),
		RequiredObservations:                     cfg.GetRequiredObservations(),
		RequiredInlierCount:                      cfg.GetRequiredInlierCount(),
		MaximumMarkerSampleCount:                 cfg.GetMaximumMarkerSampleCount(),
		MaximumPositionDistanceStandardDeviation: cfg.GetMaximumPositionDistanceStandardDeviation(),
		MaximumRotationAngleStandardDeviation:    cfg.GetMaximumRotationAngleStandardDeviation(),
		MarkerInlierStandardDeviationThreshold:   cfg.GetMarkerInlierStandardDeviationThreshold(),
	}
}

// Validate reports the first inconsistency in the parameters.
func (c DetectionConfig) Validate() error {
	if _, err := ParseBehavior(string(c.Behavior)); err != nil {
		return err
	}
	if c.RequiredObservations < 1 {
		return fmt.Errorf("required observations must be at least 1, got %d", c.RequiredObservations)
	}
	if c.RequiredInlierCount < 1 {
		return fmt.Errorf("required inlier count must be at least 1, got %d", c.RequiredInlierCount)
	}
	// The sample cap and inlier count only bound the stationary window.
	if c.Behavior == BehaviorStationary {
		if c.MaximumMarkerSampleCount < c.RequiredObservations {
			return fmt.Errorf("maximum marker sample count (%d) must be at least required observations (%d)",
				c.MaximumMarkerSampleCount, c.RequiredObservations)
		}
		if c.RequiredInlierCount > c.MaximumMarkerSampleCount {
			return fmt.Errorf("required inlier count (%d) cannot exceed maximum marker sample count (%d)",
				c.RequiredInlierCount, c.MaximumMarkerSampleCount)
		}
	}
	if c.MaximumPositionDistanceStandardDeviation < 0 {
		return fmt.Errorf("maximum position deviation must be non-negative, got %f", c.MaximumPositionDistanceStandardDeviation)
	}
	if c.MaximumRotationAngleStandardDeviation < 0 {
		return fmt.Errorf("maximum rotation deviation must be non-negative, got %f", c.MaximumRotationAngleStandardDeviation)
	}
	if c.MarkerInlierStandardDeviationThreshold <= 0 {
		return fmt.Errorf("inlier threshold multiplier must be positive, got %f", c.MarkerInlierStandardDeviationThreshold)
	}
	return nil
}
