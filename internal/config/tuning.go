package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for marker detection.
// The schema matches the /api/params endpoint so the same JSON can be used
// for both startup configuration and runtime updates.
type TuningConfig struct {
	// Completion strategy
	MarkerPositionBehavior *string `json:"marker_position_behavior,omitempty"` // "moving" or "stationary"
	RequiredObservations   *int    `json:"required_observations,omitempty"`

	// Stationary-only acceptance
	RequiredInlierCount                      *int     `json:"required_inlier_count,omitempty"`
	MaximumMarkerSampleCount                 *int     `json:"maximum_marker_sample_count,omitempty"`
	MaximumPositionDistanceStandardDeviation *float64 `json:"maximum_position_distance_std_dev,omitempty"` // metres
	MaximumRotationAngleStandardDeviation    *float64 `json:"maximum_rotation_angle_std_dev,omitempty"`    // degrees
	MarkerInlierStandardDeviationThreshold   *float64 `json:"marker_inlier_std_dev_threshold,omitempty"`

	// Host detector
	MarkerSize       *float64 `json:"marker_size,omitempty"`   // metres
	PollInterval     *string  `json:"poll_interval,omitempty"` // duration string like "33ms"
	DebugLogging     *bool    `json:"debug_logging,omitempty"`
	SubscriberBuffer *int     `json:"subscriber_buffer,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated
// from the Get* defaults. It matches config/tuning.defaults.json.
func DefaultTuningConfig() *TuningConfig {
	empty := EmptyTuningConfig()
	return &TuningConfig{
		MarkerPositionBehavior:                   ptrString(empty.GetMarkerPositionBehavior()),
		RequiredObservations:                     ptrInt(empty.GetRequiredObservations()),
		RequiredInlierCount:                      ptrInt(empty.GetRequiredInlierCount()),
		MaximumMarkerSampleCount:                 ptrInt(empty.GetMaximumMarkerSampleCount()),
		MaximumPositionDistanceStandardDeviation: ptrFloat64(empty.GetMaximumPositionDistanceStandardDeviation()),
		MaximumRotationAngleStandardDeviation:    ptrFloat64(empty.GetMaximumRotationAngleStandardDeviation()),
		MarkerInlierStandardDeviationThreshold:   ptrFloat64(empty.GetMarkerInlierStandardDeviationThreshold()),
		MarkerSize:                               ptrFloat64(empty.GetMarkerSize()),
		PollInterval:                             ptrString(empty.GetPollInterval().String()),
		DebugLogging:                             ptrBool(empty.GetDebugLogging()),
		SubscriberBuffer:                         ptrInt(empty.GetSubscriberBuffer()),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file fall back to the Get* defaults, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from cmd/tools/marker-replay/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Merge overlays every non-nil field of other onto c. It is used to apply
// partial runtime updates from the API.
func (c *TuningConfig) Merge(other *TuningConfig) {
	if other == nil {
		return
	}
	if other.MarkerPositionBehavior != nil {
		c.MarkerPositionBehavior = ptrString(*other.MarkerPositionBehavior)
	}
	if other.RequiredObservations != nil {
		c.RequiredObservations = ptrInt(*other.RequiredObservations)
	}
	if other.RequiredInlierCount != nil {
		c.RequiredInlierCount = ptrInt(*other.RequiredInlierCount)
	}
	if other.MaximumMarkerSampleCount != nil {
		c.MaximumMarkerSampleCount = ptrInt(*other.MaximumMarkerSampleCount)
	}
	if other.MaximumPositionDistanceStandardDeviation != nil {
		c.MaximumPositionDistanceStandardDeviation = ptrFloat64(*other.MaximumPositionDistanceStandardDeviation)
	}
	if other.MaximumRotationAngleStandardDeviation != nil {
		c.MaximumRotationAngleStandardDeviation = ptrFloat64(*other.MaximumRotationAngleStandardDeviation)
	}
	if other.MarkerInlierStandardDeviationThreshold != nil {
		c.MarkerInlierStandardDeviationThreshold = ptrFloat64(*other.MarkerInlierStandardDeviationThreshold)
	}
	if other.MarkerSize != nil {
		c.MarkerSize = ptrFloat64(*other.MarkerSize)
	}
	if other.PollInterval != nil {
		c.PollInterval = ptrString(*other.PollInterval)
	}
	if other.DebugLogging != nil {
		c.DebugLogging = ptrBool(*other.DebugLogging)
	}
	if other.SubscriberBuffer != nil {
		c.SubscriberBuffer = ptrInt(*other.SubscriberBuffer)
	}
}

// Validate checks that the configuration values are valid.
// Cross-field rules between detection parameters are enforced by
// markers.DetectionConfig.Validate once defaults have been applied.
func (c *TuningConfig) Validate() error {
	if c.MarkerPositionBehavior != nil {
		switch *c.MarkerPositionBehavior {
		case "moving", "stationary":
		default:
			return fmt.Errorf("marker_position_behavior must be \"moving\" or \"stationary\", got %q", *c.MarkerPositionBehavior)
		}
	}

	for name, v := range map[string]*int{
		"required_observations":       c.RequiredObservations,
		"required_inlier_count":       c.RequiredInlierCount,
		"maximum_marker_sample_count": c.MaximumMarkerSampleCount,
	} {
		if v != nil && *v < 1 {
			return fmt.Errorf("%s must be at least 1, got %d", name, *v)
		}
	}

	for name, v := range map[string]*float64{
		"maximum_position_distance_std_dev": c.MaximumPositionDistanceStandardDeviation,
		"maximum_rotation_angle_std_dev":    c.MaximumRotationAngleStandardDeviation,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", name, *v)
		}
	}

	if c.MarkerInlierStandardDeviationThreshold != nil && *c.MarkerInlierStandardDeviationThreshold <= 0 {
		return fmt.Errorf("marker_inlier_std_dev_threshold must be positive, got %f", *c.MarkerInlierStandardDeviationThreshold)
	}

	if c.MarkerSize != nil && *c.MarkerSize <= 0 {
		return fmt.Errorf("marker_size must be positive, got %f", *c.MarkerSize)
	}

	if c.PollInterval != nil && *c.PollInterval != "" {
		d, err := time.ParseDuration(*c.PollInterval)
		if err != nil {
			return fmt.Errorf("invalid poll_interval '%s': %w", *c.PollInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("poll_interval must be positive, got %s", d)
		}
	}

	if c.SubscriberBuffer != nil && *c.SubscriberBuffer < 0 {
		return fmt.Errorf("subscriber_buffer must be non-negative, got %d", *c.SubscriberBuffer)
	}

	return nil
}

// GetMarkerPositionBehavior returns the marker_position_behavior value or the default.
func (c *TuningConfig) GetMarkerPositionBehavior() string {
	if c.MarkerPositionBehavior == nil || *c.MarkerPositionBehavior == "" {
		return "moving"
	}
	return *c.MarkerPositionBehavior
}

// GetRequiredObservations returns the required_observations value or the default.
func (c *TuningConfig) GetRequiredObservations() int {
	if c.RequiredObservations == nil {
		return 5
	}
	return *c.RequiredObservations
}

// GetRequiredInlierCount returns the required_inlier_count value or the default.
func (c *TuningConfig) GetRequiredInlierCount() int {
	if c.RequiredInlierCount == nil {
		return 5
	}
	return *c.RequiredInlierCount
}

// GetMaximumMarkerSampleCount returns the maximum_marker_sample_count value or the default.
func (c *TuningConfig) GetMaximumMarkerSampleCount() int {
	if c.MaximumMarkerSampleCount == nil {
		return 15
	}
	return *c.MaximumMarkerSampleCount
}

// GetMaximumPositionDistanceStandardDeviation returns the maximum_position_distance_std_dev value or the default.
func (c *TuningConfig) GetMaximumPositionDistanceStandardDeviation() float64 {
	if c.MaximumPositionDistanceStandardDeviation == nil {
		return 0.01
	}
	return *c.MaximumPositionDistanceStandardDeviation
}

// GetMaximumRotationAngleStandardDeviation returns the maximum_rotation_angle_std_dev value or the default.
func (c *TuningConfig) GetMaximumRotationAngleStandardDeviation() float64 {
	if c.MaximumRotationAngleStandardDeviation == nil {
		return 0.75
	}
	return *c.MaximumRotationAngleStandardDeviation
}

// GetMarkerInlierStandardDeviationThreshold returns the marker_inlier_std_dev_threshold value or the default.
func (c *TuningConfig) GetMarkerInlierStandardDeviationThreshold() float64 {
	if c.MarkerInlierStandardDeviationThreshold == nil {
		return 1.5
	}
	return *c.MarkerInlierStandardDeviationThreshold
}

// GetMarkerSize returns the marker_size value or the default (3cm).
func (c *TuningConfig) GetMarkerSize() float64 {
	if c.MarkerSize == nil {
		return 0.03
	}
	return *c.MarkerSize
}

// GetPollInterval parses and returns the PollInterval as a time.Duration.
func (c *TuningConfig) GetPollInterval() time.Duration {
	if c.PollInterval == nil || *c.PollInterval == "" {
		return 33 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.PollInterval)
	if err != nil || d <= 0 {
		return 33 * time.Millisecond // default on parse error
	}
	return d
}

// GetDebugLogging returns the debug_logging value or the default.
func (c *TuningConfig) GetDebugLogging() bool {
	if c.DebugLogging == nil {
		return false
	}
	return *c.DebugLogging
}

// GetSubscriberBuffer returns the subscriber_buffer value or the default.
func (c *TuningConfig) GetSubscriberBuffer() int {
	if c.SubscriberBuffer == nil {
		return 16
	}
	return *c.SubscriberBuffer
}
