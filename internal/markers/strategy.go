package markers

import "fmt"

// Behavior selects how a marker is expected to move while it is observed.
type Behavior string

const (
	BehaviorMoving     Behavior = "moving"     // Marker is repositioned continuously; observations are only smoothed
	BehaviorStationary Behavior = "stationary" // Marker is fixed; outliers are rejected before a pose is accepted
)

// ParseBehavior converts a configuration string into a Behavior.
func ParseBehavior(s string) (Behavior, error) {
	switch b := Behavior(s); b {
	case BehaviorMoving, BehaviorStationary:
		return b, nil
	default:
		return "", fmt.Errorf("unknown marker position behavior %q: expected %q or %q", s, BehaviorMoving, BehaviorStationary)
	}
}

// CompletionStrategy decides whether a window of observations for one
// marker is a representative sample and, if so, computes its pose.
type CompletionStrategy interface {
	// TryCompleteDetection returns the completed pose and true when the
	// observations are sufficient, or false to keep accumulating.
	TryCompleteDetection(observations []Marker) (Marker, bool)

	// MaximumSampleCount is the buffer capacity this strategy needs.
	MaximumSampleCount() int
}

// NewStrategy builds the strategy for cfg.Behavior. Parameters are copied,
// so later changes to cfg require a new strategy.
func NewStrategy(cfg DetectionConfig) CompletionStrategy {
	if cfg.Behavior == BehaviorStationary {
		return &StationaryStrategy{
			RequiredObservations:  cfg.RequiredObservations,
			RequiredInlierCount:   cfg.RequiredInlierCount,
			SampleCapacity:        cfg.MaximumMarkerSampleCount,
			MaximumPositionStdDev: cfg.MaximumPositionDistanceStandardDeviation,
			MaximumRotationStdDev: cfg.MaximumRotationAngleStandardDeviation,
			InlierStdDevThreshold: cfg.MarkerInlierStandardDeviationThreshold,
		}
	}
	return &MovingStrategy{RequiredObservations: cfg.RequiredObservations}
}

// StationaryStrategy assumes the physical marker does not move. Spurious
// detections are removed with a two-pass inlier filter, and a pose is only
// accepted once the inliers agree within the configured deviations.
type StationaryStrategy struct {
	RequiredObservations  int
	RequiredInlierCount   int
	SampleCapacity        int
	MaximumPositionStdDev float64 // metres
	MaximumRotationStdDev float64 // degrees
	InlierStdDevThreshold float64 // multiplier on the all-sample deviations
}

// MaximumSampleCount implements CompletionStrategy.
func (s *StationaryStrategy) MaximumSampleCount() int {
	return s.SampleCapacity
}

// TryCompleteDetection implements CompletionStrategy.
func (s *StationaryStrategy) TryCompleteDetection(observations []Marker) (Marker, bool) {
	if len(observations) < s.RequiredObservations {
		return Marker{}, false
	}

	average := AverageMarker(observations)
	p := partition(observations, average, s.InlierStdDevThreshold)
	if traceEnabled(average.ID) {
		for _, m := range p.outliers {
			markerTracef(m.ID, "outlier at (%.4f, %.4f, %.4f): %.4fm and %.3f deg from average, std pos=%.5f rot=%.4f",
				m.Position.X, m.Position.Y, m.Position.Z,
				PositionDistance(m, average), RotationAngle(m, average), p.positionStd, p.rotationStd)
		}
	}
	if len(p.inliers) < s.RequiredInlierCount {
		return Marker{}, false
	}

	inlierAverage := AverageMarker(p.inliers)
	posStd, rotStd := StandardDeviations(p.inliers, inlierAverage)
	accepted := posStd <= s.MaximumPositionStdDev && rotStd <= s.MaximumRotationStdDev

	if diagEnabled(inlierAverage.ID) {
		outcome := "rejected"
		if accepted {
			outcome = "final"
		}
		markerDiagf(inlierAverage.ID, "%s", Evaluation{
			Outcome:             outcome,
			MarkerID:            inlierAverage.ID,
			SampleCount:         len(observations),
			InlierCount:         len(p.inliers),
			PositionStdDev:      p.positionStd,
			RotationStdDev:      p.rotationStd,
			InlierPositionStd:   posStd,
			InlierRotationStd:   rotStd,
			Final:               inlierAverage,
			ShiftFromAllSamples: PositionDistance(inlierAverage, average),
		})
	}

	if !accepted {
		return Marker{}, false
	}
	return inlierAverage, true
}

// Evaluation summarises one stationary completion attempt that reached the
// inlier deviation check.
type Evaluation struct {
	Outcome             string // "final" or "rejected"
	MarkerID            int
	SampleCount         int
	InlierCount         int
	PositionStdDev      float64
	RotationStdDev      float64
	InlierPositionStd   float64
	InlierRotationStd   float64
	Final               Marker
	ShiftFromAllSamples float64 // metres between the all-sample and inlier averages
}

func (e Evaluation) String() string {
	return fmt.Sprintf("calculated %s marker position with %d markers out of %d available. "+
		"Initial position standard deviation was %.5f and rotation was %.4f. "+
		"After outliers, position deviation was %.5f and rotation was %.4f. "+
		"Final position was (%.4f, %.4f, %.4f) which is %.5f away from original pose.",
		e.Outcome, e.InlierCount, e.SampleCount,
		e.PositionStdDev, e.RotationStdDev, e.InlierPositionStd, e.InlierRotationStd,
		e.Final.Position.X, e.Final.Position.Y, e.Final.Position.Z, e.ShiftFromAllSamples)
}

// MovingStrategy assumes the marker moves continuously. It applies no
// outlier rejection and completes as soon as the window is full.
type MovingStrategy struct {
	RequiredObservations int
}

// MaximumSampleCount implements CompletionStrategy. The window never grows
// past what a single estimate needs.
func (s *MovingStrategy) MaximumSampleCount() int {
	return s.RequiredObservations
}

// TryCompleteDetection implements CompletionStrategy.
func (s *MovingStrategy) TryCompleteDetection(observations []Marker) (Marker, bool) {
	if len(observations) < s.RequiredObservations {
		return Marker{}, false
	}
	return AverageMarker(observations), true
}
