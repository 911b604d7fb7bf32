package routing

import (
	"strings"
	"time"

	"github.com/dpup/wayfinder/internal/lib/geo"
)

// Maneuver is the action required at the end of a step. Values follow the
// Google Routes API vocabulary.
type Maneuver string

const (
	Straight        Maneuver = "STRAIGHT"
	TurnLeft        Maneuver = "TURN_LEFT"
	TurnRight       Maneuver = "TURN_RIGHT"
	TurnSlightLeft  Maneuver = "TURN_SLIGHT_LEFT"
	TurnSlightRight Maneuver = "TURN_SLIGHT_RIGHT"
	TurnSharpLeft   Maneuver = "TURN_SHARP_LEFT"
	TurnSharpRight  Maneuver = "TURN_SHARP_RIGHT"
	UTurnLeft       Maneuver = "UTURN_LEFT"
	UTurnRight      Maneuver = "UTURN_RIGHT"
	ForkLeft        Maneuver = "FORK_LEFT"
	ForkRight       Maneuver = "FORK_RIGHT"
	RampLeft        Maneuver = "RAMP_LEFT"
	RampRight       Maneuver = "RAMP_RIGHT"
	Merge           Maneuver = "MERGE"
	RoundaboutLeft  Maneuver = "ROUNDABOUT_LEFT"
	RoundaboutRight Maneuver = "ROUNDABOUT_RIGHT"
	Unknown         Maneuver = "MANEUVER_UNSPECIFIED"
)

var knownManeuvers = map[Maneuver]bool{
	Straight: true, TurnLeft: true, TurnRight: true, TurnSlightLeft: true,
	TurnSlightRight: true, TurnSharpLeft: true, TurnSharpRight: true,
	UTurnLeft: true, UTurnRight: true, ForkLeft: true, ForkRight: true,
	RampLeft: true, RampRight: true, Merge: true, RoundaboutLeft: true,
	RoundaboutRight: true, Unknown: true,
}

// ParseManeuver converts a provider maneuver string. DEPART and NAME_CHANGE
// mean "keep going"; anything unrecognized is Unknown.
func ParseManeuver(s string) Maneuver {
	m := Maneuver(strings.ToUpper(strings.TrimSpace(s)))
	switch m {
	case "DEPART", "NAME_CHANGE", "CONTINUE", "":
		return Straight
	}
	if knownManeuvers[m] {
		return m
	}
	return Unknown
}

// IsTurn reports whether the maneuver is one of the TURN_* variants.
func (m Maneuver) IsTurn() bool {
	switch m {
	case TurnLeft, TurnRight, TurnSlightLeft, TurnSlightRight, TurnSharpLeft, TurnSharpRight:
		return true
	}
	return false
}

// IsRoundabout reports whether the maneuver enters a roundabout.
func (m Maneuver) IsRoundabout() bool {
	return m == RoundaboutLeft || m == RoundaboutRight
}

// Step is one leg of a route between two maneuvers.
type Step struct {
	Instruction     string    `json:"instruction"`
	Maneuver        Maneuver  `json:"maneuver"`
	Start           geo.Point `json:"start"`
	End             geo.Point `json:"end"`
	DistanceMeters  float64   `json:"distance_meters"`
	DurationSeconds float64   `json:"duration_seconds"`
	EncodedPath     string    `json:"encoded_path,omitempty"`
}

// Path returns the decoded step geometry, falling back to start/end when the
// step has no usable encoded path.
func (s Step) Path() []geo.Point {
	if s.EncodedPath != "" {
		if points, err := geo.DecodePolyline(s.EncodedPath); err == nil && len(points) >= 2 {
			return points
		}
	}
	return []geo.Point{s.Start, s.End}
}

// Route is an ordered list of steps from origin to destination.
type Route struct {
	Steps                []Step    `json:"steps"`
	Origin               geo.Point `json:"origin"`
	Destination          geo.Point `json:"destination"`
	TotalDistanceMeters  float64   `json:"total_distance_meters"`
	TotalDurationSeconds float64   `json:"total_duration_seconds"`
	Summary              string    `json:"summary,omitempty"`
}

// IsEmpty reports whether the route has no steps.
func (r Route) IsEmpty() bool {
	return len(r.Steps) == 0
}

// Step returns the step at index i, or false if out of range.
func (r Route) Step(i int) (Step, bool) {
	if i < 0 || i >= len(r.Steps) {
		return Step{}, false
	}
	return r.Steps[i], true
}

// Path returns the concatenated geometry of every step.
func (r Route) Path() []geo.Point {
	var path []geo.Point
	for _, s := range r.Steps {
		points := s.Path()
		if len(path) > 0 && len(points) > 0 && path[len(path)-1] == points[0] {
			points = points[1:]
		}
		path = append(path, points...)
	}
	return path
}

// Progress is an immutable snapshot of where the user is along a route.
type Progress struct {
	CurrentStepIndex         int      `json:"current_step_index"`
	DistanceToCurrentStep    float64  `json:"distance_to_current_step"`
	TotalDistanceRemaining   float64  `json:"total_distance_remaining"`
	EstimatedTimeRemaining   float64  `json:"estimated_time_remaining"`
	HasGivenAdvanceWarning   bool     `json:"has_given_advance_warning"`
	HasGivenImmediateWarning bool     `json:"has_given_immediate_warning"`
	HasCompletedCurrentStep  bool     `json:"has_completed_current_step"`
	BearingToStepEnd         *float64 `json:"bearing_to_step_end,omitempty"`
	// LastCheckpointDistance is the step distance at which the last straight
	// checkpoint was spoken; zero when none has been spoken on this step.
	LastCheckpointDistance float64 `json:"last_checkpoint_distance,omitempty"`
	Arrived                bool    `json:"arrived"`
}

// WithAdvanceWarningGiven returns a copy with the advance flag set.
func (p Progress) WithAdvanceWarningGiven() Progress {
	p.HasGivenAdvanceWarning = true
	return p
}

// WithImmediateWarningGiven returns a copy with the immediate flag set.
func (p Progress) WithImmediateWarningGiven() Progress {
	p.HasGivenImmediateWarning = true
	return p
}

// WithCheckpointAt returns a copy recording a checkpoint spoken at distance.
func (p Progress) WithCheckpointAt(distance float64) Progress {
	p.LastCheckpointDistance = distance
	return p
}

// DeviationStatus classifies the user's distance from the current step.
type DeviationStatus string

const (
	OnRoute  DeviationStatus = "on_route"
	NearEdge DeviationStatus = "near_edge"
	OffRoute DeviationStatus = "off_route"
)

// DeviationState is the result of a single deviation check.
type DeviationState struct {
	Status           DeviationStatus `json:"status"`
	Distance         float64         `json:"distance"`
	ConsecutiveCount int             `json:"consecutive_count,omitempty"`
}

// WarningKind identifies which announcement a progress snapshot calls for.
type WarningKind string

const (
	AdvanceWarning    WarningKind = "advance"
	ImmediateWarning  WarningKind = "immediate"
	CheckpointWarning WarningKind = "checkpoint"
	ArrivalWarning    WarningKind = "arrival"
)

// TurnWarning is an announcement due at the current position.
type TurnWarning struct {
	Kind      WarningKind `json:"kind"`
	StepIndex int         `json:"step_index"`
	Step      *Step       `json:"step,omitempty"`
	Distance  float64     `json:"distance,omitempty"`
}

// Thresholds holds the tunable distances and counts used by the follower,
// detector, and warning calculator.
type Thresholds struct {
	WalkingSpeed         float64       `json:"walking_speed"` // m/s
	StepCompletion       float64       `json:"step_completion"`
	Arrival              float64       `json:"arrival"`
	AdvanceWarning       float64       `json:"advance_warning"`
	AdvanceWarningLead   time.Duration `json:"advance_warning_lead"`
	ImmediateWarning     float64       `json:"immediate_warning"`
	Checkpoint           float64       `json:"checkpoint"`
	CheckpointInterval   float64       `json:"checkpoint_interval"`
	NearEdge             float64       `json:"near_edge"`
	OffRoute             float64       `json:"off_route"`
	HistorySize          int           `json:"history_size"`
	ConsecutiveThreshold int           `json:"consecutive_threshold"`
}

// DefaultThresholds returns the standard pedestrian tuning.
func DefaultThresholds() Thresholds {
	return Thresholds{
		WalkingSpeed:         1.4,
		StepCompletion:       20,
		Arrival:              10,
		AdvanceWarning:       70,
		ImmediateWarning:     15,
		Checkpoint:           200,
		CheckpointInterval:   200,
		NearEdge:             15,
		OffRoute:             20,
		HistorySize:          5,
		ConsecutiveThreshold: 5,
	}
}

// AdvanceWarningDistance is the distance at which the advance warning fires.
// A non-zero lead time takes precedence over the fixed distance.
func (t Thresholds) AdvanceWarningDistance() float64 {
	if t.AdvanceWarningLead > 0 && t.WalkingSpeed > 0 {
		return t.WalkingSpeed * t.AdvanceWarningLead.Seconds()
	}
	return t.AdvanceWarning
}

func (t Thresholds) withDefaults() Thresholds {
	d := DefaultThresholds()
	if t.WalkingSpeed <= 0 {
		t.WalkingSpeed = d.WalkingSpeed
	}
	if t.HistorySize <= 0 {
		t.HistorySize = d.HistorySize
	}
	if t.ConsecutiveThreshold <= 0 {
		t.ConsecutiveThreshold = d.ConsecutiveThreshold
	}
	// The consecutive count is bounded by the history it is read from.
	if t.HistorySize < t.ConsecutiveThreshold {
		t.HistorySize = t.ConsecutiveThreshold
	}
	return t
}
