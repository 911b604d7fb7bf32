package routing

import (
	"math"

	"github.com/dpup/wayfinder/internal/lib/geo"
)

// RouteFollower turns raw positions into progress along a route.
type RouteFollower struct {
	thresholds Thresholds
}

// NewRouteFollower creates a follower using the given thresholds.
func NewRouteFollower(thresholds Thresholds) *RouteFollower {
	return &RouteFollower{thresholds: thresholds.withDefaults()}
}

// CalculateProgress computes progress for position given the previous snapshot.
// The returned value is new; previous is never modified.
func (f *RouteFollower) CalculateProgress(position geo.Point, route Route, previous *Progress) Progress {
	if route.IsEmpty() {
		return Progress{Arrived: true, HasGivenAdvanceWarning: true, HasGivenImmediateWarning: true, HasCompletedCurrentStep: true}
	}

	index := f.resolveStepIndex(position, route, previous)
	if index >= len(route.Steps) {
		return arrivedProgress(len(route.Steps) - 1)
	}

	step := route.Steps[index]
	distanceToStep := geo.Distance(position, step.End)

	remaining := distanceToStep
	for _, s := range route.Steps[index+1:] {
		remaining += math.Max(0, s.DistanceMeters)
	}

	bearing := geo.Bearing(position, step.End)
	progress := Progress{
		CurrentStepIndex:        index,
		DistanceToCurrentStep:   distanceToStep,
		TotalDistanceRemaining:  remaining,
		EstimatedTimeRemaining:  remaining / f.thresholds.WalkingSpeed,
		HasCompletedCurrentStep: distanceToStep <= f.thresholds.StepCompletion,
		BearingToStepEnd:        &bearing,
	}

	if previous != nil && previous.CurrentStepIndex == index && !previous.Arrived {
		progress.HasGivenAdvanceWarning = previous.HasGivenAdvanceWarning
		progress.HasGivenImmediateWarning = previous.HasGivenImmediateWarning
		progress.LastCheckpointDistance = previous.LastCheckpointDistance
	}

	return progress
}

func (f *RouteFollower) resolveStepIndex(position geo.Point, route Route, previous *Progress) int {
	if previous == nil {
		return 0
	}
	if previous.Arrived {
		return len(route.Steps)
	}

	if previous.HasCompletedCurrentStep {
		next := previous.CurrentStepIndex + 1
		if next < 0 {
			return nearestStep(position, route)
		}
		return min(next, len(route.Steps))
	}

	if previous.CurrentStepIndex < 0 || previous.CurrentStepIndex >= len(route.Steps) {
		return nearestStep(position, route)
	}
	return previous.CurrentStepIndex
}

// nearestStep returns the step whose end is closest to position.
func nearestStep(position geo.Point, route Route) int {
	best := 0
	bestDistance := math.Inf(1)
	for i, s := range route.Steps {
		if d := geo.Distance(position, s.End); d < bestDistance {
			best, bestDistance = i, d
		}
	}
	return best
}

func arrivedProgress(lastIndex int) Progress {
	return Progress{
		CurrentStepIndex:         lastIndex,
		HasGivenAdvanceWarning:   true,
		HasGivenImmediateWarning: true,
		HasCompletedCurrentStep:  true,
		Arrived:                  true,
	}
}
