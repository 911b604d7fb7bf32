package routing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpup/wayfinder/internal/lib/geo"
)

var origin = geo.Point{Latitude: 37.7749, Longitude: -122.4194}

// threeStepRoute walks 100 m north, 100 m east, then 100 m north.
func threeStepRoute() Route {
	a := origin
	b := geo.Destination(a, 0, 100)
	c := geo.Destination(b, 90, 100)
	d := geo.Destination(c, 0, 100)
	return Route{
		Origin:      a,
		Destination: d,
		Steps: []Step{
			{Instruction: "Head north on Market St", Maneuver: TurnRight, Start: a, End: b, DistanceMeters: 100, DurationSeconds: 72},
			{Instruction: "Turn right onto Pine St", Maneuver: TurnLeft, Start: b, End: c, DistanceMeters: 100, DurationSeconds: 72},
			{Instruction: "Turn left onto Powell St", Maneuver: Straight, Start: c, End: d, DistanceMeters: 100, DurationSeconds: 72},
		},
		TotalDistanceMeters:  300,
		TotalDurationSeconds: 216,
	}
}

func TestParseManeuver(t *testing.T) {
	assert.Equal(t, TurnLeft, ParseManeuver("TURN_LEFT"))
	assert.Equal(t, RoundaboutRight, ParseManeuver("roundabout_right"))
	assert.Equal(t, Straight, ParseManeuver("DEPART"))
	assert.Equal(t, Straight, ParseManeuver("NAME_CHANGE"))
	assert.Equal(t, Unknown, ParseManeuver("FERRY"))

	assert.True(t, TurnSharpRight.IsTurn())
	assert.False(t, UTurnLeft.IsTurn())
	assert.False(t, Straight.IsTurn())
	assert.True(t, RoundaboutLeft.IsRoundabout())
}

func TestRouteFollower_SingleLongStep(t *testing.T) {
	end := geo.Destination(origin, 0, 1100)
	route := Route{Steps: []Step{{Maneuver: Straight, Start: origin, End: end, DistanceMeters: 1100}}}

	follower := NewRouteFollower(DefaultThresholds())
	progress := follower.CalculateProgress(origin, route, nil)

	assert.Equal(t, 0, progress.CurrentStepIndex)
	assert.InDelta(t, 1100, progress.DistanceToCurrentStep, 1)
	assert.InDelta(t, 1100, progress.TotalDistanceRemaining, 1)
	assert.InDelta(t, 786, progress.EstimatedTimeRemaining, 1)
	assert.False(t, progress.HasCompletedCurrentStep)
	require.NotNil(t, progress.BearingToStepEnd)
	assert.InDelta(t, 0, *progress.BearingToStepEnd, 0.1)
}

func TestRouteFollower_RemainingIncludesLaterSteps(t *testing.T) {
	route := threeStepRoute()
	progress := NewRouteFollower(DefaultThresholds()).CalculateProgress(origin, route, nil)

	assert.InDelta(t, 100, progress.DistanceToCurrentStep, 0.5)
	assert.InDelta(t, 300, progress.TotalDistanceRemaining, 0.5)
}

func TestRouteFollower_StepTransitions(t *testing.T) {
	route := threeStepRoute()
	follower := NewRouteFollower(DefaultThresholds())
	nearB := geo.Destination(route.Steps[0].End, 180, 5)

	t.Run("carries flags on the same step", func(t *testing.T) {
		prev := Progress{CurrentStepIndex: 0, HasGivenAdvanceWarning: true, LastCheckpointDistance: 90}
		progress := follower.CalculateProgress(geo.Destination(origin, 0, 40), route, &prev)
		assert.Equal(t, 0, progress.CurrentStepIndex)
		assert.True(t, progress.HasGivenAdvanceWarning)
		assert.False(t, progress.HasGivenImmediateWarning)
		assert.Equal(t, 90.0, progress.LastCheckpointDistance)
	})

	t.Run("advances after completion and resets flags", func(t *testing.T) {
		prev := Progress{CurrentStepIndex: 0, HasCompletedCurrentStep: true, HasGivenAdvanceWarning: true, HasGivenImmediateWarning: true}
		progress := follower.CalculateProgress(nearB, route, &prev)
		assert.Equal(t, 1, progress.CurrentStepIndex)
		assert.False(t, progress.HasGivenAdvanceWarning)
		assert.False(t, progress.HasGivenImmediateWarning)
	})

	t.Run("marks completion within threshold", func(t *testing.T) {
		progress := follower.CalculateProgress(nearB, route, nil)
		assert.Equal(t, 0, progress.CurrentStepIndex)
		assert.True(t, progress.HasCompletedCurrentStep)
	})

	t.Run("arrives past the last step", func(t *testing.T) {
		prev := Progress{CurrentStepIndex: 2, HasCompletedCurrentStep: true}
		progress := follower.CalculateProgress(route.Destination, route, &prev)
		assert.True(t, progress.Arrived)
		assert.Equal(t, 2, progress.CurrentStepIndex)
		assert.Zero(t, progress.DistanceToCurrentStep)
		assert.Zero(t, progress.TotalDistanceRemaining)
		assert.Zero(t, progress.EstimatedTimeRemaining)
		assert.True(t, progress.HasGivenAdvanceWarning)
		assert.True(t, progress.HasGivenImmediateWarning)
	})

	t.Run("recovers from an out of range index", func(t *testing.T) {
		prev := Progress{CurrentStepIndex: 7}
		nearC := geo.Destination(route.Steps[1].End, 270, 3)
		progress := follower.CalculateProgress(nearC, route, &prev)
		assert.Equal(t, 1, progress.CurrentStepIndex)
	})

	t.Run("empty route is guarded", func(t *testing.T) {
		progress := follower.CalculateProgress(origin, Route{}, nil)
		assert.True(t, progress.Arrived)
	})
}

func TestRouteFollower_WalkIsMonotonic(t *testing.T) {
	route := threeStepRoute()
	follower := NewRouteFollower(DefaultThresholds())

	var prev *Progress
	for _, step := range route.Steps {
		for i := 0; i <= 20; i++ {
			pos := geo.Interpolate(step.Start, step.End, float64(i)/20)
			progress := follower.CalculateProgress(pos, route, prev)

			if prev != nil {
				require.GreaterOrEqual(t, progress.CurrentStepIndex, prev.CurrentStepIndex)
				if progress.CurrentStepIndex != prev.CurrentStepIndex {
					assert.False(t, progress.HasGivenAdvanceWarning)
				}
			}

			// Pretend every warning was announced so carry-over is observable.
			progress = progress.WithAdvanceWarningGiven()
			if progress.Arrived {
				break
			}
			prev = &progress
		}
	}
	require.NotNil(t, prev)
	assert.Equal(t, 2, prev.CurrentStepIndex)
}

func TestDeviationDetector_Classification(t *testing.T) {
	start := origin
	end := geo.Destination(start, 90, 200)
	route := Route{Steps: []Step{{Maneuver: Straight, Start: start, End: end, DistanceMeters: 200}}}
	mid := geo.Interpolate(start, end, 0.5)

	detector := NewDeviationDetector(DefaultThresholds(), nil)

	state := detector.CheckDeviation(geo.Destination(mid, 0, 25), route, 0)
	assert.Equal(t, OffRoute, state.Status)
	assert.Greater(t, state.Distance, 20.0)
	assert.Equal(t, 1, state.ConsecutiveCount)

	state = detector.CheckDeviation(geo.Destination(mid, 0, 17), route, 0)
	assert.Equal(t, NearEdge, state.Status)
	assert.Greater(t, state.Distance, 15.0)
	assert.LessOrEqual(t, state.Distance, 20.0)

	state = detector.CheckDeviation(geo.Destination(mid, 180, 5), route, 0)
	assert.Equal(t, OnRoute, state.Status)
	assert.InDelta(t, 5, state.Distance, 0.5)

	state = detector.CheckDeviation(mid, route, 4)
	assert.Equal(t, DeviationState{Status: OnRoute}, state)
	assert.Len(t, detector.History(), 3, "missing step is not recorded")
}

func TestDeviationDetector_ConsecutiveSequence(t *testing.T) {
	start := origin
	end := geo.Destination(start, 90, 200)
	route := Route{Steps: []Step{{Start: start, End: end, DistanceMeters: 200}}}
	offRoute := geo.Destination(geo.Interpolate(start, end, 0.5), 0, 40)

	detector := NewDeviationDetector(DefaultThresholds(), nil)

	var counts []int
	for i := 0; i < 5; i++ {
		detector.CheckDeviation(offRoute, route, 0)
		counts = append(counts, detector.CountConsecutiveDeviations())
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, counts)
	assert.True(t, detector.ThresholdReached())

	detector.ResetHistory()
	assert.Equal(t, 0, detector.CountConsecutiveDeviations())
	assert.False(t, detector.ThresholdReached())

	detector.CheckDeviation(offRoute, route, 0)
	assert.Equal(t, 1, detector.CountConsecutiveDeviations())
}

func TestDeviationDetector_HistoryGrowsToThreshold(t *testing.T) {
	start := origin
	end := geo.Destination(start, 90, 200)
	route := Route{Steps: []Step{{Start: start, End: end, DistanceMeters: 200}}}
	offRoute := geo.Destination(geo.Interpolate(start, end, 0.5), 0, 40)

	th := DefaultThresholds()
	th.HistorySize = 5
	th.ConsecutiveThreshold = 6
	detector := NewDeviationDetector(th, nil)

	for i := 0; i < 5; i++ {
		detector.CheckDeviation(offRoute, route, 0)
	}
	assert.False(t, detector.ThresholdReached())

	detector.CheckDeviation(offRoute, route, 0)
	assert.Equal(t, 6, detector.CountConsecutiveDeviations())
	assert.True(t, detector.ThresholdReached())
}

func TestDeviationDetector_JitterIsFiltered(t *testing.T) {
	start := origin
	end := geo.Destination(start, 90, 200)
	route := Route{Steps: []Step{{Start: start, End: end, DistanceMeters: 200}}}
	mid := geo.Interpolate(start, end, 0.5)
	offRoute := geo.Destination(mid, 0, 40)

	detector := NewDeviationDetector(DefaultThresholds(), nil)
	for i := 0; i < 12; i++ {
		pos := mid
		if i%2 == 1 {
			pos = offRoute
		}
		detector.CheckDeviation(pos, route, 0)
		assert.LessOrEqual(t, detector.CountConsecutiveDeviations(), 1)
		assert.False(t, detector.ThresholdReached())
	}
	assert.Len(t, detector.History(), 5)
}

func TestRingBuffer(t *testing.T) {
	r := newRingBuffer[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []int{3, 4, 5}, r.Items())

	var newestFirst []int
	r.EachNewest(func(v int) bool {
		newestFirst = append(newestFirst, v)
		return true
	})
	assert.Equal(t, []int{5, 4, 3}, newestFirst)

	r.Clear()
	assert.Empty(t, r.Items())
}

func TestTurnWarningCalculator(t *testing.T) {
	route := threeStepRoute()
	route.Steps[0].Maneuver = TurnLeft
	calc := NewTurnWarningCalculator(DefaultThresholds())

	t.Run("advance at seventy meters", func(t *testing.T) {
		w := calc.CheckForWarning(Progress{CurrentStepIndex: 0, DistanceToCurrentStep: 70, TotalDistanceRemaining: 270}, route)
		require.NotNil(t, w)
		assert.Equal(t, AdvanceWarning, w.Kind)
		assert.Equal(t, 70.0, w.Distance)
		require.NotNil(t, w.Step)
		assert.Equal(t, TurnLeft, w.Step.Maneuver)
	})

	t.Run("advance is one shot", func(t *testing.T) {
		p := Progress{CurrentStepIndex: 0, DistanceToCurrentStep: 70, TotalDistanceRemaining: 270}.WithAdvanceWarningGiven()
		assert.Nil(t, calc.CheckForWarning(p, route))
	})

	t.Run("immediate after advance", func(t *testing.T) {
		p := Progress{CurrentStepIndex: 0, DistanceToCurrentStep: 12, TotalDistanceRemaining: 212}.WithAdvanceWarningGiven()
		w := calc.CheckForWarning(p, route)
		require.NotNil(t, w)
		assert.Equal(t, ImmediateWarning, w.Kind)

		p = p.WithImmediateWarningGiven()
		assert.Nil(t, calc.CheckForWarning(p, route))
	})

	t.Run("advance outranks immediate when neither given", func(t *testing.T) {
		w := calc.CheckForWarning(Progress{CurrentStepIndex: 0, DistanceToCurrentStep: 10, TotalDistanceRemaining: 210}, route)
		require.NotNil(t, w)
		assert.Equal(t, AdvanceWarning, w.Kind)
	})

	t.Run("arrival wins", func(t *testing.T) {
		variants := []Progress{
			{CurrentStepIndex: 2, DistanceToCurrentStep: 10, TotalDistanceRemaining: 5},
			{CurrentStepIndex: 2, DistanceToCurrentStep: 60, TotalDistanceRemaining: 10},
			{CurrentStepIndex: 0, DistanceToCurrentStep: 500, TotalDistanceRemaining: 0},
			{CurrentStepIndex: 9, TotalDistanceRemaining: 3},
		}
		for _, p := range variants {
			w := calc.CheckForWarning(p, route)
			require.NotNil(t, w)
			assert.Equal(t, ArrivalWarning, w.Kind)
		}
	})

	t.Run("nothing mid step", func(t *testing.T) {
		assert.Nil(t, calc.CheckForWarning(Progress{CurrentStepIndex: 1, DistanceToCurrentStep: 90, TotalDistanceRemaining: 190}, route))
	})
}

func TestTurnWarningCalculator_Checkpoints(t *testing.T) {
	end := geo.Destination(origin, 0, 1000)
	route := Route{Steps: []Step{{Maneuver: Straight, Start: origin, End: end, DistanceMeters: 1000}}}
	calc := NewTurnWarningCalculator(DefaultThresholds())

	p := Progress{DistanceToCurrentStep: 900, TotalDistanceRemaining: 900}
	w := calc.CheckForWarning(p, route)
	require.NotNil(t, w)
	assert.Equal(t, CheckpointWarning, w.Kind)
	assert.Equal(t, 900.0, w.Distance)

	p = p.WithCheckpointAt(900)
	p.DistanceToCurrentStep, p.TotalDistanceRemaining = 850, 850
	assert.Nil(t, calc.CheckForWarning(p, route), "interval not yet covered")

	p.DistanceToCurrentStep, p.TotalDistanceRemaining = 700, 700
	w = calc.CheckForWarning(p, route)
	require.NotNil(t, w)
	assert.Equal(t, CheckpointWarning, w.Kind)

	p = Progress{DistanceToCurrentStep: 150, TotalDistanceRemaining: 150}
	assert.Nil(t, calc.CheckForWarning(p, route), "below checkpoint distance")

	turning := route
	turning.Steps = []Step{route.Steps[0]}
	turning.Steps[0].Maneuver = TurnRight
	assert.Nil(t, calc.CheckForWarning(Progress{DistanceToCurrentStep: 900, TotalDistanceRemaining: 900}, turning))

	once := DefaultThresholds()
	once.CheckpointInterval = 0
	onceCalc := NewTurnWarningCalculator(once)
	p = Progress{DistanceToCurrentStep: 300, TotalDistanceRemaining: 300}.WithCheckpointAt(900)
	assert.Nil(t, onceCalc.CheckForWarning(p, route))
}

func TestThresholds_AdvanceWarningLead(t *testing.T) {
	th := DefaultThresholds()
	assert.Equal(t, 70.0, th.AdvanceWarningDistance())

	th.WalkingSpeed = 1.5
	th.AdvanceWarningLead = 60 * time.Second
	assert.InDelta(t, 90, th.AdvanceWarningDistance(), 1e-9)
}
