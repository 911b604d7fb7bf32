package routing

import (
	"go.uber.org/zap"

	"github.com/dpup/wayfinder/internal/lib/geo"
)

// DeviationDetector classifies how far the user is from the active step and
// keeps a short rolling history so single noisy fixes can be ignored.
// Not safe for concurrent use; the navigation session owns it.
type DeviationDetector struct {
	thresholds Thresholds
	history    *ringBuffer[DeviationState]
	logger     *zap.SugaredLogger
}

// NewDeviationDetector creates a detector. A nil logger disables logging.
func NewDeviationDetector(thresholds Thresholds, logger *zap.SugaredLogger) *DeviationDetector {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	thresholds = thresholds.withDefaults()
	return &DeviationDetector{
		thresholds: thresholds,
		history:    newRingBuffer[DeviationState](thresholds.HistorySize),
		logger:     logger,
	}
}

// CheckDeviation classifies position against the step at stepIndex and records
// the result in the history.
func (d *DeviationDetector) CheckDeviation(position geo.Point, route Route, stepIndex int) DeviationState {
	step, ok := route.Step(stepIndex)
	if !ok {
		d.logger.Debugw("No step for deviation check", "step_index", stepIndex, "steps", len(route.Steps))
		return DeviationState{Status: OnRoute}
	}

	distance := geo.PointToPath(position, step.Path())

	var state DeviationState
	switch {
	case distance > d.thresholds.OffRoute:
		state = DeviationState{Status: OffRoute, Distance: distance, ConsecutiveCount: d.CountConsecutiveDeviations() + 1}
	case distance > d.thresholds.NearEdge:
		state = DeviationState{Status: NearEdge, Distance: distance}
	default:
		state = DeviationState{Status: OnRoute, Distance: distance}
	}

	d.history.Push(state)
	return state
}

// CountConsecutiveDeviations counts off-route entries from the newest backward.
func (d *DeviationDetector) CountConsecutiveDeviations() int {
	count := 0
	d.history.EachNewest(func(s DeviationState) bool {
		if s.Status != OffRoute {
			return false
		}
		count++
		return true
	})
	return count
}

// ThresholdReached reports whether sustained deviation warrants recalculation.
func (d *DeviationDetector) ThresholdReached() bool {
	return d.CountConsecutiveDeviations() >= d.thresholds.ConsecutiveThreshold
}

// ResetHistory clears the rolling history.
func (d *DeviationDetector) ResetHistory() {
	d.history.Clear()
}

// History returns the recorded states, oldest first.
func (d *DeviationDetector) History() []DeviationState {
	return d.history.Items()
}

// ringBuffer is a fixed-capacity FIFO that evicts the oldest entry when full.
type ringBuffer[T any] struct {
	items []T
	start int
	size  int
}

func newRingBuffer[T any](capacity int) *ringBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer[T]{items: make([]T, capacity)}
}

func (r *ringBuffer[T]) Push(v T) {
	if r.size < len(r.items) {
		r.items[(r.start+r.size)%len(r.items)] = v
		r.size++
		return
	}
	r.items[r.start] = v
	r.start = (r.start + 1) % len(r.items)
}

func (r *ringBuffer[T]) Len() int { return r.size }

func (r *ringBuffer[T]) Clear() {
	clear(r.items)
	r.start, r.size = 0, 0
}

// EachNewest visits entries newest first until fn returns false.
func (r *ringBuffer[T]) EachNewest(fn func(T) bool) {
	for i := r.size - 1; i >= 0; i-- {
		if !fn(r.items[(r.start+i)%len(r.items)]) {
			return
		}
	}
}

func (r *ringBuffer[T]) Items() []T {
	out := make([]T, r.size)
	for i := range out {
		out[i] = r.items[(r.start+i)%len(r.items)]
	}
	return out
}
