package location

import (
	"context"
	"time"

	"github.com/dpup/wayfinder/internal/lib/geo"
	"github.com/dpup/wayfinder/internal/lib/routing"
)

// ReplaySource emits a fixed list of points at a steady cadence, then closes.
type ReplaySource struct {
	points   []geo.Point
	interval time.Duration
	// FailAfter, when positive, reports ErrSignalLost after that many fixes.
	FailAfter int
}

// NewReplaySource replays points every interval.
func NewReplaySource(points []geo.Point, interval time.Duration) *ReplaySource {
	if interval <= 0 {
		interval = time.Second
	}
	return &ReplaySource{points: points, interval: interval}
}

func (r *ReplaySource) Subscribe(ctx context.Context) (<-chan geo.Point, <-chan error) {
	points := make(chan geo.Point)
	errs := make(chan error, 1)

	go func() {
		defer close(points)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for i, pt := range r.points {
			if r.FailAfter > 0 && i == r.FailAfter {
				errs <- ErrSignalLost
				return
			}
			select {
			case <-ctx.Done():
				return
			case points <- pt:
			}
			if i == len(r.points)-1 {
				break
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return points, errs
}

// SimulateWalk produces fixes every spacing meters along the route geometry,
// shifted offset meters to the right of the direction of travel (negative is left).
func SimulateWalk(route routing.Route, spacing, offset float64) []geo.Point {
	if spacing <= 0 {
		spacing = 1.4
	}

	var out []geo.Point
	path := route.Path()
	for i := 0; i < len(path)-1; i++ {
		a, b := path[i], path[i+1]
		length := geo.Distance(a, b)
		if length == 0 {
			continue
		}
		bearing := geo.Bearing(a, b)
		for d := 0.0; d < length; d += spacing {
			out = append(out, shift(geo.Interpolate(a, b, d/length), bearing, offset))
		}
	}
	if len(path) > 0 {
		last := path[len(path)-1]
		bearing := 0.0
		if len(path) > 1 {
			bearing = geo.Bearing(path[len(path)-2], last)
		}
		out = append(out, shift(last, bearing, offset))
	}
	return out
}

func shift(p geo.Point, bearing, offset float64) geo.Point {
	if offset == 0 {
		return p
	}
	return geo.Destination(p, bearing+90, offset)
}
