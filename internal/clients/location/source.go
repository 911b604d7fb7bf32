package location

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dpup/wayfinder/internal/lib/geo"
)

// ErrSignalLost is reported when a source can no longer produce fixes.
var ErrSignalLost = errors.New("location signal lost")

// Source delivers position fixes. The points channel is closed when the
// subscription ends; a value on the error channel means the stream failed.
// Both channels stop being used once ctx is cancelled.
type Source interface {
	Subscribe(ctx context.Context) (<-chan geo.Point, <-chan error)
}

// ParseCoord parses "lat,lon".
func ParseCoord(input string) (geo.Point, error) {
	parts := strings.Split(input, ",")
	if len(parts) != 2 {
		return geo.Point{}, fmt.Errorf("invalid coordinate: %s", input)
	}

	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lon, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return geo.Point{}, fmt.Errorf("invalid lat/lon: %s", input)
	}

	return geo.NewPoint(lat, lon)
}
