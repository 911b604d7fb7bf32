package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointToPoint(t *testing.T) {
	// Angels Camp to Murphys along Highway 4
	angelsCamp := Point{Latitude: 38.0675, Longitude: -120.5436}
	murphys := Point{Latitude: 38.1391, Longitude: -120.4561}

	distance, err := PointToPoint(angelsCamp, murphys)
	require.NoError(t, err)
	assert.InDelta(t, 11046, distance, 100, "Distance should be approximately 11.0km")

	invalidPoint := Point{Latitude: 200, Longitude: -300}
	_, err = PointToPoint(angelsCamp, invalidPoint)
	assert.Error(t, err, "Should return error for invalid coordinates")

	distance, err = PointToPoint(murphys, murphys)
	require.NoError(t, err)
	assert.Equal(t, 0.0, distance)
}

func TestBearing(t *testing.T) {
	origin := Point{Latitude: 37.7749, Longitude: -122.4194}

	tests := []struct {
		name    string
		bearing float64
	}{
		{"north", 0},
		{"east", 90},
		{"south", 180},
		{"west", 270},
		{"northwest", 315},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := Destination(origin, tt.bearing, 500)
			got := Bearing(origin, target)
			// 0 and 360 are the same heading
			diff := math.Abs(got - tt.bearing)
			if diff > 180 {
				diff = 360 - diff
			}
			assert.Less(t, diff, 0.1)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.Less(t, got, 360.0)
		})
	}
}

func TestPointToSegment(t *testing.T) {
	start := Point{Latitude: 37.7749, Longitude: -122.4194}
	end := Destination(start, 90, 200)

	t.Run("point on segment", func(t *testing.T) {
		mid := Interpolate(start, end, 0.5)
		assert.InDelta(t, 0, PointToSegment(mid, start, end), 0.5)
		assert.InDelta(t, 0, PointToSegment(start, start, end), 0.01)
		assert.InDelta(t, 0, PointToSegment(end, start, end), 0.5)
	})

	t.Run("perpendicular offset", func(t *testing.T) {
		mid := Interpolate(start, end, 0.5)
		off := Destination(mid, 0, 25)
		assert.InDelta(t, 25, PointToSegment(off, start, end), 0.5)
	})

	t.Run("before start uses start distance", func(t *testing.T) {
		behind := Destination(start, 270, 40)
		assert.InDelta(t, 40, PointToSegment(behind, start, end), 0.5)
	})

	t.Run("past end uses end distance", func(t *testing.T) {
		beyond := Destination(end, 90, 60)
		assert.InDelta(t, 60, PointToSegment(beyond, start, end), 0.5)
	})

	t.Run("degenerate segment", func(t *testing.T) {
		p := Destination(start, 45, 30)
		assert.InDelta(t, 30, PointToSegment(p, start, start), 0.5)
	})
}

func TestPointToPath(t *testing.T) {
	a := Point{Latitude: 38.0675, Longitude: -120.5436}
	b := Destination(a, 0, 300)
	c := Destination(b, 90, 300)

	// Near the second leg only
	p := Destination(Interpolate(b, c, 0.5), 180, 12)
	assert.InDelta(t, 12, PointToPath(p, []Point{a, b, c}), 0.5)
	assert.InDelta(t, Distance(p, b), PointToPath(p, []Point{b}), 0.001)
	assert.True(t, math.IsInf(PointToPath(p, nil), 1))
}

func TestCardinalDirection(t *testing.T) {
	tests := []struct {
		bearing float64
		want    Cardinal
	}{
		{0, North},
		{22.4, North},
		{22.5, NorthEast},
		{90, East},
		{135, SouthEast},
		{180, South},
		{225, SouthWest},
		{270, West},
		{315, NorthWest},
		{337.6, North},
		{359.9, North},
		{-90, West},
		{450, East},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CardinalDirection(tt.bearing), "bearing %v", tt.bearing)
	}
	assert.Equal(t, "northeast", NorthEast.Spoken())
	assert.Equal(t, "west", West.Spoken())
}

func TestPolylineEncoding(t *testing.T) {
	points := []Point{
		{Latitude: 38.5, Longitude: -120.2},
		{Latitude: 40.7, Longitude: -120.95},
		{Latitude: 43.252, Longitude: -126.453},
	}

	// Reference string from Google's polyline documentation
	encoded := EncodePolyline(points)
	assert.Equal(t, "_p~iF~ps|U_ulLnnqC_mqNvxq`@", encoded)

	decoded, err := DecodePolyline(encoded)
	require.NoError(t, err)
	require.Len(t, decoded, 3)
	for i := range points {
		assert.InDelta(t, points[i].Latitude, decoded[i].Latitude, 1e-5)
		assert.InDelta(t, points[i].Longitude, decoded[i].Longitude, 1e-5)
	}

	_, err = DecodePolyline("")
	assert.Error(t, err)
}

func TestBound(t *testing.T) {
	b := Bound([]Point{
		{Latitude: 38.0, Longitude: -120.5},
		{Latitude: 38.2, Longitude: -120.4},
		{Latitude: 38.1, Longitude: -120.6},
	})
	assert.InDelta(t, -120.6, b.Min.Lon(), 1e-9)
	assert.InDelta(t, 38.0, b.Min.Lat(), 1e-9)
	assert.InDelta(t, -120.4, b.Max.Lon(), 1e-9)
	assert.InDelta(t, 38.2, b.Max.Lat(), 1e-9)
}
