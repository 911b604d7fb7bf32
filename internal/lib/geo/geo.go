package geo

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
	"github.com/twpayne/go-polyline"
)

// EarthRadius is the mean Earth radius in meters used by every calculation here.
const EarthRadius = 6371000.0

var errInvalidCoordinates = errors.New("invalid coordinates: latitude must be [-90, 90], longitude must be [-180, 180]")

// PointToPoint returns the haversine distance in meters between two points,
// or an error when either is outside latitude/longitude bounds.
func PointToPoint(p1, p2 Point) (float64, error) {
	if !isValidCoordinate(p1) || !isValidCoordinate(p2) {
		return 0, errInvalidCoordinates
	}
	return Distance(p1, p2), nil
}

// Distance is the unchecked haversine distance in meters.
func Distance(p1, p2 Point) float64 {
	if p1 == p2 {
		return 0
	}

	lat1 := toRadians(p1.Latitude)
	lat2 := toRadians(p2.Latitude)
	dlat := lat2 - lat1
	dlon := toRadians(p2.Longitude - p1.Longitude)

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadius * c
}

// Bearing returns the initial great-circle bearing from p1 to p2, normalized to [0, 360).
func Bearing(p1, p2 Point) float64 {
	return normalizeDegrees(toDegrees(bearingRadians(p1, p2)))
}

func bearingRadians(p1, p2 Point) float64 {
	lat1 := toRadians(p1.Latitude)
	lat2 := toRadians(p2.Latitude)
	dlon := toRadians(p2.Longitude - p1.Longitude)

	y := math.Sin(dlon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dlon)
	return math.Atan2(y, x)
}

// PointToSegment returns the shortest distance in meters from point to the segment.
// Projections falling before start or past end measure to that endpoint; a
// zero-length segment degrades to point-to-point distance.
func PointToSegment(point, start, end Point) float64 {
	if start == end {
		return Distance(point, start)
	}

	distanceToStart := Distance(start, point)
	if distanceToStart == 0 {
		return 0
	}
	segmentLength := Distance(start, end)

	d13 := distanceToStart / EarthRadius
	delta := bearingRadians(start, point) - bearingRadians(start, end)

	// Foot of the perpendicular lies behind the start.
	if math.Cos(delta) < 0 {
		return distanceToStart
	}

	dxt := math.Asin(clamp(math.Sin(d13)*math.Sin(delta), -1, 1))
	dat := math.Acos(clamp(math.Cos(d13)/math.Cos(dxt), -1, 1))

	if dat*EarthRadius > segmentLength {
		return Distance(point, end)
	}
	return math.Abs(dxt) * EarthRadius
}

// PointToPath returns the minimum segment distance from point to an ordered path.
func PointToPath(point Point, path []Point) float64 {
	switch len(path) {
	case 0:
		return math.Inf(1)
	case 1:
		return Distance(point, path[0])
	}

	minDistance := math.Inf(1)
	for i := 0; i < len(path)-1; i++ {
		if d := PointToSegment(point, path[i], path[i+1]); d < minDistance {
			minDistance = d
		}
	}
	return minDistance
}

// CardinalDirection maps a bearing in degrees to an 8-point compass label.
func CardinalDirection(bearing float64) Cardinal {
	b := normalizeDegrees(bearing)
	return compass[int((b+22.5)/45)%8]
}

// Destination returns the point reached by travelling meters along bearing from origin.
func Destination(origin Point, bearing, meters float64) Point {
	lat1 := toRadians(origin.Latitude)
	lon1 := toRadians(origin.Longitude)
	theta := toRadians(bearing)
	delta := meters / EarthRadius

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(delta) + math.Cos(lat1)*math.Sin(delta)*math.Cos(theta))
	lon2 := lon1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(lat1),
		math.Cos(delta)-math.Sin(lat1)*math.Sin(lat2),
	)

	return Point{
		Latitude:  toDegrees(lat2),
		Longitude: math.Mod(toDegrees(lon2)+540, 360) - 180,
	}
}

// Interpolate returns the point a fraction t along start-end.
// Linear interpolation is accurate enough at walking-step scale.
func Interpolate(start, end Point, t float64) Point {
	return Point{
		Latitude:  start.Latitude + t*(end.Latitude-start.Latitude),
		Longitude: start.Longitude + t*(end.Longitude-start.Longitude),
	}
}

// DecodePolyline decodes a Google encoded polyline.
func DecodePolyline(encoded string) ([]Point, error) {
	if encoded == "" {
		return nil, errors.New("encoded polyline string is empty")
	}

	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, errors.New("failed to decode polyline: " + err.Error())
	}

	points := make([]Point, len(coords))
	for i, coord := range coords {
		points[i] = Point{Latitude: coord[0], Longitude: coord[1]}
		if !isValidCoordinate(points[i]) {
			return nil, errors.New("decoded polyline contains invalid coordinates")
		}
	}
	return points, nil
}

// EncodePolyline encodes points with Google polyline encoding.
func EncodePolyline(points []Point) string {
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Latitude, p.Longitude}
	}
	return string(polyline.EncodeCoords(coords))
}

// Bound returns the bounding box of the given points.
func Bound(points []Point) orb.Bound {
	if len(points) == 0 {
		return orb.Bound{}
	}
	b := points[0].Orb().Bound()
	for _, p := range points[1:] {
		b = b.Extend(p.Orb())
	}
	return b
}

// NewPoint creates a Point from latitude and longitude values with validation
func NewPoint(latitude, longitude float64) (Point, error) {
	point := Point{Latitude: latitude, Longitude: longitude}
	if !isValidCoordinate(point) {
		return Point{}, errInvalidCoordinates
	}
	return point, nil
}

// IsValid reports whether the point lies within latitude/longitude bounds.
func (p Point) IsValid() bool {
	return isValidCoordinate(p)
}

func isValidCoordinate(point Point) bool {
	return point.Latitude >= -90 && point.Latitude <= 90 &&
		point.Longitude >= -180 && point.Longitude <= 180 &&
		!math.IsNaN(point.Latitude) && !math.IsNaN(point.Longitude)
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }

func toDegrees(rad float64) float64 { return rad * 180 / math.Pi }

func normalizeDegrees(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	return d
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
