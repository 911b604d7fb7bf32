// Package export renders navigation routes for map tools.
package export

import (
	"fmt"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/twpayne/go-kml/v2"

	"github.com/dpup/wayfinder/internal/lib/geo"
	"github.com/dpup/wayfinder/internal/lib/routing"
)

// RouteGeoJSON returns a FeatureCollection holding the full route line plus
// one LineString feature per step.
func RouteGeoJSON(route routing.Route) ([]byte, error) {
	fc := geojson.NewFeatureCollection()

	path := route.Path()
	if len(path) > 0 {
		line := geojson.NewFeature(toLineString(path))
		line.Properties["kind"] = "route"
		line.Properties["summary"] = route.Summary
		line.Properties["distance_meters"] = route.TotalDistanceMeters
		line.Properties["duration_seconds"] = route.TotalDurationSeconds
		fc.Append(line)
		fc.BBox = geojson.NewBBox(geo.Bound(path))
	}

	for i, step := range route.Steps {
		f := geojson.NewFeature(toLineString(step.Path()))
		f.Properties["kind"] = "step"
		f.Properties["index"] = i
		f.Properties["instruction"] = step.Instruction
		f.Properties["maneuver"] = string(step.Maneuver)
		f.Properties["distance_meters"] = step.DistanceMeters
		fc.Append(f)
	}

	return fc.MarshalJSON()
}

func toLineString(points []geo.Point) orb.LineString {
	ls := make(orb.LineString, len(points))
	for i, p := range points {
		ls[i] = p.Orb()
	}
	return ls
}

// WriteRouteKML writes the route as a KML document with a route line and a
// placemark at the end of every step.
func WriteRouteKML(w io.Writer, name string, route routing.Route) error {
	children := []kml.Element{
		kml.Name(name),
	}

	path := route.Path()
	if len(path) > 0 {
		children = append(children, kml.Placemark(
			kml.Name("Route"),
			kml.Description(route.Summary),
			kml.LineString(
				kml.Tessellate(true),
				kml.Coordinates(toKMLCoordinates(path)...),
			),
		))
	}

	for i, step := range route.Steps {
		children = append(children, kml.Placemark(
			kml.Name(fmt.Sprintf("Step %d: %s", i+1, step.Maneuver)),
			kml.Description(fmt.Sprintf("%s (%.0f m)", step.Instruction, step.DistanceMeters)),
			kml.Point(
				kml.Coordinates(kml.Coordinate{Lon: step.End.Longitude, Lat: step.End.Latitude}),
			),
		))
	}

	return kml.KML(kml.Document(children...)).WriteIndent(w, "", "  ")
}

func toKMLCoordinates(points []geo.Point) []kml.Coordinate {
	coords := make([]kml.Coordinate, len(points))
	for i, p := range points {
		coords[i] = kml.Coordinate{Lon: p.Longitude, Lat: p.Latitude}
	}
	return coords
}
