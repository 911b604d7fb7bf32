package geo

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Point represents a geographic coordinate
type Point struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

func (p Point) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Latitude, p.Longitude)
}

// Orb converts the point to an orb.Point (longitude first).
func (p Point) Orb() orb.Point {
	return orb.Point{p.Longitude, p.Latitude}
}

// Cardinal is an 8-point compass label.
type Cardinal string

const (
	North     Cardinal = "N"
	NorthEast Cardinal = "NE"
	East      Cardinal = "E"
	SouthEast Cardinal = "SE"
	South     Cardinal = "S"
	SouthWest Cardinal = "SW"
	West      Cardinal = "W"
	NorthWest Cardinal = "NW"
)

var compass = [8]Cardinal{North, NorthEast, East, SouthEast, South, SouthWest, West, NorthWest}

var spokenCardinals = map[Cardinal]string{
	North:     "north",
	NorthEast: "northeast",
	East:      "east",
	SouthEast: "southeast",
	South:     "south",
	SouthWest: "southwest",
	West:      "west",
	NorthWest: "northwest",
}

// Spoken returns the word form used in announcements.
func (c Cardinal) Spoken() string {
	if s, ok := spokenCardinals[c]; ok {
		return s
	}
	return string(c)
}
