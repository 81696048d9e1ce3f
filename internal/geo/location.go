// Package geo holds the coordinate and postal address value models shared by
// the map builder, the extraction helper and the client interpreter.
package geo

import (
	"math"
	"strconv"
	"strings"
)

// Coords is a bare coordinate pair. It is the wire shape of a point.
type Coords struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// Locatable is implemented by anything that may resolve to a point.
type Locatable interface {
	Coordinates() (Coords, bool)
}

// Coordinates implements Locatable.
func (c Coords) Coordinates() (Coords, bool) { return c, true }

// IsZero reports whether c is the degenerate [0,0] point.
func (c Coords) IsZero() bool { return c.Lng == 0 && c.Lat == 0 }

// Location is a geographic point whose parts may be unknown.
type Location struct {
	Lng *float64 `json:"lng"`
	Lat *float64 `json:"lat"`
}

// NewLocation returns a Location with both parts set.
func NewLocation(lng, lat float64) Location {
	return Location{Lng: &lng, Lat: &lat}
}

// HasCoords reports whether both longitude and latitude are present and numeric.
func (l Location) HasCoords() bool {
	return l.Lng != nil && l.Lat != nil && isNumeric(*l.Lng) && isNumeric(*l.Lat)
}

// Coordinates implements Locatable.
func (l Location) Coordinates() (Coords, bool) {
	if !l.HasCoords() {
		return Coords{}, false
	}
	return Coords{Lng: *l.Lng, Lat: *l.Lat}, true
}

// String renders "lng, lat" with empty parts for unknown values.
func (l Location) String() string {
	return formatPart(l.Lng) + ", " + formatPart(l.Lat)
}

// Distance returns the great-circle distance between l and target in the
// given units. It returns nil if either point lacks coordinates or the units
// are not recognised.
func (l Location) Distance(target Locatable, units string) *float64 {
	if target == nil {
		return nil
	}
	a, ok := l.Coordinates()
	if !ok {
		return nil
	}
	b, ok := target.Coordinates()
	if !ok {
		return nil
	}
	radius, ok := EarthRadius(units)
	if !ok {
		return nil
	}
	d := Haversine(a, b, radius)
	return &d
}

// Haversine returns the distance between a and b on a sphere of the given radius.
func Haversine(a, b Coords, radius float64) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	deltaLat := (b.Lat - a.Lat) * math.Pi / 180
	deltaLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(deltaLng/2)*math.Sin(deltaLng/2)

	return radius * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// EarthRadius maps a unit name to the mean earth radius expressed in it.
func EarthRadius(units string) (float64, bool) {
	switch strings.ToLower(strings.TrimSpace(units)) {
	case "", "mi", "miles":
		return 3959, true
	case "km", "kilometers", "kilometres":
		return 6371, true
	case "m", "meters", "metres":
		return 6371000, true
	case "ft", "feet":
		return 20903520, true
	case "yd", "yards":
		return 6967840, true
	case "nmi", "nautical":
		return 3440.1, true
	default:
		return 0, false
	}
}

func isNumeric(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func formatPart(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

// ParseFloat parses a user supplied number. Empty or non-numeric input
// yields nil rather than an error.
func ParseFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || !isNumeric(f) {
		return nil
	}
	return &f
}
