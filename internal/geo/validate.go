package geo

import (
	"fmt"
	"strings"
)

// Subfield describes one editable part of an address field.
type Subfield struct {
	Handle       string `json:"handle" yaml:"handle"`
	Label        string `json:"label" yaml:"label"`
	Width        int    `json:"width" yaml:"width"`
	Enabled      bool   `json:"enabled" yaml:"enabled"`
	Autocomplete bool   `json:"autocomplete" yaml:"autocomplete"`
	Required     bool   `json:"required" yaml:"required"`
}

// DefaultSubfields is the layout a new address field starts with.
var DefaultSubfields = []Subfield{
	{Handle: "street1", Label: "Street Address", Width: 100, Enabled: true, Autocomplete: true},
	{Handle: "street2", Label: "Apartment or Suite", Width: 100, Enabled: true},
	{Handle: "city", Label: "City", Width: 50, Enabled: true},
	{Handle: "state", Label: "State", Width: 15, Enabled: true},
	{Handle: "zip", Label: "Zip Code", Width: 35, Enabled: true},
	{Handle: "country", Label: "Country", Width: 100, Enabled: true},
}

// DefaultCenter is where an empty address field's map starts.
var DefaultCenter = struct {
	Coords
	Zoom float64
}{Coords: Coords{Lng: -64.7527469, Lat: 32.3113966}, Zoom: 6}

// Part returns the postal part with the given subfield handle.
func (a *Address) Part(handle string) string {
	switch handle {
	case "name":
		return a.Name
	case "street1":
		return a.Street1
	case "street2":
		return a.Street2
	case "city":
		return a.City
	case "state":
		return a.State
	case "zip":
		return a.Zip
	case "neighborhood":
		return a.Neighborhood
	case "county":
		return a.County
	case "country":
		return a.Country
	default:
		return ""
	}
}

// Validate checks an address against its field layout and returns a
// human-readable message, or "" when the address is acceptable.
// A nil address is always acceptable.
func Validate(a *Address, subfields []Subfield, requireCoords bool) string {
	if a == nil {
		return ""
	}

	var missing []string
	for _, sf := range subfields {
		if !sf.Enabled || !sf.Required {
			continue
		}
		if strings.TrimSpace(a.Part(sf.Handle)) == "" {
			label := sf.Label
			if label == "" {
				label = sf.Handle
			}
			missing = append(missing, fmt.Sprintf("**%s**", label))
		}
	}

	coordsMissing := requireCoords && !a.HasCoords()

	switch {
	case len(missing) > 0 && coordsMissing:
		return "The following subfields are required: " + strings.Join(missing, ", ") + ", **Longitude** & **Latitude**"
	case len(missing) > 0:
		return "The following subfields are required: " + strings.Join(missing, ", ")
	case coordsMissing:
		return "A valid set of coordinates is required."
	default:
		return ""
	}
}
