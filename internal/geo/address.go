package geo

import (
	"encoding/json"
	"html"
	"html/template"
	"regexp"
	"strings"
)

var (
	repeatedCommas = regexp.MustCompile(`(, ){2,}`)
	leadingComma   = regexp.MustCompile(`^, `)
	trailingComma  = regexp.MustCompile(`, $`)
)

// Address is a Location carrying structured postal parts. It belongs to a
// single (owner element, field) pairing.
type Address struct {
	Location

	ID           int64           `json:"id,omitempty"`
	OwnerID      int64           `json:"ownerId,omitempty"`
	FieldID      int64           `json:"fieldId,omitempty"`
	Formatted    string          `json:"formatted,omitempty"`
	Raw          json.RawMessage `json:"raw,omitempty"`
	Name         string          `json:"name,omitempty"`
	Street1      string          `json:"street1,omitempty"`
	Street2      string          `json:"street2,omitempty"`
	City         string          `json:"city,omitempty"`
	State        string          `json:"state,omitempty"`
	Zip          string          `json:"zip,omitempty"`
	Neighborhood string          `json:"neighborhood,omitempty"`
	County       string          `json:"county,omitempty"`
	Country      string          `json:"country,omitempty"`
	ProviderID   string          `json:"mapboxId,omitempty"`
	Zoom         *float64        `json:"zoom,omitempty"`

	// KnownDistance is filled in by proximity queries. It is never stored.
	KnownDistance *float64 `json:"distance,omitempty"`
}

// Coordinates implements Locatable. A nil Address has no coordinates.
func (a *Address) Coordinates() (Coords, bool) {
	if a == nil {
		return Coords{}, false
	}
	return a.Location.Coordinates()
}

// String returns the provider formatted address, falling back to a single
// line built from the postal parts.
func (a *Address) String() string {
	if a == nil {
		return ""
	}
	if f := strings.TrimSpace(a.Formatted); f != "" {
		return f
	}
	return a.multiline(1, false)
}

// IsEmpty reports whether every postal part is blank.
func (a *Address) IsEmpty() bool {
	return a.Street1 == "" && a.Street2 == "" && a.City == "" &&
		a.State == "" && a.Zip == "" && a.Country == ""
}

// Multiline renders the address across up to maxLines lines joined with
// <br />. Country is only included from four lines upwards.
func (a *Address) Multiline(maxLines int) template.HTML {
	return template.HTML(a.multiline(maxLines, true))
}

func (a *Address) multiline(maxLines int, escape bool) string {
	part := func(s string) string {
		if escape {
			return html.EscapeString(s)
		}
		return s
	}

	cityGlue, unitGlue := ", ", ", "
	if maxLines >= 2 {
		cityGlue = "<br />"
	}
	if maxLines >= 3 {
		unitGlue = "<br />"
	}

	hasStreet := a.Street1 != "" || a.Street2 != ""
	hasCityState := a.City != "" || a.State != "" || a.Zip != ""

	var b strings.Builder
	b.WriteString(part(a.Street1))
	if a.Street1 != "" && a.Street2 != "" {
		b.WriteString(unitGlue)
	}
	b.WriteString(part(a.Street2))
	if hasStreet && hasCityState {
		b.WriteString(cityGlue)
	}
	b.WriteString(part(a.City))
	if a.City != "" && a.State != "" {
		b.WriteString(", ")
	}
	b.WriteString(part(a.State))
	b.WriteString(" ")
	b.WriteString(part(a.Zip))
	if maxLines >= 4 && a.Country != "" {
		b.WriteString("<br />")
		b.WriteString(part(a.Country))
	}

	formatted := repeatedCommas.ReplaceAllString(b.String(), ", ")
	formatted = leadingComma.ReplaceAllString(formatted, "")
	formatted = trailingComma.ReplaceAllString(formatted, "")
	return strings.TrimSpace(formatted)
}

// Distance behaves like Location.Distance but returns the distance computed
// by a proximity query when no target is given.
func (a *Address) Distance(target Locatable, units string) *float64 {
	if target == nil && a.KnownDistance != nil {
		d := *a.KnownDistance
		return &d
	}
	return a.Location.Distance(target, units)
}
