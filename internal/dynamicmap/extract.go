package dynamicmap

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"mapdna/internal/elements"
	"mapdna/internal/geo"
)

// Record is a normalized coordinate record: a point plus the stable id the
// marker for it will carry.
type Record struct {
	Lng  float64  `json:"lng"`
	Lat  float64  `json:"lat"`
	Zoom *float64 `json:"zoom,omitempty"`
	ID   string   `json:"id"`
}

// Coordinates implements geo.Locatable.
func (r Record) Coordinates() (geo.Coords, bool) {
	return geo.Coords{Lng: r.Lng, Lat: r.Lat}, true
}

// JoinID is the id of a point that has no other identity: its longitude and
// latitude joined by a comma.
func JoinID(lng, lat float64) string {
	return formatFloat(lng) + "," + formatFloat(lat)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// extracted is a record together with the value it came from. The source is
// needed to build popup contexts.
type extracted struct {
	Record
	address *geo.Address
	item    elements.Item
	raw     any
}

// Extractor turns location-like values into coordinate records.
type Extractor struct {
	// Fields resolves address field ids to handles. It may be nil.
	Fields elements.FieldResolver
	// NewID generates random ids. It defaults to a uuid-based generator.
	NewID func(prefix string) string
}

// ExtractCoords is the extractor with default collaborators.
func ExtractCoords(locations any, opts Options) []Record {
	return Extractor{}.Extract(locations, opts)
}

// Extract returns one record per resolvable point in locations, in
// encounter order. Values without both coordinates are skipped.
//
// Accepted values: geo.Coords, Record, geo.Location, *geo.Address,
// geo.Address, maps carrying numeric "lng" and "lat", elements.Item, and
// slices of any of these. opts["field"] limits content items to the named
// address fields.
func (x Extractor) Extract(locations any, opts Options) []Record {
	found := x.extract(locations, opts)
	out := make([]Record, len(found))
	for i, f := range found {
		out[i] = f.Record
	}
	return out
}

func (x Extractor) extract(locations any, opts Options) []extracted {
	if isEmpty(locations) {
		return nil
	}
	if one, ok := x.single(locations); ok {
		return one
	}

	filter := opts.Strings("field")
	var out []extracted
	for _, loc := range flatten(locations) {
		if one, ok := x.single(loc); ok {
			out = append(out, one...)
			continue
		}
		if item, ok := loc.(elements.Item); ok {
			out = append(out, x.fromItem(item, filter)...)
		}
	}
	return out
}

// single handles the non-list, non-item shapes. ok is false when v is not one
// of them; a recognized value without coordinates yields ok with no records.
func (x Extractor) single(v any) ([]extracted, bool) {
	switch loc := v.(type) {
	case *geo.Address:
		return x.fromAddress(loc), true
	case geo.Address:
		return x.fromAddress(&loc), true
	case geo.Location:
		return fromLocation(loc, v), true
	case *geo.Location:
		if loc == nil {
			return nil, true
		}
		return fromLocation(*loc, v), true
	case geo.Coords:
		return []extracted{{Record: Record{Lng: loc.Lng, Lat: loc.Lat, ID: JoinID(loc.Lng, loc.Lat)}, raw: v}}, true
	case Record:
		if loc.ID == "" {
			loc.ID = JoinID(loc.Lng, loc.Lat)
		}
		return []extracted{{Record: loc, raw: v}}, true
	case Options:
		return fromMap(loc)
	case map[string]any:
		return fromMap(loc)
	}
	return nil, false
}

func (x Extractor) fromAddress(a *geo.Address) []extracted {
	c, ok := a.Coordinates()
	if !ok {
		return nil
	}
	id := ""
	if handle, ok := x.fieldHandle(a.FieldID); ok && a.OwnerID != 0 {
		id = strconv.FormatInt(a.OwnerID, 10) + "-" + handle
	} else {
		id = x.newID("marker")
	}
	return []extracted{{Record: Record{Lng: c.Lng, Lat: c.Lat, ID: id}, address: a, raw: a}}
}

func fromLocation(l geo.Location, raw any) []extracted {
	c, ok := l.Coordinates()
	if !ok {
		return nil
	}
	return []extracted{{Record: Record{Lng: c.Lng, Lat: c.Lat, ID: JoinID(c.Lng, c.Lat)}, raw: raw}}
}

// fromMap reads a plain coordinate object. A map without both keys is not a
// coordinate object at all.
func fromMap(m map[string]any) ([]extracted, bool) {
	rawLng, hasLng := m["lng"]
	rawLat, hasLat := m["lat"]
	if !hasLng || !hasLat {
		return nil, false
	}
	lng, okLng := toFloat(rawLng)
	lat, okLat := toFloat(rawLat)
	if !okLng || !okLat {
		return nil, true
	}

	r := Record{Lng: lng, Lat: lat}
	if z, ok := toFloat(m["zoom"]); ok {
		r.Zoom = &z
	}
	if id := idString(m["id"]); id != "" {
		r.ID = id
	} else {
		r.ID = JoinID(lng, lat)
	}
	return []extracted{{Record: r, raw: m}}, true
}

// idString accepts string ids and numeric ones, which are formatted the way
// the client formats them.
func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case json.Number:
		return id.String()
	case int, int32, int64, float32, float64:
		f, _ := toFloat(id)
		return formatFloat(f)
	}
	return ""
}

func (x Extractor) fromItem(item elements.Item, filter []string) []extracted {
	var out []extracted
	for _, f := range item.Layout() {
		if len(filter) > 0 && !contains(filter, f.Handle) {
			continue
		}
		if !f.IsAddress() || f.Address == nil {
			continue
		}
		c, ok := f.Address.Coordinates()
		if !ok {
			continue
		}
		out = append(out, extracted{
			Record:  Record{Lng: c.Lng, Lat: c.Lat, ID: strconv.FormatInt(item.ItemID(), 10) + "-" + f.Handle},
			address: f.Address,
			item:    item,
			raw:     item,
		})
	}
	return out
}

func (x Extractor) fieldHandle(fieldID int64) (string, bool) {
	if x.Fields == nil || fieldID == 0 {
		return "", false
	}
	return x.Fields.FieldHandle(fieldID)
}

func (x Extractor) newID(prefix string) string {
	if x.NewID != nil {
		return x.NewID(prefix)
	}
	return GenerateID(prefix)
}

// asList reports whether v is one of the accepted list shapes and returns its
// elements.
func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []map[string]any:
		return toAny(l), true
	case []Options:
		return toAny(l), true
	case []Record:
		return toAny(l), true
	case []geo.Coords:
		return toAny(l), true
	case []geo.Location:
		return toAny(l), true
	case []*geo.Address:
		return toAny(l), true
	case []elements.Item:
		return toAny(l), true
	case []*elements.Element:
		return toAny(l), true
	}
	return nil, false
}

func toAny[T any](in []T) []any {
	out := make([]any, len(in))
	for i := range in {
		out[i] = in[i]
	}
	return out
}

// flatten expands nested lists into singular location values, depth first
// and in order. It iterates so nesting depth is bounded only by memory.
func flatten(v any) []any {
	var out []any
	stack := [][]any{{v}}
	for len(stack) > 0 {
		top := len(stack) - 1
		if len(stack[top]) == 0 {
			stack = stack[:top]
			continue
		}
		head := stack[top][0]
		stack[top] = stack[top][1:]

		if isCoordinateMap(head) {
			out = append(out, head)
			continue
		}
		if list, ok := asList(head); ok {
			stack = append(stack, list)
			continue
		}
		if !isEmpty(head) {
			out = append(out, head)
		}
	}
	return out
}

func isCoordinateMap(v any) bool {
	var m map[string]any
	switch t := v.(type) {
	case map[string]any:
		m = t
	case Options:
		m = t
	default:
		return false
	}
	_, lng := m["lng"]
	_, lat := m["lat"]
	return lng && lat
}

// isEmpty mirrors the falsy check on location arguments.
func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case *geo.Address:
		return t == nil
	case *geo.Location:
		return t == nil
	case *elements.Element:
		return t == nil
	case map[string]any:
		return len(t) == 0
	case Options:
		return len(t) == 0
	}
	if list, ok := asList(v); ok {
		return len(list) == 0
	}
	return false
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
