package interpreter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"mapdna/internal/dynamicmap"
)

// Location is one coordinate record handed to Markers. A record is only
// usable when both coordinates are present.
type Location struct {
	Lng *float64
	Lat *float64
	ID  string
}

// At is a convenience constructor for a usable location.
func At(lng, lat float64, id string) Location {
	return Location{Lng: &lng, Lat: &lat, ID: id}
}

func (l Location) valid() bool { return l.Lng != nil && l.Lat != nil }

// UnmarshalJSON reads {lng, lat, id}. Coordinates may be numbers or numeric
// strings; anything else leaves them unset.
func (l *Location) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*l = Location{}
	if f, ok := number(raw["lng"]); ok {
		l.Lng = &f
	}
	if f, ok := number(raw["lat"]); ok {
		l.Lat = &f
	}
	switch id := raw["id"].(type) {
	case string:
		l.ID = id
	case float64:
		l.ID = strconv.FormatFloat(id, 'f', -1, 64)
	}
	return nil
}

// Block is one decoded DNA instruction.
type Block struct {
	Type      dynamicmap.Type
	Locations []Location
	Options   map[string]any
	MapStyle  any
	Level     *float64
	Coords    *LngLat
	MarkerID  dynamicmap.MarkerRef
}

type blockWire struct {
	Type      dynamicmap.Type `json:"type"`
	Locations json.RawMessage `json:"locations"`
	Options   map[string]any  `json:"options"`
	MapStyle  any             `json:"mapStyle"`
	Level     any             `json:"level"`
	Coords    any             `json:"coords"`
	MarkerID  json.RawMessage `json:"markerId"`
}

// UnmarshalJSON decodes a block leniently: malformed optional fields are
// left empty rather than failing the block.
func (b *Block) UnmarshalJSON(data []byte) error {
	var w blockWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*b = Block{Type: w.Type, Options: w.Options, MapStyle: w.MapStyle}
	b.Locations = decodeLocations(w.Locations)
	if f, ok := number(w.Level); ok {
		b.Level = &f
	}
	if c, ok := parseCoords(w.Coords); ok {
		b.Coords = &c
	}
	if len(w.MarkerID) > 0 {
		if err := json.Unmarshal(w.MarkerID, &b.MarkerID); err != nil {
			return fmt.Errorf("markerId: %w", err)
		}
	}
	return nil
}

// decodeLocations accepts an array of records or a single record.
func decodeLocations(raw json.RawMessage) []Location {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '{' {
		var l Location
		if err := json.Unmarshal(raw, &l); err != nil {
			return nil
		}
		return []Location{l}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]Location, 0, len(items))
	for _, item := range items {
		var l Location
		if err := json.Unmarshal(item, &l); err != nil {
			continue
		}
		out = append(out, l)
	}
	return out
}

// Sequence is a decoded DNA string. Blocks that failed to decode are
// reported in Skipped by index.
type Sequence struct {
	Blocks  []Block
	Skipped map[int]error
}

// ParseDNA decodes a DNA string. Only a document that is not a JSON array
// is an error; individual malformed blocks are skipped.
func ParseDNA(dna []byte) (Sequence, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(dna, &raw); err != nil {
		return Sequence{}, fmt.Errorf("decode map dna: %w", err)
	}
	seq := Sequence{Blocks: make([]Block, 0, len(raw))}
	for i, r := range raw {
		var b Block
		if err := json.Unmarshal(r, &b); err != nil {
			if seq.Skipped == nil {
				seq.Skipped = make(map[int]error)
			}
			seq.Skipped[i] = err
			continue
		}
		seq.Blocks = append(seq.Blocks, b)
	}
	return seq, nil
}

var nativeStyle = regexp.MustCompile(`^[a-z-]+-v[0-9]+$`)

// DefaultStyle is used when a map names no style.
const DefaultStyle = "streets-v12"

// NormalizeStyle accepts the three style forms: a native token such as
// "outdoors-v12" becomes the provider URL, a URL is kept, and any other
// string is decoded as an inline style document. Non-string values pass
// through; empty values yield nil.
func NormalizeStyle(style any) (any, error) {
	if falsy(style) {
		return nil, nil
	}
	s, ok := style.(string)
	if !ok {
		return style, nil
	}
	if nativeStyle.MatchString(s) {
		return "mapbox://styles/mapbox/" + s, nil
	}
	if strings.Contains(s, "://") {
		return s, nil
	}
	var doc any
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		return nil, fmt.Errorf("decode inline style: %w", err)
	}
	return doc, nil
}

// parseCoords reads {lng, lat} or a [lng, lat] pair.
func parseCoords(v any) (LngLat, bool) {
	switch c := v.(type) {
	case LngLat:
		return c, true
	case *LngLat:
		if c == nil {
			return LngLat{}, false
		}
		return *c, true
	case map[string]any:
		lng, okLng := number(c["lng"])
		lat, okLat := number(c["lat"])
		if okLng && okLat {
			return LngLat{Lng: lng, Lat: lat}, true
		}
	case []any:
		if len(c) == 2 {
			lng, okLng := number(c[0])
			lat, okLat := number(c[1])
			if okLng && okLat {
				return LngLat{Lng: lng, Lat: lat}, true
			}
		}
	case []float64:
		if len(c) == 2 {
			return LngLat{Lng: c[0], Lat: c[1]}, true
		}
	}
	return LngLat{}, false
}

// number reads a finite number from a JSON value or numeric string.
func number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
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

// falsy mirrors the client's notion of an absent option.
func falsy(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case bool:
		return !x
	case float64:
		return x == 0 || math.IsNaN(x)
	case int:
		return x == 0
	}
	return false
}

func optionMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
