package dynamicmap

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Type discriminates DNA instructions on the wire.
type Type string

const (
	TypeMap          Type = "map"
	TypeMarkers      Type = "markers"
	TypeStyle        Type = "style"
	TypeZoom         Type = "zoom"
	TypeCenter       Type = "center"
	TypeFit          Type = "fit"
	TypePanToMarker  Type = "panToMarker"
	TypeChangeMarker Type = "changeMarker"
	TypeHideMarker   Type = "hideMarker"
	TypeShowMarker   Type = "showMarker"
	TypeOpenPopup    Type = "openPopup"
	TypeClosePopup   Type = "closePopup"
)

// Wildcard addresses every tracked marker or popup.
const Wildcard = "*"

// Options is a free-form option bag. It is serialized as given.
type Options map[string]any

// Clone returns a shallow copy. A nil receiver yields an empty bag.
func (o Options) Clone() Options {
	out := make(Options, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// String returns the option as a string, or "" when unset or not a string.
func (o Options) String(key string) string {
	s, _ := o[key].(string)
	return s
}

// Strings returns the option as a string list. A single string becomes a
// one-element list.
func (o Options) Strings(key string) []string {
	switch v := o[key].(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Map returns a nested option bag, or nil.
func (o Options) Map(key string) Options {
	switch v := o[key].(type) {
	case Options:
		return v
	case map[string]any:
		return Options(v)
	}
	return nil
}

// MarkerRef addresses markers by a single id, the wildcard, or a list of ids.
type MarkerRef struct {
	ids  []string
	list bool
}

// MarkerID references one marker.
func MarkerID(id string) MarkerRef { return MarkerRef{ids: []string{id}} }

// MarkerIDs references several markers.
func MarkerIDs(ids ...string) MarkerRef {
	return MarkerRef{ids: append([]string(nil), ids...), list: true}
}

// AllMarkers references every tracked marker.
func AllMarkers() MarkerRef { return MarkerID(Wildcard) }

// IsList reports whether the reference is an explicit list of ids.
func (r MarkerRef) IsList() bool { return r.list }

// IsWildcard reports whether the reference is the "*" wildcard.
func (r MarkerRef) IsWildcard() bool {
	return !r.list && len(r.ids) == 1 && r.ids[0] == Wildcard
}

// IDs returns the referenced ids. For a single reference it has one element.
func (r MarkerRef) IDs() []string { return append([]string(nil), r.ids...) }

// Single returns the id of a single reference.
func (r MarkerRef) Single() string {
	if r.list || len(r.ids) == 0 {
		return ""
	}
	return r.ids[0]
}

// MarshalJSON writes a string for single references and an array for lists.
func (r MarkerRef) MarshalJSON() ([]byte, error) {
	if r.list {
		if r.ids == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(r.ids)
	}
	return json.Marshal(r.Single())
}

// UnmarshalJSON accepts a string or an array of strings.
func (r *MarkerRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var ids []string
		if err := json.Unmarshal(data, &ids); err != nil {
			return fmt.Errorf("marker id list: %w", err)
		}
		*r = MarkerIDs(ids...)
		return nil
	}
	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		return fmt.Errorf("marker id: %w", err)
	}
	*r = MarkerID(id)
	return nil
}

// Instruction is one DNA step. Only the fields belonging to Type are
// meaningful, and only those are written to JSON.
type Instruction struct {
	Type      Type
	Locations []Record
	Options   Options
	MapStyle  any
	Level     float64
	Coords    *Center
	MarkerID  MarkerRef
}

// Center is the target of a center instruction.
type Center struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

type mapWire struct {
	Type      Type     `json:"type"`
	Locations []Record `json:"locations"`
	Options   Options  `json:"options"`
}

type styleWire struct {
	Type     Type `json:"type"`
	MapStyle any  `json:"mapStyle"`
}

type zoomWire struct {
	Type  Type    `json:"type"`
	Level float64 `json:"level"`
}

type centerWire struct {
	Type   Type    `json:"type"`
	Coords *Center `json:"coords"`
}

type fitWire struct {
	Type    Type    `json:"type"`
	Options Options `json:"options"`
}

type markerWire struct {
	Type     Type      `json:"type"`
	MarkerID MarkerRef `json:"markerId"`
}

type changeMarkerWire struct {
	Type     Type      `json:"type"`
	MarkerID MarkerRef `json:"markerId"`
	Options  Options   `json:"options"`
}

// MarshalJSON writes the wire shape for the instruction type.
func (in Instruction) MarshalJSON() ([]byte, error) {
	switch in.Type {
	case TypeMap, TypeMarkers:
		locs := in.Locations
		if locs == nil {
			locs = []Record{}
		}
		opts := in.Options
		if opts == nil {
			opts = Options{}
		}
		return json.Marshal(mapWire{Type: in.Type, Locations: locs, Options: opts})
	case TypeStyle:
		return json.Marshal(styleWire{Type: in.Type, MapStyle: in.MapStyle})
	case TypeZoom:
		return json.Marshal(zoomWire{Type: in.Type, Level: in.Level})
	case TypeCenter:
		return json.Marshal(centerWire{Type: in.Type, Coords: in.Coords})
	case TypeFit:
		return json.Marshal(fitWire{Type: in.Type, Options: in.Options})
	case TypePanToMarker, TypeHideMarker, TypeShowMarker, TypeOpenPopup, TypeClosePopup:
		return json.Marshal(markerWire{Type: in.Type, MarkerID: in.MarkerID})
	case TypeChangeMarker:
		opts := in.Options
		if opts == nil {
			opts = Options{}
		}
		return json.Marshal(changeMarkerWire{Type: in.Type, MarkerID: in.MarkerID, Options: opts})
	}
	return nil, fmt.Errorf("unknown instruction type %q", in.Type)
}

type instructionWire struct {
	Type      Type            `json:"type"`
	Locations []Record        `json:"locations"`
	Options   Options         `json:"options"`
	MapStyle  any             `json:"mapStyle"`
	Level     *float64        `json:"level"`
	Coords    json.RawMessage `json:"coords"`
	MarkerID  *MarkerRef      `json:"markerId"`
}

// UnmarshalJSON reads any instruction. Unknown types are kept so the
// interpreter can skip them.
func (in *Instruction) UnmarshalJSON(data []byte) error {
	var w instructionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*in = Instruction{
		Type:      w.Type,
		Locations: w.Locations,
		Options:   w.Options,
		MapStyle:  w.MapStyle,
	}
	if w.Level != nil {
		in.Level = *w.Level
	}
	if w.MarkerID != nil {
		in.MarkerID = *w.MarkerID
	}
	if len(w.Coords) > 0 && string(w.Coords) != "null" {
		c, err := decodeCenter(w.Coords)
		if err != nil {
			return err
		}
		in.Coords = c
	}
	return nil
}

// decodeCenter accepts {"lng":..,"lat":..} or [lng, lat].
func decodeCenter(raw json.RawMessage) (*Center, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var pair []float64
		if err := json.Unmarshal(raw, &pair); err != nil {
			return nil, fmt.Errorf("center coords: %w", err)
		}
		if len(pair) != 2 {
			return nil, fmt.Errorf("center coords: want [lng, lat], got %d values", len(pair))
		}
		return &Center{Lng: pair[0], Lat: pair[1]}, nil
	}
	var c Center
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("center coords: %w", err)
	}
	return &c, nil
}

// DecodeDNA parses a serialized instruction sequence.
func DecodeDNA(data []byte) ([]Instruction, error) {
	var dna []Instruction
	if err := json.Unmarshal(data, &dna); err != nil {
		return nil, fmt.Errorf("decode map dna: %w", err)
	}
	return dna, nil
}
