// Package dynamicmap builds map DNA: an ordered instruction log describing a
// map and the operations applied to it. The log is embedded in page markup
// by Tag and replayed in the browser.
package dynamicmap

import (
	"context"

	"mapdna/internal/elements"
	"mapdna/internal/geo"
	"mapdna/internal/view"
	"mapdna/platform/apperr"
	"mapdna/platform/logger"
)

// Fatal configuration errors returned by Tag.
var (
	ErrEmptyDNA      = apperr.Misconfigured("Model misconfigured. The map DNA is empty.")
	ErrMisorderedDNA = apperr.Misconfigured("Map model misconfigured. The chain must begin with a map() segment.")
)

// AssetLoader registers the page resources a provider service needs.
type AssetLoader interface {
	Load(ctx context.Context, v *view.View, service string, params map[string]string)
}

// Deps are the collaborators of a map. Every field is optional.
type Deps struct {
	// Fields resolves the field handle of standalone addresses.
	Fields elements.FieldResolver
	// Popups renders popup templates.
	Popups PopupRenderer
	// Assets loads provider scripts when a map is tagged.
	Assets AssetLoader
	// View receives end-of-page scripts. Without a view all scripts are
	// emitted inline.
	View *view.View
	// Logging turns on verbose console logging in the browser.
	Logging bool
	// NewID generates random ids. Defaults to GenerateID.
	NewID func(prefix string) string
	Log   *logger.Logger
}

// DynamicMap accumulates the DNA of one map. Methods append a single
// instruction and return the map for chaining. It is not safe for concurrent
// use.
type DynamicMap struct {
	ID string

	deps       Deps
	dna        []Instruction
	popups     map[string]Options
	popupOrder []string
}

// New starts a map. opts["id"] names the map; a "map-xxxxxx" id is generated
// when it is missing. The map instruction carries the options but no
// locations; locations are added as markers with the id removed.
func New(deps Deps, locations any, opts Options) *DynamicMap {
	if deps.NewID == nil {
		deps.NewID = GenerateID
	}
	opts = opts.Clone()
	id := opts.String("id")
	if id == "" {
		id = deps.NewID("map")
		opts["id"] = id
	}

	m := &DynamicMap{
		ID:     id,
		deps:   deps,
		popups: make(map[string]Options),
	}
	m.dna = append(m.dna, Instruction{Type: TypeMap, Locations: []Record{}, Options: opts})

	markerOpts := opts.Clone()
	delete(markerOpts, "id")
	return m.Markers(locations, markerOpts)
}

// String explains how to output the map.
func (m *DynamicMap) String() string {
	return "To display a map, call Tag on the map object."
}

func (m *DynamicMap) extractor() Extractor {
	return Extractor{Fields: m.deps.Fields, NewID: m.deps.NewID}
}

// Markers adds markers for locations. With opts["popupTemplate"] set, every
// location becomes its own marker with a rendered popup.
func (m *DynamicMap) Markers(locations any, opts Options) *DynamicMap {
	if isEmpty(locations) {
		return m
	}
	opts = opts.Clone()

	if opts.String("popupTemplate") != "" {
		for _, loc := range flatten(locations) {
			m.individualMarker(loc, opts.Clone())
		}
		return m
	}

	m.dna = append(m.dna, Instruction{
		Type:      TypeMarkers,
		Locations: m.extractor().Extract(locations, opts),
		Options:   opts,
	})
	return m
}

func (m *DynamicMap) individualMarker(loc any, opts Options) {
	found := m.extractor().extract(loc, opts)
	if len(found) == 0 {
		return
	}

	explicit := opts.String("id")
	if explicit == "" && len(found) == 1 {
		opts["id"] = found[0].ID
	}

	for _, f := range found {
		markerID := explicit
		if markerID == "" {
			markerID = f.ID
		}
		m.addPopup(opts, markerID, m.popupContext(markerID, f))
	}

	delete(opts, "popupOptions")
	delete(opts, "popupTemplate")
	delete(opts, "field")

	records := make([]Record, len(found))
	for i, f := range found {
		records[i] = f.Record
	}
	m.dna = append(m.dna, Instruction{Type: TypeMarkers, Locations: records, Options: opts})
}

// popupContext is the data a popup template sees.
func (m *DynamicMap) popupContext(markerID string, f extracted) map[string]any {
	ctx := map[string]any{
		"mapId":    m.ID,
		"markerId": markerID,
		"coords":   geo.Coords{Lng: f.Lng, Lat: f.Lat},
	}
	switch {
	case f.item != nil:
		ctx["element"] = f.item
		ctx[f.item.RefHandle()] = f.item
		ctx["address"] = f.address
	case f.address != nil:
		ctx["address"] = f.address
	default:
		ctx["location"] = f.raw
	}
	return ctx
}

// Style sets the map style: a native style name such as "streets-v12", a
// style URL, or an inline style document.
func (m *DynamicMap) Style(style any) *DynamicMap {
	m.dna = append(m.dna, Instruction{Type: TypeStyle, MapStyle: style})
	return m
}

// Zoom sets the zoom level.
func (m *DynamicMap) Zoom(level float64) *DynamicMap {
	m.dna = append(m.dna, Instruction{Type: TypeZoom, Level: level})
	return m
}

// Center re-centers the map. It is a no-op when coords has no coordinates.
func (m *DynamicMap) Center(coords geo.Locatable) *DynamicMap {
	if coords == nil {
		return m
	}
	c, ok := coords.Coordinates()
	if !ok {
		return m
	}
	m.dna = append(m.dna, Instruction{Type: TypeCenter, Coords: &Center{Lng: c.Lng, Lat: c.Lat}})
	return m
}

// Fit fits the map to its visible markers. opts may be nil.
func (m *DynamicMap) Fit(opts Options) *DynamicMap {
	m.dna = append(m.dna, Instruction{Type: TypeFit, Options: opts})
	return m
}

// PanToMarker pans to a marker.
func (m *DynamicMap) PanToMarker(markerID string) *DynamicMap {
	m.dna = append(m.dna, Instruction{Type: TypePanToMarker, MarkerID: MarkerID(markerID)})
	return m
}

// ChangeMarker replaces the options of the referenced markers.
func (m *DynamicMap) ChangeMarker(ref MarkerRef, opts Options) *DynamicMap {
	m.dna = append(m.dna, Instruction{Type: TypeChangeMarker, MarkerID: ref, Options: opts})
	return m
}

// HideMarker hides the referenced markers.
func (m *DynamicMap) HideMarker(ref MarkerRef) *DynamicMap {
	return m.markerOp(TypeHideMarker, ref)
}

// ShowMarker shows the referenced markers.
func (m *DynamicMap) ShowMarker(ref MarkerRef) *DynamicMap {
	return m.markerOp(TypeShowMarker, ref)
}

// OpenPopup opens the popups of the referenced markers.
func (m *DynamicMap) OpenPopup(ref MarkerRef) *DynamicMap {
	return m.markerOp(TypeOpenPopup, ref)
}

// ClosePopup closes the popups of the referenced markers.
func (m *DynamicMap) ClosePopup(ref MarkerRef) *DynamicMap {
	return m.markerOp(TypeClosePopup, ref)
}

func (m *DynamicMap) markerOp(t Type, ref MarkerRef) *DynamicMap {
	m.dna = append(m.dna, Instruction{Type: t, MarkerID: ref})
	return m
}

// DNA returns a copy of the instruction sequence.
func (m *DynamicMap) DNA() []Instruction {
	out := make([]Instruction, len(m.dna))
	for i, in := range m.dna {
		in.Locations = append([]Record(nil), in.Locations...)
		if in.Options != nil {
			in.Options = in.Options.Clone()
		}
		in.MarkerID = MarkerRef{ids: in.MarkerID.IDs(), list: in.MarkerID.list}
		out[i] = in
	}
	return out
}

// Popups returns a copy of the rendered popup options keyed by marker id.
func (m *DynamicMap) Popups() map[string]Options {
	out := make(map[string]Options, len(m.popups))
	for id, p := range m.popups {
		out[id] = p.Clone()
	}
	return out
}

// validate checks the invariants Tag depends on.
func (m *DynamicMap) validate() error {
	if len(m.dna) == 0 {
		return ErrEmptyDNA
	}
	if m.dna[0].Type != TypeMap {
		return ErrMisorderedDNA
	}
	return nil
}

// FromDNA restores a map from a decoded instruction sequence, e.g. one posted
// back by a preview tool. The sequence must begin with a map instruction.
func FromDNA(deps Deps, dna []Instruction) (*DynamicMap, error) {
	if deps.NewID == nil {
		deps.NewID = GenerateID
	}
	m := &DynamicMap{deps: deps, dna: append([]Instruction(nil), dna...), popups: make(map[string]Options)}
	if err := m.validate(); err != nil {
		return nil, err
	}

	opts := m.dna[0].Options.Clone()
	id := opts.String("id")
	if id == "" {
		id = deps.NewID("map")
		opts["id"] = id
	}
	m.dna[0].Options = opts
	m.ID = id
	return m, nil
}
