package mapspec

import (
	"context"
	"fmt"
	"html/template"

	"mapdna/internal/dynamicmap"
	"mapdna/internal/elements"
	"mapdna/internal/geo"
	"mapdna/platform/apperr"
	"mapdna/platform/validator"
)

// Compiler turns documents into maps.
type Compiler struct {
	val    *validator.Validator
	source elements.Source
}

// NewCompiler creates a compiler. source resolves element references; it may
// be nil, in which case only inline elements can be referenced.
func NewCompiler(val *validator.Validator, source elements.Source) *Compiler {
	return &Compiler{val: val, source: source}
}

// Validate checks the document's structure and that every step names
// exactly one operation.
func (c *Compiler) Validate(doc *Document) error {
	if err := c.val.Struct(doc); err != nil {
		return apperr.Validation("invalid map document").WithDetails(validator.FieldErrors(err))
	}

	var problems []string
	check := func(path string, locs []Location) {
		for i, l := range locs {
			problems = append(problems, c.checkLocation(fmt.Sprintf("%s[%d]", path, i), l)...)
		}
	}
	check("locations", doc.Locations)
	for i, s := range doc.Steps {
		path := fmt.Sprintf("steps[%d]", i)
		if n := s.count(); n != 1 {
			problems = append(problems, fmt.Sprintf("%s: expected exactly one operation, got %d", path, n))
		}
		if s.Markers != nil {
			check(path+".markers.locations", s.Markers.Locations)
		}
		if s.Fit != nil {
			_, isMap := s.Fit.(map[string]any)
			if b, isBool := s.Fit.(bool); !isMap && !(isBool && b) {
				problems = append(problems, path+".fit: expected options or true")
			}
		}
	}
	for i, e := range doc.Elements {
		for j, f := range e.Fields {
			if f.Address == nil {
				continue
			}
			if err := c.val.Struct(geo.InputFromMap(f.Address)); err != nil {
				for _, msg := range validator.FieldErrors(err) {
					problems = append(problems, fmt.Sprintf("elements[%d].fields[%d].address: %s", i, j, msg))
				}
			}
		}
	}

	if len(problems) > 0 {
		return apperr.Validation("invalid map document").WithDetails(problems)
	}
	return nil
}

func (c *Compiler) checkLocation(path string, l Location) []string {
	var problems []string
	set := 0
	if l.Lng != nil || l.Lat != nil {
		set++
		if l.Lng == nil || l.Lat == nil {
			problems = append(problems, path+": lng and lat must be given together")
		}
	}
	if l.Address != nil {
		set++
		if err := c.val.Struct(geo.InputFromMap(l.Address)); err != nil {
			for _, msg := range validator.FieldErrors(err) {
				problems = append(problems, path+".address: "+msg)
			}
		}
	}
	if l.Element != 0 {
		set++
	}
	if len(l.Elements) > 0 {
		set++
	}
	if set != 1 {
		problems = append(problems, fmt.Sprintf("%s: expected exactly one of lng/lat, address, element or elements, got %d", path, set))
	}
	return problems
}

func (s Step) count() int {
	n := 0
	for _, set := range []bool{
		s.Markers != nil, s.Style != nil, s.Zoom != nil, s.Center != nil, s.Fit != nil,
		s.PanToMarker != "", s.ChangeMarker != nil, s.HideMarker != nil, s.ShowMarker != nil,
		s.OpenPopup != nil, s.ClosePopup != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

// Build validates doc and replays it against a new map.
func (c *Compiler) Build(ctx context.Context, doc *Document, deps dynamicmap.Deps) (*dynamicmap.DynamicMap, error) {
	if err := c.Validate(doc); err != nil {
		return nil, err
	}

	source := c.sourceFor(doc)
	if deps.Fields == nil {
		deps.Fields = elements.RegistryFromElements(doc.inlineElements()...)
	}

	locations, err := c.resolve(ctx, source, doc.Locations)
	if err != nil {
		return nil, err
	}

	opts := dynamicmap.Options(doc.Options).Clone()
	if doc.ID != "" {
		opts["id"] = doc.ID
	}
	m := dynamicmap.New(deps, locations, opts)

	for _, s := range doc.Steps {
		if err := c.apply(ctx, source, m, s); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Render builds doc and tags the map with the document's tag options.
func (c *Compiler) Render(ctx context.Context, doc *Document, deps dynamicmap.Deps) (template.HTML, *dynamicmap.DynamicMap, error) {
	m, err := c.Build(ctx, doc, deps)
	if err != nil {
		return "", nil, err
	}
	out, err := m.Tag(ctx, doc.Tag)
	if err != nil {
		return "", nil, err
	}
	return out, m, nil
}

func (c *Compiler) apply(ctx context.Context, source elements.Source, m *dynamicmap.DynamicMap, s Step) error {
	switch {
	case s.Markers != nil:
		locations, err := c.resolve(ctx, source, s.Markers.Locations)
		if err != nil {
			return err
		}
		m.Markers(locations, dynamicmap.Options(s.Markers.Options))
	case s.Style != nil:
		m.Style(s.Style)
	case s.Zoom != nil:
		m.Zoom(*s.Zoom)
	case s.Center != nil:
		m.Center(geo.Coords{Lng: s.Center.Lng, Lat: s.Center.Lat})
	case s.Fit != nil:
		opts, _ := s.Fit.(map[string]any)
		m.Fit(dynamicmap.Options(opts))
	case s.PanToMarker != "":
		m.PanToMarker(s.PanToMarker)
	case s.ChangeMarker != nil:
		m.ChangeMarker(s.ChangeMarker.MarkerID.ref(), dynamicmap.Options(s.ChangeMarker.Options))
	case s.HideMarker != nil:
		m.HideMarker(s.HideMarker.ref())
	case s.ShowMarker != nil:
		m.ShowMarker(s.ShowMarker.ref())
	case s.OpenPopup != nil:
		m.OpenPopup(s.OpenPopup.ref())
	case s.ClosePopup != nil:
		m.ClosePopup(s.ClosePopup.ref())
	}
	return nil
}

// resolve turns location specs into values the map builder accepts.
func (c *Compiler) resolve(ctx context.Context, source elements.Source, specs []Location) ([]any, error) {
	out := make([]any, 0, len(specs))
	for _, l := range specs {
		switch {
		case l.Lng != nil && l.Lat != nil:
			if l.ID != "" {
				out = append(out, dynamicmap.Record{Lng: *l.Lng, Lat: *l.Lat, ID: l.ID})
			} else {
				out = append(out, geo.Coords{Lng: *l.Lng, Lat: *l.Lat})
			}
		case l.Address != nil:
			out = append(out, geo.FromInput(geo.InputFromMap(l.Address), 0, 0))
		case l.Element != 0:
			if source == nil {
				return nil, apperr.Unavailable("element references need an element source")
			}
			e, err := source.GetElement(ctx, l.Element)
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		case len(l.Elements) > 0:
			if source == nil {
				return nil, apperr.Unavailable("element references need an element source")
			}
			items, err := source.GetElements(ctx, l.Elements)
			if err != nil {
				return nil, err
			}
			for _, e := range items {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

// sourceFor prefers inline elements over the configured source.
func (c *Compiler) sourceFor(doc *Document) elements.Source {
	inline := doc.inlineElements()
	if len(inline) == 0 {
		return c.source
	}
	return layeredSource{inline: elements.NewMemorySource(inline...), next: c.source}
}

func (d *Document) inlineElements() []*elements.Element {
	out := make([]*elements.Element, 0, len(d.Elements))
	for _, e := range d.Elements {
		el := &elements.Element{ID: e.ID, Kind: e.Kind, Title: e.Title}
		for _, f := range e.Fields {
			field := elements.Field{ID: f.ID, Handle: f.Handle, Name: f.Handle, Type: f.Type}
			if f.Address != nil {
				if field.Type == "" {
					field.Type = elements.FieldTypeAddress
				}
				field.Address = geo.FromInput(geo.InputFromMap(f.Address), e.ID, f.ID)
			}
			el.Fields = append(el.Fields, field)
		}
		out = append(out, el)
	}
	return out
}

// layeredSource serves inline elements first and falls back to next.
type layeredSource struct {
	inline *elements.MemorySource
	next   elements.Source
}

func (l layeredSource) GetElement(ctx context.Context, id int64) (*elements.Element, error) {
	e, err := l.inline.GetElement(ctx, id)
	if err == nil || l.next == nil {
		return e, err
	}
	return l.next.GetElement(ctx, id)
}

func (l layeredSource) GetElements(ctx context.Context, ids []int64) ([]*elements.Element, error) {
	found, _ := l.inline.GetElements(ctx, ids)
	if l.next == nil || len(found) == len(ids) {
		return found, nil
	}

	have := make(map[int64]*elements.Element, len(found))
	for _, e := range found {
		have[e.ID] = e
	}
	var missing []int64
	for _, id := range ids {
		if _, ok := have[id]; !ok {
			missing = append(missing, id)
		}
	}
	rest, err := l.next.GetElements(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, e := range rest {
		have[e.ID] = e
	}

	out := make([]*elements.Element, 0, len(ids))
	for _, id := range ids {
		if e, ok := have[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}
