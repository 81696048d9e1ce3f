package interpreter

import (
	"fmt"
	"sort"
	"sync"

	"mapdna/internal/dynamicmap"
)

// Config wires a registry to its page.
type Config struct {
	Engine   Engine
	Document Document
	Console  Console
	Page     Page
	// Scheduler runs the delayed fit. Defaults to real timers.
	Scheduler Scheduler
	// NewID generates map and marker ids. Defaults to dynamicmap.GenerateID.
	NewID func(prefix string) string
}

// Registry owns every map on one page, keyed by id.
type Registry struct {
	rt *runtime

	mu   sync.Mutex
	maps map[string]*DynamicMap
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	if cfg.Scheduler == nil {
		cfg.Scheduler = TimerScheduler{}
	}
	if cfg.NewID == nil {
		cfg.NewID = dynamicmap.GenerateID
	}
	if cfg.Console == nil {
		cfg.Console = &Transcript{}
	}
	return &Registry{
		rt: &runtime{
			engine:    cfg.Engine,
			doc:       cfg.Document,
			console:   cfg.Console,
			page:      cfg.Page,
			scheduler: cfg.Scheduler,
			newID:     cfg.NewID,
		},
		maps: make(map[string]*DynamicMap),
	}
}

func (r *Registry) logf(format string, args ...any) {
	if r.rt.page.Logging {
		r.rt.console.Log(fmt.Sprintf(format, args...))
	}
}

func (r *Registry) warnf(format string, args ...any) {
	r.rt.console.Warn(fmt.Sprintf("[MB] "+format, args...))
}

func (r *Registry) store(m *DynamicMap) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.maps[m.ID]; ok && old != m {
		old.close()
	}
	r.maps[m.ID] = m
}

// Map constructs a map directly and registers it.
func (r *Registry) Map(locations []Location, options map[string]any) *DynamicMap {
	r.logf("Creating a new map object")
	m := newDynamicMap(r.rt, locations, options)
	r.store(m)
	return m
}

// GetMap returns a registered map.
func (r *Registry) GetMap(id string) (*DynamicMap, bool) {
	r.mu.Lock()
	m, ok := r.maps[id]
	r.mu.Unlock()
	if !ok {
		r.warnf("Unable to find map %q", id)
	}
	return m, ok
}

// Maps returns the registered maps ordered by id.
func (r *Registry) Maps() []*DynamicMap {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*DynamicMap, 0, len(r.maps))
	for _, id := range sortedKeys(r.maps) {
		out = append(out, r.maps[id])
	}
	return out
}

// InitStatus is the outcome of initializing one container.
type InitStatus string

const (
	InitOK         InitStatus = "ok"
	InitNotFound   InitStatus = "not-found"
	InitNoElement  InitStatus = "no-element"
	InitDuplicate  InitStatus = "duplicate"
	InitMissingDNA InitStatus = "missing-dna"
	InitBadDNA     InitStatus = "bad-dna"
)

// InitResult reports one container.
type InitResult struct {
	ID     string      `json:"id"`
	Status InitStatus  `json:"status"`
	Map    *DynamicMap `json:"-"`
}

// Init replays the DNA of the containers with the given ids, or of every
// managed container when no ids are given. Problem containers are skipped
// with a warning. callback runs once after all containers.
func (r *Registry) Init(callback func(), ids ...string) []InitResult {
	type target struct {
		id string
		el Element
	}

	var targets []target
	if len(ids) == 0 {
		for _, el := range r.rt.doc.ElementsByClass(dynamicmap.ContainerClass) {
			targets = append(targets, target{id: el.ID(), el: el})
		}
	} else {
		for _, id := range ids {
			el, _ := r.rt.doc.ElementByID(id)
			targets = append(targets, target{id: id, el: el})
		}
	}

	results := make([]InitResult, 0, len(targets))
	for _, t := range targets {
		if t.el == nil {
			r.warnf("Cannot find specified map container #%s", t.id)
			results = append(results, InitResult{ID: t.id, Status: InitNotFound})
			continue
		}

		switch n := r.rt.doc.CountID(t.id); {
		case n == 0:
			r.warnf("No DOM element exists using the identifier #%s", t.id)
			results = append(results, InitResult{ID: t.id, Status: InitNoElement})
			continue
		case n > 1:
			r.warnf("Multiple DOM elements are using the identifier #%s", t.id)
			results = append(results, InitResult{ID: t.id, Status: InitDuplicate})
			continue
		}

		r.logf("[%s] Initializing map", t.id)

		dna, _ := t.el.Attr("data-dna")
		if dna == "" {
			r.warnf("Map container #%s is missing DNA", t.id)
			results = append(results, InitResult{ID: t.id, Status: InitMissingDNA})
			continue
		}

		m := r.Unpack([]byte(dna))
		if m == nil {
			results = append(results, InitResult{ID: t.id, Status: InitBadDNA})
			continue
		}
		results = append(results, InitResult{ID: t.id, Status: InitOK, Map: m})
	}

	if callback != nil {
		r.logf("Running map callback function")
		callback()
	}
	return results
}

// Unpack replays a DNA string and registers the resulting map. It returns
// nil when the DNA cannot be used at all; a bad instruction only skips
// that instruction.
func (r *Registry) Unpack(dna []byte) *DynamicMap {
	seq, err := ParseDNA(dna)
	if err != nil {
		r.warnf("Unable to read map DNA: %v", err)
		return nil
	}
	if len(seq.Blocks) == 0 {
		r.warnf("No map DNA provided.")
		return nil
	}
	if len(seq.Skipped) > 0 {
		idx := make([]int, 0, len(seq.Skipped))
		for i := range seq.Skipped {
			idx = append(idx, i)
		}
		sort.Ints(idx)
		for _, i := range idx {
			r.warnf("Skipping unreadable DNA block %d: %v", i, seq.Skipped[i])
		}
	}
	if seq.Blocks[0].Type != dynamicmap.TypeMap {
		r.warnf("Map DNA is misconfigured.")
		return nil
	}

	var m *DynamicMap
	for _, b := range seq.Blocks {
		if b.Type == dynamicmap.TypeMap {
			if m != nil {
				r.store(m)
			}
			m = newDynamicMap(r.rt, b.Locations, b.Options)
			continue
		}
		m.Apply(b)
	}

	m.Tag("")
	r.store(m)
	return m
}

// Apply runs one instruction against the map.
func (m *DynamicMap) Apply(b Block) {
	switch b.Type {
	case dynamicmap.TypeMarkers:
		m.Markers(b.Locations, b.Options)
	case dynamicmap.TypeStyle:
		m.Style(b.MapStyle)
	case dynamicmap.TypeZoom:
		level := 0.0
		if b.Level != nil {
			level = *b.Level
		}
		m.Zoom(level)
	case dynamicmap.TypeCenter:
		m.Center(b.Coords)
	case dynamicmap.TypeFit:
		m.Fit(b.Options)
	case dynamicmap.TypePanToMarker:
		m.PanToMarker(b.MarkerID.Single())
	case dynamicmap.TypeChangeMarker:
		m.ChangeMarker(b.MarkerID, b.Options)
	case dynamicmap.TypeHideMarker:
		m.HideMarker(b.MarkerID)
	case dynamicmap.TypeShowMarker:
		m.ShowMarker(b.MarkerID)
	case dynamicmap.TypeOpenPopup:
		m.OpenPopup(b.MarkerID)
	case dynamicmap.TypeClosePopup:
		m.ClosePopup(b.MarkerID)
	default:
		m.warnf("Unknown DNA instruction %q", b.Type)
	}
}

// Teardown removes a map and cancels its pending work.
func (r *Registry) Teardown(id string) bool {
	r.mu.Lock()
	m, ok := r.maps[id]
	delete(r.maps, id)
	r.mu.Unlock()
	if ok {
		m.close()
	}
	return ok
}

// Sweep tears down every map whose container has left the document and
// returns their ids.
func (r *Registry) Sweep() []string {
	var gone []string
	for _, m := range r.Maps() {
		if !m.div.Attached() {
			gone = append(gone, m.ID)
		}
	}
	for _, id := range gone {
		r.Teardown(id)
	}
	return gone
}
