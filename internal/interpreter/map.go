package interpreter

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"mapdna/internal/dynamicmap"
)

const (
	// ComfortableZoom is used when fewer than two markers exist and no
	// zoom was requested.
	ComfortableZoom = 11
	// oceanZoom is forced when there is nothing to center on.
	oceanZoom = 2
	// FitDelay is how long calibration waits before fitting the map to
	// its markers.
	FitDelay = 10 * time.Millisecond

	heightGuideURL = "https://plugins.doublesecretagency.com/mapbox/guides/setting-map-height/"
)

// DefaultPadding is the fit padding used unless a fit names its own.
func DefaultPadding() map[string]any {
	return map[string]any{"top": 70, "right": 40, "bottom": 40, "left": 40}
}

// runtime is what every map on a page shares.
type runtime struct {
	engine    Engine
	doc       Document
	console   Console
	page      Page
	scheduler Scheduler
	newID     func(prefix string) string
}

type defaults struct {
	center        LngLat
	zoom          *float64
	markerOptions map[string]any
	popupOptions  map[string]any
}

// DynamicMap is one live map being driven by DNA or by direct calls. It is
// safe for concurrent use; the delayed fit runs on the scheduler's goroutine.
type DynamicMap struct {
	ID string

	rt  *runtime
	div Element

	mu         sync.Mutex
	live       Map
	markers    map[string]Marker
	popups     map[string]Popup
	d          defaults
	pendingFit func() bool
	closed     bool
}

func newDynamicMap(rt *runtime, locations []Location, options map[string]any) *DynamicMap {
	if options == nil {
		options = map[string]any{}
	}
	mapOptions := cloneMap(optionMap(options["mapOptions"]))

	m := &DynamicMap{
		rt:      rt,
		markers: make(map[string]Marker),
		popups:  make(map[string]Popup),
	}

	m.ID, _ = options["id"].(string)
	if m.ID == "" {
		m.ID = rt.newID("map")
	}

	div, ok := rt.doc.ElementByID(m.ID)
	if !ok {
		div = rt.doc.CreateElement()
	}
	m.div = div
	m.div.SetID(m.ID)
	m.div.AddClass(dynamicmap.ContainerClass)
	m.div.SetStyle("display", "block")

	center, ok := parseCoords(mapOptions["center"])
	if !ok {
		center, _ = parseCoords(options["center"])
	}
	m.d.center = center
	if z, ok := number(options["zoom"]); ok && z != 0 {
		m.d.zoom = &z
	}
	m.d.markerOptions = optionMap(options["markerOptions"])
	m.d.popupOptions = optionMap(options["popupOptions"])
	if m.d.markerOptions == nil {
		m.d.markerOptions = map[string]any{}
	}
	if m.d.popupOptions == nil {
		m.d.popupOptions = map[string]any{}
	}

	if h, ok := number(options["height"]); ok && h != 0 {
		m.div.SetStyle("height", px(h))
	}
	if w, ok := number(options["width"]); ok && w != 0 {
		m.div.SetStyle("width", px(w))
	}

	var zoom *float64
	if z, ok := number(mapOptions["zoom"]); ok && z != 0 {
		zoom = &z
	} else if m.d.zoom != nil {
		zoom = m.d.zoom
	}
	style := mapOptions["style"]
	if falsy(style) {
		style = options["style"]
	}
	if falsy(style) {
		style = DefaultStyle
	}

	m.createMap(MapOptions{
		Container: m.ID,
		Center:    center,
		Zoom:      zoom,
		Style:     m.normalizeStyle(style),
		Extra:     extraOptions(mapOptions),
	})

	if len(locations) > 0 {
		m.addMarkers(locations, nil)
	}
	return m
}

func extraOptions(mapOptions map[string]any) map[string]any {
	out := make(map[string]any, len(mapOptions))
	for k, v := range mapOptions {
		switch k {
		case "center", "zoom", "style", "container":
			continue
		}
		out[k] = v
	}
	return out
}

func px(f float64) string {
	return fmt.Sprintf("%gpx", f)
}

func (m *DynamicMap) logf(format string, args ...any) {
	if m.rt.page.Logging {
		m.rt.console.Log(fmt.Sprintf("[%s] "+format, append([]any{m.ID}, args...)...))
	}
}

func (m *DynamicMap) warnf(format string, args ...any) {
	m.rt.console.Warn(fmt.Sprintf("[MB] "+format, args...))
}

func (m *DynamicMap) createMap(opts MapOptions) {
	m.logf("Creating map")
	if m.rt.page.AccessToken == "" {
		m.warnf("Unable to initialize map, no access token provided.")
		return
	}
	opts.AccessToken = m.rt.page.AccessToken
	m.live = m.rt.engine.NewMap(opts)
}

// Live returns the engine map, or nil when construction was abandoned.
func (m *DynamicMap) Live() Map {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live
}

// Container returns the map's DOM element.
func (m *DynamicMap) Container() Element { return m.div }

// Markers adds a marker for every location with both coordinates. The
// marker id is options["id"], else the location's id, else generated.
func (m *DynamicMap) Markers(locations []Location, options map[string]any) *DynamicMap {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addMarkers(locations, options)
	return m
}

func (m *DynamicMap) addMarkers(locations []Location, options map[string]any) {
	if len(locations) == 0 {
		return
	}
	markerOptions := optionMap(options["markerOptions"])
	if markerOptions == nil {
		markerOptions = m.d.markerOptions
	}
	popupOptions := optionMap(options["popupOptions"])
	if popupOptions == nil {
		popupOptions = m.d.popupOptions
	}
	explicit, _ := options["id"].(string)

	for _, loc := range locations {
		if !loc.valid() {
			continue
		}
		id := explicit
		if id == "" {
			id = loc.ID
		}
		if id == "" {
			id = m.rt.newID("marker")
		}
		m.createMarker(id, LngLat{Lng: *loc.Lng, Lat: *loc.Lat}, markerOptions, popupOptions)
	}
}

func (m *DynamicMap) createMarker(id string, at LngLat, markerOptions, popupOptions map[string]any) {
	m.logf("Adding marker %q", id)

	marker := m.rt.engine.NewMarker(markerOptions)
	marker.SetLngLat(at)
	if m.live != nil {
		marker.AddTo(m.live)
	}
	if old, ok := m.markers[id]; ok {
		old.Remove()
	}
	m.markers[id] = marker

	data := m.rt.page.takePopup(m.ID, id)
	if data == nil {
		if popup, ok := m.popups[id]; ok {
			marker.SetPopup(popup)
		}
		return
	}
	m.logf("Adding popup to marker %q", id)

	opts := cloneMap(popupOptions)
	for k, v := range data {
		if k != "content" {
			opts[k] = v
		}
	}
	popup := m.rt.engine.NewPopup(opts, data.Content())
	m.popups[id] = popup
	marker.SetPopup(popup)
}

// Style applies a new style.
func (m *DynamicMap) Style(style any) *DynamicMap {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logf("Styling map")
	if m.live != nil {
		m.live.SetStyle(m.normalizeStyle(style))
	}
	return m
}

func (m *DynamicMap) normalizeStyle(style any) any {
	out, err := NormalizeStyle(style)
	if err != nil {
		m.warnf("Unable to apply style: %v", err)
		return nil
	}
	return out
}

// Zoom sets the zoom level. A zero level reuses the default zoom.
func (m *DynamicMap) Zoom(level float64) *DynamicMap {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.zoom(level, false)
	return m
}

func (m *DynamicMap) zoom(level float64, quiet bool) {
	if level == 0 && m.d.zoom != nil {
		level = *m.d.zoom
	}
	m.d.zoom = &level
	if !quiet {
		m.logf("Zooming map to level %g", level)
	}
	if m.live != nil {
		m.live.SetZoom(level)
	}
}

// Center re-centers the map. Without coordinates it centers on the
// markers, else on the default center. The default center is updated.
func (m *DynamicMap) Center(coords *LngLat) *DynamicMap {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.center(coords, false)
	return m
}

func (m *DynamicMap) center(coords *LngLat, quiet bool) {
	var c LngLat
	switch {
	case coords != nil:
		c = *coords
	default:
		c = m.d.center
		if len(m.markers) > 0 {
			if b := m.determineBounds(); b != nil && !b.IsEmpty() {
				c = b.Center()
			}
		}
	}
	if !quiet {
		m.logf("Centering map on coordinates %g, %g", c.Lng, c.Lat)
	}
	m.d.center = c
	if m.live == nil {
		return
	}
	// Zoom out first or the engine may not re-center.
	m.live.SetZoom(1)
	m.live.SetCenter(c)
}

// Fit fits the map to its visible markers.
func (m *DynamicMap) Fit(options map[string]any) *DynamicMap {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fit(options, false)
	return m
}

func (m *DynamicMap) fit(options map[string]any, quiet bool) {
	if !quiet {
		m.logf("Fitting map to existing boundaries")
	}
	b := m.determineBounds()
	if b == nil || b.IsEmpty() {
		m.warnf("Cannot fit the map, unable to determine bounds.")
		return
	}
	opts := cloneMap(options)
	if falsy(opts["padding"]) {
		opts["padding"] = DefaultPadding()
	}
	if m.live != nil {
		m.live.FitBounds(*b, opts)
	}
}

// determineBounds encloses every marker that is on the map. It is nil when
// no markers are tracked.
func (m *DynamicMap) determineBounds() *Bounds {
	if len(m.markers) == 0 {
		m.warnf("Cannot determine bounds, the map has no existing markers.")
		return nil
	}
	var b Bounds
	for _, id := range sortedKeys(m.markers) {
		marker := m.markers[id]
		if !marker.OnMap() {
			continue
		}
		b.Extend(marker.LngLat())
	}
	return &b
}

// PanToMarker pans to a marker.
func (m *DynamicMap) PanToMarker(markerID string) *DynamicMap {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logf("Panning to marker %q", markerID)
	marker := m.marker(markerID)
	if marker == nil {
		m.warnf("Unable to pan to marker %q", markerID)
		return m
	}
	if m.live != nil {
		m.live.PanTo(marker.LngLat())
	}
	return m
}

// ChangeMarker re-creates markers with new options, keeping position and
// popup.
func (m *DynamicMap) ChangeMarker(ref dynamicmap.MarkerRef, options map[string]any) *DynamicMap {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.each(ref, m.markerIDs, "Setting options for multiple markers", "Setting options for all markers", func(id string, quiet bool) {
		if !quiet {
			m.logf("Setting options for marker %q", id)
		}
		old := m.marker(id)
		if old == nil {
			m.warnf("Unable to set options, marker %q does not exist.", id)
			return
		}
		marker := m.rt.engine.NewMarker(options)
		marker.SetLngLat(old.LngLat())
		if m.live != nil {
			marker.AddTo(m.live)
		}
		if popup, ok := m.popups[id]; ok {
			marker.SetPopup(popup)
		}
		old.Remove()
		m.markers[id] = marker
	})
	return m
}

// HideMarker removes markers from the map. They stay tracked.
func (m *DynamicMap) HideMarker(ref dynamicmap.MarkerRef) *DynamicMap {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.each(ref, m.markerIDs, "Hiding multiple markers", "Hiding all markers", func(id string, quiet bool) {
		if !quiet {
			m.logf("Hiding marker %q", id)
		}
		marker := m.marker(id)
		if marker == nil {
			m.warnf("Unable to hide marker %q", id)
			return
		}
		marker.Remove()
	})
	return m
}

// ShowMarker puts markers back on the map.
func (m *DynamicMap) ShowMarker(ref dynamicmap.MarkerRef) *DynamicMap {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.each(ref, m.markerIDs, "Showing multiple markers", "Showing all markers", func(id string, quiet bool) {
		if !quiet {
			m.logf("Showing marker %q", id)
		}
		marker := m.marker(id)
		if marker == nil {
			m.warnf("Unable to show marker %q", id)
			return
		}
		if m.live != nil {
			marker.AddTo(m.live)
		}
	})
	return m
}

// OpenPopup opens popups.
func (m *DynamicMap) OpenPopup(ref dynamicmap.MarkerRef) *DynamicMap {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.each(ref, m.popupIDs, "Opening multiple popups", "Opening all popups", func(id string, quiet bool) {
		if !quiet {
			m.logf("Opening popup %q", id)
		}
		popup := m.popup(id)
		if popup == nil {
			m.warnf("Unable to open popup %q", id)
			return
		}
		if m.live != nil {
			popup.AddTo(m.live)
		}
	})
	return m
}

// ClosePopup closes popups.
func (m *DynamicMap) ClosePopup(ref dynamicmap.MarkerRef) *DynamicMap {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.each(ref, m.popupIDs, "Closing multiple popups", "Closing all popups", func(id string, quiet bool) {
		if !quiet {
			m.logf("Closing popup %q", id)
		}
		popup := m.popup(id)
		if popup == nil {
			m.warnf("Unable to close popup %q", id)
			return
		}
		popup.Remove()
	})
	return m
}

// each applies fn to every id ref names. A list applies each entry in turn,
// so a listed "*" still expands. The wildcard applies fn once per tracked
// id from all, quietly.
func (m *DynamicMap) each(ref dynamicmap.MarkerRef, all func() []string, listMsg, allMsg string, fn func(id string, quiet bool)) {
	switch {
	case ref.IsList():
		m.logf("%s", listMsg)
		for _, id := range ref.IDs() {
			m.each(dynamicmap.MarkerID(id), all, listMsg, allMsg, fn)
		}
	case ref.IsWildcard():
		m.logf("%s", allMsg)
		for _, id := range all() {
			fn(id, true)
		}
	default:
		fn(ref.Single(), false)
	}
}

func (m *DynamicMap) markerIDs() []string { return sortedKeys(m.markers) }
func (m *DynamicMap) popupIDs() []string  { return sortedKeys(m.popups) }

func (m *DynamicMap) marker(id string) Marker {
	marker, ok := m.markers[id]
	if !ok {
		m.warnf("Unable to find marker %q", id)
		return nil
	}
	return marker
}

func (m *DynamicMap) popup(id string) Popup {
	popup, ok := m.popups[id]
	if !ok {
		m.warnf("Unable to find popup %q", id)
		return nil
	}
	return popup
}

// GetMarker returns a tracked marker.
func (m *DynamicMap) GetMarker(id string) (Marker, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logf("Getting existing marker %q", id)
	marker := m.marker(id)
	return marker, marker != nil
}

// GetPopup returns a tracked popup.
func (m *DynamicMap) GetPopup(id string) (Popup, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logf("Getting existing popup %q", id)
	popup := m.popup(id)
	return popup, popup != nil
}

// GetZoom returns the engine's current zoom.
func (m *DynamicMap) GetZoom() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.live == nil {
		return 0
	}
	return m.live.Zoom()
}

// GetCenter returns the engine's current center.
func (m *DynamicMap) GetCenter() LngLat {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.live == nil {
		return LngLat{}
	}
	return m.live.Center()
}

// GetBounds returns the engine's visible bounds.
func (m *DynamicMap) GetBounds() Bounds {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logf("Getting the current bounds of the map")
	if m.live == nil {
		return Bounds{}
	}
	return m.live.Bounds()
}

// MarkerIDs returns the tracked marker ids, sorted.
func (m *DynamicMap) MarkerIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markerIDs()
}

// PopupIDs returns the ids of markers with popups, sorted.
func (m *DynamicMap) PopupIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.popupIDs()
}

// Tag finishes the map: it optionally moves the container into the element
// with parentID, checks visibility and calibrates center and zoom.
func (m *DynamicMap) Tag(parentID string) Element {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logf("Rendering map")

	if parentID != "" {
		if parent, ok := m.rt.doc.ElementByID(parentID); ok {
			parent.AppendChild(m.div)
		} else {
			m.warnf("Unable to find target container #%s", parentID)
		}
	}

	m.checkHeight()
	m.calibrate()

	if parentID != "" {
		m.logf("Finished initializing map in container %q", parentID)
	} else {
		m.logf("Finished initializing map")
	}
	return m.div
}

func (m *DynamicMap) checkHeight() {
	if !m.rt.page.Logging {
		return
	}
	if m.div.ClientHeight() > 0 {
		return
	}
	m.warnf("The map is not visible because its parent container is zero pixels tall. More info: %s", heightGuideURL)
}

func (m *DynamicMap) calibrate() {
	var b *Bounds
	if len(m.markers) > 0 {
		b = m.determineBounds()
	}
	center := m.calculateCenter(b)
	zoom := m.calculateZoom(len(m.markers))
	m.center(&center, false)
	m.zoom(zoom, false)
}

func (m *DynamicMap) calculateCenter(b *Bounds) LngLat {
	if !m.d.center.IsZero() {
		return m.d.center
	}
	if b != nil && !b.IsEmpty() {
		if c := b.Center(); !c.IsZero() {
			return c
		}
	}
	m.rt.console.Error("[MB] No items on the map, it will be centered in the middle of the ocean!", LngLat{})
	m.zoom(oceanZoom, true)
	return LngLat{}
}

func (m *DynamicMap) calculateZoom(total int) float64 {
	if m.d.zoom != nil && *m.d.zoom != 0 && !math.IsNaN(*m.d.zoom) {
		return *m.d.zoom
	}
	if total < 2 {
		return ComfortableZoom
	}
	m.scheduleFit()
	return ComfortableZoom
}

// scheduleFit fits the map to its markers shortly after calibration. Manual
// calls that land in between win until the fit runs. Teardown cancels it.
func (m *DynamicMap) scheduleFit() {
	if m.pendingFit != nil {
		m.pendingFit()
	}
	m.pendingFit = m.rt.scheduler.AfterFunc(FitDelay, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.pendingFit = nil
		if m.closed {
			return
		}
		m.fit(map[string]any{"animate": false}, false)
	})
}

// FitPending reports whether a delayed fit is waiting to run.
func (m *DynamicMap) FitPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pendingFit != nil
}

// close cancels pending work. Later delayed callbacks are no-ops.
func (m *DynamicMap) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.pendingFit != nil {
		m.pendingFit()
		m.pendingFit = nil
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
