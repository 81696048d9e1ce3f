// Package memengine is an in-memory mapping engine. It keeps enough state
// to observe what a replay did: camera, style, marker placement and popup
// visibility. Fitting uses web mercator math over a fixed viewport.
package memengine

import (
	"fmt"
	"math"
	"sync"

	"mapdna/internal/interpreter"
)

const (
	tileSize = 512
	maxZoom  = 22
)

// Engine creates in-memory maps.
type Engine struct {
	// Width and Height are the viewport in pixels used for fitting.
	Width, Height float64

	mu   sync.Mutex
	maps []*Map
}

var _ interpreter.Engine = (*Engine)(nil)

// New creates an engine with a 600x400 viewport.
func New() *Engine {
	return &Engine{Width: 600, Height: 400}
}

// Maps returns every map created so far.
func (e *Engine) Maps() []*Map {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Map(nil), e.maps...)
}

func (e *Engine) NewMap(opts interpreter.MapOptions) interpreter.Map {
	m := &Map{
		Options: opts,
		width:   e.Width,
		height:  e.Height,
		center:  opts.Center,
		style:   opts.Style,
	}
	if opts.Zoom != nil {
		m.zoom = *opts.Zoom
	}
	e.mu.Lock()
	e.maps = append(e.maps, m)
	e.mu.Unlock()
	return m
}

func (e *Engine) NewMarker(opts map[string]any) interpreter.Marker {
	return &Marker{Options: opts}
}

func (e *Engine) NewPopup(opts map[string]any, html string) interpreter.Popup {
	return &Popup{Options: opts, HTML: html}
}

// Call is one recorded camera or style change.
type Call struct {
	Method string
	Args   []any
}

func (c Call) String() string {
	return fmt.Sprintf("%s%v", c.Method, c.Args)
}

// Map is an in-memory map.
type Map struct {
	Options interpreter.MapOptions

	mu     sync.Mutex
	width  float64
	height float64
	style  any
	zoom   float64
	center interpreter.LngLat
	calls  []Call
}

var _ interpreter.Map = (*Map)(nil)

func (m *Map) record(method string, args ...any) {
	m.calls = append(m.calls, Call{Method: method, Args: args})
}

// Calls returns the recorded changes in order.
func (m *Map) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

func (m *Map) SetStyle(style any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.style = style
	m.record("setStyle", style)
}

func (m *Map) Style() any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.style
}

func (m *Map) SetZoom(level float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.zoom = clamp(level, 0, maxZoom)
	m.record("setZoom", level)
}

func (m *Map) Zoom() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.zoom
}

func (m *Map) SetCenter(c interpreter.LngLat) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.center = c
	m.record("setCenter", c)
}

func (m *Map) Center() interpreter.LngLat {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.center
}

func (m *Map) PanTo(c interpreter.LngLat) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.center = c
	m.record("panTo", c)
}

// FitBounds centers on b and picks the largest zoom at which b fits the
// viewport minus padding. A "maxZoom" option caps the result.
func (m *Map) FitBounds(b interpreter.Bounds, opts map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	top, right, bottom, left := padding(opts["padding"])
	limit := float64(maxZoom)
	if z, ok := opts["maxZoom"].(float64); ok {
		limit = z
	}

	dx := (lngX(b.NE.Lng) - lngX(b.SW.Lng)) * tileSize
	dy := (latY(b.SW.Lat) - latY(b.NE.Lat)) * tileSize
	availW := m.width - left - right
	availH := m.height - top - bottom

	zoom := limit
	if availW > 0 && availH > 0 {
		if dx > 0 {
			zoom = math.Min(zoom, math.Log2(availW/dx))
		}
		if dy > 0 {
			zoom = math.Min(zoom, math.Log2(availH/dy))
		}
	}
	m.zoom = clamp(zoom, 0, limit)
	m.center = b.Center()
	m.record("fitBounds", b, opts)
}

// Bounds returns the area visible in the viewport.
func (m *Map) Bounds() interpreter.Bounds {
	m.mu.Lock()
	defer m.mu.Unlock()

	scale := tileSize * math.Pow(2, m.zoom)
	cx, cy := lngX(m.center.Lng), latY(m.center.Lat)
	halfW, halfH := m.width/2/scale, m.height/2/scale

	var b interpreter.Bounds
	b.Extend(interpreter.LngLat{Lng: xLng(cx - halfW), Lat: yLat(cy + halfH)})
	b.Extend(interpreter.LngLat{Lng: xLng(cx + halfW), Lat: yLat(cy - halfH)})
	return b
}

// Marker is an in-memory marker.
type Marker struct {
	Options map[string]any

	mu    sync.Mutex
	pos   interpreter.LngLat
	on    interpreter.Map
	popup *Popup
}

var _ interpreter.Marker = (*Marker)(nil)

func (k *Marker) SetLngLat(p interpreter.LngLat) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.pos = p
}

func (k *Marker) LngLat() interpreter.LngLat {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.pos
}

func (k *Marker) AddTo(m interpreter.Map) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.on = m
}

// Remove takes the marker and its open popup off the map.
func (k *Marker) Remove() {
	k.mu.Lock()
	popup := k.popup
	k.on = nil
	k.mu.Unlock()
	if popup != nil {
		popup.Remove()
	}
}

func (k *Marker) OnMap() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.on != nil
}

func (k *Marker) SetPopup(p interpreter.Popup) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.popup, _ = p.(*Popup)
}

// Popup returns the attached popup, if any.
func (k *Marker) Popup() *Popup {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.popup
}

// Popup is an in-memory popup.
type Popup struct {
	Options map[string]any
	HTML    string

	mu sync.Mutex
	on interpreter.Map
}

var _ interpreter.Popup = (*Popup)(nil)

func (p *Popup) AddTo(m interpreter.Map) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.on = m
}

func (p *Popup) Remove() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.on = nil
}

func (p *Popup) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.on != nil
}

func lngX(lng float64) float64 { return (180 + lng) / 360 }

func latY(lat float64) float64 {
	lat = clamp(lat, -85.051129, 85.051129)
	return (180 - 180/math.Pi*math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))) / 360
}

func xLng(x float64) float64 { return x*360 - 180 }

func yLat(y float64) float64 {
	y2 := 180 - y*360
	return 360/math.Pi*math.Atan(math.Exp(y2*math.Pi/180)) - 90
}

func padding(v any) (top, right, bottom, left float64) {
	switch p := v.(type) {
	case float64:
		return p, p, p, p
	case int:
		f := float64(p)
		return f, f, f, f
	case map[string]any:
		return num(p["top"]), num(p["right"]), num(p["bottom"]), num(p["left"])
	}
	return 0, 0, 0, 0
}

func num(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
