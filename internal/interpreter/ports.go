// Package interpreter replays map DNA against a mapping engine. It is the
// browser-side half of the DNA contract: containers are found in a
// Document, instructions are applied in order, and every anomaly becomes a
// console message instead of an error.
package interpreter

import "math"

// LngLat is a geographic position.
type LngLat struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// IsZero reports whether the position is [0,0].
func (p LngLat) IsZero() bool { return p.Lng == 0 && p.Lat == 0 }

// Bounds is a geographic bounding box. The zero value is empty.
type Bounds struct {
	SW, NE LngLat
	set    bool
}

// Extend grows the box to include p.
func (b *Bounds) Extend(p LngLat) {
	if !b.set {
		b.SW, b.NE, b.set = p, p, true
		return
	}
	b.SW.Lng = math.Min(b.SW.Lng, p.Lng)
	b.SW.Lat = math.Min(b.SW.Lat, p.Lat)
	b.NE.Lng = math.Max(b.NE.Lng, p.Lng)
	b.NE.Lat = math.Max(b.NE.Lat, p.Lat)
}

// IsEmpty reports whether nothing was added.
func (b Bounds) IsEmpty() bool { return !b.set }

// Center returns the midpoint of the box.
func (b Bounds) Center() LngLat {
	return LngLat{Lng: (b.SW.Lng + b.NE.Lng) / 2, Lat: (b.SW.Lat + b.NE.Lat) / 2}
}

// MapOptions configure a new engine map.
type MapOptions struct {
	Container   string
	Center      LngLat
	Zoom        *float64
	Style       any
	AccessToken string
	// Extra holds every other mapOptions key, passed through untouched.
	Extra map[string]any
}

// Engine creates live map objects.
type Engine interface {
	NewMap(opts MapOptions) Map
	NewMarker(opts map[string]any) Marker
	NewPopup(opts map[string]any, html string) Popup
}

// Map is a live map.
type Map interface {
	SetStyle(style any)
	Style() any
	SetZoom(level float64)
	Zoom() float64
	SetCenter(c LngLat)
	Center() LngLat
	PanTo(c LngLat)
	FitBounds(b Bounds, opts map[string]any)
	Bounds() Bounds
}

// Marker is a live marker.
type Marker interface {
	SetLngLat(p LngLat)
	LngLat() LngLat
	AddTo(m Map)
	Remove()
	OnMap() bool
	SetPopup(p Popup)
}

// Popup is a live popup.
type Popup interface {
	AddTo(m Map)
	Remove()
	IsOpen() bool
}

// Document is the page the containers live in.
type Document interface {
	ElementByID(id string) (Element, bool)
	// CountID returns how many elements use id.
	CountID(id string) int
	ElementsByClass(class string) []Element
	CreateElement() Element
}

// Element is one DOM element.
type Element interface {
	ID() string
	SetID(id string)
	AddClass(class string)
	SetStyle(prop, value string)
	Attr(name string) (string, bool)
	ClientHeight() int
	AppendChild(child Element)
	// Attached reports whether the element is part of the document.
	Attached() bool
}

// Console receives interpreter diagnostics.
type Console interface {
	Log(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// PopupData is the pre-rendered popup for one marker: "content" plus any
// display options.
type PopupData map[string]any

// Content returns the popup markup.
func (p PopupData) Content() string {
	s, _ := p["content"].(string)
	return s
}

// Page is the global client namespace shared by every map on a page.
type Page struct {
	Logging     bool
	AccessToken string
	// Popups is keyed by map id, then marker id.
	Popups map[string]map[string]PopupData
}

// takePopup returns the popup for a marker and removes it from the table.
// Each entry is consumed by the first marker created with its id.
func (p Page) takePopup(mapID, markerID string) PopupData {
	table := p.Popups[mapID]
	data, ok := table[markerID]
	if !ok {
		return nil
	}
	delete(table, markerID)
	return data
}
