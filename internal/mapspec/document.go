// Package mapspec reads declarative map documents (YAML or JSON) and compiles
// them into dynamic map builder calls.
package mapspec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"mapdna/internal/dynamicmap"
)

// Document describes one map: where its markers come from, the operations
// applied to it, and how it is tagged.
type Document struct {
	ID        string                `json:"id" yaml:"id" validate:"omitempty,markerid"`
	Options   map[string]any        `json:"options" yaml:"options"`
	Locations []Location            `json:"locations" yaml:"locations" validate:"dive"`
	Steps     []Step                `json:"steps" yaml:"steps" validate:"dive"`
	Tag       dynamicmap.TagOptions `json:"tag" yaml:"tag"`
	Elements  []Element             `json:"elements" yaml:"elements" validate:"dive"`
}

// Location is one marker source. Exactly one of the coordinate pair,
// Address, Element or Elements is expected.
type Location struct {
	Lng      *float64       `json:"lng" yaml:"lng" validate:"omitempty,longitude"`
	Lat      *float64       `json:"lat" yaml:"lat" validate:"omitempty,latitude"`
	ID       string         `json:"id" yaml:"id" validate:"omitempty,markerid"`
	Address  map[string]any `json:"address" yaml:"address"`
	Element  int64          `json:"element" yaml:"element" validate:"omitempty,gt=0"`
	Elements []int64        `json:"elements" yaml:"elements" validate:"omitempty,dive,gt=0"`
}

// Step is one builder operation. Exactly one field is expected.
type Step struct {
	Markers      *MarkersStep      `json:"markers" yaml:"markers"`
	Style        any               `json:"style" yaml:"style"`
	Zoom         *float64          `json:"zoom" yaml:"zoom" validate:"omitempty,gte=0,lte=24"`
	Center       *Center           `json:"center" yaml:"center"`
	Fit          any               `json:"fit" yaml:"fit"`
	PanToMarker  string            `json:"panToMarker" yaml:"panToMarker"`
	ChangeMarker *ChangeMarkerStep `json:"changeMarker" yaml:"changeMarker"`
	HideMarker   *MarkerRef        `json:"hideMarker" yaml:"hideMarker"`
	ShowMarker   *MarkerRef        `json:"showMarker" yaml:"showMarker"`
	OpenPopup    *MarkerRef        `json:"openPopup" yaml:"openPopup"`
	ClosePopup   *MarkerRef        `json:"closePopup" yaml:"closePopup"`
}

// MarkersStep adds markers.
type MarkersStep struct {
	Locations []Location     `json:"locations" yaml:"locations" validate:"dive"`
	Options   map[string]any `json:"options" yaml:"options"`
}

// Center is a center target.
type Center struct {
	Lng float64 `json:"lng" yaml:"lng" validate:"longitude"`
	Lat float64 `json:"lat" yaml:"lat" validate:"latitude"`
}

// ChangeMarkerStep changes marker options.
type ChangeMarkerStep struct {
	MarkerID MarkerRef      `json:"markerId" yaml:"markerId"`
	Options  map[string]any `json:"options" yaml:"options"`
}

// Element declares a content item inline, for documents rendered without a
// database.
type Element struct {
	ID     int64   `json:"id" yaml:"id" validate:"gt=0"`
	Kind   string  `json:"kind" yaml:"kind"`
	Title  string  `json:"title" yaml:"title"`
	Fields []Field `json:"fields" yaml:"fields" validate:"dive"`
}

// Field is an inline element field.
type Field struct {
	ID      int64          `json:"id" yaml:"id"`
	Handle  string         `json:"handle" yaml:"handle" validate:"required"`
	Type    string         `json:"type" yaml:"type"`
	Address map[string]any `json:"address" yaml:"address"`
}

// MarkerRef is a marker id, "*", or a list of ids.
type MarkerRef struct {
	IDs  []string
	List bool
}

// UnmarshalYAML accepts a scalar or a sequence.
func (r *MarkerRef) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		var id string
		if err := n.Decode(&id); err != nil {
			return err
		}
		*r = MarkerRef{IDs: []string{id}}
		return nil
	case yaml.SequenceNode:
		var ids []string
		if err := n.Decode(&ids); err != nil {
			return err
		}
		*r = MarkerRef{IDs: ids, List: true}
		return nil
	}
	return fmt.Errorf("line %d: marker id must be a string or a list", n.Line)
}

// UnmarshalJSON accepts a string or an array.
func (r *MarkerRef) UnmarshalJSON(data []byte) error {
	var ref dynamicmap.MarkerRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return err
	}
	*r = MarkerRef{IDs: ref.IDs(), List: ref.IsList()}
	return nil
}

func (r MarkerRef) ref() dynamicmap.MarkerRef {
	if r.List {
		return dynamicmap.MarkerIDs(r.IDs...)
	}
	if len(r.IDs) == 0 {
		return dynamicmap.MarkerID("")
	}
	return dynamicmap.MarkerID(r.IDs[0])
}

// Format is a document encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath picks the format from a file extension. Anything that is
// not .json is read as YAML.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Decode reads a document.
func Decode(r io.Reader, format Format) (*Document, error) {
	var doc Document
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode map document: %w", err)
		}
	default:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil && err != io.EOF {
			return nil, fmt.Errorf("decode map document: %w", err)
		}
	}
	return &doc, nil
}

// Parse reads a document from memory.
func Parse(data []byte, format Format) (*Document, error) {
	return Decode(bytes.NewReader(data), format)
}
