package maps

import (
	"encoding/json"

	"mapdna/internal/dynamicmap"
	"mapdna/internal/interpreter"
)

// RenderResult is a tagged map with the page resources it registered.
type RenderResult struct {
	ID      string                        `json:"id"`
	HTML    string                        `json:"html"`
	Head    string                        `json:"head"`
	EndBody string                        `json:"endBody"`
	DNA     []dynamicmap.Instruction      `json:"dna"`
	Popups  map[string]dynamicmap.Options `json:"popups"`
}

// Fragment joins head resources, the map and end-of-body scripts into one
// embeddable block.
func (r *RenderResult) Fragment() string {
	out := r.Head
	if out != "" {
		out += "\n"
	}
	out += r.HTML
	if r.EndBody != "" {
		out += "\n" + r.EndBody
	}
	return out
}

// ReplayRequest replays either rendered markup or a bare DNA string.
type ReplayRequest struct {
	HTML   string                           `json:"html" binding:"required_without=DNA"`
	DNA    json.RawMessage                  `json:"dna" binding:"required_without=HTML"`
	Popups map[string]interpreter.PopupData `json:"popups"`
	// Settle runs the delayed automatic fit before reporting.
	Settle bool `json:"settle"`
}

// ElementMapRequest tunes the map rendered for a stored element.
type ElementMapRequest struct {
	Fields        []string `form:"field"`
	PopupTemplate string   `form:"popupTemplate"`
	Zoom          float64  `form:"zoom" binding:"omitempty,gte=0,lte=24"`
	Style         string   `form:"style"`
}
