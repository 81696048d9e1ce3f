// Package elements exposes CMS content items (elements) and their field
// layouts to the map builder. Only the read side lives here: elements and
// address values are owned and written by the CMS.
package elements

import (
	"context"
	"sort"

	"mapdna/internal/geo"
)

// FieldTypeAddress marks an address-bearing field.
const FieldTypeAddress = "address"

// Field is one custom field in an element's layout together with its value.
type Field struct {
	ID      int64        `json:"id"`
	Handle  string       `json:"handle"`
	Name    string       `json:"name,omitempty"`
	Type    string       `json:"type"`
	Address *geo.Address `json:"address,omitempty"`
}

// IsAddress reports whether the field holds an address.
func (f Field) IsAddress() bool { return f.Type == FieldTypeAddress }

// Item is the capability surface the map builder needs from a content item.
type Item interface {
	ItemID() int64
	RefHandle() string
	Layout() []Field
}

// Element is a content item such as an entry, category or user.
type Element struct {
	ID     int64   `json:"id"`
	Kind   string  `json:"kind"`
	Title  string  `json:"title,omitempty"`
	Fields []Field `json:"fields"`
}

var _ Item = (*Element)(nil)

// ItemID implements Item.
func (e *Element) ItemID() int64 { return e.ID }

// RefHandle implements Item. It names the element type in templates,
// e.g. "entry" or "category".
func (e *Element) RefHandle() string {
	if e.Kind == "" {
		return "element"
	}
	return e.Kind
}

// Layout implements Item.
func (e *Element) Layout() []Field { return e.Fields }

// Address returns the value of the address field with the given handle.
func (e *Element) Address(handle string) *geo.Address {
	for _, f := range e.Fields {
		if f.Handle == handle && f.IsAddress() {
			return f.Address
		}
	}
	return nil
}

// Source loads elements by id.
type Source interface {
	GetElement(ctx context.Context, id int64) (*Element, error)
	GetElements(ctx context.Context, ids []int64) ([]*Element, error)
}

// FieldResolver maps a field id to its handle.
type FieldResolver interface {
	FieldHandle(fieldID int64) (string, bool)
}

// FieldRegistry is a static FieldResolver.
type FieldRegistry map[int64]string

// FieldHandle implements FieldResolver.
func (r FieldRegistry) FieldHandle(fieldID int64) (string, bool) {
	if fieldID == 0 {
		return "", false
	}
	h, ok := r[fieldID]
	return h, ok && h != ""
}

// RegistryFromElements collects every field handle seen on the given elements.
func RegistryFromElements(items ...*Element) FieldRegistry {
	reg := FieldRegistry{}
	for _, e := range items {
		if e == nil {
			continue
		}
		for _, f := range e.Fields {
			if f.ID != 0 && f.Handle != "" {
				reg[f.ID] = f.Handle
			}
		}
	}
	return reg
}

// sortedIDs returns ids de-duplicated in ascending order.
func sortedIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
