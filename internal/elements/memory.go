package elements

import (
	"context"
	"strconv"

	"mapdna/platform/apperr"
)

// MemorySource is a Source backed by a map. It is used by the CLI, where
// elements are declared inline in the map document, and by tests.
type MemorySource struct {
	items map[int64]*Element
}

// NewMemorySource indexes the given elements by id.
func NewMemorySource(items ...*Element) *MemorySource {
	m := &MemorySource{items: make(map[int64]*Element, len(items))}
	for _, e := range items {
		if e != nil {
			m.items[e.ID] = e
		}
	}
	return m
}

var _ Source = (*MemorySource)(nil)

// GetElement implements Source.
func (m *MemorySource) GetElement(_ context.Context, id int64) (*Element, error) {
	e, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("element " + strconv.FormatInt(id, 10) + " not found")
	}
	return e, nil
}

// GetElements implements Source. Unknown ids are skipped; the result keeps
// the order of ids.
func (m *MemorySource) GetElements(_ context.Context, ids []int64) ([]*Element, error) {
	out := make([]*Element, 0, len(ids))
	for _, id := range ids {
		if e, ok := m.items[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}
