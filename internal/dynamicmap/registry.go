package dynamicmap

import (
	"mapdna/platform/apperr"
)

// Registry creates the maps of one page render and finds them again by id,
// so a template can build a map in one place and tag it in another.
type Registry struct {
	deps  Deps
	maps  map[string]*DynamicMap
	order []string
}

// NewRegistry creates an empty registry whose maps share deps.
func NewRegistry(deps Deps) *Registry {
	return &Registry{deps: deps, maps: make(map[string]*DynamicMap)}
}

// Deps returns the collaborators shared by the registry's maps.
func (r *Registry) Deps() Deps { return r.deps }

// Map creates and stores a new map. A later map with the same id replaces
// the earlier one.
func (r *Registry) Map(locations any, opts Options) *DynamicMap {
	m := New(r.deps, locations, opts)
	if _, exists := r.maps[m.ID]; !exists {
		r.order = append(r.order, m.ID)
	}
	r.maps[m.ID] = m
	return m
}

// GetMap returns a stored map.
func (r *Registry) GetMap(id string) (*DynamicMap, error) {
	m, ok := r.maps[id]
	if !ok {
		return nil, apperr.NotFound(`Encountered an error using the getMap method. The map "` + id + `" does not exist.`)
	}
	return m, nil
}

// Maps returns the stored maps in creation order.
func (r *Registry) Maps() []*DynamicMap {
	out := make([]*DynamicMap, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.maps[id])
	}
	return out
}
