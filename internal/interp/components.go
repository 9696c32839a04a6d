// Package interp walks the validated structure document and composes fully
// resolved views: conditions evaluated, parameters substituted, data
// fetched through the cache, blocks instantiated.
package interp

import (
	"github.com/mzizi/muundo/model"
)

// MapComponentRegistry is a ComponentRegistry backed by a plain name set.
// Registration happens at startup; lookups are read-only afterwards.
type MapComponentRegistry struct {
	known map[string]bool
}

// NewMapComponentRegistry creates a registry with the given component names.
func NewMapComponentRegistry(names ...string) *MapComponentRegistry {
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}
	return &MapComponentRegistry{known: known}
}

// Register adds a component name.
func (r *MapComponentRegistry) Register(name string) {
	r.known[name] = true
}

// Instantiate implements model.ComponentRegistry. Unregistered names yield
// a fallback renderable carrying the requested name, never an error.
func (r *MapComponentRegistry) Instantiate(component string, props map[string]any) model.Renderable {
	return model.Renderable{
		Component: component,
		Props:     props,
		Found:     r.known[component],
	}
}
