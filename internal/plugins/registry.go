// Package plugins - registry.go
//
// This file implements the plugin registry.
//
// The registry is built once at startup from the set of built-in plugins
// that have configuration present, and is read-only afterwards. It exposes
// three lookups:
//
//   - ByName: plugin name -> plugin (config binding, status reporting)
//   - ByTool: tool-binary name -> plugin (request dispatch)
//   - All: full iteration in registration order (health aggregation)
//
// Registration verifies that plugin tool-name sets are pairwise disjoint;
// a collision is a startup error, never a runtime surprise.
package plugins

import (
	"fmt"
)

// Registry is the immutable plugin table.
//
// Built at startup, never mutated afterwards, so lookups need no locking.
type Registry struct {
	byName map[string]Plugin
	byTool map[string]Plugin
	order  []Plugin
}

// NewRegistry builds a registry from the given plugins, preserving order.
//
// It fails if two plugins share a name or claim the same tool binary.
func NewRegistry(list ...Plugin) (*Registry, error) {
	r := &Registry{
		byName: make(map[string]Plugin, len(list)),
		byTool: make(map[string]Plugin, len(list)),
		order:  make([]Plugin, 0, len(list)),
	}

	for _, p := range list {
		name := p.Name()
		if _, dup := r.byName[name]; dup {
			return nil, fmt.Errorf("duplicate plugin name %q", name)
		}
		for _, tool := range p.Tools() {
			if prev, dup := r.byTool[tool]; dup {
				return nil, fmt.Errorf("tool %q claimed by both %q and %q", tool, prev.Name(), name)
			}
		}
		r.byName[name] = p
		for _, tool := range p.Tools() {
			r.byTool[tool] = p
		}
		r.order = append(r.order, p)
	}

	return r, nil
}

// ByName returns the plugin with the given name.
func (r *Registry) ByName(name string) (Plugin, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// ByTool returns the plugin that handles the given tool binary.
func (r *Registry) ByTool(tool string) (Plugin, bool) {
	p, ok := r.byTool[tool]
	return p, ok
}

// All returns every registered plugin in registration order.
func (r *Registry) All() []Plugin {
	out := make([]Plugin, len(r.order))
	copy(out, r.order)
	return out
}
