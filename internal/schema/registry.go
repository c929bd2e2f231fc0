package schema

import (
	"fmt"
	"sync"
)

// Registry maps type names to their descriptors. Hosts register descriptors
// once at startup; lookups are concurrent-safe and cheap.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*Descriptor
}

func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*Descriptor)}
}

// Register adds or replaces the descriptor for its type name.
func (r *Registry) Register(d *Descriptor) error {
	if d == nil || d.Name == "" {
		return fmt.Errorf("schema: descriptor requires a type name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[d.Name] = d
	return nil
}

// Grow unions new fields into the named descriptor, creating it when the
// type is unknown. The union happens under the registry lock so concurrent
// growers never lose each other's fields, and the descriptor is replaced
// copy-on-write so readers holding the old pointer keep a consistent view.
// Relationships and selection lists are never narrowed.
func (r *Registry) Grow(name string, fields []Field) (*Descriptor, error) {
	if name == "" {
		return nil, fmt.Errorf("schema: descriptor requires a type name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.types[name]
	if !ok {
		d = &Descriptor{Name: name, Fields: append([]Field(nil), fields...)}
		r.types[name] = d
		return d, nil
	}

	seen := make(map[string]struct{}, len(d.Fields))
	for _, f := range d.Fields {
		seen[f.Name] = struct{}{}
	}
	var added []Field
	for _, f := range fields {
		if _, ok := seen[f.Name]; ok {
			continue
		}
		seen[f.Name] = struct{}{}
		added = append(added, f)
	}
	if len(added) == 0 {
		return d, nil
	}

	grown := &Descriptor{
		Name:          d.Name,
		Fields:        append(append([]Field(nil), d.Fields...), added...),
		Relationships: d.Relationships,
		Include:       d.Include,
		Exclude:       d.Exclude,
	}
	r.types[name] = grown
	return grown, nil
}

// Lookup returns the descriptor for a type name.
func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.types[name]
	return d, ok
}

// MustLookup is for wiring code where a missing descriptor is a programming
// error, not a runtime condition.
func (r *Registry) MustLookup(name string) *Descriptor {
	d, ok := r.Lookup(name)
	if !ok {
		panic(fmt.Sprintf("schema: type %q not registered", name))
	}
	return d
}
