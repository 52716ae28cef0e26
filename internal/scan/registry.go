package scan

import "fmt"

// Registry holds the fixed probe set. Insertion order is preserved and drives
// the order of every aggregate's probe list. A registry is read-only after
// construction and safe to share across concurrent scans.
type Registry struct {
	probes []Probe
	byID   map[string]Probe
}

// NewRegistry builds a registry from the given probes. Probe ids must be
// non-empty and unique.
func NewRegistry(probes ...Probe) (*Registry, error) {
	r := &Registry{byID: make(map[string]Probe, len(probes))}
	for _, p := range probes {
		def := p.Definition()
		if def.ID == "" {
			return nil, fmt.Errorf("%w: probe with empty id", ErrInvalidRegistry)
		}
		if _, exists := r.byID[def.ID]; exists {
			return nil, fmt.Errorf("%w: duplicate probe id %q", ErrInvalidRegistry, def.ID)
		}
		r.byID[def.ID] = p
		r.probes = append(r.probes, p)
	}
	return r, nil
}

// Len returns the number of registered probes.
func (r *Registry) Len() int {
	return len(r.probes)
}

// Probes returns the registered probes in insertion order. The slice is a
// copy; the registry itself cannot be mutated through it.
func (r *Registry) Probes() []Probe {
	return append([]Probe(nil), r.probes...)
}

// Lookup finds a probe by id.
func (r *Registry) Lookup(id string) (Probe, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// Definitions lists probe metadata in registry order, for building progress
// displays before any scan starts.
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, 0, len(r.probes))
	for _, p := range r.probes {
		defs = append(defs, p.Definition())
	}
	return defs
}
