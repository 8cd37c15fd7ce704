package stategraph

import (
	"maps"
	"slices"
)

// State represents the data that flows through a graph run.
// It is implemented as a map of field names to arbitrary values.
// Handlers should treat State as immutable and return a new instance.
type State map[string]any

// Clone performs a shallow copy; nested references are shared intentionally.
func (s State) Clone() State {
	if s == nil {
		return State{}
	}
	return State(maps.Clone(map[string]any(s)))
}

// Keys returns the field names in sorted order.
func (s State) Keys() []string {
	return slices.Sorted(maps.Keys(s))
}

// Filter returns a copy holding only the fields that schema names.
func (s State) Filter(schema *Schema) State {
	out := make(State, schema.Len())
	for _, name := range schema.Names() {
		if v, ok := s[name]; ok {
			out[name] = v
		}
	}
	return out
}

// Undeclared returns the sorted names of fields that schema does not name.
func (s State) Undeclared(schema *Schema) []string {
	var extra []string
	for _, name := range s.Keys() {
		if !schema.Has(name) {
			extra = append(extra, name)
		}
	}
	return extra
}
