package graph

import (
	"github.com/go-kratos/stategraph"
)

// Store holds the accumulated state of a single graph run.
// A Store is owned by one run and is not safe for concurrent use.
type Store struct {
	values stategraph.State
}

// NewStore creates a store seeded with a copy of initial.
func NewStore(initial stategraph.State) *Store {
	return &Store{values: initial.Clone()}
}

// Project returns a new state holding exactly the fields named by schema.
// Required fields that were never written are reported together in a
// *stategraph.MissingFieldError; absent optional fields are omitted.
func (s *Store) Project(schema *stategraph.Schema) (stategraph.State, error) {
	projected := make(stategraph.State, schema.Len())
	var missing []string
	for _, f := range schema.Fields() {
		v, ok := s.values[f.Name]
		if !ok {
			if !f.Optional {
				missing = append(missing, f.Name)
			}
			continue
		}
		projected[f.Name] = v
	}
	if len(missing) > 0 {
		return nil, &stategraph.MissingFieldError{Fields: missing}
	}
	return projected, nil
}

// Merge overwrites or creates every field of partial. Other fields are left untouched.
func (s *Store) Merge(partial stategraph.State) {
	for k, v := range partial {
		s.values[k] = v
	}
}

// Snapshot returns a copy of the full accumulated state.
func (s *Store) Snapshot() stategraph.State {
	return s.values.Clone()
}

// Has reports whether the field has been written.
func (s *Store) Has(name string) bool {
	_, ok := s.values[name]
	return ok
}

// Len returns the number of accumulated fields.
func (s *Store) Len() int {
	return len(s.values)
}

// Prune removes every field for which keep returns false and returns the removed names, sorted.
func (s *Store) Prune(keep func(name string) bool) []string {
	var removed []string
	for _, name := range s.values.Keys() {
		if !keep(name) {
			delete(s.values, name)
			removed = append(removed, name)
		}
	}
	return removed
}
