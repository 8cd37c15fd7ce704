package graph

import (
	"github.com/go-kratos/stategraph"
)

// checkSchemaFlow walks the path and reports every node whose required inputs are
// produced neither by the overall schema nor by an upstream output schema.
func checkSchemaFlow(overall *stategraph.Schema, path []*Node) []error {
	available := make(map[string]bool, overall.Len())
	for _, name := range overall.Names() {
		available[name] = true
	}
	var errs []error
	for _, node := range path {
		var missing []string
		for _, f := range node.Input().Fields() {
			if !f.Optional && !available[f.Name] {
				missing = append(missing, f.Name)
			}
		}
		if len(missing) > 0 {
			errs = append(errs, &stategraph.MissingFieldError{Node: node.Name(), Fields: missing})
		}
		for _, name := range node.Output().Names() {
			available[name] = true
		}
	}
	return errs
}

// liveFields returns, for every position of path, the fields that must survive once
// that node has merged: the overall schema plus every input read further down the path.
func liveFields(overall *stategraph.Schema, path []*Node) []map[string]bool {
	live := make([]map[string]bool, len(path))
	needed := make(map[string]bool, overall.Len())
	for _, name := range overall.Names() {
		needed[name] = true
	}
	for i := len(path) - 1; i >= 0; i-- {
		keep := make(map[string]bool, len(needed))
		for name := range needed {
			keep[name] = true
		}
		live[i] = keep
		for _, name := range path[i].Input().Names() {
			needed[name] = true
		}
	}
	return live
}
