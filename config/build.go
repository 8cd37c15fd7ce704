package config

import (
	"fmt"
	"maps"
	"slices"

	"github.com/go-kratos/stategraph"
	"github.com/go-kratos/stategraph/flow"
	"github.com/go-kratos/stategraph/graph"
)

// ParseSchema builds a schema from a map of field names to textual types.
func ParseSchema(fields map[string]string) (*stategraph.Schema, error) {
	parsed := make([]stategraph.Field, 0, len(fields))
	for _, name := range slices.Sorted(maps.Keys(fields)) {
		f, err := stategraph.ParseField(name, fields[name])
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, f)
	}
	return stategraph.NewSchema(parsed...)
}

// Build resolves every node kind through registry and compiles the graph.
// Options passed here are applied after the ones declared in the definition.
// A nil registry uses NewRegistry().
func (d *Definition) Build(registry *Registry, opts ...graph.Option) (*graph.Graph, error) {
	if registry == nil {
		registry = NewRegistry()
	}
	overall, err := ParseSchema(d.Schema)
	if err != nil {
		return nil, fmt.Errorf("config: schema: %w", err)
	}
	declared, err := d.Options.graphOptions()
	if err != nil {
		return nil, err
	}
	opts = append(declared, opts...)

	nodes := make([]*graph.Node, 0, len(d.Nodes))
	for _, def := range d.Nodes {
		node, err := buildNode(registry, def)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}

	var b *graph.Builder
	if len(d.Edges) == 0 {
		b = flow.NewSequential(overall, nodes...).Builder(opts...)
	} else {
		b = graph.New(overall, opts...).Add(nodes...)
		for _, e := range d.Edges {
			b.AddEdge(e.From, e.To)
		}
	}
	return b.Compile()
}

func buildNode(registry *Registry, def NodeDefinition) (*graph.Node, error) {
	input, err := ParseSchema(def.Input)
	if err != nil {
		return nil, fmt.Errorf("config: node %s: input: %w", def.Name, err)
	}
	output, err := ParseSchema(def.Output)
	if err != nil {
		return nil, fmt.Errorf("config: node %s: output: %w", def.Name, err)
	}
	factory, ok := registry.Lookup(def.Kind)
	if !ok {
		return nil, fmt.Errorf("config: node %s: unknown kind %q", def.Name, def.Kind)
	}
	handler, err := factory(def)
	if err != nil {
		return nil, fmt.Errorf("config: node %s: %w", def.Name, err)
	}
	return graph.NewNode(def.Name, input, output, handler), nil
}
