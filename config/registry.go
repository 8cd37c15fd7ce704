package config

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"text/template"

	"github.com/go-kratos/stategraph"
	"github.com/go-kratos/stategraph/graph"
)

// Built-in node kinds.
const (
	// KindSet writes the literal values of `with` on every invocation.
	KindSet = "set"
	// KindCopy maps output fields to input fields: `with` is {output: input}.
	// Absent inputs are skipped.
	KindCopy = "copy"
	// KindTemplate renders text/template strings against the projected input:
	// `with` is {output: template}.
	KindTemplate = "template"
)

// Factory creates the handler of a declared node from its definition.
type Factory func(node NodeDefinition) (graph.Handler, error)

// Registry maps node kinds to handler factories. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry holding the built-in kinds.
func NewRegistry() *Registry {
	return &Registry{
		factories: map[string]Factory{
			KindSet:      setFactory,
			KindCopy:     copyFactory,
			KindTemplate: templateFactory,
		},
	}
}

// Register adds a factory for kind. Registering a kind twice is an error.
func (r *Registry) Register(kind string, factory Factory) error {
	if kind == "" || factory == nil {
		return fmt.Errorf("config: register: kind and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[kind]; ok {
		return fmt.Errorf("config: kind %q already registered", kind)
	}
	r.factories[kind] = factory
	return nil
}

// Lookup returns the factory registered for kind.
func (r *Registry) Lookup(kind string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[kind]
	return f, ok
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.factories))
}

func setFactory(node NodeDefinition) (graph.Handler, error) {
	values := stategraph.State(node.With)
	return func(ctx context.Context, state stategraph.State) (stategraph.State, error) {
		return values.Clone(), nil
	}, nil
}

func copyFactory(node NodeDefinition) (graph.Handler, error) {
	mapping := make(map[string]string, len(node.With))
	for out, in := range node.With {
		name, ok := in.(string)
		if !ok || name == "" {
			return nil, fmt.Errorf("copy: %s: source must be a field name, got %v", out, in)
		}
		mapping[out] = name
	}
	return func(ctx context.Context, state stategraph.State) (stategraph.State, error) {
		output := make(stategraph.State, len(mapping))
		for out, in := range mapping {
			if v, ok := state[in]; ok {
				output[out] = v
			}
		}
		return output, nil
	}, nil
}

func templateFactory(node NodeDefinition) (graph.Handler, error) {
	tmpls := make(map[string]*template.Template, len(node.With))
	for out, text := range node.With {
		s, ok := text.(string)
		if !ok {
			return nil, fmt.Errorf("template: %s: expected a template string, got %T", out, text)
		}
		t, err := template.New(node.Name + "." + out).Option("missingkey=error").Parse(s)
		if err != nil {
			return nil, fmt.Errorf("template: %s: %w", out, err)
		}
		tmpls[out] = t
	}
	return func(ctx context.Context, state stategraph.State) (stategraph.State, error) {
		output := make(stategraph.State, len(tmpls))
		for out, t := range tmpls {
			var buf strings.Builder
			if err := t.Execute(&buf, map[string]any(state)); err != nil {
				return nil, err
			}
			output[out] = buf.String()
		}
		return output, nil
	}, nil
}
