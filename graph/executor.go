package graph

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/go-kratos/stategraph"
)

// Graph is a compiled, immutable graph ready for execution.
// A Graph is safe for concurrent use; every run owns its own Store.
type Graph struct {
	schema   *stategraph.Schema
	path     []*Node
	nodes    map[string]*Node
	handlers map[string]Handler
	live     []map[string]bool
	opts     options
}

func newGraph(schema *stategraph.Schema, path []*Node, opts options) *Graph {
	g := &Graph{
		schema:   schema,
		path:     path,
		nodes:    make(map[string]*Node, len(path)),
		handlers: make(map[string]Handler, len(path)),
		opts:     opts,
	}
	chain := ChainMiddlewares(opts.middlewares...)
	for _, node := range path {
		g.nodes[node.name] = node
		g.handlers[node.name] = chain(node.handler)
	}
	if opts.prune {
		g.live = liveFields(schema, path)
	}
	return g
}

// Schema returns the overall (public) schema.
func (g *Graph) Schema() *stategraph.Schema { return g.schema }

// Path returns the node names in traversal order, excluding the sentinels.
func (g *Graph) Path() []string {
	names := make([]string, 0, len(g.path))
	for _, node := range g.path {
		names = append(names, node.name)
	}
	return names
}

// Node looks up a compiled node by name.
func (g *Graph) Node(name string) (*Node, bool) {
	node, ok := g.nodes[name]
	return node, ok
}

// NewRun prepares a pending run seeded with initial.
func (g *Graph) NewRun(initial stategraph.State, opts ...RunOption) *Run {
	r := &Run{
		graph:   g,
		id:      uuid.NewString(),
		store:   NewStore(initial),
		initial: initial.Clone(),
		status:  StatusPending,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the graph from Start to End and returns the final state filtered
// to the overall schema.
func (g *Graph) Run(ctx context.Context, initial stategraph.State, opts ...RunOption) (stategraph.State, error) {
	return g.NewRun(initial, opts...).Execute(ctx)
}

type batchOptions struct {
	limit int
}

// BatchOption configures Batch.
type BatchOption func(*batchOptions)

// WithBatchLimit caps the number of runs executing at the same time.
func WithBatchLimit(n int) BatchOption {
	return func(o *batchOptions) {
		o.limit = n
	}
}

// Batch executes one independent run per input concurrently. Results keep the
// order of inputs. The first failure cancels the remaining runs.
func (g *Graph) Batch(ctx context.Context, inputs []stategraph.State, opts ...BatchOption) ([]stategraph.State, error) {
	var o batchOptions
	for _, opt := range opts {
		opt(&o)
	}
	results := make([]stategraph.State, len(inputs))
	eg, egCtx := errgroup.WithContext(ctx)
	if o.limit > 0 {
		eg.SetLimit(o.limit)
	}
	for i, input := range inputs {
		eg.Go(func() error {
			final, err := g.Run(egCtx, input)
			if err != nil {
				return fmt.Errorf("graph: batch input %d: %w", i, err)
			}
			results[i] = final
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
