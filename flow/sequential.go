package flow

import (
	"context"

	"github.com/go-kratos/stategraph"
	"github.com/go-kratos/stategraph/graph"
)

// Sequential represents a sequence of nodes that run one after another,
// from graph.Start to graph.End in the order they were given.
type Sequential struct {
	schema *stategraph.Schema
	nodes  []*graph.Node
}

// NewSequential creates a new Sequential over the overall schema with the given nodes.
func NewSequential(schema *stategraph.Schema, nodes ...*graph.Node) *Sequential {
	return &Sequential{
		schema: schema,
		nodes:  nodes,
	}
}

// Builder returns a graph builder with the nodes added and chained by edges.
// The builder may be extended before compiling; an empty sequence links Start to End.
func (s *Sequential) Builder(opts ...graph.Option) *graph.Builder {
	b := graph.New(s.schema, opts...).Add(s.nodes...)
	prev := graph.Start
	for _, node := range s.nodes {
		if node == nil {
			continue
		}
		b.AddEdge(prev, node.Name())
		prev = node.Name()
	}
	return b.AddEdge(prev, graph.End)
}

// Compile builds and validates the chain.
func (s *Sequential) Compile(opts ...graph.Option) (*graph.Graph, error) {
	return s.Builder(opts...).Compile()
}

// Run compiles the chain and executes it once from the initial state.
func (s *Sequential) Run(ctx context.Context, initial stategraph.State, opts ...graph.Option) (stategraph.State, error) {
	g, err := s.Compile(opts...)
	if err != nil {
		return nil, err
	}
	return g.Run(ctx, initial)
}
