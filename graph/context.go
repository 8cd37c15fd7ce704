package graph

import (
	"context"

	"github.com/go-kratos/stategraph"
)

type ctxNodeKey struct{}

// NodeContext describes the node invocation in progress.
type NodeContext struct {
	Name   string
	RunID  string
	Step   int
	Input  *stategraph.Schema
	Output *stategraph.Schema
}

// NewNodeContext returns a new context with the given NodeContext.
func NewNodeContext(ctx context.Context, node *NodeContext) context.Context {
	return context.WithValue(ctx, ctxNodeKey{}, node)
}

// FromNodeContext retrieves the NodeContext from the context, if present.
func FromNodeContext(ctx context.Context) (*NodeContext, bool) {
	node, ok := ctx.Value(ctxNodeKey{}).(*NodeContext)
	return node, ok
}
