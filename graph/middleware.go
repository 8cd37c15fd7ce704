package graph

import (
	"context"

	"github.com/go-kratos/stategraph"
)

// Handler is the computation of a node. It receives exactly the fields of the node's
// input schema and returns the fields it wants merged back into the run.
// Handlers must not mutate the incoming state; they return a new instance.
type Handler func(ctx context.Context, state stategraph.State) (stategraph.State, error)

// Middleware is a function that wraps a Handler with additional functionality.
type Middleware func(Handler) Handler

// ChainMiddlewares composes middlewares into one, applying them in order.
// The first middleware becomes the outermost wrapper.
func ChainMiddlewares(mws ...Middleware) Middleware {
	return func(next Handler) Handler {
		h := next
		for i := len(mws) - 1; i >= 0; i-- { // apply in reverse to make mws[0] outermost
			h = mws[i](h)
		}
		return h
	}
}
