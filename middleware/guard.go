package middleware

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-kratos/stategraph"
	"github.com/go-kratos/stategraph/graph"
)

var (
	// ErrGuardDenied is returned when the guard middleware denies a node invocation.
	ErrGuardDenied = errors.New("guard denied")
)

// GuardFunc decides whether a node may run with the projected input.
// It returns true to allow execution, false to deny, and may return an error to abort.
type GuardFunc func(ctx context.Context, node *graph.NodeContext, input stategraph.State) (bool, error)

// Guard returns a Middleware that invokes the provided guard before delegating to
// the next Handler. A denied invocation fails with ErrGuardDenied and the handler
// never runs. Invocations without a NodeContext pass a nil node to the guard.
func Guard(guard GuardFunc) graph.Middleware {
	return func(next graph.Handler) graph.Handler {
		return func(ctx context.Context, input stategraph.State) (stategraph.State, error) {
			nc, _ := graph.FromNodeContext(ctx)
			ok, err := guard(ctx, nc, input)
			if err != nil {
				return nil, err
			}
			if !ok {
				if nc != nil {
					return nil, fmt.Errorf("%w: node %s", ErrGuardDenied, nc.Name)
				}
				return nil, ErrGuardDenied
			}
			return next(ctx, input)
		}
	}
}
