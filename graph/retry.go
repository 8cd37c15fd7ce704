package graph

import (
	"context"

	"github.com/go-kratos/kit/retry"

	"github.com/go-kratos/stategraph"
)

// Retry returns a middleware that retries node handlers with exponential backoff.
//
// Parameters:
//
//	attempts: The total number of attempts to execute the handler, including the initial attempt.
//	          For example, attempts=3 means up to 3 tries (1 initial + 2 retries).
//	opts:     Optional configuration for retry behavior. See retry.Option (from github.com/go-kratos/kit/retry) for details.
//
// Behavior:
//   - The same projected `state` is passed to the handler on each attempt. Handlers must not mutate `state`.
//   - Only the output of the successful attempt is merged; failed attempts leave the run untouched.
//   - If all attempts are exhausted, the last error is returned and the run fails.
//
// Example usage:
//
//	g := graph.New(schema, graph.WithMiddleware(
//	    graph.Retry(5, retry.WithRetryable(func(err error) bool {
//	        return errors.Is(err, ErrTemporary)
//	    })),
//	))
func Retry(attempts int, opts ...retry.Option) Middleware {
	r := retry.New(attempts, opts...)
	return func(next Handler) Handler {
		return func(ctx context.Context, input stategraph.State) (stategraph.State, error) {
			var (
				err    error
				output stategraph.State
			)
			if err = r.Do(ctx, func(ctx context.Context) error {
				output, err = next(ctx, input)
				return err
			}); err != nil {
				return nil, err
			}
			return output, nil
		}
	}
}
