package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-kratos/stategraph"
	"github.com/go-kratos/stategraph/graph"
)

// Logging returns a middleware that logs every node invocation with its duration
// and the field names it read and wrote. A nil logger uses slog.Default().
func Logging(logger *slog.Logger) graph.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next graph.Handler) graph.Handler {
		return func(ctx context.Context, input stategraph.State) (stategraph.State, error) {
			attrs := []any{slog.Any("input", input.Keys())}
			if nc, ok := graph.FromNodeContext(ctx); ok {
				attrs = append(attrs,
					slog.String("run_id", nc.RunID),
					slog.String("node", nc.Name),
					slog.Int("step", nc.Step),
				)
			}
			start := time.Now()
			output, err := next(ctx, input)
			attrs = append(attrs, slog.Duration("duration", time.Since(start)))
			if err != nil {
				logger.ErrorContext(ctx, "node invocation failed", append(attrs, slog.String("error", err.Error()))...)
				return nil, err
			}
			logger.InfoContext(ctx, "node invoked", append(attrs, slog.Any("output", output.Keys()))...)
			return output, nil
		}
	}
}
