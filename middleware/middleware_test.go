package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-kratos/stategraph"
	"github.com/go-kratos/stategraph/graph"
)

var schemaA = stategraph.MustSchema(stategraph.String("a"))

func echo(ctx context.Context, state stategraph.State) (stategraph.State, error) {
	return stategraph.State{"a": state["a"].(string) + "!"}, nil
}

func compile(t *testing.T, handler graph.Handler, mws ...graph.Middleware) *graph.Graph {
	t.Helper()
	g, err := graph.New(schemaA, graph.WithMiddleware(mws...)).
		AddNode("node_1", schemaA, schemaA, handler).
		AddEdge(graph.Start, "node_1").
		AddEdge("node_1", graph.End).
		Compile()
	require.NoError(t, err)
	return g
}

func TestGuard(t *testing.T) {
	t.Parallel()
	errAbort := errors.New("abort")
	tests := []struct {
		name    string
		guard   GuardFunc
		wantErr error
	}{
		{
			name: "allowed",
			guard: func(context.Context, *graph.NodeContext, stategraph.State) (bool, error) {
				return true, nil
			},
		},
		{
			name: "denied",
			guard: func(context.Context, *graph.NodeContext, stategraph.State) (bool, error) {
				return false, nil
			},
			wantErr: ErrGuardDenied,
		},
		{
			name: "error",
			guard: func(context.Context, *graph.NodeContext, stategraph.State) (bool, error) {
				return false, errAbort
			},
			wantErr: errAbort,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			g := compile(t, func(ctx context.Context, state stategraph.State) (stategraph.State, error) {
				called = true
				return echo(ctx, state)
			}, Guard(tt.guard))

			final, err := g.Run(context.Background(), stategraph.State{"a": "x"})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.ErrorIs(t, err, stategraph.ErrNodeExecution)
				assert.False(t, called)
				return
			}
			require.NoError(t, err)
			assert.True(t, called)
			assert.Equal(t, stategraph.State{"a": "x!"}, final)
		})
	}
}

func TestGuardSeesNodeContext(t *testing.T) {
	var seen string
	g := compile(t, echo, Guard(func(ctx context.Context, nc *graph.NodeContext, input stategraph.State) (bool, error) {
		seen = nc.Name
		return input["a"] != "forbidden", nil
	}))
	_, err := g.Run(context.Background(), stategraph.State{"a": "forbidden"})
	require.ErrorIs(t, err, ErrGuardDenied)
	assert.Contains(t, err.Error(), "node node_1")
	assert.Equal(t, "node_1", seen)
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	g := compile(t, echo, Logging(logger))

	_, err := g.Run(context.Background(), stategraph.State{"a": "x"}, graph.WithRunID("run-42"))
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, `msg="node invoked"`)
	assert.Contains(t, out, "node=node_1")
	assert.Contains(t, out, "run_id=run-42")
	assert.Contains(t, out, "output=[a]")

	buf.Reset()
	failing := compile(t, func(context.Context, stategraph.State) (stategraph.State, error) {
		return nil, errors.New("boom")
	}, Logging(logger))
	_, err = failing.Run(context.Background(), stategraph.State{"a": "x"})
	require.Error(t, err)
	assert.True(t, strings.Contains(buf.String(), `msg="node invocation failed"`))
	assert.Contains(t, buf.String(), "error=boom")
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	mw, err := Metrics(WithRegisterer(reg))
	require.NoError(t, err)

	g := compile(t, echo, mw)
	for range 3 {
		_, err := g.Run(context.Background(), stategraph.State{"a": "x"})
		require.NoError(t, err)
	}

	// A second middleware on the same registry reuses the collectors.
	again, err := Metrics(WithRegisterer(reg))
	require.NoError(t, err)
	failing := compile(t, func(context.Context, stategraph.State) (stategraph.State, error) {
		return nil, errors.New("boom")
	}, again)
	_, err = failing.Run(context.Background(), stategraph.State{"a": "x"})
	require.Error(t, err)

	expected := `
# HELP stategraph_node_invocations_total Total node invocations by node and result
# TYPE stategraph_node_invocations_total counter
stategraph_node_invocations_total{node="node_1",result="error"} 1
stategraph_node_invocations_total{node="node_1",result="success"} 3
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "stategraph_node_invocations_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "stategraph_node_duration_seconds"))
}

func TestMetricsNamespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	mw, err := Metrics(WithRegisterer(reg), WithNamespace("pipeline"), WithBuckets([]float64{0.1, 1}))
	require.NoError(t, err)

	_, err = mw(echo)(context.Background(), stategraph.State{"a": "x"})
	require.NoError(t, err)
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "pipeline_node_invocations_total"))
}
