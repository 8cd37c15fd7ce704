package otel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/go-kratos/stategraph"
	"github.com/go-kratos/stategraph/graph"
)

func attrs(kvs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value, len(kvs))
	for _, kv := range kvs {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestTracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	overall := stategraph.MustSchema(stategraph.String("a"), stategraph.String("c"))
	private := stategraph.MustSchema(stategraph.String("b"))
	g, err := graph.New(overall, graph.WithMiddleware(Tracing(WithTracerProvider(tp), WithGraphName("demo")))).
		AddNode("first", stategraph.MustSchema(stategraph.String("a")), private,
			func(ctx context.Context, state stategraph.State) (stategraph.State, error) {
				return stategraph.State{"b": state["a"]}, nil
			}).
		AddNode("second", private, stategraph.MustSchema(stategraph.String("c")),
			func(ctx context.Context, state stategraph.State) (stategraph.State, error) {
				return stategraph.State{"c": state["b"]}, nil
			}).
		AddEdge(graph.Start, "first").
		AddEdge("first", "second").
		AddEdge("second", graph.End).
		Compile()
	require.NoError(t, err)

	_, err = g.Run(context.Background(), stategraph.State{"a": "x"}, graph.WithRunID("run-1"))
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "invoke_node first", spans[0].Name())
	assert.Equal(t, "invoke_node second", spans[1].Name())

	first := attrs(spans[0].Attributes())
	assert.Equal(t, "run-1", first[AttrRunID].AsString())
	assert.Equal(t, "demo", first[AttrGraphName].AsString())
	assert.Equal(t, int64(0), first[AttrNodeStep].AsInt64())
	assert.Equal(t, []string{"a"}, first[AttrNodeInput].AsStringSlice())
	assert.Equal(t, []string{"b"}, first[AttrNodeOutput].AsStringSlice())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)

	second := attrs(spans[1].Attributes())
	assert.Equal(t, int64(1), second[AttrNodeStep].AsInt64())
	assert.Equal(t, []string{"b"}, second[AttrNodeInput].AsStringSlice())
}

func TestTracingError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	schema := stategraph.MustSchema(stategraph.String("a"))
	g, err := graph.New(schema, graph.WithMiddleware(Tracing(WithTracerProvider(tp)))).
		AddNode("broken", schema, schema, func(context.Context, stategraph.State) (stategraph.State, error) {
			return nil, errors.New("boom")
		}).
		AddEdge(graph.Start, "broken").
		AddEdge("broken", graph.End).
		Compile()
	require.NoError(t, err)

	_, err = g.Run(context.Background(), stategraph.State{"a": "x"})
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "boom", spans[0].Status().Description)
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
	_, ok := attrs(spans[0].Attributes())[AttrGraphName]
	assert.False(t, ok)
}

func TestTracingWithoutNodeContext(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	h := Tracing(WithTracerProvider(tp))(func(context.Context, stategraph.State) (stategraph.State, error) {
		return stategraph.State{"a": "y"}, nil
	})
	out, err := h(context.Background(), stategraph.State{})
	require.NoError(t, err)
	assert.Equal(t, "y", out["a"])
	assert.Empty(t, recorder.Ended())
}
