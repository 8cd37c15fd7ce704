package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-kratos/stategraph"
	"github.com/go-kratos/stategraph/graph"
)

const (
	traceScope = "stategraph"
)

// Attribute keys set on node spans.
const (
	AttrGraphName  = attribute.Key("stategraph.graph.name")
	AttrRunID      = attribute.Key("stategraph.run.id")
	AttrNodeName   = attribute.Key("stategraph.node.name")
	AttrNodeStep   = attribute.Key("stategraph.node.step")
	AttrNodeInput  = attribute.Key("stategraph.node.input")
	AttrNodeOutput = attribute.Key("stategraph.node.output")
)

// TraceOption defines options for the tracing middleware.
type TraceOption func(*tracing)

// tracing holds configuration for the node tracing middleware
type tracing struct {
	graph  string
	tracer trace.Tracer
}

// WithGraphName records the graph name on every span.
func WithGraphName(name string) TraceOption {
	return func(t *tracing) {
		t.graph = name
	}
}

// WithTracerProvider sets a custom TracerProvider for the tracing middleware
func WithTracerProvider(tp trace.TracerProvider) TraceOption {
	return func(t *tracing) {
		t.tracer = tp.Tracer(traceScope, trace.WithInstrumentationVersion(stategraph.Version))
	}
}

// Tracing returns a middleware that wraps every node invocation in an OpenTelemetry span
// named "invoke_node <name>". Invocations without a NodeContext are passed through untraced.
func Tracing(opts ...TraceOption) graph.Middleware {
	t := &tracing{
		tracer: otel.GetTracerProvider().Tracer(traceScope, trace.WithInstrumentationVersion(stategraph.Version)),
	}
	for _, o := range opts {
		o(t)
	}
	return func(next graph.Handler) graph.Handler {
		return func(ctx context.Context, input stategraph.State) (stategraph.State, error) {
			nc, ok := graph.FromNodeContext(ctx)
			if !ok {
				return next(ctx, input)
			}
			ctx, span := t.start(ctx, nc, input)
			output, err := next(ctx, input)
			t.end(span, output, err)
			return output, err
		}
	}
}

func (t *tracing) start(ctx context.Context, nc *graph.NodeContext, input stategraph.State) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, fmt.Sprintf("invoke_node %s", nc.Name), trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(
		AttrRunID.String(nc.RunID),
		AttrNodeName.String(nc.Name),
		AttrNodeStep.Int(nc.Step),
		AttrNodeInput.StringSlice(input.Keys()),
	)
	if t.graph != "" {
		span.SetAttributes(AttrGraphName.String(t.graph))
	}
	return ctx, span
}

func (t *tracing) end(span trace.Span, output stategraph.State, err error) {
	defer span.End()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, codes.Ok.String())
	span.SetAttributes(AttrNodeOutput.StringSlice(output.Keys()))
}
