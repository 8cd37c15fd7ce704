package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/go-kratos/stategraph"
	"github.com/go-kratos/stategraph/graph"
)

const unknownNode = "unknown"

// MetricsOption configures the metrics middleware.
type MetricsOption func(*metricsOptions)

type metricsOptions struct {
	registerer prometheus.Registerer
	namespace  string
	buckets    []float64
}

// WithRegisterer sets the registry the collectors are registered with.
// Defaults to prometheus.DefaultRegisterer.
func WithRegisterer(r prometheus.Registerer) MetricsOption {
	return func(o *metricsOptions) {
		o.registerer = r
	}
}

// WithNamespace prefixes every metric name. Defaults to "stategraph".
func WithNamespace(namespace string) MetricsOption {
	return func(o *metricsOptions) {
		o.namespace = namespace
	}
}

// WithBuckets sets the histogram buckets of the invocation duration, in seconds.
func WithBuckets(buckets []float64) MetricsOption {
	return func(o *metricsOptions) {
		o.buckets = buckets
	}
}

// Metrics returns a middleware that counts node invocations by node and result
// and observes their duration. Collectors already registered under the same
// names are reused, so several graphs may share one registry.
func Metrics(opts ...MetricsOption) (graph.Middleware, error) {
	o := metricsOptions{
		registerer: prometheus.DefaultRegisterer,
		namespace:  "stategraph",
		buckets:    prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
	}
	for _, opt := range opts {
		opt(&o)
	}

	invocations, err := register(o.registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: o.namespace,
		Name:      "node_invocations_total",
		Help:      "Total node invocations by node and result",
	}, []string{"node", "result"}))
	if err != nil {
		return nil, err
	}
	duration, err := register(o.registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: o.namespace,
		Name:      "node_duration_seconds",
		Help:      "Node invocation duration in seconds",
		Buckets:   o.buckets,
	}, []string{"node"}))
	if err != nil {
		return nil, err
	}

	return func(next graph.Handler) graph.Handler {
		return func(ctx context.Context, input stategraph.State) (stategraph.State, error) {
			node := unknownNode
			if nc, ok := graph.FromNodeContext(ctx); ok {
				node = nc.Name
			}
			start := time.Now()
			output, err := next(ctx, input)
			duration.WithLabelValues(node).Observe(time.Since(start).Seconds())
			result := "success"
			if err != nil {
				result = "error"
			}
			invocations.WithLabelValues(node, result).Inc()
			return output, err
		}
	}, nil
}

func register[C prometheus.Collector](r prometheus.Registerer, c C) (C, error) {
	if err := r.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, err
	}
	return c, nil
}
