package graph

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"time"

	"github.com/go-kratos/stategraph"
)

const (
	// Start is the sentinel name of the run's entry. Exactly one edge must leave it.
	Start = "__start__"
	// End is the sentinel name of the run's exit. Exactly one edge must enter it.
	End = "__end__"
)

// OutputPolicy decides what happens to fields a node returns outside its output schema.
type OutputPolicy int

const (
	// OutputReject fails the run with a *stategraph.UnexpectedFieldError.
	OutputReject OutputPolicy = iota
	// OutputDrop discards the undeclared fields before merging.
	OutputDrop
	// OutputAllow merges undeclared fields like declared ones.
	OutputAllow
)

func (p OutputPolicy) String() string {
	switch p {
	case OutputReject:
		return "reject"
	case OutputDrop:
		return "drop"
	case OutputAllow:
		return "allow"
	default:
		return fmt.Sprintf("OutputPolicy(%d)", int(p))
	}
}

type options struct {
	middlewares  []Middleware
	logger       *slog.Logger
	outputPolicy OutputPolicy
	validate     bool
	prune        bool
	flowCheck    bool
	nodeTimeout  time.Duration
}

// Option configures the Graph behavior.
type Option func(*options)

// WithMiddleware sets a global middleware applied to all node handlers.
func WithMiddleware(ms ...Middleware) Option {
	return func(o *options) {
		o.middlewares = ms
	}
}

// WithLogger sets the logger used for run and node events. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithOutputPolicy sets how undeclared output fields are handled. Defaults to OutputReject.
func WithOutputPolicy(p OutputPolicy) Option {
	return func(o *options) {
		o.outputPolicy = p
	}
}

// WithValidation type-checks the initial state and every node output against the declared schemas.
func WithValidation() Option {
	return func(o *options) {
		o.validate = true
	}
}

// WithPruning removes private fields from a run once no downstream node reads them.
// Fields of the overall schema are never pruned.
func WithPruning() Option {
	return func(o *options) {
		o.prune = true
	}
}

// WithSchemaFlowCheck makes Compile reject nodes whose required inputs are produced
// neither by the overall schema nor by an upstream node.
func WithSchemaFlowCheck() Option {
	return func(o *options) {
		o.flowCheck = true
	}
}

// WithNodeTimeout bounds every node invocation.
func WithNodeTimeout(d time.Duration) Option {
	return func(o *options) {
		o.nodeTimeout = d
	}
}

type edge struct {
	from string
	to   string
}

// Builder accumulates nodes and edges and compiles them into an immutable Graph.
// Builder is not safe for concurrent use.
type Builder struct {
	schema *stategraph.Schema
	opts   options
	nodes  map[string]*Node
	edges  []edge
	errs   []error
}

// New creates a builder for a graph whose public state is described by schema.
func New(schema *stategraph.Schema, opts ...Option) *Builder {
	if schema == nil {
		schema = emptySchema
	}
	b := &Builder{
		schema: schema,
		opts:   options{logger: slog.Default()},
		nodes:  make(map[string]*Node),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&b.opts)
		}
	}
	return b
}

// AddNode adds a named node with its schemas and handler to the graph.
// Returns the builder for chaining; problems are reported by Compile.
func (b *Builder) AddNode(name string, input, output *stategraph.Schema, handler Handler) *Builder {
	return b.Add(NewNode(name, input, output, handler))
}

// Add registers prebuilt nodes.
// Returns the builder for chaining; problems are reported by Compile.
func (b *Builder) Add(nodes ...*Node) *Builder {
	for _, node := range nodes {
		switch {
		case node == nil:
			b.errs = append(b.errs, fmt.Errorf("%w: nil node", stategraph.ErrGraphValidation))
		case node.name == "":
			b.errs = append(b.errs, fmt.Errorf("%w: node name must not be empty", stategraph.ErrGraphValidation))
		case node.name == Start || node.name == End:
			b.errs = append(b.errs, fmt.Errorf("%w: node name %s is reserved", stategraph.ErrGraphValidation, node.name))
		case node.handler == nil:
			b.errs = append(b.errs, fmt.Errorf("%w: node %s: handler missing", stategraph.ErrGraphValidation, node.name))
		default:
			if _, ok := b.nodes[node.name]; ok {
				b.errs = append(b.errs, &stategraph.DuplicateNodeError{Name: node.name})
				continue
			}
			b.nodes[node.name] = node
		}
	}
	return b
}

// AddEdge adds a directed edge from one node (or Start) to another (or End).
// Adding the same edge twice has no effect. Returns the builder for chaining.
func (b *Builder) AddEdge(from, to string) *Builder {
	e := edge{from: from, to: to}
	if slices.Contains(b.edges, e) {
		return b
	}
	b.edges = append(b.edges, e)
	return b
}

func (b *Builder) isEndpoint(name string) bool {
	if name == Start || name == End {
		return true
	}
	_, ok := b.nodes[name]
	return ok
}

func (b *Builder) adjacency() (out, in map[string][]string) {
	out = make(map[string][]string)
	in = make(map[string][]string)
	for _, e := range b.edges {
		out[e.from] = append(out[e.from], e.to)
		in[e.to] = append(in[e.to], e.from)
	}
	return out, in
}

// validateEdges checks endpoints and the linear layout around every node.
func (b *Builder) validateEdges(out, in map[string][]string) []error {
	var errs []error
	for _, e := range b.edges {
		if e.from == End {
			errs = append(errs, &stategraph.EdgeError{Node: End, Msg: fmt.Sprintf("edges must not leave %s (to %s)", End, e.to)})
		}
		if e.to == Start {
			errs = append(errs, &stategraph.EdgeError{Node: Start, Msg: fmt.Sprintf("edges must not enter %s (from %s)", Start, e.from)})
		}
		for _, name := range []string{e.from, e.to} {
			if !b.isEndpoint(name) {
				errs = append(errs, &stategraph.UnknownNodeError{Name: name, From: e.from, To: e.to})
			}
		}
	}
	if n := len(out[Start]); n != 1 {
		errs = append(errs, &stategraph.EdgeError{Node: Start, Msg: fmt.Sprintf("expected exactly one outgoing edge, got %d", n)})
	}
	if n := len(in[End]); n != 1 {
		errs = append(errs, &stategraph.EdgeError{Node: End, Msg: fmt.Sprintf("expected exactly one incoming edge, got %d", n)})
	}
	for _, name := range slices.Sorted(maps.Keys(b.nodes)) {
		switch n := len(out[name]); {
		case n == 0:
			errs = append(errs, &stategraph.EdgeError{Node: name, Msg: "no outgoing edge"})
		case n > 1:
			errs = append(errs, &stategraph.EdgeError{Node: name, Msg: fmt.Sprintf("branching is not supported (%d outgoing edges)", n)})
		}
	}
	return errs
}

// findCycle returns the first directed cycle found, or nil.
func (b *Builder) findCycle(out map[string][]string) *stategraph.CycleError {
	const (
		stateUnvisited = iota
		stateVisiting
		stateVisited
	)
	states := make(map[string]int, len(b.nodes)+2)
	stack := make([]string, 0, len(b.nodes))

	var visit func(string) *stategraph.CycleError
	visit = func(node string) *stategraph.CycleError {
		states[node] = stateVisiting
		stack = append(stack, node)

		for _, next := range out[node] {
			switch states[next] {
			case stateVisiting:
				cycleStart := slices.Index(stack, next)
				cycle := append(slices.Clone(stack[cycleStart:]), next)
				return &stategraph.CycleError{Path: cycle}
			case stateUnvisited:
				if err := visit(next); err != nil {
					return err
				}
			}
		}

		stack = stack[:len(stack)-1]
		states[node] = stateVisited
		return nil
	}

	roots := append([]string{Start}, slices.Sorted(maps.Keys(b.nodes))...)
	for _, name := range roots {
		if states[name] == stateUnvisited {
			if err := visit(name); err != nil {
				return err
			}
		}
	}
	return nil
}

// reachable returns every name reachable from Start.
func (b *Builder) reachable(out map[string][]string) map[string]bool {
	queue := []string{Start}
	visited := make(map[string]bool, len(b.nodes)+2)
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if visited[node] {
			continue
		}
		visited[node] = true
		queue = append(queue, out[node]...)
	}
	return visited
}

// Compile validates the builder and produces an immutable Graph.
// All structural violations are reported together in a *stategraph.GraphValidationError;
// no partial graph is returned.
func (b *Builder) Compile() (*Graph, error) {
	out, in := b.adjacency()
	violations := slices.Clone(b.errs)
	violations = append(violations, b.validateEdges(out, in)...)

	cycle := b.findCycle(out)
	if cycle != nil {
		violations = append(violations, cycle)
	}
	reach := b.reachable(out)
	for _, name := range slices.Sorted(maps.Keys(b.nodes)) {
		if !reach[name] {
			violations = append(violations, &stategraph.UnreachableNodeError{Name: name})
		}
	}
	if cycle == nil && len(out[Start]) > 0 && !reach[End] {
		violations = append(violations, &stategraph.EdgeError{Node: End, Msg: "not reachable from " + Start})
	}

	var path []*Node
	if len(violations) == 0 {
		path = b.path(out)
		if b.opts.flowCheck {
			violations = append(violations, checkSchemaFlow(b.schema, path)...)
		}
	}
	if len(violations) > 0 {
		sort.SliceStable(violations, func(i, j int) bool {
			return violations[i].Error() < violations[j].Error()
		})
		return nil, &stategraph.GraphValidationError{Violations: violations}
	}
	return newGraph(b.schema, path, b.opts), nil
}

// path follows the single outgoing edge of every node from Start to End.
func (b *Builder) path(out map[string][]string) []*Node {
	var path []*Node
	for next := out[Start][0]; next != End; next = out[next][0] {
		path = append(path, b.nodes[next])
	}
	return path
}
