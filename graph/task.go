package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/go-kratos/stategraph"
)

// Status is the lifecycle state of a Run.
type Status int

const (
	// StatusPending means the run has not started.
	StatusPending Status = iota
	// StatusRunning means a node is being projected, invoked or merged.
	StatusRunning
	// StatusCompleted means End was reached.
	StatusCompleted
	// StatusFailed means the run stopped on an error.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// RunOption configures a single run.
type RunOption func(*Run)

// WithRunID sets a custom run ID instead of a generated UUID.
func WithRunID(id string) RunOption {
	return func(r *Run) {
		r.id = id
	}
}

// Run is one execution of a compiled Graph. It owns the Store for that execution.
// Accessors are safe to call while Execute is in progress.
type Run struct {
	graph   *Graph
	id      string
	store   *Store
	initial stategraph.State

	mu      sync.RWMutex
	status  Status
	current string
	steps   []string
	err     error
}

// ID returns the run identifier.
func (r *Run) ID() string { return r.id }

// Status returns the current lifecycle state.
func (r *Run) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Current returns the node being executed, or the last node reached when the run stopped.
func (r *Run) Current() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Steps returns the names of the nodes invoked so far, in order.
func (r *Run) Steps() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.steps)
}

// Err returns the error that failed the run, if any.
func (r *Run) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// Snapshot returns the full accumulated state, private fields included.
// After a failure it reflects every merge completed before the failing node.
func (r *Run) Snapshot() stategraph.State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.Snapshot()
}

// Execute walks the graph from Start to End. A run executes at most once.
func (r *Run) Execute(ctx context.Context) (stategraph.State, error) {
	r.mu.Lock()
	if r.status != StatusPending {
		r.mu.Unlock()
		return nil, fmt.Errorf("graph: run %s already %s", r.id, r.status)
	}
	r.status = StatusRunning
	r.current = Start
	r.mu.Unlock()

	logger := r.graph.opts.logger
	start := time.Now()
	logger.Debug("run started",
		slog.String("run_id", r.id),
		slog.Int("nodes", len(r.graph.path)),
	)

	if err := r.admit(); err != nil {
		return nil, r.fail(err)
	}
	for i, node := range r.graph.path {
		if err := ctx.Err(); err != nil {
			return nil, r.fail(fmt.Errorf("graph: run canceled before node %s: %w", node.name, err))
		}
		r.mu.Lock()
		r.current = node.name
		r.mu.Unlock()
		if err := r.step(ctx, i, node); err != nil {
			return nil, r.fail(err)
		}
	}

	r.mu.Lock()
	final := r.store.Snapshot().Filter(r.graph.schema)
	r.status = StatusCompleted
	r.current = End
	r.mu.Unlock()

	logger.Info("run completed",
		slog.String("run_id", r.id),
		slog.Duration("duration", time.Since(start)),
		slog.Int("nodes_executed", len(r.graph.path)),
	)
	return final, nil
}

// admit checks the initial state against the overall schema.
func (r *Run) admit() error {
	if extra := r.initial.Undeclared(r.graph.schema); len(extra) > 0 {
		return &stategraph.UnexpectedFieldError{Node: Start, Fields: extra}
	}
	if r.graph.opts.validate {
		if err := r.graph.schema.Validate(r.initial); err != nil {
			return fmt.Errorf("graph: initial state: %w", err)
		}
	}
	return nil
}

func (r *Run) step(ctx context.Context, i int, node *Node) error {
	logger := r.graph.opts.logger

	input, err := r.store.Project(node.input)
	if err != nil {
		var missing *stategraph.MissingFieldError
		if errors.As(err, &missing) {
			missing.Node = node.name
		}
		return err
	}

	nodeCtx := NewNodeContext(ctx, &NodeContext{
		Name:   node.name,
		RunID:  r.id,
		Step:   i,
		Input:  node.input,
		Output: node.output,
	})
	if timeout := r.graph.opts.nodeTimeout; timeout > 0 {
		var cancel context.CancelFunc
		nodeCtx, cancel = context.WithTimeout(nodeCtx, timeout)
		defer cancel()
	}

	r.mu.Lock()
	r.steps = append(r.steps, node.name)
	r.mu.Unlock()

	logger.Debug("node starting",
		slog.String("run_id", r.id),
		slog.String("node", node.name),
		slog.Any("input", input.Keys()),
	)
	begin := time.Now()
	output, err := node.invoke(nodeCtx, r.graph.handlers[node.name], input)
	if err != nil {
		return err
	}
	// A cancelled invocation is fatal even when the handler returned normally.
	if err := nodeCtx.Err(); err != nil {
		return fmt.Errorf("graph: node %s: output discarded: %w", node.name, err)
	}
	if output, err = r.checkOutput(node, output); err != nil {
		return err
	}

	r.mu.Lock()
	r.store.Merge(output)
	var pruned []string
	if r.graph.live != nil {
		live := r.graph.live[i]
		pruned = r.store.Prune(func(name string) bool { return live[name] })
	}
	r.mu.Unlock()

	logger.Debug("node completed",
		slog.String("run_id", r.id),
		slog.String("node", node.name),
		slog.Duration("duration", time.Since(begin)),
		slog.Any("output", output.Keys()),
		slog.Any("pruned", pruned),
	)
	return nil
}

// checkOutput applies the output policy and optional type validation.
func (r *Run) checkOutput(node *Node, output stategraph.State) (stategraph.State, error) {
	if extra := output.Undeclared(node.output); len(extra) > 0 {
		switch r.graph.opts.outputPolicy {
		case OutputReject:
			return nil, &stategraph.UnexpectedFieldError{Node: node.name, Fields: extra}
		case OutputDrop:
			r.graph.opts.logger.Warn("dropping undeclared output fields",
				slog.String("run_id", r.id),
				slog.String("node", node.name),
				slog.Any("fields", extra),
			)
			output = output.Filter(node.output)
		}
	}
	if r.graph.opts.validate {
		if err := node.output.Validate(output); err != nil {
			return nil, fmt.Errorf("graph: node %s: %w", node.name, err)
		}
	}
	return output, nil
}

func (r *Run) fail(err error) error {
	r.mu.Lock()
	r.status = StatusFailed
	r.err = err
	r.mu.Unlock()

	r.graph.opts.logger.Error("run failed",
		slog.String("run_id", r.id),
		slog.String("node", r.Current()),
		slog.String("error", err.Error()),
	)
	return err
}
