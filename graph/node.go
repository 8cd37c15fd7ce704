package graph

import (
	"context"
	"fmt"

	"github.com/go-kratos/stategraph"
)

var emptySchema = stategraph.MustSchema()

// Node is a named computation bound to an input and an output schema.
type Node struct {
	name    string
	input   *stategraph.Schema
	output  *stategraph.Schema
	handler Handler
}

// NewNode creates a node. A nil schema is treated as the empty schema.
func NewNode(name string, input, output *stategraph.Schema, handler Handler) *Node {
	if input == nil {
		input = emptySchema
	}
	if output == nil {
		output = emptySchema
	}
	return &Node{name: name, input: input, output: output, handler: handler}
}

// Name returns the node's unique name.
func (n *Node) Name() string { return n.name }

// Input returns the schema of the state the node is allowed to observe.
func (n *Node) Input() *stategraph.Schema { return n.input }

// Output returns the schema of the state the node declares to produce.
func (n *Node) Output() *stategraph.Schema { return n.output }

// Invoke runs the node's handler. Errors and panics raised by the handler are
// reported as a *stategraph.NodeExecutionError.
func (n *Node) Invoke(ctx context.Context, input stategraph.State) (stategraph.State, error) {
	return n.invoke(ctx, n.handler, input)
}

func (n *Node) invoke(ctx context.Context, handler Handler, input stategraph.State) (output stategraph.State, err error) {
	defer func() {
		if r := recover(); r != nil {
			output = nil
			err = &stategraph.NodeExecutionError{Node: n.name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if handler == nil {
		return nil, &stategraph.NodeExecutionError{Node: n.name, Err: fmt.Errorf("handler missing")}
	}
	output, err = handler(ctx, input)
	if err != nil {
		return nil, &stategraph.NodeExecutionError{Node: n.name, Err: err}
	}
	return output, nil
}
