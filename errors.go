package stategraph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSchema is returned when a schema is malformed or two fields conflict.
	ErrSchema = errors.New("schema error")
	// ErrGraphValidation is returned when a graph has structural defects.
	ErrGraphValidation = errors.New("graph validation error")
	// ErrDuplicateNode is returned when two nodes share a name.
	ErrDuplicateNode = errors.New("duplicate node")
	// ErrMissingField is returned when a projection needs a field that was never written.
	ErrMissingField = errors.New("missing field")
	// ErrUnexpectedField is returned when a state carries fields outside its declared schema.
	ErrUnexpectedField = errors.New("unexpected field")
	// ErrInvalidValue is returned when a value does not match its declared field type.
	ErrInvalidValue = errors.New("invalid value")
	// ErrNodeExecution is returned when a node computation fails.
	ErrNodeExecution = errors.New("node execution failed")
)

// SchemaError represents a malformed or conflicting schema.
type SchemaError struct {
	Field string
	Msg   string
}

func (e *SchemaError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: field %q: %s", ErrSchema, e.Field, e.Msg)
	}
	return fmt.Sprintf("%s: %s", ErrSchema, e.Msg)
}

func (e *SchemaError) Unwrap() error { return ErrSchema }

// GraphValidationError aggregates every structural violation found while compiling a graph.
// errors.As reaches the individual violations.
type GraphValidationError struct {
	Violations []error
}

func (e *GraphValidationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Error())
	}
	return fmt.Sprintf("graph: %s: %s", ErrGraphValidation, strings.Join(msgs, "; "))
}

func (e *GraphValidationError) Is(target error) bool { return target == ErrGraphValidation }

func (e *GraphValidationError) Unwrap() []error { return e.Violations }

// DuplicateNodeError is recorded when a node name is registered twice.
type DuplicateNodeError struct {
	Name string
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDuplicateNode, e.Name)
}

func (e *DuplicateNodeError) Unwrap() error { return ErrDuplicateNode }

// UnknownNodeError reports an edge endpoint that names no registered node.
type UnknownNodeError struct {
	Name string
	From string
	To   string
}

func (e *UnknownNodeError) Error() string {
	return fmt.Sprintf("edge %s -> %s references unknown node %s", e.From, e.To, e.Name)
}

func (e *UnknownNodeError) Unwrap() error { return ErrGraphValidation }

// EdgeError reports an invalid edge layout around a node or sentinel.
type EdgeError struct {
	Node string
	Msg  string
}

func (e *EdgeError) Error() string {
	return fmt.Sprintf("node %s: %s", e.Node, e.Msg)
}

func (e *EdgeError) Unwrap() error { return ErrGraphValidation }

// CycleError reports a directed cycle; Path starts and ends with the same node.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycles are not supported (cycle: %s)", strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrGraphValidation }

// UnreachableNodeError reports a node with no path from the start sentinel.
type UnreachableNodeError struct {
	Name string
}

func (e *UnreachableNodeError) Error() string {
	return fmt.Sprintf("node %s is unreachable from start", e.Name)
}

func (e *UnreachableNodeError) Unwrap() error { return ErrGraphValidation }

// MissingFieldError reports required input fields that no producer has written.
type MissingFieldError struct {
	Node   string
	Fields []string
}

func (e *MissingFieldError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("%s: %s", ErrMissingField, strings.Join(e.Fields, ", "))
	}
	return fmt.Sprintf("node %s: %s: %s", e.Node, ErrMissingField, strings.Join(e.Fields, ", "))
}

func (e *MissingFieldError) Unwrap() error { return ErrMissingField }

// UnexpectedFieldError reports fields returned or supplied outside a declared schema.
type UnexpectedFieldError struct {
	Node   string
	Fields []string
}

func (e *UnexpectedFieldError) Error() string {
	return fmt.Sprintf("node %s: %s: %s", e.Node, ErrUnexpectedField, strings.Join(e.Fields, ", "))
}

func (e *UnexpectedFieldError) Unwrap() error { return ErrUnexpectedField }

// InvalidValueError reports a value that fails its field type.
type InvalidValueError struct {
	Field string
	Err   error
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("%s: field %q: %v", ErrInvalidValue, e.Field, e.Err)
}

func (e *InvalidValueError) Unwrap() []error { return []error{ErrInvalidValue, e.Err} }

// NodeExecutionError wraps a failure raised by a node computation.
// Both ErrNodeExecution and the original failure are reachable with errors.Is.
type NodeExecutionError struct {
	Node string
	Err  error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %s: %v", e.Node, e.Err)
}

func (e *NodeExecutionError) Unwrap() []error { return []error{ErrNodeExecution, e.Err} }
