package workflow

import (
	"fmt"
)

// DuplicateNodeError reports two definitions with the same name.
type DuplicateNodeError struct {
	Name string
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("duplicate dependent %q", e.Name)
}

// UnknownDependencyError reports a DependsOn edge to an undefined dependent.
type UnknownDependencyError struct {
	Node       string
	Dependency string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("dependent %q depends on unknown dependent %q", e.Node, e.Dependency)
}

// ModeError reports a mode the dependent's capabilities cannot serve.
type ModeError struct {
	Node      string
	Mode      Mode
	Supported Mode
}

func (e *ModeError) Error() string {
	return fmt.Sprintf("dependent %q: mode %s requires capabilities it lacks (supports up to %s)",
		e.Node, e.Mode, e.Supported)
}

// DefinitionError reports an invalid definition, e.g. a predicate whose type
// does not match the dependent.
type DefinitionError struct {
	Node string
	Err  error
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("dependent %q: %v", e.Node, e.Err)
}

func (e *DefinitionError) Unwrap() error {
	return e.Err
}

// NodeError is a failure of one dependent during a pass.
type NodeError struct {
	Node string
	Op   string
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("dependent %q: %s: %v", e.Node, e.Op, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}
