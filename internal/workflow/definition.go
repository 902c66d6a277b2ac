package workflow

import (
	"context"
	"fmt"
	"reflect"
)

// Condition is evaluated against the primary before a node is reconciled.
type Condition func(ctx context.Context, rc *Context) (bool, error)

// Option configures a Definition.
type Option func(*settings)

type settings struct {
	mode          Mode
	modeSet       bool
	dependsOn     []string
	readyWhen     any
	deletedWhen   any
	reconcileWhen Condition
	collected     bool
}

// WithMode sets the operational mode. Without it the mode is the highest one
// the dependent's capabilities support.
func WithMode(m Mode) Option {
	return func(s *settings) {
		s.mode = m
		s.modeSet = true
	}
}

// DependsOn declares dependents that must be ready before this one is
// reconciled, and that are deleted only after this one during cleanup.
func DependsOn(names ...string) Option {
	return func(s *settings) {
		s.dependsOn = append(s.dependsOn, names...)
	}
}

// ReadyWhen replaces the default readiness check. It is called only when the
// resource exists and alone decides readiness.
func ReadyWhen[T any](fn func(ctx context.Context, rc *Context, observed T) (bool, error)) Option {
	return func(s *settings) {
		s.readyWhen = fn
	}
}

// DeletedWhen confirms a deletion. After a successful delete the resource is
// observed again and fn decides whether the deletion is complete; until it is,
// the dependencies of this node are not deleted.
func DeletedWhen[T any](fn func(ctx context.Context, rc *Context, observed T, exists bool) (bool, error)) Option {
	return func(s *settings) {
		s.deletedWhen = fn
	}
}

// ReconcileWhen gates reconciliation of the node on a condition over the
// primary. While false, an existing resource is deleted if the mode allows it
// and the node reports not ready.
func ReconcileWhen(cond Condition) Option {
	return func(s *settings) {
		s.reconcileWhen = cond
	}
}

// GarbageCollected marks a dependent as removed by the cluster's garbage
// collector through its owner reference, so cleanup need not delete it.
func GarbageCollected() Option {
	return func(s *settings) {
		s.collected = true
	}
}

// Definition is one node of a workflow.
type Definition struct {
	name     string
	settings settings
	node     runner
	err      error
}

// Name returns the definition name.
func (d *Definition) Name() string { return d.name }

// Mode returns the effective mode.
func (d *Definition) Mode() Mode { return d.settings.mode }

// DependsOn returns the declared dependencies.
func (d *Definition) DependsOn() []string {
	return append([]string(nil), d.settings.dependsOn...)
}

// deletes reports whether cleanup must delete this dependent.
func (d *Definition) deletes() bool {
	return d.settings.mode.CanDelete() && !d.settings.collected
}

// Define creates a definition for a dependent resource of type T.
func Define[T any](name string, dep Dependent[T], opts ...Option) *Definition {
	s := settings{}
	for _, opt := range opts {
		opt(&s)
	}

	def := &Definition{name: name}
	supported := ReadOnly
	if dep != nil {
		supported = supportedMode(dep)
	}
	if !s.modeSet {
		s.mode = supported
	}
	def.settings = s

	switch {
	case name == "":
		def.err = &DefinitionError{Node: name, Err: fmt.Errorf("name must not be empty")}
		return def
	case dep == nil:
		def.err = &DefinitionError{Node: name, Err: fmt.Errorf("dependent must not be nil")}
		return def
	case s.mode < ReadOnly || s.mode > CreateUpdateDelete:
		def.err = &DefinitionError{Node: name, Err: fmt.Errorf("invalid mode %s", s.mode)}
		return def
	case s.mode > supported:
		def.err = &ModeError{Node: name, Mode: s.mode, Supported: supported}
		return def
	}

	n := &node[T]{name: name, dep: dep, mode: s.mode, reconcileWhen: s.reconcileWhen}
	if s.readyWhen != nil {
		fn, ok := s.readyWhen.(func(context.Context, *Context, T) (bool, error))
		if !ok {
			def.err = &DefinitionError{Node: name, Err: fmt.Errorf("ReadyWhen predicate is %T, want func over %v", s.readyWhen, reflect.TypeFor[T]())}
			return def
		}
		n.readyWhen = fn
	}
	if s.deletedWhen != nil {
		fn, ok := s.deletedWhen.(func(context.Context, *Context, T, bool) (bool, error))
		if !ok {
			def.err = &DefinitionError{Node: name, Err: fmt.Errorf("DeletedWhen predicate is %T, want func over %v", s.deletedWhen, reflect.TypeFor[T]())}
			return def
		}
		n.deletedWhen = fn
	}
	def.node = n
	return def
}
