package workflow

import (
	"context"
	"fmt"
	"io"

	"converge/internal/event"
	"converge/internal/resource"
	"converge/pkg/logging"
)

// NoConnection is the connection type of external dependents that need none.
type NoConnection struct{}

func (NoConnection) Close() error { return nil }

// ExternalFuncs implements an external dependent. Fetch is required; the
// write functions present decide the highest supported mode. A dependent
// with Create and Delete but no Update is never changed after creation.
type ExternalFuncs[T any, C io.Closer] struct {
	// Connect opens a connection for one call. It is closed when the call
	// returns, on every path.
	Connect func(ctx context.Context, rc *Context) (C, error)

	Desired func(ctx context.Context, rc *Context) (T, bool, error)
	Fetch   func(ctx context.Context, rc *Context, conn C) (T, bool, error)
	Create  func(ctx context.Context, rc *Context, conn C, desired T) (T, error)
	Update  func(ctx context.Context, rc *Context, conn C, observed, desired T) (T, error)
	Delete  func(ctx context.Context, rc *Context, conn C, observed T) error
	Match   func(observed, desired T) bool

	// Forget releases per-primary state once the primary is gone.
	Forget func(id resource.ID)
}

// ExternalDependent manages state in a system outside the cluster.
type ExternalDependent[T any, C io.Closer] struct {
	name string
	fns  ExternalFuncs[T, C]
}

// NewExternalDependent creates an external dependent. name labels log lines.
func NewExternalDependent[T any, C io.Closer](name string, fns ExternalFuncs[T, C]) *ExternalDependent[T, C] {
	return &ExternalDependent[T, C]{name: name, fns: fns}
}

// MaxMode reports the highest mode the configured functions support.
func (e *ExternalDependent[T, C]) MaxMode() Mode {
	switch {
	case e.fns.Desired == nil || e.fns.Create == nil:
		return ReadOnly
	case e.fns.Delete != nil:
		return CreateUpdateDelete
	case e.fns.Update != nil:
		return CreateUpdate
	default:
		return CreateOnly
	}
}

// connect opens a connection and returns its release function.
func (e *ExternalDependent[T, C]) connect(ctx context.Context, rc *Context) (C, func(), error) {
	var conn C
	if e.fns.Connect == nil {
		return conn, func() {}, nil
	}
	conn, err := e.fns.Connect(ctx, rc)
	if err != nil {
		return conn, func() {}, fmt.Errorf("connecting: %w", err)
	}
	return conn, func() {
		if err := conn.Close(); err != nil {
			logging.Warn("Workflow", "Closing connection of dependent %s: %v", e.name, err)
		}
	}, nil
}

func (e *ExternalDependent[T, C]) Desired(ctx context.Context, rc *Context) (T, bool, error) {
	if e.fns.Desired == nil {
		var zero T
		return zero, true, nil
	}
	return e.fns.Desired(ctx, rc)
}

func (e *ExternalDependent[T, C]) Observe(ctx context.Context, rc *Context, _ T) (T, bool, error) {
	var zero T
	if e.fns.Fetch == nil {
		return zero, false, fmt.Errorf("dependent %s has no fetch function", e.name)
	}
	conn, release, err := e.connect(ctx, rc)
	if err != nil {
		return zero, false, err
	}
	defer release()
	return e.fns.Fetch(ctx, rc, conn)
}

func (e *ExternalDependent[T, C]) Create(ctx context.Context, rc *Context, desired T) (T, error) {
	var zero T
	if e.fns.Create == nil {
		return zero, fmt.Errorf("dependent %s does not support create", e.name)
	}
	conn, release, err := e.connect(ctx, rc)
	if err != nil {
		return zero, err
	}
	defer release()
	return e.fns.Create(ctx, rc, conn, desired)
}

func (e *ExternalDependent[T, C]) Update(ctx context.Context, rc *Context, observed, desired T) (T, error) {
	if e.fns.Update == nil {
		return observed, nil
	}
	conn, release, err := e.connect(ctx, rc)
	if err != nil {
		var zero T
		return zero, err
	}
	defer release()
	return e.fns.Update(ctx, rc, conn, observed, desired)
}

func (e *ExternalDependent[T, C]) Delete(ctx context.Context, rc *Context, observed T) error {
	if e.fns.Delete == nil {
		return fmt.Errorf("dependent %s does not support delete", e.name)
	}
	conn, release, err := e.connect(ctx, rc)
	if err != nil {
		return err
	}
	defer release()
	return e.fns.Delete(ctx, rc, conn, observed)
}

// Match uses the configured function; without Update there is nothing to
// reconcile after creation, so everything matches.
func (e *ExternalDependent[T, C]) Match(observed, desired T) bool {
	if e.fns.Match != nil {
		return e.fns.Match(observed, desired)
	}
	if e.fns.Update == nil {
		return true
	}
	return defaultMatch(observed, desired)
}

func (e *ExternalDependent[T, C]) Forget(id resource.ID) {
	if e.fns.Forget != nil {
		e.fns.Forget(id)
	}
}

// Polled creates a read-only dependent whose observed state is the latest
// snapshot of src for the primary. Observing a primary starts polling it, so
// later external changes trigger reconciliation; the first observation
// fetches synchronously. Forgetting the primary stops polling.
func Polled[T any](name string, src *event.PollingSource[T]) *ExternalDependent[T, NoConnection] {
	return NewExternalDependent(name, ExternalFuncs[T, NoConnection]{
		Fetch: func(ctx context.Context, rc *Context, _ NoConnection) (T, bool, error) {
			src.Track(rc.ID())
			if v, ok := src.Latest(rc.ID()); ok {
				return v, true, nil
			}
			v, err := src.Refresh(ctx, rc.ID())
			if err != nil {
				var zero T
				return zero, false, err
			}
			return v, true, nil
		},
		Forget: src.Untrack,
	})
}
