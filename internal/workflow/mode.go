package workflow

import (
	"context"
	"fmt"
)

// Mode is the set of write operations the engine may perform for a
// dependent. Modes are ordered: each one allows everything the previous one
// does.
type Mode int

const (
	// ReadOnly dependents are only observed.
	ReadOnly Mode = iota
	// CreateOnly dependents are created when absent and never changed.
	CreateOnly
	// CreateUpdate dependents are created and kept matching the desired state.
	CreateUpdate
	// CreateUpdateDelete dependents are also deleted when no longer desired
	// and during cleanup.
	CreateUpdateDelete
)

func (m Mode) String() string {
	switch m {
	case ReadOnly:
		return "ReadOnly"
	case CreateOnly:
		return "CreateOnly"
	case CreateUpdate:
		return "CreateUpdate"
	case CreateUpdateDelete:
		return "CreateUpdateDelete"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses the String form of a Mode.
func ParseMode(s string) (Mode, error) {
	for m := ReadOnly; m <= CreateUpdateDelete; m++ {
		if m.String() == s {
			return m, nil
		}
	}
	return ReadOnly, fmt.Errorf("unknown mode %q", s)
}

func (m Mode) CanCreate() bool { return m >= CreateOnly }
func (m Mode) CanUpdate() bool { return m >= CreateUpdate }
func (m Mode) CanDelete() bool { return m >= CreateUpdateDelete }

// Dependent is implemented by every dependent resource.
type Dependent[T any] interface {
	// Desired computes the desired state from the primary. ok is false when
	// the resource should not exist; desired may then still identify the
	// resource to delete.
	Desired(ctx context.Context, rc *Context) (desired T, ok bool, err error)

	// Observe returns the current state, or ok false when it is absent.
	// Cluster dependents read from the cache, not the live API.
	Observe(ctx context.Context, rc *Context, desired T) (observed T, ok bool, err error)
}

// Creator creates an absent resource.
type Creator[T any] interface {
	Create(ctx context.Context, rc *Context, desired T) (T, error)
}

// Updater brings an existing resource to the desired state.
type Updater[T any] interface {
	Update(ctx context.Context, rc *Context, observed, desired T) (T, error)
}

// Deleter removes a resource. Deleting an absent resource must succeed.
type Deleter[T any] interface {
	Delete(ctx context.Context, rc *Context, observed T) error
}

// Matcher reports whether observed already satisfies desired.
type Matcher[T any] interface {
	Match(observed, desired T) bool
}

// ReadyChecker reports readiness of an existing resource.
type ReadyChecker[T any] interface {
	Ready(ctx context.Context, rc *Context, observed T) (bool, error)
}

// modeLimiter is implemented by dependents that carry every capability
// method but only support some of them.
type modeLimiter interface {
	MaxMode() Mode
}

// supportedMode returns the highest mode the dependent's capabilities allow.
func supportedMode[T any](d Dependent[T]) Mode {
	if l, ok := d.(modeLimiter); ok {
		return l.MaxMode()
	}
	_, creates := d.(Creator[T])
	_, updates := d.(Updater[T])
	_, deletes := d.(Deleter[T])
	switch {
	case creates && updates && deletes:
		return CreateUpdateDelete
	case creates && updates:
		return CreateUpdate
	case creates:
		return CreateOnly
	default:
		return ReadOnly
	}
}
