package cluster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// WatchFailureWindow is how long a watch counts as failing after its last
// error. A reflector whose watch keeps failing retries at least every 30s.
const WatchFailureWindow = time.Minute

// WatchError describes a watch that keeps failing after its informer synced,
// e.g. because RBAC was revoked or the CRD was removed.
type WatchError struct {
	Kind     schema.GroupVersionKind
	Err      error
	Failures int
	Since    time.Time
}

func (e *WatchError) Error() string {
	return fmt.Sprintf("watch of %s failed %d times since %s: %v",
		e.Kind.Kind, e.Failures, e.Since.Format(time.RFC3339), e.Err)
}

func (e *WatchError) Unwrap() error { return e.Err }

// WatchErrors records watch failures per kind. Failures the reflector
// recovers from on its own (closed watches, expired resource versions) are
// not recorded.
type WatchErrors struct {
	mu    sync.Mutex
	now   func() time.Time
	kinds map[schema.GroupVersionKind]*watchFailure
}

type watchFailure struct {
	WatchError
	last time.Time
}

// NewWatchErrors creates an empty recorder.
func NewWatchErrors() *WatchErrors {
	return &WatchErrors{now: time.Now, kinds: make(map[schema.GroupVersionKind]*watchFailure)}
}

// Record notes a watch failure for gvk.
func (w *WatchErrors) Record(gvk schema.GroupVersionKind, err error) {
	if isTransientWatchError(err) {
		return
	}
	now := w.now()

	w.mu.Lock()
	defer w.mu.Unlock()
	f, ok := w.kinds[gvk]
	if !ok || now.Sub(f.last) > WatchFailureWindow {
		f = &watchFailure{WatchError: WatchError{Kind: gvk, Since: now}}
		w.kinds[gvk] = f
	}
	f.Err = err
	f.Failures++
	f.last = now
}

// Err returns a *WatchError while the watch of gvk is failing, nil otherwise.
func (w *WatchErrors) Err(gvk schema.GroupVersionKind) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	f, ok := w.kinds[gvk]
	if !ok {
		return nil
	}
	if w.now().Sub(f.last) > WatchFailureWindow {
		delete(w.kinds, gvk)
		return nil
	}
	out := f.WatchError
	return &out
}

// Clear forgets the failures of gvk.
func (w *WatchErrors) Clear(gvk schema.GroupVersionKind) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.kinds, gvk)
}

func isTransientWatchError(err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return true
	case apierrors.IsResourceExpired(err), apierrors.IsGone(err):
		return true
	default:
		return false
	}
}
