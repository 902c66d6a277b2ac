package resource

import (
	"strconv"
	"sync"
)

// CompareVersions orders two resource versions. Kubernetes encodes resource
// versions as unsigned integers in practice but only guarantees opacity, so
// when either side is not numeric only equality can be decided and ok is
// false for unequal values.
func CompareVersions(a, b string) (cmp int, ok bool) {
	if a == b {
		return 0, true
	}
	ai, errA := strconv.ParseUint(a, 10, 64)
	bi, errB := strconv.ParseUint(b, 10, 64)
	if errA != nil || errB != nil {
		return 0, false
	}
	switch {
	case ai < bi:
		return -1, true
	case ai > bi:
		return 1, true
	default:
		return 0, true
	}
}

// Freshness classifies an observed version against the last one seen.
type Freshness int

const (
	// Fresh is a version never seen before (or not comparable, which is treated as new).
	Fresh Freshness = iota
	// Duplicate is the same version delivered again, e.g. by an informer resync.
	Duplicate
	// Stale is strictly older than the last delivered version.
	Stale
)

func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "Fresh"
	case Duplicate:
		return "Duplicate"
	case Stale:
		return "Stale"
	default:
		return "Unknown"
	}
}

// VersionTracker remembers the newest resource version delivered per ID.
type VersionTracker struct {
	mu       sync.Mutex
	versions map[ID]string
}

// NewVersionTracker creates an empty tracker.
func NewVersionTracker() *VersionTracker {
	return &VersionTracker{versions: make(map[ID]string)}
}

// Observe records version for id and reports how it relates to the previous one.
// Only Fresh versions replace the remembered one. An empty version is always Fresh
// and is not remembered.
func (t *VersionTracker) Observe(id ID, version string) Freshness {
	if version == "" {
		return Fresh
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	last, ok := t.versions[id]
	if !ok {
		t.versions[id] = version
		return Fresh
	}

	cmp, comparable := CompareVersions(version, last)
	switch {
	case comparable && cmp == 0:
		return Duplicate
	case comparable && cmp < 0:
		return Stale
	default:
		t.versions[id] = version
		return Fresh
	}
}

// Last returns the remembered version for id.
func (t *VersionTracker) Last(id ID) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.versions[id]
	return v, ok
}

// Forget drops the remembered version for id.
func (t *VersionTracker) Forget(id ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.versions, id)
}

// Len returns the number of tracked IDs.
func (t *VersionTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.versions)
}
