// Package resource defines the identity and version primitives every other
// part of the engine keys its per-resource state on.
//
// An ID is the (kind, namespace, name) tuple of a primary resource. Queue
// slots, in-flight markers, attempt counters and status records are all
// indexed by ID. Resource versions are opaque strings handed out by the
// cluster API; VersionTracker uses them to drop duplicate and stale watch
// notifications.
package resource
