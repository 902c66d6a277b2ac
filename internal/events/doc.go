// Package events records Kubernetes Events for engine transitions on primary
// resources: dependents created, updated, deleted or failing, retries
// exhausted, and finalizers added or removed.
//
// Recorders:
//
//   - KubernetesRecorder: creates corev1.Event objects through the cluster client
//   - MemoryRecorder: keeps events in memory, for tests and dry runs
//   - NopRecorder: discards everything
//
// Messages are rendered from per-reason templates by MessageTemplateEngine and
// can be overridden with SetTemplate.
//
// Recording is best effort. A failed event write is logged and never fails a
// reconciliation.
package events
