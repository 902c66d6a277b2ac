// Package event turns heterogeneous change signals into uniform "resource X
// needs evaluation" triggers.
//
// A Source observes something (an informer, an external system polled on a
// timer, a Go channel, a directory on disk) and calls Handler.Submit with an
// Event naming the primary resource that must be reconciled. Secondary
// resources are mapped to their owning primaries by a Mapper; InformerSource
// keeps an index of the last mapping so deletes still reach the owner after
// the secondary is gone.
//
// Sources are registered with a Manager, which starts and stops them with the
// controller and aggregates their health. A source whose watch or poll keeps
// failing is reported unhealthy through Manager.Health and the healthz check
// Manager.Check; it is retried with backoff and never silently dropped.
package event
