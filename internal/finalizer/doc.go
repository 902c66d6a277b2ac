// Package finalizer keeps a finalizer marker on primary resources whose
// dependents need explicit cleanup, so the cluster does not physically delete
// a primary before its cleanup workflow has succeeded.
//
// Every write is an optimistic-concurrency update. On conflict the primary is
// re-read from the API server and only the finalizer change is re-applied, so
// concurrent changes made by others are never overwritten.
package finalizer
