// Package dispatch schedules reconciliations.
//
// A Dispatcher accepts events for primary resources and runs a reconcile
// function for them on a fixed pool of workers, with these guarantees:
//
//   - At most one reconciliation runs per resource ID at any time.
//   - An event arriving while its ID is in flight is not lost and does not
//     start a second run; it marks the ID dirty and exactly one follow-up run
//     is queued when the current one finishes, however many events arrived.
//   - IDs are independent: different IDs reconcile in parallel, bounded by the
//     worker count. When all workers are busy, events queue.
//
// # Retries
//
// A failed attempt is retried after an exponential backoff with jitter
// (Backoff). The per-ID failure count lives in a sharded attempt store and is
// reset by any successful attempt. When MaxAttempts attempts have failed in a
// row the error becomes terminal: pending retries are cancelled, the status
// moves to Failed, OnTerminal is called, and nothing is retried until a new
// event arrives.
//
// # Rate limiting
//
// A RateLimiter shared by all dispatchers of a manager caps the global rate
// of reconciliation starts, retries and first attempts alike.
package dispatch
