// Package resilience provides fault-tolerance primitives: a circuit breaker
// guarding calls to the automation engine, and a bounded retry policy used
// when recreating sessions after transient local failures.
//
// The breaker follows the standard three-state model. Closed passes calls
// through while counting failures; open rejects immediately with
// ErrCircuitOpen; half-open admits a small number of probes and closes again
// only if they all succeed.
//
// RetryPolicy is deliberately bounded. Recreating a session is expensive
// (filesystem teardown plus a snapshot restore), so an unretryable or
// persistent failure must surface instead of looping.
package resilience
