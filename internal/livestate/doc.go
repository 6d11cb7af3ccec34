// Package livestate implements the State Synchronizer.
//
// Synchronizer maps viewer join/leave, like/dislike and comment posting onto a domain.StateStore
// and returns the authoritative value after each mutation. Counters are only changed through the
// store's atomic INCR/DECR. InMemoryStore is a mutex-guarded StateStore for tests and local runs.
package livestate
