package domain

import "context"

// StateStore is the shared key/counter/list store holding the canonical hub state.
// Counter operations must be atomic on the store side; the hub never does read-modify-write.
type StateStore interface {
	// Get returns the integer stored at key, or 0 when the key does not exist.
	Get(ctx context.Context, key string) (int64, error)
	Set(ctx context.Context, key string, value int64) error
	Incr(ctx context.Context, key string) (int64, error)
	Decr(ctx context.Context, key string) (int64, error)
	// PushCapped prepends value to list and trims the list to maxLen entries in one atomic step.
	PushCapped(ctx context.Context, list, value string, maxLen int64) error
	// Range returns list entries start..stop inclusive, like LRANGE.
	Range(ctx context.Context, list string, start, stop int64) ([]string, error)
	Ping(ctx context.Context) error
}

// Synchronizer applies the hub's domain operations to the StateStore and returns
// the resulting authoritative values.
type Synchronizer interface {
	RegisterViewer(ctx context.Context) (int64, error)
	UnregisterViewer(ctx context.Context) (int64, error)
	Like(ctx context.Context) (int64, error)
	Dislike(ctx context.Context) (int64, error)
	PostComment(ctx context.Context, username, message string) (Comment, error)
	Snapshot(ctx context.Context) (Snapshot, error)
}
