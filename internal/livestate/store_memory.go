package livestate

import (
	"context"
	"sync"

	"github.com/pscheid92/livepulse/internal/domain"
)

var _ domain.StateStore = (*InMemoryStore)(nil)

// InMemoryStore is a process-local StateStore. All operations are serialized by one mutex,
// which gives the same atomicity the hub relies on from Redis.
type InMemoryStore struct {
	mu       sync.Mutex
	counters map[string]int64
	lists    map[string][]string
	err      error
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		counters: make(map[string]int64),
		lists:    make(map[string][]string),
	}
}

// SetError makes every subsequent operation fail with err until cleared with nil.
func (s *InMemoryStore) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *InMemoryStore) Get(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	return s.counters[key], nil
}

func (s *InMemoryStore) Set(_ context.Context, key string, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.counters[key] = value
	return nil
}

func (s *InMemoryStore) Incr(_ context.Context, key string) (int64, error) {
	return s.add(key, 1)
}

func (s *InMemoryStore) Decr(_ context.Context, key string) (int64, error) {
	return s.add(key, -1)
}

func (s *InMemoryStore) add(key string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.counters[key] += delta
	return s.counters[key], nil
}

func (s *InMemoryStore) PushCapped(_ context.Context, list, value string, maxLen int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}

	entries := append([]string{value}, s.lists[list]...)
	if maxLen >= 0 && int64(len(entries)) > maxLen {
		entries = entries[:maxLen]
	}
	s.lists[list] = entries
	return nil
}

// Range follows LRANGE semantics, including negative indices counted from the tail.
func (s *InMemoryStore) Range(_ context.Context, list string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}

	entries := s.lists[list]
	n := int64(len(entries))
	if start < 0 {
		start = max(n+start, 0)
	}
	if stop < 0 {
		stop = n + stop
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return []string{}, nil
	}

	out := make([]string, stop-start+1)
	copy(out, entries[start:stop+1])
	return out, nil
}

func (s *InMemoryStore) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
