package broadcast

import "sync"

// Registry is the set of connections that receive broadcasts.
type Registry struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[*Client]struct{})}
}

// Add registers c. Adding a member twice is a no-op.
func (r *Registry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c] = struct{}{}
}

// Remove unregisters c and reports whether it was a member.
func (r *Registry) Remove(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c]; !ok {
		return false
	}
	delete(r.clients, c)
	return true
}

// ForEach calls fn for every member of a snapshot taken at call time. Members for which fn
// fails are removed and returned. Add and Remove may run concurrently with fn.
func (r *Registry) ForEach(fn func(*Client) error) []*Client {
	var failed []*Client
	for _, c := range r.snapshot() {
		if err := fn(c); err != nil {
			failed = append(failed, c)
		}
	}

	if len(failed) > 0 {
		r.mu.Lock()
		for _, c := range failed {
			delete(r.clients, c)
		}
		r.mu.Unlock()
	}
	return failed
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Drain removes and returns every member.
func (r *Registry) Drain() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		out = append(out, c)
	}
	clear(r.clients)
	return out
}

func (r *Registry) snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		out = append(out, c)
	}
	return out
}
