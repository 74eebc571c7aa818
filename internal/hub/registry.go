package hub

import "sync"

// Registry holds the live subscriber set. It must support concurrent
// add/remove without blocking delivery to unaffected subscribers.
type Registry interface {
	Add(s *Subscription)
	Remove(id string)
	Snapshot() []*Subscription
	Len() int
}

// MapRegistry is the default in-process registry.
type MapRegistry struct {
	mu   sync.RWMutex
	subs map[string]*Subscription
}

func NewMapRegistry() *MapRegistry {
	return &MapRegistry{subs: make(map[string]*Subscription)}
}

func (r *MapRegistry) Add(s *Subscription) {
	if s == nil {
		return
	}
	r.mu.Lock()
	r.subs[s.id] = s
	r.mu.Unlock()
}

func (r *MapRegistry) Remove(id string) {
	r.mu.Lock()
	delete(r.subs, id)
	r.mu.Unlock()
}

func (r *MapRegistry) Snapshot() []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Subscription, 0, len(r.subs))
	for _, s := range r.subs {
		out = append(out, s)
	}
	return out
}

func (r *MapRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}
