package loader

import (
	"context"
	"sync"
	"time"
)

const (
	defaultBatchWindow = 2 * time.Millisecond
	defaultMaxBatch    = 1000
)

// BatchFunc fetches values for a deduplicated set of keys in one store call.
// Keys absent from the returned map resolve to the value type's zero value.
type BatchFunc[K comparable, V any] func(ctx context.Context, keys []K) (map[K]V, error)

// Result is the cached outcome for a single key. A failed bulk call is
// scoped to the keys that were in that batch; other keys are unaffected.
type Result[V any] struct {
	Value V
	Err   error
}

// Loader coalesces point lookups issued within one request into one bulk
// store call per batch and caches results for the request's lifetime. A
// Loader must not outlive the request it was built for.
type Loader[K comparable, V any] struct {
	fetch  BatchFunc[K, V]
	window time.Duration
	max    int

	mu      sync.Mutex
	cache   map[K]Result[V]
	current *batch[K, V]
}

type batch[K comparable, V any] struct {
	keys []K
	seen map[K]struct{}
	done chan struct{}
}

// Option configures a Loader.
type Option func(*options)

type options struct {
	window time.Duration
	max    int
}

// WithBatchWindow sets how long the loader collects keys before dispatching.
func WithBatchWindow(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.window = d
		}
	}
}

// WithMaxBatch caps how many distinct keys one bulk call may carry.
func WithMaxBatch(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.max = n
		}
	}
}

func New[K comparable, V any](fetch BatchFunc[K, V], opts ...Option) *Loader[K, V] {
	o := options{window: defaultBatchWindow, max: defaultMaxBatch}
	for _, opt := range opts {
		opt(&o)
	}

	return &Loader[K, V]{
		fetch:  fetch,
		window: o.window,
		max:    o.max,
		cache:  make(map[K]Result[V]),
	}
}

// Load resolves one key, joining the in-flight batch if one is still
// collecting. Repeat lookups of a resolved key are served from cache and
// never re-trigger a fetch, including keys that resolved to the zero value.
func (l *Loader[K, V]) Load(ctx context.Context, key K) (V, error) {
	b, cached, ok := l.enqueue(key)
	if ok {
		return cached.Value, cached.Err
	}

	select {
	case <-b.done:
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}

	l.mu.Lock()
	res := l.cache[key]
	l.mu.Unlock()
	return res.Value, res.Err
}

// LoadMany resolves a set of keys through at most one additional bulk call.
// The returned map always contains every requested key.
func (l *Loader[K, V]) LoadMany(ctx context.Context, keys []K) (map[K]Result[V], error) {
	waits := make(map[*batch[K, V]]struct{})
	for _, key := range keys {
		if b, _, ok := l.enqueue(key); !ok {
			waits[b] = struct{}{}
		}
	}

	for b := range waits {
		select {
		case <-b.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[K]Result[V], len(keys))
	for _, key := range keys {
		out[key] = l.cache[key]
	}
	return out, nil
}

// Prime seeds the cache with a known value, e.g. entities already loaded by
// a list query, so nested lookups skip the store entirely.
func (l *Loader[K, V]) Prime(key K, value V) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.cache[key]; !ok {
		l.cache[key] = Result[V]{Value: value}
	}
}

// enqueue registers a key with the collecting batch. It returns the cached
// result when the key has already been resolved.
func (l *Loader[K, V]) enqueue(key K) (*batch[K, V], Result[V], bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if res, ok := l.cache[key]; ok {
		return nil, res, true
	}

	if l.current == nil {
		b := &batch[K, V]{
			seen: make(map[K]struct{}),
			done: make(chan struct{}),
		}
		l.current = b
		time.AfterFunc(l.window, func() { l.dispatch(b) })
	}

	b := l.current
	if _, ok := b.seen[key]; !ok {
		b.seen[key] = struct{}{}
		b.keys = append(b.keys, key)
		if len(b.keys) >= l.max {
			l.current = nil
			go l.dispatch(b)
		}
	}

	return b, Result[V]{}, false
}

// dispatch executes the bulk fetch for a closed batch. On failure every key
// in the batch resolves to the same error; keys outside the batch keep their
// results.
func (l *Loader[K, V]) dispatch(b *batch[K, V]) {
	l.mu.Lock()
	if l.current == b {
		l.current = nil
	}
	keys := b.keys
	l.mu.Unlock()

	var fetched map[K]V
	var err error
	if len(keys) > 0 {
		fetched, err = l.fetch(context.Background(), keys)
	}

	l.mu.Lock()
	for _, key := range keys {
		if err != nil {
			l.cache[key] = Result[V]{Err: err}
			continue
		}
		value, ok := fetched[key]
		if !ok {
			var zero V
			value = zero
		}
		l.cache[key] = Result[V]{Value: value}
	}
	l.mu.Unlock()

	close(b.done)
}
