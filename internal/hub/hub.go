package hub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/exception-collector/internal/auth"
	"github.com/kursadbilgin/exception-collector/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultBufferSize  = 64
	defaultMaxLifetime = 30 * time.Minute
	defaultIdleTimeout = 5 * time.Minute
	defaultReapEvery   = 30 * time.Second
)

// ViewPolicy is the security predicate evaluated per event per subscriber.
type ViewPolicy interface {
	Decide(p auth.Principal, e *domain.InterfaceException) auth.Decision
}

// Subscription is one live consumer. Events arrive on Events(); a full
// buffer drops the oldest pending event so producers never block.
type Subscription struct {
	id        string
	principal auth.Principal
	kind      EventKind
	filter    Filter
	createdAt time.Time

	mu       sync.Mutex
	events   chan Event
	closed   bool
	lastSeen time.Time

	remove func(id string)
}

func (s *Subscription) ID() string { return s.id }

func (s *Subscription) Events() <-chan Event { return s.events }

// Cancel closes the subscription immediately. It is idempotent and releases
// all hub resources before returning.
func (s *Subscription) Cancel() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.events)
	s.mu.Unlock()

	if s.remove != nil {
		s.remove(s.id)
	}
}

// deliver hands one event to the subscriber without ever blocking the
// producer. Overflow policy: drop the oldest buffered event.
func (s *Subscription) deliver(ev Event, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	s.lastSeen = now

	select {
	case s.events <- ev:
		return true
	default:
	}

	select {
	case <-s.events:
	default:
	}

	select {
	case s.events <- ev:
		return true
	default:
		return false
	}
}

func (s *Subscription) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Hub multicasts lifecycle, retry-status, and alert events to an arbitrary
// number of concurrently-connected subscribers. It is an explicit component
// with start/stop lifecycle; the subscriber registry is injectable.
type Hub struct {
	registry    Registry
	policy      ViewPolicy
	logger      *zap.Logger
	bufferSize  int
	maxLifetime time.Duration
	idleTimeout time.Duration
	reapEvery   time.Duration
	now         func() time.Time

	stopMu sync.Mutex
	stop   context.CancelFunc
}

// Option configures a Hub.
type Option func(*Hub)

func WithBufferSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.bufferSize = n
		}
	}
}

func WithMaxLifetime(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.maxLifetime = d
		}
	}
}

func WithIdleTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.idleTimeout = d
		}
	}
}

func WithReapInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.reapEvery = d
		}
	}
}

func NewHub(registry Registry, policy ViewPolicy, logger *zap.Logger, opts ...Option) (*Hub, error) {
	if registry == nil {
		registry = NewMapRegistry()
	}
	if policy == nil {
		return nil, fmt.Errorf("view policy is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	h := &Hub{
		registry:    registry,
		policy:      policy,
		logger:      logger,
		bufferSize:  defaultBufferSize,
		maxLifetime: defaultMaxLifetime,
		idleTimeout: defaultIdleTimeout,
		reapEvery:   defaultReapEvery,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}

	return h, nil
}

// Start launches the reaper that force-closes subscriptions past their
// maximum lifetime or idle timeout. It returns immediately.
func (h *Hub) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	reapCtx, cancel := context.WithCancel(ctx)
	h.stopMu.Lock()
	h.stop = cancel
	h.stopMu.Unlock()

	go func() {
		ticker := time.NewTicker(h.reapEvery)
		defer ticker.Stop()

		for {
			select {
			case <-reapCtx.Done():
				return
			case <-ticker.C:
				h.reap()
			}
		}
	}()
}

// Stop halts the reaper and cancels every live subscription.
func (h *Hub) Stop() {
	h.stopMu.Lock()
	if h.stop != nil {
		h.stop()
		h.stop = nil
	}
	h.stopMu.Unlock()

	for _, s := range h.registry.Snapshot() {
		s.Cancel()
	}
}

// Subscribe registers a live consumer for one event kind. The security
// predicate and client filter are evaluated per delivered event.
func (h *Hub) Subscribe(principal auth.Principal, kind EventKind, filter Filter) (*Subscription, error) {
	switch kind {
	case KindLifecycle, KindRetryStatus, KindAlert:
	default:
		return nil, fmt.Errorf("%w: invalid event kind %q", domain.ErrValidation, kind)
	}

	now := h.now()
	s := &Subscription{
		id:        uuid.NewString(),
		principal: principal,
		kind:      kind,
		filter:    filter,
		createdAt: now,
		lastSeen:  now,
		events:    make(chan Event, h.bufferSize),
		remove:    h.registry.Remove,
	}

	h.registry.Add(s)
	return s, nil
}

// SubscriberCount reports the live subscriber total.
func (h *Hub) SubscriberCount() int {
	return h.registry.Len()
}

// Publish fans one event out to every subscriber whose security predicate
// and filter both pass. Unauthorized or filtered subscribers are skipped
// silently; a slow subscriber never delays the producer or its siblings.
func (h *Hub) Publish(ev Event) {
	if ev.Exception == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = h.now().UTC()
	}

	now := h.now()
	for _, s := range h.registry.Snapshot() {
		if s.kind != ev.Kind {
			continue
		}
		if decision := h.policy.Decide(s.principal, ev.Exception); !decision.Allowed {
			continue
		}
		if !s.filter.Matches(ev) {
			continue
		}
		s.deliver(ev, now)
	}
}

func (h *Hub) reap() {
	now := h.now()
	for _, s := range h.registry.Snapshot() {
		expired := now.Sub(s.createdAt) > h.maxLifetime
		idle := now.Sub(s.idleSince()) > h.idleTimeout
		if !expired && !idle {
			continue
		}

		h.logger.Debug("closing stale subscription",
			zap.String("subscriptionId", s.id),
			zap.Bool("expired", expired),
			zap.Bool("idle", idle),
		)
		s.Cancel()
	}
}
