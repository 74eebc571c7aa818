package hub

import (
	"testing"
	"time"

	"github.com/kursadbilgin/exception-collector/internal/auth"
	"github.com/kursadbilgin/exception-collector/internal/domain"
	"go.uber.org/zap"
)

func adminPrincipal() auth.Principal {
	return auth.Principal{ID: "ops-1", Roles: []string{auth.RoleAdmin}}
}

func lifecycleEvent(txID string, severity domain.Severity) Event {
	return Event{
		Kind: KindLifecycle,
		Exception: &domain.InterfaceException{
			TransactionID: txID,
			InterfaceType: domain.InterfaceOrder,
			Category:      domain.CategoryTimeout,
			Severity:      severity,
			Status:        domain.StatusAcknowledged,
			CustomerID:    "cust-1",
		},
		OccurredAt: time.Now().UTC(),
	}
}

func newTestHub(t *testing.T, opts ...Option) *Hub {
	t.Helper()

	h, err := NewHub(NewMapRegistry(), auth.NewViewPolicy(), zap.NewNop(), opts...)
	if err != nil {
		t.Fatalf("NewHub() error = %v", err)
	}
	return h
}

func TestHubSeverityFilter(t *testing.T) {
	t.Parallel()

	h := newTestHub(t)

	sub, err := h.Subscribe(adminPrincipal(), KindLifecycle, Filter{
		Severities: []domain.Severity{domain.SeverityCritical},
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Cancel()

	h.Publish(lifecycleEvent("tx-low", domain.SeverityLow))
	h.Publish(lifecycleEvent("tx-crit-1", domain.SeverityCritical))
	h.Publish(lifecycleEvent("tx-med", domain.SeverityMedium))
	h.Publish(lifecycleEvent("tx-crit-2", domain.SeverityCritical))

	if got := len(sub.Events()); got != 2 {
		t.Fatalf("buffered events = %d, want 2", got)
	}
	for _, want := range []string{"tx-crit-1", "tx-crit-2"} {
		ev := <-sub.Events()
		if ev.Exception.TransactionID != want {
			t.Fatalf("received %q, want %q", ev.Exception.TransactionID, want)
		}
		if ev.Exception.Severity != domain.SeverityCritical {
			t.Fatalf("received severity %s, want CRITICAL", ev.Exception.Severity)
		}
	}
}

func TestHubKindIsolation(t *testing.T) {
	t.Parallel()

	h := newTestHub(t)

	lifecycle, err := h.Subscribe(adminPrincipal(), KindLifecycle, Filter{})
	if err != nil {
		t.Fatalf("Subscribe(lifecycle) error = %v", err)
	}
	defer lifecycle.Cancel()

	alerts, err := h.Subscribe(adminPrincipal(), KindAlert, Filter{})
	if err != nil {
		t.Fatalf("Subscribe(alert) error = %v", err)
	}
	defer alerts.Cancel()

	h.Publish(lifecycleEvent("tx-1", domain.SeverityHigh))

	if got := len(lifecycle.Events()); got != 1 {
		t.Fatalf("lifecycle buffered = %d, want 1", got)
	}
	if got := len(alerts.Events()); got != 0 {
		t.Fatalf("alert buffered = %d, want 0", got)
	}
}

func TestHubSlowSubscriberDropsOldest(t *testing.T) {
	t.Parallel()

	h := newTestHub(t, WithBufferSize(2))

	slow, err := h.Subscribe(adminPrincipal(), KindLifecycle, Filter{})
	if err != nil {
		t.Fatalf("Subscribe(slow) error = %v", err)
	}
	defer slow.Cancel()

	fast, err := h.Subscribe(adminPrincipal(), KindLifecycle, Filter{})
	if err != nil {
		t.Fatalf("Subscribe(fast) error = %v", err)
	}
	defer fast.Cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			h.Publish(lifecycleEvent("tx-1", domain.SeverityHigh))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber buffer")
	}

	// Slow subscriber kept the newest events, dropped the rest.
	if got := len(slow.Events()); got != 2 {
		t.Fatalf("slow buffered = %d, want 2", got)
	}
	// Draining the fast subscriber concurrently keeps it unaffected.
	drained := 0
	for range 10 {
		select {
		case <-fast.Events():
			drained++
		default:
		}
	}
	if drained != 2 {
		t.Fatalf("fast drained = %d, want 2", drained)
	}
}

func TestHubSecurityPredicateDropsSilently(t *testing.T) {
	t.Parallel()

	h := newTestHub(t)

	scoped, err := h.Subscribe(auth.Principal{
		ID:         "viewer-1",
		Roles:      []string{auth.RoleViewer},
		CustomerID: "cust-other",
	}, KindLifecycle, Filter{})
	if err != nil {
		t.Fatalf("Subscribe(scoped) error = %v", err)
	}
	defer scoped.Cancel()

	admin, err := h.Subscribe(adminPrincipal(), KindLifecycle, Filter{})
	if err != nil {
		t.Fatalf("Subscribe(admin) error = %v", err)
	}
	defer admin.Cancel()

	h.Publish(lifecycleEvent("tx-1", domain.SeverityHigh))

	if got := len(scoped.Events()); got != 0 {
		t.Fatalf("scoped buffered = %d, want 0 (unauthorized event must be dropped)", got)
	}
	if got := len(admin.Events()); got != 1 {
		t.Fatalf("admin buffered = %d, want 1", got)
	}
}

func TestHubCancelIsIdempotent(t *testing.T) {
	t.Parallel()

	h := newTestHub(t)

	sub, err := h.Subscribe(adminPrincipal(), KindLifecycle, Filter{})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	sub.Cancel()
	sub.Cancel()

	if got := h.SubscriberCount(); got != 0 {
		t.Fatalf("SubscriberCount() = %d, want 0 after cancel", got)
	}

	// Events channel is closed; publishing after cancel must not panic
	// and must not deliver.
	h.Publish(lifecycleEvent("tx-1", domain.SeverityHigh))

	if _, ok := <-sub.Events(); ok {
		t.Fatal("received event on cancelled subscription")
	}
}

func TestHubInvalidKindRejected(t *testing.T) {
	t.Parallel()

	h := newTestHub(t)

	if _, err := h.Subscribe(adminPrincipal(), EventKind("BOGUS"), Filter{}); err == nil {
		t.Fatal("Subscribe() accepted invalid event kind")
	}
}

func TestHubReaperClosesIdleSubscriptions(t *testing.T) {
	t.Parallel()

	h := newTestHub(t, WithIdleTimeout(time.Minute), WithMaxLifetime(time.Hour))

	base := time.Now()
	h.now = func() time.Time { return base }

	sub, err := h.Subscribe(adminPrincipal(), KindLifecycle, Filter{})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	h.now = func() time.Time { return base.Add(2 * time.Minute) }
	h.reap()

	if got := h.SubscriberCount(); got != 0 {
		t.Fatalf("SubscriberCount() = %d, want 0 after idle reap", got)
	}
	if _, ok := <-sub.Events(); ok {
		t.Fatal("reaped subscription still delivers events")
	}
}

func TestHubStopCancelsAllSubscribers(t *testing.T) {
	t.Parallel()

	h := newTestHub(t)

	first, err := h.Subscribe(adminPrincipal(), KindLifecycle, Filter{})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	second, err := h.Subscribe(adminPrincipal(), KindRetryStatus, Filter{})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	h.Stop()

	if got := h.SubscriberCount(); got != 0 {
		t.Fatalf("SubscriberCount() = %d, want 0 after Stop", got)
	}
	if _, ok := <-first.Events(); ok {
		t.Fatal("first subscription still open after Stop")
	}
	if _, ok := <-second.Events(); ok {
		t.Fatal("second subscription still open after Stop")
	}
}
