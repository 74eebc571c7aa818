package service

import (
	"context"
	"testing"
	"time"

	"github.com/kursadbilgin/exception-collector/internal/alerting"
	"github.com/kursadbilgin/exception-collector/internal/domain"
)

func TestStaleScannerFailsStuckAttempts(t *testing.T) {
	t.Parallel()

	exceptions := newMemExceptionRepo()
	attempts := newMemAttemptRepo(exceptions)
	evaluator := alerting.NewEvaluator(exceptions, alerting.Thresholds{}, nil)

	lifecycle, err := NewLifecycleService(exceptions, attempts, &memStatusChangeRepo{}, &fakePublisher{}, evaluator, nil, nil)
	if err != nil {
		t.Fatalf("NewLifecycleService() error = %v", err)
	}

	exceptions.put(baseException("tx-stuck", domain.StatusRetryInProgress))
	stuck := seedAttempt(attempts, "tx-stuck", 1, domain.AttemptInProgress, time.Now().Add(-time.Hour))

	exceptions.put(baseException("tx-fresh", domain.StatusRetryInProgress))
	fresh := seedAttempt(attempts, "tx-fresh", 1, domain.AttemptInProgress, time.Now())

	scanner, err := NewStaleScanner(attempts, lifecycle, time.Minute, 10*time.Minute, 100, nil)
	if err != nil {
		t.Fatalf("NewStaleScanner() error = %v", err)
	}

	if err := scanner.sweep(context.Background()); err != nil {
		t.Fatalf("sweep() error = %v", err)
	}

	stuckAttempts, _ := attempts.GetByTransactionID(context.Background(), "tx-stuck")
	if stuckAttempts[0].ID != stuck.ID || stuckAttempts[0].Status != domain.AttemptFailed {
		t.Fatalf("stuck attempt status = %s, want FAILED", stuckAttempts[0].Status)
	}
	if stuckAttempts[0].ErrorDetail == nil {
		t.Fatal("stuck attempt should carry an error detail")
	}

	e, _ := exceptions.GetByTransactionID(context.Background(), "tx-stuck")
	if e.Status != domain.StatusRetriedFailed {
		t.Fatalf("stuck exception status = %s, want RETRIED_FAILED", e.Status)
	}

	freshAttempts, _ := attempts.GetByTransactionID(context.Background(), "tx-fresh")
	if freshAttempts[0].ID != fresh.ID || freshAttempts[0].Status != domain.AttemptInProgress {
		t.Fatalf("fresh attempt = %+v, want untouched IN_PROGRESS", freshAttempts[0])
	}
}

func TestStaleScannerStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	exceptions := newMemExceptionRepo()
	attempts := newMemAttemptRepo(exceptions)
	evaluator := alerting.NewEvaluator(exceptions, alerting.Thresholds{}, nil)

	lifecycle, err := NewLifecycleService(exceptions, attempts, &memStatusChangeRepo{}, &fakePublisher{}, evaluator, nil, nil)
	if err != nil {
		t.Fatalf("NewLifecycleService() error = %v", err)
	}

	scanner, err := NewStaleScanner(attempts, lifecycle, 10*time.Millisecond, time.Minute, 100, nil)
	if err != nil {
		t.Fatalf("NewStaleScanner() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- scanner.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() error = %v, want nil on cancellation", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scanner did not stop after context cancellation")
	}
}
