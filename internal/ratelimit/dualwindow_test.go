package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kursadbilgin/exception-collector/internal/domain"
)

func TestAllowEnforcesMinuteWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	l := newDualWindowLimiter(3, 100, func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Allow(ctx, "ops-user", domain.OperationRetry); err != nil {
			t.Fatalf("Allow() call %d unexpected error = %v", i+1, err)
		}
	}

	err := l.Allow(ctx, "ops-user", domain.OperationRetry)
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("Allow() error = %v, want ErrRateLimited", err)
	}

	var limitErr *LimitExceededError
	if !errors.As(err, &limitErr) {
		t.Fatalf("Allow() error = %T, want *LimitExceededError", err)
	}
	if limitErr.Caller != "ops-user" || limitErr.Operation != domain.OperationRetry {
		t.Fatalf("limit error identity = %s/%s, want ops-user/RETRY", limitErr.Caller, limitErr.Operation)
	}
	if limitErr.Window != WindowMinute || limitErr.Current != 3 || limitErr.Max != 3 {
		t.Fatalf("limit error = %+v, want minute window at 3/3", limitErr)
	}
	wantReset := now.Add(time.Minute)
	if !limitErr.ResetAt.Equal(wantReset) {
		t.Fatalf("ResetAt = %s, want %s", limitErr.ResetAt, wantReset)
	}

	// Window boundary passes and the counter starts fresh.
	now = now.Add(time.Minute)
	if err := l.Allow(ctx, "ops-user", domain.OperationRetry); err != nil {
		t.Fatalf("Allow() after reset unexpected error = %v", err)
	}
}

func TestAllowEnforcesHourWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	l := newDualWindowLimiter(100, 5, func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := l.Allow(ctx, "batch-job", domain.OperationAcknowledge); err != nil {
			t.Fatalf("Allow() call %d unexpected error = %v", i+1, err)
		}
		now = now.Add(2 * time.Minute)
	}

	err := l.Allow(ctx, "batch-job", domain.OperationAcknowledge)
	var limitErr *LimitExceededError
	if !errors.As(err, &limitErr) || limitErr.Window != WindowHour {
		t.Fatalf("Allow() error = %v, want hour-window rejection", err)
	}
}

func TestAllowKeysAreIndependent(t *testing.T) {
	t.Parallel()

	l := NewDualWindowLimiter(1, 10)
	ctx := context.Background()

	if err := l.Allow(ctx, "alice", domain.OperationRetry); err != nil {
		t.Fatalf("Allow(alice, RETRY) unexpected error = %v", err)
	}
	if err := l.Allow(ctx, "alice", domain.OperationRetry); !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("Allow(alice, RETRY) second call error = %v, want ErrRateLimited", err)
	}

	// Distinct caller and distinct operation are separate counters.
	if err := l.Allow(ctx, "bob", domain.OperationRetry); err != nil {
		t.Fatalf("Allow(bob, RETRY) unexpected error = %v", err)
	}
	if err := l.Allow(ctx, "alice", domain.OperationResolve); err != nil {
		t.Fatalf("Allow(alice, RESOLVE) unexpected error = %v", err)
	}
}

func TestAllowConcurrentCallersExactAdmission(t *testing.T) {
	t.Parallel()

	l := NewDualWindowLimiter(3, 100)
	ctx := context.Background()

	const callers = 5
	var allowed, rejected atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Allow(ctx, "same-caller", domain.OperationRetry)
			switch {
			case err == nil:
				allowed.Add(1)
			case errors.Is(err, domain.ErrRateLimited):
				rejected.Add(1)
			default:
				t.Errorf("Allow() unexpected error = %v", err)
			}
		}()
	}
	wg.Wait()

	if allowed.Load() != 3 || rejected.Load() != 2 {
		t.Fatalf("admission = %d allowed / %d rejected, want exactly 3/2",
			allowed.Load(), rejected.Load())
	}
}

func TestAllowRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	l := NewDualWindowLimiter(3, 100)
	ctx := context.Background()

	if err := l.Allow(ctx, "  ", domain.OperationRetry); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Allow() blank caller error = %v, want ErrValidation", err)
	}
	if err := l.Allow(ctx, "alice", domain.Operation("NOPE")); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Allow() bad operation error = %v, want ErrValidation", err)
	}
}
