package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kursadbilgin/exception-collector/internal/domain"
	"github.com/kursadbilgin/exception-collector/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

func TestDualWindowRateLimiterMinuteWindow(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)

	now := time.Unix(1_700_000_000, 0)
	limiter, err := newDualWindowRateLimiter(rdb, 2, 100, func() time.Time { return now })
	if err != nil {
		t.Fatalf("newDualWindowRateLimiter() error = %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := limiter.Allow(ctx, "ops-user", domain.OperationRetry); err != nil {
			t.Fatalf("Allow() call %d error = %v", i+1, err)
		}
	}

	err = limiter.Allow(ctx, "ops-user", domain.OperationRetry)
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("Allow() error = %v, want ErrRateLimited", err)
	}

	var limitErr *ratelimit.LimitExceededError
	if !errors.As(err, &limitErr) {
		t.Fatalf("Allow() error = %T, want *LimitExceededError", err)
	}
	if limitErr.Window != ratelimit.WindowMinute || limitErr.Max != 2 {
		t.Fatalf("limit error = %+v, want minute window with max 2", limitErr)
	}

	// Next fixed minute bucket admits again.
	now = now.Add(time.Minute)
	if err := limiter.Allow(ctx, "ops-user", domain.OperationRetry); err != nil {
		t.Fatalf("Allow() after window reset error = %v", err)
	}
}

func TestDualWindowRateLimiterHourWindow(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)

	now := time.Unix(1_700_003_600, 0)
	limiter, err := newDualWindowRateLimiter(rdb, 100, 3, func() time.Time { return now })
	if err != nil {
		t.Fatalf("newDualWindowRateLimiter() error = %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := limiter.Allow(ctx, "batch-job", domain.OperationAcknowledge); err != nil {
			t.Fatalf("Allow() call %d error = %v", i+1, err)
		}
		now = now.Add(90 * time.Second)
	}

	err = limiter.Allow(ctx, "batch-job", domain.OperationAcknowledge)
	var limitErr *ratelimit.LimitExceededError
	if !errors.As(err, &limitErr) || limitErr.Window != ratelimit.WindowHour {
		t.Fatalf("Allow() error = %v, want hour-window rejection", err)
	}
}

func TestDualWindowRateLimiterIndependentKeys(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)

	limiter, err := NewDualWindowRateLimiter(rdb, 1, 10)
	if err != nil {
		t.Fatalf("NewDualWindowRateLimiter() error = %v", err)
	}

	ctx := context.Background()
	if err := limiter.Allow(ctx, "alice", domain.OperationRetry); err != nil {
		t.Fatalf("Allow(alice, RETRY) error = %v", err)
	}
	if err := limiter.Allow(ctx, "alice", domain.OperationRetry); !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("Allow(alice, RETRY) second call error = %v, want ErrRateLimited", err)
	}
	if err := limiter.Allow(ctx, "bob", domain.OperationRetry); err != nil {
		t.Fatalf("Allow(bob, RETRY) error = %v", err)
	}
	if err := limiter.Allow(ctx, "alice", domain.OperationResolve); err != nil {
		t.Fatalf("Allow(alice, RESOLVE) error = %v", err)
	}
}

func newTestRedisClient(t *testing.T) *goredis.Client {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		_ = rdb.Close()
	})

	return rdb
}
