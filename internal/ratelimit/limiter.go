package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/exception-collector/internal/domain"
)

// RateLimiter gates state-changing calls per (caller, operation) pair.
// A rejection is reported as a *LimitExceededError and never increments
// the counters further.
type RateLimiter interface {
	Allow(ctx context.Context, caller string, op domain.Operation) error
}

// Window names the quota window that rejected a call.
type Window string

const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
)

// LimitExceededError carries everything a caller needs to back off.
type LimitExceededError struct {
	Caller    string
	Operation domain.Operation
	Window    Window
	Current   int64
	Max       int64
	ResetAt   time.Time
}

func (e *LimitExceededError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("rate limit exceeded: caller=%s operation=%s window=%s count=%d max=%d resets=%s",
		e.Caller, e.Operation, e.Window, e.Current, e.Max, e.ResetAt.UTC().Format(time.RFC3339))
}

func (e *LimitExceededError) Unwrap() error {
	return domain.ErrRateLimited
}
