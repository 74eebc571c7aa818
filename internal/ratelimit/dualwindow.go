package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kursadbilgin/exception-collector/internal/domain"
)

const (
	defaultMinuteMax int64 = 30
	defaultHourMax   int64 = 300
)

// windowCounters is one immutable snapshot of both fixed windows for a
// (caller, operation) key. Updates swap in a fresh snapshot via CAS so
// concurrent callers on the same key never block and callers on distinct
// keys never contend at all.
type windowCounters struct {
	minuteCount int64
	minuteReset time.Time
	hourCount   int64
	hourReset   time.Time
}

type entry struct {
	state atomic.Pointer[windowCounters]
}

// DualWindowLimiter enforces a short and a long fixed window per
// (caller, operation) pair, each with its own maximum and explicit reset
// time. Windows reset at fixed boundaries measured from first use.
type DualWindowLimiter struct {
	minuteMax int64
	hourMax   int64
	entries   sync.Map // string -> *entry
	now       func() time.Time
}

func NewDualWindowLimiter(minuteMax, hourMax int64) *DualWindowLimiter {
	return newDualWindowLimiter(minuteMax, hourMax, time.Now)
}

func newDualWindowLimiter(minuteMax, hourMax int64, nowFn func() time.Time) *DualWindowLimiter {
	if minuteMax <= 0 {
		minuteMax = defaultMinuteMax
	}
	if hourMax <= 0 {
		hourMax = defaultHourMax
	}
	if nowFn == nil {
		nowFn = time.Now
	}

	return &DualWindowLimiter{
		minuteMax: minuteMax,
		hourMax:   hourMax,
		now:       nowFn,
	}
}

func limiterKey(caller string, op domain.Operation) string {
	return strings.TrimSpace(caller) + ":" + op.String()
}

// Allow admits or rejects one call. Counters for distinct keys are fully
// independent; a rejection leaves both counters untouched.
func (l *DualWindowLimiter) Allow(_ context.Context, caller string, op domain.Operation) error {
	if strings.TrimSpace(caller) == "" {
		return fmt.Errorf("%w: caller is required", domain.ErrValidation)
	}
	if !op.IsValid() {
		return fmt.Errorf("%w: invalid operation %q", domain.ErrValidation, op)
	}

	key := limiterKey(caller, op)
	actual, _ := l.entries.LoadOrStore(key, &entry{})
	e := actual.(*entry)

	for {
		now := l.now().UTC()
		cur := e.state.Load()

		next := windowCounters{}
		if cur == nil || !now.Before(cur.minuteReset) {
			next.minuteCount = 0
			next.minuteReset = now.Add(time.Minute)
		} else {
			next.minuteCount = cur.minuteCount
			next.minuteReset = cur.minuteReset
		}
		if cur == nil || !now.Before(cur.hourReset) {
			next.hourCount = 0
			next.hourReset = now.Add(time.Hour)
		} else {
			next.hourCount = cur.hourCount
			next.hourReset = cur.hourReset
		}

		if next.minuteCount >= l.minuteMax {
			return &LimitExceededError{
				Caller:    caller,
				Operation: op,
				Window:    WindowMinute,
				Current:   next.minuteCount,
				Max:       l.minuteMax,
				ResetAt:   next.minuteReset,
			}
		}
		if next.hourCount >= l.hourMax {
			return &LimitExceededError{
				Caller:    caller,
				Operation: op,
				Window:    WindowHour,
				Current:   next.hourCount,
				Max:       l.hourMax,
				ResetAt:   next.hourReset,
			}
		}

		next.minuteCount++
		next.hourCount++

		if e.state.CompareAndSwap(cur, &next) {
			return nil
		}
	}
}
