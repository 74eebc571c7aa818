package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/exception-collector/internal/domain"
	"github.com/kursadbilgin/exception-collector/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	minuteWindowSeconds = 60
	hourWindowSeconds   = 3600
)

// allowScript checks both fixed windows and increments them only when the
// call is admitted, so a rejection never advances a counter.
var allowScript = goredis.NewScript(`
local mc = tonumber(redis.call("GET", KEYS[1]) or "0")
local hc = tonumber(redis.call("GET", KEYS[2]) or "0")
if mc >= tonumber(ARGV[1]) then
  return {0, "minute", mc}
end
if hc >= tonumber(ARGV[2]) then
  return {0, "hour", hc}
end
mc = redis.call("INCR", KEYS[1])
if mc == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[3])
end
hc = redis.call("INCR", KEYS[2])
if hc == 1 then
  redis.call("EXPIRE", KEYS[2], ARGV[4])
end
return {1, "", mc}
`)

var _ ratelimit.RateLimiter = (*DualWindowRateLimiter)(nil)

// DualWindowRateLimiter is the cross-process variant of the mutation rate
// limiter: two fixed windows per (caller, operation) key, kept in Redis so
// limits hold across replicas and restarts.
type DualWindowRateLimiter struct {
	client    *goredis.Client
	minuteMax int64
	hourMax   int64
	now       func() time.Time
	script    *goredis.Script
}

func NewDualWindowRateLimiter(client *goredis.Client, minuteMax, hourMax int64) (*DualWindowRateLimiter, error) {
	return newDualWindowRateLimiter(client, minuteMax, hourMax, time.Now)
}

func newDualWindowRateLimiter(
	client *goredis.Client,
	minuteMax, hourMax int64,
	nowFn func() time.Time,
) (*DualWindowRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if minuteMax <= 0 || hourMax <= 0 {
		return nil, fmt.Errorf("window maxima must be positive")
	}
	if nowFn == nil {
		nowFn = time.Now
	}

	return &DualWindowRateLimiter{
		client:    client,
		minuteMax: minuteMax,
		hourMax:   hourMax,
		now:       nowFn,
		script:    allowScript,
	}, nil
}

func (r *DualWindowRateLimiter) Allow(ctx context.Context, caller string, op domain.Operation) error {
	if r == nil || r.client == nil || r.script == nil {
		return fmt.Errorf("rate limiter is not initialized")
	}

	normalizedCaller := strings.TrimSpace(caller)
	if normalizedCaller == "" {
		return fmt.Errorf("%w: caller is required", domain.ErrValidation)
	}
	if !op.IsValid() {
		return fmt.Errorf("%w: invalid operation %q", domain.ErrValidation, op)
	}

	if ctx == nil {
		ctx = context.Background()
	}

	now := r.now().UTC()
	minuteBucket := now.Truncate(time.Minute)
	hourBucket := now.Truncate(time.Hour)

	keys := []string{
		fmt.Sprintf("ratelimit:%s:%s:m:%d", normalizedCaller, op, minuteBucket.Unix()),
		fmt.Sprintf("ratelimit:%s:%s:h:%d", normalizedCaller, op, hourBucket.Unix()),
	}

	result, err := r.script.Run(ctx, r.client, keys,
		r.minuteMax, r.hourMax, minuteWindowSeconds, hourWindowSeconds).Slice()
	if err != nil {
		return fmt.Errorf("failed to evaluate rate limit: %w", err)
	}
	if len(result) < 3 {
		return fmt.Errorf("unexpected rate limit script result: %v", result)
	}

	admitted, _ := result[0].(int64)
	if admitted == 1 {
		return nil
	}

	window, _ := result[1].(string)
	count, _ := result[2].(int64)

	limitErr := &ratelimit.LimitExceededError{
		Caller:    normalizedCaller,
		Operation: op,
		Current:   count,
	}
	if window == string(ratelimit.WindowHour) {
		limitErr.Window = ratelimit.WindowHour
		limitErr.Max = r.hourMax
		limitErr.ResetAt = hourBucket.Add(time.Hour)
	} else {
		limitErr.Window = ratelimit.WindowMinute
		limitErr.Max = r.minuteMax
		limitErr.ResetAt = minuteBucket.Add(time.Minute)
	}

	return limitErr
}
