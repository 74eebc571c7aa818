package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/exception-collector/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultStaleScanInterval = 30 * time.Second
	defaultStaleAfter        = 10 * time.Minute
	defaultStaleScanLimit    = 100
)

// StaleScanner fails retry attempts that have been open longer than the
// configured deadline, typically after a worker crash mid-execution.
type StaleScanner struct {
	attempts  repository.AttemptRepository
	lifecycle *LifecycleService
	logger    *zap.Logger
	interval  time.Duration
	after     time.Duration
	limit     int
	now       func() time.Time
}

func NewStaleScanner(
	attempts repository.AttemptRepository,
	lifecycle *LifecycleService,
	interval time.Duration,
	after time.Duration,
	limit int,
	logger *zap.Logger,
) (*StaleScanner, error) {
	if attempts == nil {
		return nil, fmt.Errorf("attempt repository is required")
	}
	if lifecycle == nil {
		return nil, fmt.Errorf("lifecycle service is required")
	}
	if interval <= 0 {
		interval = defaultStaleScanInterval
	}
	if after <= 0 {
		after = defaultStaleAfter
	}
	if limit <= 0 {
		limit = defaultStaleScanLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &StaleScanner{
		attempts:  attempts,
		lifecycle: lifecycle,
		logger:    logger,
		interval:  interval,
		after:     after,
		limit:     limit,
		now:       time.Now,
	}, nil
}

func (s *StaleScanner) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Sweep once at startup so attempts orphaned by a crash do not wait for
	// the first ticker edge.
	if err := s.sweep(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("stale scanner initial sweep failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.sweep(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("stale scanner sweep failed", zap.Error(err))
			}
		}
	}
}

func (s *StaleScanner) sweep(ctx context.Context) error {
	cutoff := s.now().Add(-s.after)
	stale, err := s.attempts.ListStale(ctx, cutoff, s.limit)
	if err != nil {
		return fmt.Errorf("failed to list stale attempts: %w", err)
	}

	for i := range stale {
		attempt := stale[i]
		detail := fmt.Sprintf("attempt open since %s, marked failed by stale scanner", attempt.InitiatedAt.UTC().Format(time.RFC3339))

		if err := s.lifecycle.CompleteRetry(ctx, attempt.TransactionID, attempt.ID, false, &detail); err != nil {
			s.logger.Error("failed to settle stale attempt",
				zap.String("transactionId", attempt.TransactionID),
				zap.String("attemptId", attempt.ID),
				zap.Error(err),
			)
			continue
		}

		s.logger.Warn("stale retry attempt failed",
			zap.String("transactionId", attempt.TransactionID),
			zap.String("attemptId", attempt.ID),
			zap.Int("attemptNumber", attempt.AttemptNumber),
		)
	}

	return nil
}
