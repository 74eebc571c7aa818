package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/exception-collector/internal/alerting"
	"github.com/kursadbilgin/exception-collector/internal/domain"
	"github.com/kursadbilgin/exception-collector/internal/hub"
	"github.com/kursadbilgin/exception-collector/internal/queue"
	"github.com/kursadbilgin/exception-collector/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EventBroadcaster pushes events to live subscribers. Satisfied by hub.Hub.
type EventBroadcaster interface {
	Publish(ev hub.Event)
}

// LifecycleService orchestrates the exception state machine: every mutation
// is a conditional transition validated against the lifecycle graph, recorded
// as an append-only status change, and broadcast to live subscribers.
type LifecycleService struct {
	exceptions repository.ExceptionRepository
	attempts   repository.AttemptRepository
	changes    repository.StatusChangeRepository
	publisher  queue.Publisher
	evaluator  *alerting.Evaluator
	broadcast  EventBroadcaster
	logger     *zap.Logger
	now        func() time.Time
}

func NewLifecycleService(
	exceptions repository.ExceptionRepository,
	attempts repository.AttemptRepository,
	changes repository.StatusChangeRepository,
	publisher queue.Publisher,
	evaluator *alerting.Evaluator,
	broadcast EventBroadcaster,
	logger *zap.Logger,
) (*LifecycleService, error) {
	if exceptions == nil {
		return nil, fmt.Errorf("exception repository is required")
	}
	if attempts == nil {
		return nil, fmt.Errorf("attempt repository is required")
	}
	if changes == nil {
		return nil, fmt.Errorf("status change repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &LifecycleService{
		exceptions: exceptions,
		attempts:   attempts,
		changes:    changes,
		publisher:  publisher,
		evaluator:  evaluator,
		broadcast:  broadcast,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Ingest registers a newly reported exception in status NEW, runs the alert
// rules against it, and broadcasts the creation.
func (s *LifecycleService) Ingest(ctx context.Context, e *domain.InterfaceException) (*domain.InterfaceException, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if e == nil {
		return nil, fmt.Errorf("%w: exception is required", domain.ErrValidation)
	}

	e.TransactionID = strings.TrimSpace(e.TransactionID)
	e.OperationName = strings.TrimSpace(e.OperationName)
	e.Status = domain.StatusNew
	e.RetryCount = 0
	if e.MaxRetries <= 0 {
		e.MaxRetries = domain.DefaultMaxRetries
	}
	e.ProcessedAt = nil

	if err := e.Validate(); err != nil {
		return nil, err
	}

	if err := s.exceptions.Create(ctx, e); err != nil {
		if isUniqueViolationError(err) {
			return nil, fmt.Errorf("%w: exception %s already exists", domain.ErrConflict, e.TransactionID)
		}
		return nil, err
	}

	s.evaluateAndPublish(ctx, e)
	s.broadcastEvent(hub.Event{Kind: hub.KindLifecycle, Exception: e, OccurredAt: s.now().UTC()})

	return e, nil
}

// Acknowledge moves an exception from NEW to ACKNOWLEDGED. A concurrent
// transition on the same transaction id loses with ErrConflict.
func (s *LifecycleService) Acknowledge(ctx context.Context, transactionID, actor, note string) (*domain.InterfaceException, error) {
	return s.transition(ctx, transactionID, domain.StatusAcknowledged, actor, note)
}

// Resolve marks an exception RESOLVED from any state that permits it and
// emits the resolution event toward the alert pipeline. Resolving an
// already-resolved exception is rejected without writing a status change.
func (s *LifecycleService) Resolve(ctx context.Context, transactionID, actor, note string) (*domain.InterfaceException, error) {
	e, err := s.transition(ctx, transactionID, domain.StatusResolved, actor, note)
	if err != nil {
		return nil, err
	}

	if s.publisher != nil && s.evaluator != nil {
		resolution := s.evaluator.EvaluateResolution(e)
		if publishErr := s.publisher.PublishAlert(ctx, resolution); publishErr != nil {
			s.logger.Error("failed to publish resolution event",
				zap.String("transactionId", e.TransactionID),
				zap.Error(publishErr),
			)
		}
	}

	return e, nil
}

// InitiateRetry opens the next retry attempt for an exception. The attempt
// number is assigned inside the store transaction so concurrent initiators
// on the same transaction id either get consecutive numbers or lose with
// ErrConflict; at most one attempt is ever open.
func (s *LifecycleService) InitiateRetry(ctx context.Context, transactionID, actor, reason string) (*domain.RetryAttempt, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	e, err := s.getByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	if !e.Retryable {
		return nil, fmt.Errorf("%w: exception %s is not retryable", domain.ErrConflict, e.TransactionID)
	}
	if e.RetryCount >= e.MaxRetries {
		return nil, fmt.Errorf("%w: retry budget exhausted (%d of %d used)", domain.ErrConflict, e.RetryCount, e.MaxRetries)
	}
	if !domain.CanTransition(e.Status, domain.StatusRetryInProgress) {
		return nil, fmt.Errorf("%w: cannot start retry from status %s", domain.ErrConflict, e.Status)
	}

	previousStatus := e.Status
	attempt := &domain.RetryAttempt{
		ID:             uuid.NewString(),
		TransactionID:  e.TransactionID,
		Status:         domain.AttemptPending,
		InitiatedBy:    actor,
		Reason:         strings.TrimSpace(reason),
		PreviousStatus: previousStatus,
		InitiatedAt:    s.now().UTC(),
	}

	if err := s.attempts.CreateIfNoOpen(ctx, attempt, previousStatus); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("%w: a retry is already in flight for %s", domain.ErrConflict, e.TransactionID)
		}
		return nil, err
	}

	s.recordChange(ctx, e.TransactionID, previousStatus, domain.StatusRetryInProgress, actor, reason)

	msg := queue.RetryTaskMessage{
		TransactionID: attempt.TransactionID,
		AttemptID:     attempt.ID,
		AttemptNumber: attempt.AttemptNumber,
		InitiatedBy:   actor,
		Reason:        attempt.Reason,
		CorrelationID: uuid.NewString(),
	}
	if err := s.publisher.PublishRetryTask(ctx, msg); err != nil {
		s.logger.Error("failed to enqueue retry task, reverting attempt",
			zap.String("transactionId", e.TransactionID),
			zap.String("attemptId", attempt.ID),
			zap.Error(err),
		)
		s.revertAttempt(ctx, attempt, previousStatus, actor)
		return nil, fmt.Errorf("failed to enqueue retry task: %w", err)
	}

	e.Status = domain.StatusRetryInProgress
	s.evaluateAndPublish(ctx, e)
	s.broadcastEvent(hub.Event{
		Kind:       hub.KindRetryStatus,
		Exception:  e,
		Attempt:    attempt,
		OccurredAt: s.now().UTC(),
	})

	return attempt, nil
}

// CancelRetry withdraws the open attempt and reverts the exception to the
// status the retry was initiated from. Without an attempt in flight there is
// nothing to cancel.
func (s *LifecycleService) CancelRetry(ctx context.Context, transactionID, actor, reason string) (*domain.RetryAttempt, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, fmt.Errorf("%w: transaction id is required", domain.ErrValidation)
	}

	open, err := s.attempts.LatestOpen(ctx, transactionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: no retry in flight for %s", domain.ErrConflict, transactionID)
		}
		return nil, err
	}

	if err := s.attempts.Cancel(ctx, open.ID); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("%w: retry attempt %s already completed", domain.ErrConflict, open.ID)
		}
		return nil, err
	}

	revertTo := open.PreviousStatus
	if !revertTo.IsValid() {
		revertTo = domain.StatusAcknowledged
	}

	ok, err := s.exceptions.CompareAndSetStatus(ctx, transactionID, domain.StatusRetryInProgress, revertTo)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.Warn("exception left retry-in-progress before cancel completed",
			zap.String("transactionId", transactionID),
		)
	} else {
		s.recordChange(ctx, transactionID, domain.StatusRetryInProgress, revertTo, actor, reason)
	}

	open.Status = domain.AttemptCancelled
	e, getErr := s.getByID(ctx, transactionID)
	if getErr == nil {
		s.evaluateAndPublish(ctx, e)
		s.broadcastEvent(hub.Event{
			Kind:       hub.KindRetryStatus,
			Exception:  e,
			Attempt:    open,
			OccurredAt: s.now().UTC(),
		})
	}

	return open, nil
}

// CompleteRetry records the terminal outcome of an attempt and settles the
// exception: RETRIED_SUCCESS on success, RETRIED_FAILED otherwise. A failed
// attempt that exhausts the retry budget escalates the exception.
func (s *LifecycleService) CompleteRetry(ctx context.Context, transactionID, attemptID string, success bool, errorDetail *string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.attempts.Complete(ctx, attemptID, success, errorDetail); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Attempt already settled or cancelled; nothing left to do.
			s.logger.Info("retry attempt already settled",
				zap.String("transactionId", transactionID),
				zap.String("attemptId", attemptID),
			)
			return nil
		}
		return err
	}

	outcome := domain.StatusRetriedSuccess
	if !success {
		outcome = domain.StatusRetriedFailed
	}

	if err := s.exceptions.UpdateRetryResult(ctx, transactionID, outcome); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			s.logger.Warn("exception left retry-in-progress before completion",
				zap.String("transactionId", transactionID),
			)
			return nil
		}
		return err
	}
	s.recordChange(ctx, transactionID, domain.StatusRetryInProgress, outcome, "system", "retry attempt completed")

	e, err := s.getByID(ctx, transactionID)
	if err != nil {
		return err
	}

	s.broadcastEvent(hub.Event{Kind: hub.KindRetryStatus, Exception: e, OccurredAt: s.now().UTC()})
	s.evaluateAndPublish(ctx, e)

	if success {
		return nil
	}

	if e.RetryCount >= e.MaxRetries {
		ok, casErr := s.exceptions.CompareAndSetStatus(ctx, transactionID, domain.StatusRetriedFailed, domain.StatusEscalated)
		if casErr != nil {
			return casErr
		}
		if ok {
			s.recordChange(ctx, transactionID, domain.StatusRetriedFailed, domain.StatusEscalated, "system", "retry budget exhausted")
			e.Status = domain.StatusEscalated
			s.evaluateAndPublish(ctx, e)
			s.broadcastEvent(hub.Event{Kind: hub.KindLifecycle, Exception: e, OccurredAt: s.now().UTC()})
		}
	}

	return nil
}

func (s *LifecycleService) GetByTransactionID(ctx context.Context, transactionID string) (*domain.InterfaceException, error) {
	return s.getByID(ctx, transactionID)
}

func (s *LifecycleService) List(ctx context.Context, params repository.ListParams) ([]domain.InterfaceException, int64, error) {
	return s.exceptions.List(ctx, params)
}

// transition performs one compare-and-set lifecycle move and appends the
// status change record. ErrConflict signals either an illegal transition or
// a lost race against a concurrent caller.
func (s *LifecycleService) transition(ctx context.Context, transactionID string, to domain.Status, actor, note string) (*domain.InterfaceException, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	e, err := s.getByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	if !domain.CanTransition(e.Status, to) {
		return nil, fmt.Errorf("%w: cannot transition %s from %s to %s", domain.ErrConflict, e.TransactionID, e.Status, to)
	}

	ok, err := s.exceptions.CompareAndSetStatus(ctx, e.TransactionID, e.Status, to)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: exception %s changed concurrently", domain.ErrConflict, e.TransactionID)
	}

	s.recordChange(ctx, e.TransactionID, e.Status, to, actor, note)

	e.Status = to
	s.evaluateAndPublish(ctx, e)
	s.broadcastEvent(hub.Event{Kind: hub.KindLifecycle, Exception: e, OccurredAt: s.now().UTC()})

	return e, nil
}

func (s *LifecycleService) getByID(ctx context.Context, transactionID string) (*domain.InterfaceException, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, fmt.Errorf("%w: transaction id is required", domain.ErrValidation)
	}

	e, err := s.exceptions.GetByTransactionID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: exception %s", domain.ErrNotFound, transactionID)
		}
		return nil, err
	}
	return e, nil
}

func (s *LifecycleService) recordChange(ctx context.Context, transactionID string, from, to domain.Status, actor, reason string) {
	change := &domain.StatusChange{
		ID:            uuid.NewString(),
		TransactionID: transactionID,
		FromStatus:    from,
		ToStatus:      to,
		ChangedBy:     actor,
		Reason:        strings.TrimSpace(reason),
		ChangedAt:     s.now().UTC(),
	}
	if err := s.changes.Append(ctx, change); err != nil {
		s.logger.Error("failed to append status change",
			zap.String("transactionId", transactionID),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
			zap.Error(err),
		)
	}
}

func (s *LifecycleService) revertAttempt(ctx context.Context, attempt *domain.RetryAttempt, previous domain.Status, actor string) {
	if err := s.attempts.Cancel(ctx, attempt.ID); err != nil {
		s.logger.Error("failed to cancel attempt during revert",
			zap.String("attemptId", attempt.ID),
			zap.Error(err),
		)
	}
	ok, err := s.exceptions.CompareAndSetStatus(ctx, attempt.TransactionID, domain.StatusRetryInProgress, previous)
	if err != nil || !ok {
		s.logger.Error("failed to revert exception status after enqueue failure",
			zap.String("transactionId", attempt.TransactionID),
			zap.String("previous", previous.String()),
			zap.Error(err),
		)
		return
	}
	s.recordChange(ctx, attempt.TransactionID, domain.StatusRetryInProgress, previous, actor, "retry enqueue failed")
}

// evaluateAndPublish runs the alert rules against the exception's current
// state; the rule engine is invoked on every create and transition.
func (s *LifecycleService) evaluateAndPublish(ctx context.Context, e *domain.InterfaceException) {
	if s.evaluator == nil || e == nil {
		return
	}
	s.publishAlerts(ctx, e, s.evaluator.Evaluate(ctx, e))
}

func (s *LifecycleService) publishAlerts(ctx context.Context, e *domain.InterfaceException, alerts []domain.AlertEvent) {
	for i := range alerts {
		alert := alerts[i]
		if s.publisher != nil {
			if err := s.publisher.PublishAlert(ctx, alert); err != nil {
				s.logger.Error("failed to publish alert",
					zap.String("transactionId", alert.TransactionID),
					zap.String("reason", string(alert.Reason)),
					zap.Error(err),
				)
			}
		}
		s.broadcastEvent(hub.Event{
			Kind:       hub.KindAlert,
			Exception:  e,
			Alert:      &alert,
			OccurredAt: alert.EmittedAt,
		})
	}
}

func (s *LifecycleService) broadcastEvent(ev hub.Event) {
	if s.broadcast == nil {
		return
	}
	s.broadcast.Publish(ev)
}

func isUniqueViolationError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
