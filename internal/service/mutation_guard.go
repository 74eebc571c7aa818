package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/exception-collector/internal/auth"
	"github.com/kursadbilgin/exception-collector/internal/domain"
	"github.com/kursadbilgin/exception-collector/internal/observability"
	"github.com/kursadbilgin/exception-collector/internal/ratelimit"
	"github.com/kursadbilgin/exception-collector/internal/repository"
	"go.uber.org/zap"
)

// MutationPolicy authorizes a state-changing operation. Satisfied by
// auth.MutationPolicy.
type MutationPolicy interface {
	Decide(p auth.Principal, op domain.Operation) auth.Decision
}

// Mutation is the guarded body of one state-changing call.
type Mutation func(ctx context.Context) error

// MutationGuard wraps every state-changing call: authorization first, then
// the per-caller rate limit, then the mutation itself. Exactly one audit row
// is appended per attempted call, whatever the outcome.
type MutationGuard struct {
	policy  MutationPolicy
	limiter ratelimit.RateLimiter
	audits  repository.AuditRepository
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

func NewMutationGuard(
	policy MutationPolicy,
	limiter ratelimit.RateLimiter,
	audits repository.AuditRepository,
	logger *zap.Logger,
) (*MutationGuard, error) {
	if policy == nil {
		return nil, fmt.Errorf("mutation policy is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if audits == nil {
		return nil, fmt.Errorf("audit repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &MutationGuard{
		policy:  policy,
		limiter: limiter,
		audits:  audits,
		logger:  logger,
		now:     time.Now,
	}, nil
}

func (g *MutationGuard) SetMetrics(metrics *observability.Metrics) {
	if g == nil {
		return
	}
	g.metrics = metrics
}

// Do runs fn behind the guard. A rejected call never reaches fn and never
// consumes quota beyond the rejection check itself.
func (g *MutationGuard) Do(ctx context.Context, principal auth.Principal, op domain.Operation, transactionID string, fn Mutation) error {
	if ctx == nil {
		ctx = context.Background()
	}
	start := g.now()

	if !op.IsValid() {
		err := fmt.Errorf("%w: invalid operation %q", domain.ErrValidation, op)
		g.appendAudit(ctx, principal, op, transactionID, start, err)
		return err
	}
	if strings.TrimSpace(principal.ID) == "" {
		err := fmt.Errorf("%w: caller identity is required", domain.ErrValidation)
		g.appendAudit(ctx, principal, op, transactionID, start, err)
		return err
	}

	if decision := g.policy.Decide(principal, op); !decision.Allowed {
		err := decision.Err()
		g.appendAudit(ctx, principal, op, transactionID, start, err)
		return err
	}

	if err := g.limiter.Allow(ctx, principal.ID, op); err != nil {
		g.appendAudit(ctx, principal, op, transactionID, start, err)
		return err
	}

	err := fn(ctx)
	g.appendAudit(ctx, principal, op, transactionID, start, err)
	return err
}

// BulkItemResult reports one item's outcome within a bulk mutation.
type BulkItemResult struct {
	TransactionID string
	Err           error
}

// DoBulk applies fn to every transaction id independently. Each item passes
// through the full guard, so a failing or rate-limited item never aborts the
// rest, and each item leaves its own audit row.
func (g *MutationGuard) DoBulk(
	ctx context.Context,
	principal auth.Principal,
	op domain.Operation,
	transactionIDs []string,
	fn func(ctx context.Context, transactionID string) error,
) []BulkItemResult {
	results := make([]BulkItemResult, 0, len(transactionIDs))
	for _, id := range transactionIDs {
		id := id
		err := g.Do(ctx, principal, op, id, func(ctx context.Context) error {
			return fn(ctx, id)
		})
		results = append(results, BulkItemResult{TransactionID: id, Err: err})
	}
	return results
}

func (g *MutationGuard) appendAudit(ctx context.Context, principal auth.Principal, op domain.Operation, transactionID string, start time.Time, callErr error) {
	entry := &domain.MutationAuditLog{
		ID:             uuid.NewString(),
		Operation:      op,
		TransactionID:  transactionID,
		PerformedBy:    principal.ID,
		Result:         auditResultFor(callErr),
		DurationMillis: g.now().Sub(start).Milliseconds(),
		PerformedAt:    start.UTC(),
	}
	if callErr != nil {
		detail := callErr.Error()
		entry.ErrorDetail = &detail
	}

	g.metrics.IncMutation(op.String(), string(entry.Result))

	if err := g.audits.Append(ctx, entry); err != nil {
		g.logger.Error("failed to append mutation audit row",
			zap.String("operation", op.String()),
			zap.String("transactionId", transactionID),
			zap.String("performedBy", principal.ID),
			zap.Error(err),
		)
	}
}

func auditResultFor(err error) domain.AuditResult {
	switch {
	case err == nil:
		return domain.AuditSuccess
	case errors.Is(err, domain.ErrRateLimited):
		return domain.AuditRejectedRateLimit
	case errors.Is(err, domain.ErrForbidden):
		return domain.AuditRejectedForbidden
	case errors.Is(err, domain.ErrValidation):
		return domain.AuditRejectedValidation
	case errors.Is(err, domain.ErrNotFound):
		return domain.AuditRejectedNotFound
	case errors.Is(err, domain.ErrConflict):
		return domain.AuditRejectedConflict
	default:
		return domain.AuditFailed
	}
}
