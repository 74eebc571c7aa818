package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/exception-collector/internal/domain"
	"github.com/kursadbilgin/exception-collector/internal/executor"
	"github.com/kursadbilgin/exception-collector/internal/queue"
	"github.com/kursadbilgin/exception-collector/internal/repository"
)

// memExceptionRepo is a mutex-guarded in-memory store that preserves the
// compare-and-set semantics of the real repository.
type memExceptionRepo struct {
	mu         sync.Mutex
	exceptions map[string]domain.InterfaceException
}

func newMemExceptionRepo() *memExceptionRepo {
	return &memExceptionRepo{exceptions: make(map[string]domain.InterfaceException)}
}

func (r *memExceptionRepo) Create(_ context.Context, e *domain.InterfaceException) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.exceptions[e.TransactionID]; exists {
		return fmt.Errorf("duplicate key value violates unique constraint")
	}
	e.CreatedAt = time.Now().UTC()
	e.UpdatedAt = e.CreatedAt
	r.exceptions[e.TransactionID] = *e
	return nil
}

func (r *memExceptionRepo) GetByTransactionID(_ context.Context, transactionID string) (*domain.InterfaceException, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.exceptions[transactionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := e
	return &copied, nil
}

func (r *memExceptionRepo) FindByTransactionIDs(_ context.Context, transactionIDs []string) ([]domain.InterfaceException, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.InterfaceException
	for _, id := range transactionIDs {
		if e, ok := r.exceptions[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memExceptionRepo) List(_ context.Context, _ repository.ListParams) ([]domain.InterfaceException, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.InterfaceException, 0, len(r.exceptions))
	for _, e := range r.exceptions {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TransactionID < out[j].TransactionID })
	return out, int64(len(out)), nil
}

func (r *memExceptionRepo) CompareAndSetStatus(_ context.Context, transactionID string, from, to domain.Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.exceptions[transactionID]
	if !ok || e.Status != from {
		return false, nil
	}
	e.Status = to
	e.UpdatedAt = time.Now().UTC()
	r.exceptions[transactionID] = e
	return true, nil
}

func (r *memExceptionRepo) UpdateRetryResult(_ context.Context, transactionID string, status domain.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.exceptions[transactionID]
	if !ok || e.Status != domain.StatusRetryInProgress {
		return domain.ErrConflict
	}
	now := time.Now().UTC()
	e.Status = status
	e.RetryCount++
	e.ProcessedAt = &now
	e.UpdatedAt = now
	r.exceptions[transactionID] = e
	return nil
}

func (r *memExceptionRepo) CountRecentByCustomer(_ context.Context, customerID string, _ time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for _, e := range r.exceptions {
		if e.CustomerID == customerID {
			count++
		}
	}
	return count, nil
}

func (r *memExceptionRepo) put(e domain.InterfaceException) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exceptions[e.TransactionID] = e
}

// memAttemptRepo mirrors the real repository's open-attempt guarantee: the
// create path runs the status compare-and-set and the open-attempt check
// under one lock.
type memAttemptRepo struct {
	mu         sync.Mutex
	exceptions *memExceptionRepo
	attempts   map[string]domain.RetryAttempt
}

func newMemAttemptRepo(exceptions *memExceptionRepo) *memAttemptRepo {
	return &memAttemptRepo{
		exceptions: exceptions,
		attempts:   make(map[string]domain.RetryAttempt),
	}
}

func (r *memAttemptRepo) CreateIfNoOpen(ctx context.Context, a *domain.RetryAttempt, expectedStatus domain.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ok, err := r.exceptions.CompareAndSetStatus(ctx, a.TransactionID, expectedStatus, domain.StatusRetryInProgress)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrConflict
	}

	maxNumber := 0
	for _, existing := range r.attempts {
		if existing.TransactionID != a.TransactionID {
			continue
		}
		if !existing.Status.IsTerminal() {
			// Roll back like the real transaction would.
			_, _ = r.exceptions.CompareAndSetStatus(ctx, a.TransactionID, domain.StatusRetryInProgress, expectedStatus)
			return domain.ErrConflict
		}
		if existing.AttemptNumber > maxNumber {
			maxNumber = existing.AttemptNumber
		}
	}

	a.AttemptNumber = maxNumber + 1
	r.attempts[a.ID] = *a
	return nil
}

func (r *memAttemptRepo) GetByTransactionID(_ context.Context, transactionID string) ([]domain.RetryAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.RetryAttempt
	for _, a := range r.attempts {
		if a.TransactionID == transactionID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptNumber < out[j].AttemptNumber })
	return out, nil
}

func (r *memAttemptRepo) ListByTransactionIDs(ctx context.Context, transactionIDs []string) ([]domain.RetryAttempt, error) {
	var out []domain.RetryAttempt
	for _, id := range transactionIDs {
		attempts, err := r.GetByTransactionID(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, attempts...)
	}
	return out, nil
}

func (r *memAttemptRepo) LatestOpen(_ context.Context, transactionID string) (*domain.RetryAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var latest *domain.RetryAttempt
	for _, a := range r.attempts {
		if a.TransactionID != transactionID || a.Status.IsTerminal() {
			continue
		}
		copied := a
		if latest == nil || copied.AttemptNumber > latest.AttemptNumber {
			latest = &copied
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	return latest, nil
}

func (r *memAttemptRepo) Complete(_ context.Context, attemptID string, success bool, errorDetail *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.attempts[attemptID]
	if !ok || a.Status.IsTerminal() {
		return domain.ErrConflict
	}
	now := time.Now().UTC()
	a.Status = domain.AttemptCompleted
	if !success {
		a.Status = domain.AttemptFailed
	}
	a.Success = &success
	a.CompletedAt = &now
	a.ErrorDetail = errorDetail
	r.attempts[attemptID] = a
	return nil
}

func (r *memAttemptRepo) Cancel(_ context.Context, attemptID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.attempts[attemptID]
	if !ok || a.Status.IsTerminal() {
		return domain.ErrConflict
	}
	now := time.Now().UTC()
	a.Status = domain.AttemptCancelled
	a.CompletedAt = &now
	r.attempts[attemptID] = a
	return nil
}

func (r *memAttemptRepo) ListStale(_ context.Context, before time.Time, limit int) ([]domain.RetryAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.RetryAttempt
	for _, a := range r.attempts {
		if !a.Status.IsTerminal() && a.InitiatedAt.Before(before) {
			out = append(out, a)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type memStatusChangeRepo struct {
	mu      sync.Mutex
	changes []domain.StatusChange
}

func (r *memStatusChangeRepo) Append(_ context.Context, c *domain.StatusChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, *c)
	return nil
}

func (r *memStatusChangeRepo) GetByTransactionID(_ context.Context, transactionID string) ([]domain.StatusChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.StatusChange
	for _, c := range r.changes {
		if c.TransactionID == transactionID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memStatusChangeRepo) ListByTransactionIDs(ctx context.Context, transactionIDs []string) ([]domain.StatusChange, error) {
	var out []domain.StatusChange
	for _, id := range transactionIDs {
		changes, err := r.GetByTransactionID(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, changes...)
	}
	return out, nil
}

func (r *memStatusChangeRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.changes)
}

type memAuditRepo struct {
	mu   sync.Mutex
	rows []domain.MutationAuditLog
}

func (r *memAuditRepo) Append(_ context.Context, a *domain.MutationAuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, *a)
	return nil
}

func (r *memAuditRepo) List(_ context.Context, _ string, _, _ *time.Time, _ int) ([]domain.MutationAuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.MutationAuditLog, len(r.rows))
	copy(out, r.rows)
	return out, nil
}

func (r *memAuditRepo) snapshot() []domain.MutationAuditLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.MutationAuditLog, len(r.rows))
	copy(out, r.rows)
	return out
}

type fakePublisher struct {
	mu             sync.Mutex
	publishTaskFn  func(ctx context.Context, msg queue.RetryTaskMessage) error
	publishAlertFn func(ctx context.Context, event domain.AlertEvent) error
	tasks          []queue.RetryTaskMessage
	alerts         []domain.AlertEvent
}

func (p *fakePublisher) PublishRetryTask(ctx context.Context, msg queue.RetryTaskMessage) error {
	p.mu.Lock()
	fn := p.publishTaskFn
	p.mu.Unlock()
	if fn != nil {
		if err := fn(ctx, msg); err != nil {
			return err
		}
	}
	p.mu.Lock()
	p.tasks = append(p.tasks, msg)
	p.mu.Unlock()
	return nil
}

func (p *fakePublisher) PublishAlert(ctx context.Context, event domain.AlertEvent) error {
	p.mu.Lock()
	fn := p.publishAlertFn
	p.mu.Unlock()
	if fn != nil {
		if err := fn(ctx, event); err != nil {
			return err
		}
	}
	p.mu.Lock()
	p.alerts = append(p.alerts, event)
	p.mu.Unlock()
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) publishedTasks() []queue.RetryTaskMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]queue.RetryTaskMessage, len(p.tasks))
	copy(out, p.tasks)
	return out
}

func (p *fakePublisher) publishedAlerts() []domain.AlertEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.AlertEvent, len(p.alerts))
	copy(out, p.alerts)
	return out
}

type fakeExecutor struct {
	executeFn func(ctx context.Context, e domain.InterfaceException) (*executor.Response, error)
}

func (f *fakeExecutor) Execute(ctx context.Context, e domain.InterfaceException) (*executor.Response, error) {
	if f.executeFn != nil {
		return f.executeFn(ctx, e)
	}
	return &executor.Response{StatusCode: 200}, nil
}

func baseException(transactionID string, status domain.Status) domain.InterfaceException {
	return domain.InterfaceException{
		TransactionID: transactionID,
		InterfaceType: domain.InterfaceOrder,
		OperationName: "CreateOrder",
		Category:      domain.CategoryTimeout,
		Severity:      domain.SeverityMedium,
		Status:        status,
		Retryable:     true,
		MaxRetries:    domain.DefaultMaxRetries,
		CustomerID:    "cust-1",
		CreatedAt:     time.Now().UTC(),
	}
}

func seedAttempt(attempts *memAttemptRepo, transactionID string, number int, status domain.AttemptStatus, initiatedAt time.Time) domain.RetryAttempt {
	a := domain.RetryAttempt{
		ID:            uuid.NewString(),
		TransactionID: transactionID,
		AttemptNumber: number,
		Status:        status,
		InitiatedBy:   "ops",
		InitiatedAt:   initiatedAt,
	}
	attempts.mu.Lock()
	attempts.attempts[a.ID] = a
	attempts.mu.Unlock()
	return a
}
