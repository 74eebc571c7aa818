package service

import (
	"context"
	"testing"

	"github.com/kursadbilgin/exception-collector/internal/alerting"
	"github.com/kursadbilgin/exception-collector/internal/domain"
	"github.com/kursadbilgin/exception-collector/internal/executor"
	"github.com/kursadbilgin/exception-collector/internal/queue"
)

type fakeConsumer struct{}

func (fakeConsumer) Consume(context.Context, string, queue.RetryTaskHandler) error { return nil }
func (fakeConsumer) Close() error                                                  { return nil }

type workerFixture struct {
	exceptions *memExceptionRepo
	attempts   *memAttemptRepo
	lifecycle  *LifecycleService
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()

	exceptions := newMemExceptionRepo()
	attempts := newMemAttemptRepo(exceptions)
	evaluator := alerting.NewEvaluator(exceptions, alerting.Thresholds{}, nil)

	lifecycle, err := NewLifecycleService(exceptions, attempts, &memStatusChangeRepo{}, &fakePublisher{}, evaluator, nil, nil)
	if err != nil {
		t.Fatalf("NewLifecycleService() error = %v", err)
	}

	return &workerFixture{exceptions: exceptions, attempts: attempts, lifecycle: lifecycle}
}

func newWorker(t *testing.T, f *workerFixture, exec executor.Executor) *RetryWorker {
	t.Helper()

	w, err := NewRetryWorker(f.exceptions, f.lifecycle, fakeConsumer{}, exec, 1, nil)
	if err != nil {
		t.Fatalf("NewRetryWorker() error = %v", err)
	}
	return w
}

func initiatedTask(t *testing.T, f *workerFixture, transactionID string) queue.RetryTaskMessage {
	t.Helper()

	attempt, err := f.lifecycle.InitiateRetry(context.Background(), transactionID, "ops-1", "test")
	if err != nil {
		t.Fatalf("InitiateRetry() error = %v", err)
	}
	return queue.RetryTaskMessage{
		TransactionID: transactionID,
		AttemptID:     attempt.ID,
		AttemptNumber: attempt.AttemptNumber,
		InitiatedBy:   "ops-1",
	}
}

func TestRetryWorkerSuccessSettlesAttempt(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t)
	f.exceptions.put(baseException("tx-1", domain.StatusAcknowledged))
	task := initiatedTask(t, f, "tx-1")

	w := newWorker(t, f, &fakeExecutor{})

	if err := w.processTask(context.Background(), task); err != nil {
		t.Fatalf("processTask() error = %v", err)
	}

	e, _ := f.exceptions.GetByTransactionID(context.Background(), "tx-1")
	if e.Status != domain.StatusRetriedSuccess {
		t.Fatalf("status = %s, want RETRIED_SUCCESS", e.Status)
	}

	attempts, _ := f.attempts.GetByTransactionID(context.Background(), "tx-1")
	if len(attempts) != 1 || attempts[0].Status != domain.AttemptCompleted {
		t.Fatalf("attempts = %+v, want one COMPLETED attempt", attempts)
	}
}

func TestRetryWorkerFailureRecordsDetail(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t)
	f.exceptions.put(baseException("tx-1", domain.StatusAcknowledged))
	task := initiatedTask(t, f, "tx-1")

	w := newWorker(t, f, &fakeExecutor{
		executeFn: func(context.Context, domain.InterfaceException) (*executor.Response, error) {
			return nil, &executor.ExecutionError{StatusCode: 502, Message: "upstream returned status 502", Transient: true}
		},
	})

	if err := w.processTask(context.Background(), task); err != nil {
		t.Fatalf("processTask() error = %v", err)
	}

	e, _ := f.exceptions.GetByTransactionID(context.Background(), "tx-1")
	if e.Status != domain.StatusRetriedFailed {
		t.Fatalf("status = %s, want RETRIED_FAILED", e.Status)
	}
	if e.RetryCount != 1 {
		t.Fatalf("retry count = %d, want 1", e.RetryCount)
	}

	attempts, _ := f.attempts.GetByTransactionID(context.Background(), "tx-1")
	if len(attempts) != 1 {
		t.Fatalf("attempts = %d, want 1", len(attempts))
	}
	if attempts[0].Status != domain.AttemptFailed {
		t.Fatalf("attempt status = %s, want FAILED", attempts[0].Status)
	}
	if attempts[0].ErrorDetail == nil {
		t.Fatal("error detail should be recorded on failure")
	}
}

func TestRetryWorkerSkipsSupersededTask(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t)
	f.exceptions.put(baseException("tx-1", domain.StatusAcknowledged))
	task := initiatedTask(t, f, "tx-1")

	// Cancel lands between enqueue and consume.
	if _, err := f.lifecycle.CancelRetry(context.Background(), "tx-1", "ops-2", "changed my mind"); err != nil {
		t.Fatalf("CancelRetry() error = %v", err)
	}

	executed := false
	w := newWorker(t, f, &fakeExecutor{
		executeFn: func(context.Context, domain.InterfaceException) (*executor.Response, error) {
			executed = true
			return &executor.Response{StatusCode: 200}, nil
		},
	})

	if err := w.processTask(context.Background(), task); err != nil {
		t.Fatalf("processTask() error = %v", err)
	}
	if executed {
		t.Fatal("superseded task must not reach the upstream executor")
	}

	e, _ := f.exceptions.GetByTransactionID(context.Background(), "tx-1")
	if e.Status != domain.StatusAcknowledged {
		t.Fatalf("status = %s, want ACKNOWLEDGED unchanged", e.Status)
	}
}

func TestRetryWorkerMissingExceptionAcks(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t)
	w := newWorker(t, f, &fakeExecutor{})

	err := w.processTask(context.Background(), queue.RetryTaskMessage{
		TransactionID: "tx-ghost",
		AttemptID:     "attempt-ghost",
		AttemptNumber: 1,
	})
	if err != nil {
		t.Fatalf("processTask() error = %v, want nil for missing exception", err)
	}
}
