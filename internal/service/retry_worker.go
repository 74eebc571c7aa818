package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/exception-collector/internal/domain"
	"github.com/kursadbilgin/exception-collector/internal/executor"
	"github.com/kursadbilgin/exception-collector/internal/observability"
	"github.com/kursadbilgin/exception-collector/internal/queue"
	"github.com/kursadbilgin/exception-collector/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minWorkerConcurrency = 1

// RetryWorker consumes queued retry tasks, re-submits the originating
// operation upstream, and settles the attempt through the lifecycle service.
type RetryWorker struct {
	exceptions  repository.ExceptionRepository
	lifecycle   *LifecycleService
	consumer    queue.Consumer
	executor    executor.Executor
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
	now         func() time.Time
}

func NewRetryWorker(
	exceptions repository.ExceptionRepository,
	lifecycle *LifecycleService,
	consumer queue.Consumer,
	exec executor.Executor,
	concurrency int,
	logger *zap.Logger,
) (*RetryWorker, error) {
	if exceptions == nil {
		return nil, fmt.Errorf("exception repository is required")
	}
	if lifecycle == nil {
		return nil, fmt.Errorf("lifecycle service is required")
	}
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if exec == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RetryWorker{
		exceptions:  exceptions,
		lifecycle:   lifecycle,
		consumer:    consumer,
		executor:    exec,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
	}, nil
}

func (w *RetryWorker) SetMetrics(metrics *observability.Metrics) {
	if w == nil {
		return
	}
	w.metrics = metrics
}

// Start consumes the retry task queue until context cancellation.
func (w *RetryWorker) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		workerID := i + 1

		g.Go(func() error {
			w.logger.Info("retry worker started", zap.Int("workerId", workerID))

			err := w.consumer.Consume(groupCtx, queue.RetryTaskQueue, w.processTask)
			if err != nil {
				w.logger.Error("retry worker stopped with error",
					zap.Int("workerId", workerID),
					zap.Error(err),
				)
				return err
			}

			w.logger.Info("retry worker stopped", zap.Int("workerId", workerID))
			return nil
		})
	}

	return g.Wait()
}

func (w *RetryWorker) processTask(ctx context.Context, msg queue.RetryTaskMessage) error {
	e, err := w.exceptions.GetByTransactionID(ctx, msg.TransactionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			w.logger.Warn("exception missing for queued retry task, skipping",
				zap.String("transactionId", msg.TransactionID),
				zap.String("attemptId", msg.AttemptID),
			)
			return nil
		}
		return fmt.Errorf("failed to load exception for retry task: %w", err)
	}

	// A cancel that landed between enqueue and consume moved the exception
	// out of RETRY_IN_PROGRESS; the attempt row is already settled.
	if e.Status != domain.StatusRetryInProgress {
		w.logger.Info("retry task superseded, skipping",
			zap.String("transactionId", msg.TransactionID),
			zap.String("status", e.Status.String()),
		)
		return nil
	}

	interfaceName := strings.ToLower(e.InterfaceType.String())
	if w.metrics != nil {
		w.metrics.IncWorkerInFlight(interfaceName)
		defer w.metrics.DecWorkerInFlight(interfaceName)
	}

	execStart := w.now()
	resp, execErr := w.executor.Execute(ctx, *e)
	if w.metrics != nil {
		w.metrics.ObserveRetryExecutionDuration(interfaceName, w.now().Sub(execStart))
	}

	if execErr == nil {
		if err := w.lifecycle.CompleteRetry(ctx, msg.TransactionID, msg.AttemptID, true, nil); err != nil {
			return fmt.Errorf("failed to settle successful retry: %w", err)
		}
		if w.metrics != nil {
			w.metrics.IncRetryExecuted(interfaceName, "success")
		}
		w.logger.Info("retry succeeded",
			zap.String("transactionId", msg.TransactionID),
			zap.Int("attemptNumber", msg.AttemptNumber),
			zap.Int("upstreamStatus", upstreamStatus(resp)),
		)
		return nil
	}

	detail := execErr.Error()
	if err := w.lifecycle.CompleteRetry(ctx, msg.TransactionID, msg.AttemptID, false, &detail); err != nil {
		return fmt.Errorf("failed to settle failed retry: %w", err)
	}
	if w.metrics != nil {
		outcome := "permanent_failure"
		if executor.IsTransient(execErr) {
			outcome = "transient_failure"
		}
		w.metrics.IncRetryExecuted(interfaceName, outcome)
	}

	w.logger.Warn("retry failed",
		zap.String("transactionId", msg.TransactionID),
		zap.Int("attemptNumber", msg.AttemptNumber),
		zap.Bool("transient", executor.IsTransient(execErr)),
		zap.Error(execErr),
	)
	return nil
}

func upstreamStatus(resp *executor.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}
