package queue

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/exception-collector/internal/domain"
)

// Queue names. Retry tasks get a dead-letter queue; alert events are
// fire-and-forget toward the external notification pipeline.
const (
	RetryTaskQueue  = "retry-tasks"
	AlertEventQueue = "alert-events"
)

// Publisher publishes collector messages to the broker.
type Publisher interface {
	PublishRetryTask(ctx context.Context, msg RetryTaskMessage) error
	PublishAlert(ctx context.Context, event domain.AlertEvent) error
	Close() error
}

// RetryTaskHandler handles a consumed retry task.
type RetryTaskHandler func(ctx context.Context, msg RetryTaskMessage) error

// Consumer consumes retry tasks from the broker.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler RetryTaskHandler) error
	Close() error
}

// DLQName returns the dead-letter queue name, e.g. dlq.retry-tasks.
func DLQName(queue string) string {
	return fmt.Sprintf("dlq.%s", queue)
}

// PriorityValue maps alert level to broker message priority.
func PriorityValue(level domain.AlertLevel) uint8 {
	switch level {
	case domain.AlertEmergency:
		return 4
	case domain.AlertCritical:
		return 3
	case domain.AlertHigh:
		return 2
	case domain.AlertWarning:
		return 1
	default:
		return 0
	}
}
