package executor

import (
	"context"

	"github.com/kursadbilgin/exception-collector/internal/domain"
)

// Executor re-invokes the failed interface operation for one exception.
type Executor interface {
	Execute(ctx context.Context, exception domain.InterfaceException) (*Response, error)
}

// Response stores upstream call metadata for attempt records.
type Response struct {
	StatusCode int
	Body       string
	RequestID  string
}
