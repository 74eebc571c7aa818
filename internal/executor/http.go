package executor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/exception-collector/internal/domain"
)

const defaultExecuteTimeout = 10 * time.Second

type retryRequest struct {
	TransactionID string `json:"transactionId"`
	Operation     string `json:"operation"`
	Interface     string `json:"interface"`
}

// HTTPExecutor re-submits the originating operation to the upstream
// interface's retry endpoint.
type HTTPExecutor struct {
	client  *resty.Client
	baseURL string
}

func NewHTTPExecutor(baseURL string) (*HTTPExecutor, error) {
	client := resty.New()
	client.SetTimeout(defaultExecuteTimeout)
	client.SetRetryCount(0)

	return NewHTTPExecutorWithClient(baseURL, client)
}

func NewHTTPExecutorWithClient(baseURL string, client *resty.Client) (*HTTPExecutor, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("upstream base url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid upstream base url: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultExecuteTimeout)
	}
	client.SetRetryCount(0)

	return &HTTPExecutor{
		client:  client,
		baseURL: trimmed,
	}, nil
}

func (e *HTTPExecutor) Execute(ctx context.Context, exception domain.InterfaceException) (*Response, error) {
	if e == nil || e.client == nil {
		return nil, fmt.Errorf("executor is not initialized")
	}
	if err := exception.Validate(); err != nil {
		return nil, fmt.Errorf("invalid exception: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/retry", e.baseURL, strings.ToLower(exception.InterfaceType.String()))

	reqBody := retryRequest{
		TransactionID: exception.TransactionID,
		Operation:     exception.OperationName,
		Interface:     exception.InterfaceType.String(),
	}

	response, err := e.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody).
		Post(endpoint)
	if err != nil {
		return nil, &ExecutionError{
			Message:   "upstream request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return nil, &ExecutionError{
			Message:   "upstream returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return &Response{
			StatusCode: statusCode,
			Body:       responseBody,
			RequestID:  requestID(response),
		}, nil
	}

	return nil, &ExecutionError{
		StatusCode: statusCode,
		Message:    executionErrorMessage(statusCode, responseBody),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func executionErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("upstream returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}

func requestID(response *resty.Response) string {
	if response == nil {
		return ""
	}

	for _, key := range []string{"X-Request-ID", "X-Request-Id", "X-Correlation-ID", "X-Correlation-Id"} {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			return value
		}
	}

	return ""
}
