package observability

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsWorkerCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncExceptionIngested("ORDER", "CRITICAL")
	metrics.IncMutation("ACKNOWLEDGE", "SUCCESS")
	metrics.IncRetryExecuted("order", "success")
	metrics.ObserveRetryExecutionDuration("order", 120*time.Millisecond)
	metrics.IncWorkerInFlight("order")
	metrics.DecWorkerInFlight("order")
	metrics.IncAlertEmitted("HIGH", "INFRASTRUCTURE_FAULT")
	metrics.SetHubSubscribers(2)

	if got := testutil.ToFloat64(metrics.exceptionsIngestedTotal.WithLabelValues("order", "critical")); got != 1 {
		t.Fatalf("exceptions_ingested_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.retriesExecutedTotal.WithLabelValues("order", "success")); got != 1 {
		t.Fatalf("retries_executed_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.mutationsTotal.WithLabelValues("acknowledge", "success")); got != 1 {
		t.Fatalf("mutations_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.alertsEmittedTotal.WithLabelValues("high", "infrastructure_fault")); got != 1 {
		t.Fatalf("alerts_emitted_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.workerInflight.WithLabelValues("order")); got != 0 {
		t.Fatalf("worker_inflight = %v, want 0", got)
	}
	if got := testutil.ToFloat64(metrics.hubSubscribers); got != 2 {
		t.Fatalf("hub_subscribers = %v, want 2", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsRequest(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/livez", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/livez", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/livez", "200")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsErrorStatus(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("boom")
	})

	req := httptest.NewRequest("GET", "/boom", nil)
	_, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/boom", "500")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}
