package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/exception-collector/internal/auth"
	"github.com/kursadbilgin/exception-collector/internal/domain"
	"github.com/kursadbilgin/exception-collector/internal/hub"
	"github.com/kursadbilgin/exception-collector/internal/loader"
	"github.com/kursadbilgin/exception-collector/internal/observability"
	"github.com/kursadbilgin/exception-collector/internal/repository"
	"github.com/kursadbilgin/exception-collector/internal/service"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const (
	headerCallerID       = "X-Caller-ID"
	headerCallerRoles    = "X-Caller-Roles"
	headerCallerCustomer = "X-Caller-Customer-ID"

	streamHeartbeat = 15 * time.Second
)

// LifecycleAPI is the surface the handler needs from the lifecycle service.
type LifecycleAPI interface {
	Ingest(ctx context.Context, e *domain.InterfaceException) (*domain.InterfaceException, error)
	Acknowledge(ctx context.Context, transactionID, actor, note string) (*domain.InterfaceException, error)
	InitiateRetry(ctx context.Context, transactionID, actor, reason string) (*domain.RetryAttempt, error)
	CancelRetry(ctx context.Context, transactionID, actor, reason string) (*domain.RetryAttempt, error)
	Resolve(ctx context.Context, transactionID, actor, note string) (*domain.InterfaceException, error)
	List(ctx context.Context, params repository.ListParams) ([]domain.InterfaceException, int64, error)
}

// LoaderFactory builds a fresh request-scoped loader bundle.
type LoaderFactory func() *loader.Loaders

type ExceptionHandler struct {
	lifecycle  LifecycleAPI
	guard      *service.MutationGuard
	events     *hub.Hub
	viewPolicy *auth.ViewPolicy
	loaders    LoaderFactory
	audits     repository.AuditRepository
	metrics    *observability.Metrics
	logger     *zap.Logger
}

func NewExceptionHandler(
	lifecycle LifecycleAPI,
	guard *service.MutationGuard,
	events *hub.Hub,
	viewPolicy *auth.ViewPolicy,
	loaders LoaderFactory,
	audits repository.AuditRepository,
	logger *zap.Logger,
) (*ExceptionHandler, error) {
	if lifecycle == nil {
		return nil, fmt.Errorf("lifecycle service is required")
	}
	if guard == nil {
		return nil, fmt.Errorf("mutation guard is required")
	}
	if events == nil {
		return nil, fmt.Errorf("event hub is required")
	}
	if viewPolicy == nil {
		return nil, fmt.Errorf("view policy is required")
	}
	if loaders == nil {
		return nil, fmt.Errorf("loader factory is required")
	}
	if audits == nil {
		return nil, fmt.Errorf("audit repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ExceptionHandler{
		lifecycle:  lifecycle,
		guard:      guard,
		events:     events,
		viewPolicy: viewPolicy,
		loaders:    loaders,
		audits:     audits,
		logger:     logger,
	}, nil
}

func (h *ExceptionHandler) SetMetrics(metrics *observability.Metrics) {
	if h == nil {
		return
	}
	h.metrics = metrics
}

func (h *ExceptionHandler) RegisterRoutes(router fiber.Router) {
	v1 := router.Group("/v1")
	v1.Post("/exceptions", h.IngestException)
	v1.Get("/exceptions", h.ListExceptions)
	v1.Get("/exceptions/stream", h.StreamEvents)
	v1.Get("/exceptions/retry-stream", h.StreamRetryEvents)
	v1.Post("/exceptions/bulk/acknowledge", h.BulkAcknowledge)
	v1.Post("/exceptions/bulk/retry", h.BulkRetry)
	v1.Get("/exceptions/:transactionId", h.GetException)
	v1.Post("/exceptions/:transactionId/acknowledge", h.Acknowledge)
	v1.Post("/exceptions/:transactionId/retry", h.InitiateRetry)
	v1.Post("/exceptions/:transactionId/cancel-retry", h.CancelRetry)
	v1.Post("/exceptions/:transactionId/resolve", h.Resolve)
	v1.Get("/audit", h.ListAudit)
}

type ingestExceptionRequest struct {
	TransactionID   string `json:"transactionId"`
	InterfaceType   string `json:"interfaceType"`
	OperationName   string `json:"operation"`
	ExceptionReason string `json:"exceptionReason"`
	Category        string `json:"category"`
	Severity        string `json:"severity"`
	Retryable       *bool  `json:"retryable"`
	MaxRetries      *int   `json:"maxRetries,omitempty"`
	CustomerID      string `json:"customerId,omitempty"`
	LocationCode    string `json:"locationCode,omitempty"`
}

type mutationRequest struct {
	Note   string `json:"note,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type bulkMutationRequest struct {
	TransactionIDs []string `json:"transactionIds"`
	Reason         string   `json:"reason,omitempty"`
}

type exceptionResponse struct {
	TransactionID   string     `json:"transactionId"`
	InterfaceType   string     `json:"interfaceType"`
	OperationName   string     `json:"operation"`
	ExceptionReason string     `json:"exceptionReason,omitempty"`
	Category        string     `json:"category"`
	Severity        string     `json:"severity"`
	Status          string     `json:"status"`
	Retryable       bool       `json:"retryable"`
	RetryCount      int        `json:"retryCount"`
	MaxRetries      int        `json:"maxRetries"`
	CustomerID      string     `json:"customerId,omitempty"`
	LocationCode    string     `json:"locationCode,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	ProcessedAt     *time.Time `json:"processedAt,omitempty"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

type attemptResponse struct {
	ID            string     `json:"id"`
	AttemptNumber int        `json:"attemptNumber"`
	Status        string     `json:"status"`
	InitiatedBy   string     `json:"initiatedBy"`
	Reason        string     `json:"reason,omitempty"`
	InitiatedAt   time.Time  `json:"initiatedAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	Success       *bool      `json:"success,omitempty"`
	ErrorDetail   *string    `json:"errorDetail,omitempty"`
}

type statusChangeResponse struct {
	FromStatus string    `json:"fromStatus"`
	ToStatus   string    `json:"toStatus"`
	ChangedBy  string    `json:"changedBy"`
	Reason     string    `json:"reason,omitempty"`
	ChangedAt  time.Time `json:"changedAt"`
}

type exceptionDetailResponse struct {
	exceptionResponse
	RetryHistory  []attemptResponse      `json:"retryHistory"`
	StatusHistory []statusChangeResponse `json:"statusHistory"`
}

type exceptionEdge struct {
	Cursor string            `json:"cursor"`
	Node   exceptionResponse `json:"node"`
}

type pageInfo struct {
	HasNextPage     bool   `json:"hasNextPage"`
	HasPreviousPage bool   `json:"hasPreviousPage"`
	StartCursor     string `json:"startCursor,omitempty"`
	EndCursor       string `json:"endCursor,omitempty"`
}

type listExceptionsResponse struct {
	Edges    []exceptionEdge `json:"edges"`
	PageInfo pageInfo        `json:"pageInfo"`
	Total    int64           `json:"total"`
}

type bulkItemResponse struct {
	TransactionID string `json:"transactionId"`
	Ok            bool   `json:"ok"`
	Error         string `json:"error,omitempty"`
}

type bulkMutationResponse struct {
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	Results   []bulkItemResponse `json:"results"`
}

type auditEntryResponse struct {
	ID             string    `json:"id"`
	Operation      string    `json:"operation"`
	TransactionID  string    `json:"transactionId"`
	PerformedBy    string    `json:"performedBy"`
	Result         string    `json:"result"`
	DurationMillis int64     `json:"durationMillis"`
	ErrorDetail    *string   `json:"errorDetail,omitempty"`
	PerformedAt    time.Time `json:"performedAt"`
}

func (h *ExceptionHandler) IngestException(c *fiber.Ctx) error {
	var req ingestExceptionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	e, err := requestToDomainException(req)
	if err != nil {
		return err
	}

	created, err := h.lifecycle.Ingest(c.Context(), &e)
	if err != nil {
		return err
	}

	if h.metrics != nil {
		h.metrics.IncExceptionIngested(created.InterfaceType.String(), created.Severity.String())
	}

	return c.Status(fiber.StatusCreated).JSON(toExceptionResponse(created))
}

func (h *ExceptionHandler) GetException(c *fiber.Ctx) error {
	principal := principalFromHeaders(c)
	transactionID := strings.TrimSpace(c.Params("transactionId"))
	if transactionID == "" {
		return fmt.Errorf("%w: transaction id is required", domain.ErrValidation)
	}

	loaders := h.loaders()
	ctx := c.Context()

	e, err := loaders.Exceptions.Load(ctx, transactionID)
	if err != nil {
		return err
	}
	if e == nil {
		return fmt.Errorf("%w: exception %s", domain.ErrNotFound, transactionID)
	}

	if decision := h.viewPolicy.Decide(principal, e); !decision.Allowed {
		return decision.Err()
	}

	retries, err := loaders.RetryHistory.Load(ctx, transactionID)
	if err != nil {
		return err
	}
	changes, err := loaders.StatusHistory.Load(ctx, transactionID)
	if err != nil {
		return err
	}

	detail := exceptionDetailResponse{
		exceptionResponse: toExceptionResponse(e),
		RetryHistory:      make([]attemptResponse, 0, len(retries)),
		StatusHistory:     make([]statusChangeResponse, 0, len(changes)),
	}
	for i := range retries {
		detail.RetryHistory = append(detail.RetryHistory, toAttemptResponse(&retries[i]))
	}
	for i := range changes {
		detail.StatusHistory = append(detail.StatusHistory, statusChangeResponse{
			FromStatus: changes[i].FromStatus.String(),
			ToStatus:   changes[i].ToStatus.String(),
			ChangedBy:  changes[i].ChangedBy,
			Reason:     changes[i].Reason,
			ChangedAt:  changes[i].ChangedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(detail)
}

func (h *ExceptionHandler) ListExceptions(c *fiber.Ctx) error {
	principal := principalFromHeaders(c)

	params, err := parseListFilters(c)
	if err != nil {
		return err
	}

	// Customer-scoped principals only ever see their own exceptions.
	if principal.CustomerID != "" {
		scoped := principal.CustomerID
		params.CustomerID = &scoped
	}

	page, err := parsePageRequest(c.Query("first"), c.Query("after"), c.Query("last"), c.Query("before"))
	if err != nil {
		return err
	}

	var total int64
	if page.Backward && page.Before < 0 {
		// Anchorless backward pages need the total to locate the window.
		countParams := params
		countParams.Offset = 0
		countParams.Limit = 1
		_, total, err = h.lifecycle.List(c.Context(), countParams)
		if err != nil {
			return err
		}
	}

	offset, limit := page.window(total)
	params.Offset = offset
	params.Limit = limit

	var exceptions []domain.InterfaceException
	if limit > 0 {
		exceptions, total, err = h.lifecycle.List(c.Context(), params)
		if err != nil {
			return err
		}
	}

	// Seed per-request loader caches so detail resolution within this
	// request never refetches listed rows.
	loaders := h.loaders()
	for i := range exceptions {
		e := exceptions[i]
		loaders.Exceptions.Prime(e.TransactionID, &e)
	}

	edges := make([]exceptionEdge, 0, len(exceptions))
	for i := range exceptions {
		edges = append(edges, exceptionEdge{
			Cursor: encodeCursor(offset + i),
			Node:   toExceptionResponse(&exceptions[i]),
		})
	}

	info := pageInfo{
		HasNextPage:     int64(offset+len(edges)) < total,
		HasPreviousPage: offset > 0,
	}
	if len(edges) > 0 {
		info.StartCursor = edges[0].Cursor
		info.EndCursor = edges[len(edges)-1].Cursor
	}

	return c.Status(fiber.StatusOK).JSON(listExceptionsResponse{
		Edges:    edges,
		PageInfo: info,
		Total:    total,
	})
}

func (h *ExceptionHandler) Acknowledge(c *fiber.Ctx) error {
	return h.mutate(c, domain.OperationAcknowledge, func(ctx context.Context, transactionID string, principal auth.Principal, req mutationRequest) (any, error) {
		e, err := h.lifecycle.Acknowledge(ctx, transactionID, principal.ID, req.Note)
		if err != nil {
			return nil, err
		}
		return toExceptionResponse(e), nil
	})
}

func (h *ExceptionHandler) InitiateRetry(c *fiber.Ctx) error {
	return h.mutate(c, domain.OperationRetry, func(ctx context.Context, transactionID string, principal auth.Principal, req mutationRequest) (any, error) {
		attempt, err := h.lifecycle.InitiateRetry(ctx, transactionID, principal.ID, req.Reason)
		if err != nil {
			return nil, err
		}
		return toAttemptResponse(attempt), nil
	})
}

func (h *ExceptionHandler) CancelRetry(c *fiber.Ctx) error {
	return h.mutate(c, domain.OperationCancelRetry, func(ctx context.Context, transactionID string, principal auth.Principal, req mutationRequest) (any, error) {
		attempt, err := h.lifecycle.CancelRetry(ctx, transactionID, principal.ID, req.Reason)
		if err != nil {
			return nil, err
		}
		return toAttemptResponse(attempt), nil
	})
}

func (h *ExceptionHandler) Resolve(c *fiber.Ctx) error {
	return h.mutate(c, domain.OperationResolve, func(ctx context.Context, transactionID string, principal auth.Principal, req mutationRequest) (any, error) {
		e, err := h.lifecycle.Resolve(ctx, transactionID, principal.ID, req.Note)
		if err != nil {
			return nil, err
		}
		return toExceptionResponse(e), nil
	})
}

func (h *ExceptionHandler) BulkAcknowledge(c *fiber.Ctx) error {
	return h.bulkMutate(c, domain.OperationBulkAcknowledge, func(ctx context.Context, transactionID string, principal auth.Principal, req bulkMutationRequest) error {
		_, err := h.lifecycle.Acknowledge(ctx, transactionID, principal.ID, req.Reason)
		return err
	})
}

func (h *ExceptionHandler) BulkRetry(c *fiber.Ctx) error {
	return h.bulkMutate(c, domain.OperationBulkRetry, func(ctx context.Context, transactionID string, principal auth.Principal, req bulkMutationRequest) error {
		_, err := h.lifecycle.InitiateRetry(ctx, transactionID, principal.ID, req.Reason)
		return err
	})
}

// StreamEvents serves the live feed over server-sent events. The
// subscription's security predicate and filter run per delivered event.
func (h *ExceptionHandler) StreamEvents(c *fiber.Ctx) error {
	kind := hub.EventKind(strings.ToUpper(strings.TrimSpace(c.Query("kind", string(hub.KindLifecycle)))))
	return h.stream(c, kind)
}

// StreamRetryEvents is the retry-progress feed: only RETRY_STATUS events.
func (h *ExceptionHandler) StreamRetryEvents(c *fiber.Ctx) error {
	return h.stream(c, hub.KindRetryStatus)
}

func (h *ExceptionHandler) stream(c *fiber.Ctx, kind hub.EventKind) error {
	principal := principalFromHeaders(c)

	filter, err := parseStreamFilter(c)
	if err != nil {
		return err
	}

	sub, err := h.events.Subscribe(principal, kind, filter)
	if err != nil {
		return err
	}

	if h.metrics != nil {
		h.metrics.SetHubSubscribers(h.events.SubscriberCount())
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	logger := h.logger
	metrics := h.metrics
	events := h.events

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer func() {
			sub.Cancel()
			if metrics != nil {
				metrics.SetHubSubscribers(events.SubscriberCount())
			}
		}()

		heartbeat := time.NewTicker(streamHeartbeat)
		defer heartbeat.Stop()

		for {
			select {
			case ev, ok := <-sub.Events():
				if !ok {
					return
				}
				payload, err := json.Marshal(toStreamEvent(ev))
				if err != nil {
					logger.Error("failed to encode stream event", zap.Error(err))
					continue
				}
				if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", strings.ToLower(string(ev.Kind)), payload); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			case <-heartbeat.C:
				if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	}))

	return nil
}

func (h *ExceptionHandler) ListAudit(c *fiber.Ctx) error {
	principal := principalFromHeaders(c)
	if !principal.HasRole(auth.RoleAdmin) {
		return fmt.Errorf("%w: audit log requires admin role", domain.ErrForbidden)
	}

	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return err
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return err
	}

	rows, err := h.audits.List(c.Context(), strings.TrimSpace(c.Query("performedBy")), from, to, c.QueryInt("limit", 100))
	if err != nil {
		return err
	}

	out := make([]auditEntryResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, auditEntryResponse{
			ID:             row.ID,
			Operation:      row.Operation.String(),
			TransactionID:  row.TransactionID,
			PerformedBy:    row.PerformedBy,
			Result:         string(row.Result),
			DurationMillis: row.DurationMillis,
			ErrorDetail:    row.ErrorDetail,
			PerformedAt:    row.PerformedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": out})
}

type mutationFunc func(ctx context.Context, transactionID string, principal auth.Principal, req mutationRequest) (any, error)

func (h *ExceptionHandler) mutate(c *fiber.Ctx, op domain.Operation, fn mutationFunc) error {
	principal := principalFromHeaders(c)
	transactionID := strings.TrimSpace(c.Params("transactionId"))

	var req mutationRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	var result any
	err := h.guard.Do(c.Context(), principal, op, transactionID, func(ctx context.Context) error {
		var innerErr error
		result, innerErr = fn(ctx, transactionID, principal, req)
		return innerErr
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

type bulkFunc func(ctx context.Context, transactionID string, principal auth.Principal, req bulkMutationRequest) error

func (h *ExceptionHandler) bulkMutate(c *fiber.Ctx, op domain.Operation, fn bulkFunc) error {
	principal := principalFromHeaders(c)

	var req bulkMutationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if len(req.TransactionIDs) == 0 {
		return fmt.Errorf("%w: transactionIds is required", domain.ErrValidation)
	}
	if len(req.TransactionIDs) > maxPageSize {
		return fmt.Errorf("%w: at most %d items per bulk call", domain.ErrValidation, maxPageSize)
	}

	results := h.guard.DoBulk(c.Context(), principal, op, req.TransactionIDs, func(ctx context.Context, transactionID string) error {
		return fn(ctx, transactionID, principal, req)
	})

	out := bulkMutationResponse{Results: make([]bulkItemResponse, 0, len(results))}
	for _, item := range results {
		entry := bulkItemResponse{TransactionID: item.TransactionID, Ok: item.Err == nil}
		if item.Err != nil {
			entry.Error = item.Err.Error()
			out.Failed++
		} else {
			out.Succeeded++
		}
		out.Results = append(out.Results, entry)
	}

	// The call as a whole succeeds; failures are reported per item.
	return c.Status(fiber.StatusMultiStatus).JSON(out)
}

func principalFromHeaders(c *fiber.Ctx) auth.Principal {
	p := auth.Principal{
		ID:         strings.TrimSpace(c.Get(headerCallerID)),
		CustomerID: strings.TrimSpace(c.Get(headerCallerCustomer)),
	}
	for _, role := range strings.Split(c.Get(headerCallerRoles), ",") {
		if trimmed := strings.ToUpper(strings.TrimSpace(role)); trimmed != "" {
			p.Roles = append(p.Roles, trimmed)
		}
	}
	return p
}

func parseListFilters(c *fiber.Ctx) (repository.ListParams, error) {
	params := repository.ListParams{
		SortField: strings.TrimSpace(c.Query("sort", "createdAt")),
		SortDesc:  strings.EqualFold(strings.TrimSpace(c.Query("order", "desc")), "desc"),
	}

	if raw := strings.TrimSpace(c.Query("interfaceType")); raw != "" {
		t, err := domain.ParseInterfaceTypeFromString(raw)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.InterfaceType = &t
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		s, err := domain.ParseStatusFromString(raw)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Status = &s
	}
	if raw := strings.TrimSpace(c.Query("severity")); raw != "" {
		s, err := domain.ParseSeverityFromString(raw)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Severity = &s
	}
	if raw := strings.TrimSpace(c.Query("category")); raw != "" {
		cat, err := domain.ParseCategoryFromString(raw)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Category = &cat
	}
	if raw := strings.TrimSpace(c.Query("customerId")); raw != "" {
		params.CustomerID = &raw
	}

	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return repository.ListParams{}, err
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return repository.ListParams{}, err
	}
	params.From = from
	params.To = to

	return params, nil
}

func parseStreamFilter(c *fiber.Ctx) (hub.Filter, error) {
	filter := hub.Filter{CustomerID: strings.TrimSpace(c.Query("customerId"))}

	for _, raw := range splitCSV(c.Query("severity")) {
		s, err := domain.ParseSeverityFromString(raw)
		if err != nil {
			return hub.Filter{}, err
		}
		filter.Severities = append(filter.Severities, s)
	}
	for _, raw := range splitCSV(c.Query("status")) {
		s, err := domain.ParseStatusFromString(raw)
		if err != nil {
			return hub.Filter{}, err
		}
		filter.Statuses = append(filter.Statuses, s)
	}
	for _, raw := range splitCSV(c.Query("interfaceType")) {
		t, err := domain.ParseInterfaceTypeFromString(raw)
		if err != nil {
			return hub.Filter{}, err
		}
		filter.InterfaceTypes = append(filter.InterfaceTypes, t)
	}

	return filter, nil
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseRFC3339Query(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrValidation, field)
	}
	return &t, nil
}

func requestToDomainException(req ingestExceptionRequest) (domain.InterfaceException, error) {
	interfaceType, err := domain.ParseInterfaceTypeFromString(req.InterfaceType)
	if err != nil {
		return domain.InterfaceException{}, err
	}
	category, err := domain.ParseCategoryFromString(req.Category)
	if err != nil {
		return domain.InterfaceException{}, err
	}
	severity, err := domain.ParseSeverityFromString(req.Severity)
	if err != nil {
		return domain.InterfaceException{}, err
	}

	e := domain.InterfaceException{
		TransactionID:   strings.TrimSpace(req.TransactionID),
		InterfaceType:   interfaceType,
		OperationName:   strings.TrimSpace(req.OperationName),
		ExceptionReason: strings.TrimSpace(req.ExceptionReason),
		Category:        category,
		Severity:        severity,
		Retryable:       true,
		CustomerID:      strings.TrimSpace(req.CustomerID),
		LocationCode:    strings.TrimSpace(req.LocationCode),
	}
	if req.Retryable != nil {
		e.Retryable = *req.Retryable
	}
	if req.MaxRetries != nil {
		e.MaxRetries = *req.MaxRetries
	}

	return e, nil
}

func toExceptionResponse(e *domain.InterfaceException) exceptionResponse {
	if e == nil {
		return exceptionResponse{}
	}

	return exceptionResponse{
		TransactionID:   e.TransactionID,
		InterfaceType:   e.InterfaceType.String(),
		OperationName:   e.OperationName,
		ExceptionReason: e.ExceptionReason,
		Category:        e.Category.String(),
		Severity:        e.Severity.String(),
		Status:          e.Status.String(),
		Retryable:       e.Retryable,
		RetryCount:      e.RetryCount,
		MaxRetries:      e.MaxRetries,
		CustomerID:      e.CustomerID,
		LocationCode:    e.LocationCode,
		CreatedAt:       e.CreatedAt,
		ProcessedAt:     e.ProcessedAt,
		UpdatedAt:       e.UpdatedAt,
	}
}

func toAttemptResponse(a *domain.RetryAttempt) attemptResponse {
	if a == nil {
		return attemptResponse{}
	}

	return attemptResponse{
		ID:            a.ID,
		AttemptNumber: a.AttemptNumber,
		Status:        a.Status.String(),
		InitiatedBy:   a.InitiatedBy,
		Reason:        a.Reason,
		InitiatedAt:   a.InitiatedAt,
		CompletedAt:   a.CompletedAt,
		Success:       a.Success,
		ErrorDetail:   a.ErrorDetail,
	}
}

type streamEventResponse struct {
	Kind       string             `json:"kind"`
	Exception  exceptionResponse  `json:"exception"`
	Attempt    *attemptResponse   `json:"attempt,omitempty"`
	Alert      *streamAlertDetail `json:"alert,omitempty"`
	OccurredAt time.Time          `json:"occurredAt"`
}

type streamAlertDetail struct {
	Level             string `json:"level"`
	Reason            string `json:"reason"`
	Impact            string `json:"impact"`
	Target            string `json:"target"`
	CorrelationID     string `json:"correlationId"`
	CustomersAffected *int   `json:"customersAffected,omitempty"`
}

func toStreamEvent(ev hub.Event) streamEventResponse {
	out := streamEventResponse{
		Kind:       string(ev.Kind),
		Exception:  toExceptionResponse(ev.Exception),
		OccurredAt: ev.OccurredAt,
	}
	if ev.Attempt != nil {
		attempt := toAttemptResponse(ev.Attempt)
		out.Attempt = &attempt
	}
	if ev.Alert != nil {
		out.Alert = &streamAlertDetail{
			Level:             ev.Alert.Level.String(),
			Reason:            string(ev.Alert.Reason),
			Impact:            string(ev.Alert.Impact),
			Target:            string(ev.Alert.Target),
			CorrelationID:     ev.Alert.CorrelationID,
			CustomersAffected: ev.Alert.CustomersAffected,
		}
	}
	return out
}
