package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of an interface exception.
type Status string

const (
	StatusNew             Status = "NEW"
	StatusAcknowledged    Status = "ACKNOWLEDGED"
	StatusRetryInProgress Status = "RETRY_IN_PROGRESS"
	StatusRetriedSuccess  Status = "RETRIED_SUCCESS"
	StatusRetriedFailed   Status = "RETRIED_FAILED"
	StatusEscalated       Status = "ESCALATED"
	StatusResolved        Status = "RESOLVED"
	StatusClosed          Status = "CLOSED"
	StatusCancelled       Status = "CANCELLED"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusNew, StatusAcknowledged, StatusRetryInProgress, StatusRetriedSuccess,
		StatusRetriedFailed, StatusEscalated, StatusResolved, StatusClosed, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusClosed || s == StatusCancelled
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// statusTransitions is the lifecycle graph. CANCELLED is additionally
// reachable from every non-terminal state.
var statusTransitions = map[Status][]Status{
	StatusNew:             {StatusAcknowledged, StatusResolved},
	StatusAcknowledged:    {StatusRetryInProgress, StatusEscalated, StatusResolved},
	StatusRetryInProgress: {StatusRetriedSuccess, StatusRetriedFailed, StatusAcknowledged, StatusResolved},
	StatusRetriedSuccess:  {StatusResolved},
	StatusRetriedFailed:   {StatusRetryInProgress, StatusEscalated, StatusResolved},
	StatusEscalated:       {StatusResolved},
	StatusResolved:        {StatusClosed},
}

// CanTransition reports whether from → to is a legal lifecycle move.
func CanTransition(from, to Status) bool {
	if !from.IsValid() || !to.IsValid() {
		return false
	}
	if from.IsTerminal() {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Severity classifies how serious an exception is.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

func (s Severity) String() string { return string(s) }

func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

func ParseSeverityFromString(s string) (Severity, error) {
	sv := Severity(strings.ToUpper(strings.TrimSpace(s)))
	if !sv.IsValid() {
		return "", fmt.Errorf("%w: invalid severity %q", ErrValidation, s)
	}
	return sv, nil
}

// Category classifies the failure reason reported by the upstream interface.
type Category string

const (
	CategoryValidation     Category = "VALIDATION"
	CategoryBusinessRule   Category = "BUSINESS_RULE"
	CategoryTimeout        Category = "TIMEOUT"
	CategoryConnection     Category = "CONNECTION"
	CategoryAuthentication Category = "AUTHENTICATION"
	CategoryAuthorization  Category = "AUTHORIZATION"
	CategorySystemError    Category = "SYSTEM_ERROR"
)

func (c Category) String() string { return string(c) }

func (c Category) IsValid() bool {
	switch c {
	case CategoryValidation, CategoryBusinessRule, CategoryTimeout, CategoryConnection,
		CategoryAuthentication, CategoryAuthorization, CategorySystemError:
		return true
	}
	return false
}

// IsInfrastructure reports whether the category indicates an
// infrastructure-level fault rather than a business one.
func (c Category) IsInfrastructure() bool {
	switch c {
	case CategoryTimeout, CategoryConnection, CategorySystemError:
		return true
	}
	return false
}

func ParseCategoryFromString(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("%w: invalid category %q", ErrValidation, s)
	}
	return c, nil
}

// InterfaceType identifies which upstream service interface raised the exception.
type InterfaceType string

const (
	InterfaceOrder        InterfaceType = "ORDER"
	InterfaceCollection   InterfaceType = "COLLECTION"
	InterfaceDistribution InterfaceType = "DISTRIBUTION"
	InterfaceInventory    InterfaceType = "INVENTORY"
)

func (t InterfaceType) String() string { return string(t) }

func (t InterfaceType) IsValid() bool {
	switch t {
	case InterfaceOrder, InterfaceCollection, InterfaceDistribution, InterfaceInventory:
		return true
	}
	return false
}

func ParseInterfaceTypeFromString(s string) (InterfaceType, error) {
	t := InterfaceType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: invalid interface type %q", ErrValidation, s)
	}
	return t, nil
}

const DefaultMaxRetries = 5

// InterfaceException is the core entity: one failure raised by an interface
// between distributed services, keyed by its externally-assigned transaction id.
type InterfaceException struct {
	TransactionID   string
	InterfaceType   InterfaceType
	OperationName   string
	ExceptionReason string
	Category        Category
	Severity        Severity
	Status          Status
	Retryable       bool
	RetryCount      int
	MaxRetries      int
	CustomerID      string
	LocationCode    string
	CreatedAt       time.Time
	ProcessedAt     *time.Time
	UpdatedAt       time.Time
}

func (e *InterfaceException) Validate() error {
	if strings.TrimSpace(e.TransactionID) == "" {
		return fmt.Errorf("%w: transaction id is required", ErrValidation)
	}
	if !e.InterfaceType.IsValid() {
		return fmt.Errorf("%w: invalid interface type %q", ErrValidation, e.InterfaceType)
	}
	if !e.Category.IsValid() {
		return fmt.Errorf("%w: invalid category %q", ErrValidation, e.Category)
	}
	if !e.Severity.IsValid() {
		return fmt.Errorf("%w: invalid severity %q", ErrValidation, e.Severity)
	}
	if !e.Status.IsValid() {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, e.Status)
	}
	if e.RetryCount < 0 {
		return fmt.Errorf("%w: retry count must not be negative", ErrValidation)
	}
	if e.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative", ErrValidation)
	}
	if e.RetryCount > e.MaxRetries {
		return fmt.Errorf("%w: retry count %d exceeds max retries %d", ErrValidation, e.RetryCount, e.MaxRetries)
	}
	return nil
}

// CanRetry reports whether another retry attempt may be initiated based on
// the exception's own bookkeeping. The open-attempt check is the
// orchestrator's concern.
func (e *InterfaceException) CanRetry() bool {
	return e.Retryable && e.RetryCount < e.MaxRetries && CanTransition(e.Status, StatusRetryInProgress)
}

// StatusChange is one append-only record of a lifecycle transition.
type StatusChange struct {
	ID            string
	TransactionID string
	FromStatus    Status
	ToStatus      Status
	ChangedBy     string
	Reason        string
	ChangedAt     time.Time
}
