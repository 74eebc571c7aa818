package domain

import (
	"fmt"
	"strings"
	"time"
)

// Operation identifies a state-changing call for rate limiting and auditing.
type Operation string

const (
	OperationAcknowledge     Operation = "ACKNOWLEDGE"
	OperationRetry           Operation = "RETRY"
	OperationCancelRetry     Operation = "CANCEL_RETRY"
	OperationResolve         Operation = "RESOLVE"
	OperationBulkAcknowledge Operation = "BULK_ACKNOWLEDGE"
	OperationBulkRetry       Operation = "BULK_RETRY"
)

func (o Operation) String() string { return string(o) }

func (o Operation) IsValid() bool {
	switch o {
	case OperationAcknowledge, OperationRetry, OperationCancelRetry,
		OperationResolve, OperationBulkAcknowledge, OperationBulkRetry:
		return true
	}
	return false
}

func ParseOperationFromString(s string) (Operation, error) {
	op := Operation(strings.ToUpper(strings.TrimSpace(s)))
	if !op.IsValid() {
		return "", fmt.Errorf("%w: invalid operation %q", ErrValidation, s)
	}
	return op, nil
}

// AuditResult classifies the outcome of an attempted mutation.
type AuditResult string

const (
	AuditSuccess            AuditResult = "SUCCESS"
	AuditRejectedRateLimit  AuditResult = "REJECTED_RATE_LIMIT"
	AuditRejectedValidation AuditResult = "REJECTED_VALIDATION"
	AuditRejectedNotFound   AuditResult = "REJECTED_NOT_FOUND"
	AuditRejectedConflict   AuditResult = "REJECTED_CONFLICT"
	AuditRejectedForbidden  AuditResult = "REJECTED_FORBIDDEN"
	AuditFailed             AuditResult = "FAILED"
)

// MutationAuditLog is one append-only record per attempted mutation.
// A row is written whether or not the underlying mutation succeeded.
type MutationAuditLog struct {
	ID             string
	Operation      Operation
	TransactionID  string
	PerformedBy    string
	Result         AuditResult
	DurationMillis int64
	ErrorDetail    *string
	PerformedAt    time.Time
}
