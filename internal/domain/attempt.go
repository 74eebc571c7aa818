package domain

import (
	"fmt"
	"strings"
	"time"
)

// AttemptStatus represents the execution state of a single retry attempt.
type AttemptStatus string

const (
	AttemptPending    AttemptStatus = "PENDING"
	AttemptInProgress AttemptStatus = "IN_PROGRESS"
	AttemptCompleted  AttemptStatus = "COMPLETED"
	AttemptFailed     AttemptStatus = "FAILED"
	AttemptCancelled  AttemptStatus = "CANCELLED"
)

func (s AttemptStatus) String() string { return string(s) }

func (s AttemptStatus) IsValid() bool {
	switch s {
	case AttemptPending, AttemptInProgress, AttemptCompleted, AttemptFailed, AttemptCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether the attempt can no longer change state.
// At most one non-terminal attempt may exist per exception.
func (s AttemptStatus) IsTerminal() bool {
	switch s {
	case AttemptCompleted, AttemptFailed, AttemptCancelled:
		return true
	}
	return false
}

func ParseAttemptStatusFromString(s string) (AttemptStatus, error) {
	st := AttemptStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid attempt status %q", ErrValidation, s)
	}
	return st, nil
}

// RetryAttempt records a single retry of an exception's originating
// operation. Attempt numbers are contiguous and strictly increasing per
// exception, starting at 1.
type RetryAttempt struct {
	ID            string
	TransactionID string
	AttemptNumber int
	Status        AttemptStatus
	InitiatedBy   string
	Reason        string
	// PreviousStatus is the exception status the retry was initiated from;
	// cancelling the attempt reverts the exception to it.
	PreviousStatus Status
	InitiatedAt    time.Time
	CompletedAt    *time.Time
	Success        *bool
	ErrorDetail    *string
}
