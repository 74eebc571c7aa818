package hub

import (
	"time"

	"github.com/kursadbilgin/exception-collector/internal/domain"
)

// EventKind selects which live feed an event belongs to. Clients open one
// subscription per kind.
type EventKind string

const (
	KindLifecycle   EventKind = "LIFECYCLE"
	KindRetryStatus EventKind = "RETRY_STATUS"
	KindAlert       EventKind = "ALERT"
)

// Event is one broadcast item. Exception is always set; Attempt and Alert
// are populated for their respective kinds.
type Event struct {
	Kind       EventKind
	Exception  *domain.InterfaceException
	Attempt    *domain.RetryAttempt
	Alert      *domain.AlertEvent
	OccurredAt time.Time
}

// Filter is the optional client-supplied predicate. Zero value matches
// every event the subscriber is authorized to see.
type Filter struct {
	Severities     []domain.Severity
	Statuses       []domain.Status
	InterfaceTypes []domain.InterfaceType
	CustomerID     string
}

func (f Filter) Matches(ev Event) bool {
	if ev.Exception == nil {
		return false
	}

	if len(f.Severities) > 0 && !containsValue(f.Severities, ev.Exception.Severity) {
		return false
	}
	if len(f.Statuses) > 0 && !containsValue(f.Statuses, ev.Exception.Status) {
		return false
	}
	if len(f.InterfaceTypes) > 0 && !containsValue(f.InterfaceTypes, ev.Exception.InterfaceType) {
		return false
	}
	if f.CustomerID != "" && f.CustomerID != ev.Exception.CustomerID {
		return false
	}
	return true
}

func containsValue[T comparable](values []T, v T) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
