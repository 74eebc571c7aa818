package alerting

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/exception-collector/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultRetryThreshold          = 3
	defaultRetryCriticalThreshold  = 5
	defaultVolumeThreshold         = 10
	defaultVolumeCriticalThreshold = 50
	defaultVolumeWindow            = time.Hour
)

// CustomerVolumeCounter reports recent exception volume for one customer.
// Backed by the record store; only consulted when the exception carries a
// customer id.
type CustomerVolumeCounter interface {
	CountRecentByCustomer(ctx context.Context, customerID string, since time.Time) (int64, error)
}

// Thresholds configures the independent alert rules.
type Thresholds struct {
	RetryCount         int
	RetryCountCritical int
	CustomerVolume     int64
	CustomerVolumeCrit int64
	CustomerVolumeSpan time.Duration
}

func (t *Thresholds) normalize() {
	if t.RetryCount <= 0 {
		t.RetryCount = defaultRetryThreshold
	}
	if t.RetryCountCritical <= t.RetryCount {
		t.RetryCountCritical = max(t.RetryCount+1, defaultRetryCriticalThreshold)
	}
	if t.CustomerVolume <= 0 {
		t.CustomerVolume = defaultVolumeThreshold
	}
	if t.CustomerVolumeCrit <= t.CustomerVolume {
		t.CustomerVolumeCrit = max(t.CustomerVolume+1, defaultVolumeCriticalThreshold)
	}
	if t.CustomerVolumeSpan <= 0 {
		t.CustomerVolumeSpan = defaultVolumeWindow
	}
}

// Evaluator is the stateless rule engine run after every exception creation
// or transition. Rules fire independently; each fired rule emits its own
// AlertEvent with a fresh correlation/causation id pair.
type Evaluator struct {
	volumes    CustomerVolumeCounter
	thresholds Thresholds
	logger     *zap.Logger
	now        func() time.Time
}

func NewEvaluator(volumes CustomerVolumeCounter, thresholds Thresholds, logger *zap.Logger) *Evaluator {
	thresholds.normalize()
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Evaluator{
		volumes:    volumes,
		thresholds: thresholds,
		logger:     logger,
		now:        time.Now,
	}
}

// Evaluate runs every rule against the exception's current state. Any subset
// may fire. A volume-counter failure skips rule 4 rather than dropping the
// other alerts.
func (ev *Evaluator) Evaluate(ctx context.Context, e *domain.InterfaceException) []domain.AlertEvent {
	if e == nil {
		return nil
	}

	var alerts []domain.AlertEvent

	if e.Severity == domain.SeverityCritical {
		alerts = append(alerts, ev.build(e, domain.AlertCritical, domain.ReasonCriticalSeverity, domain.ImpactHigh, nil))
	}

	if e.RetryCount > ev.thresholds.RetryCount {
		level := domain.AlertHigh
		impact := domain.ImpactMedium
		if e.RetryCount > ev.thresholds.RetryCountCritical {
			level = domain.AlertCritical
			impact = domain.ImpactHigh
		}
		alerts = append(alerts, ev.build(e, level, domain.ReasonRetriesExceeded, impact, nil))
	}

	if e.Category.IsInfrastructure() {
		alerts = append(alerts, ev.build(e, domain.AlertHigh, domain.ReasonInfrastructureFault, domain.ImpactMedium, nil))
	}

	if e.CustomerID != "" && ev.volumes != nil {
		since := ev.now().Add(-ev.thresholds.CustomerVolumeSpan)
		count, err := ev.volumes.CountRecentByCustomer(ctx, e.CustomerID, since)
		if err != nil {
			ev.logger.Warn("customer volume lookup failed, skipping volume rule",
				zap.String("transactionId", e.TransactionID),
				zap.String("customerId", e.CustomerID),
				zap.Error(err),
			)
		} else if count >= ev.thresholds.CustomerVolume {
			level := domain.AlertHigh
			impact := domain.ImpactHigh
			if count >= ev.thresholds.CustomerVolumeCrit {
				level = domain.AlertEmergency
				impact = domain.ImpactSevere
			}
			affected := int(count)
			alerts = append(alerts, ev.build(e, level, domain.ReasonCustomerImpact, impact, &affected))
		}
	}

	return alerts
}

// EvaluateResolution emits the resolution domain event handed to the alert
// publisher when an exception reaches RESOLVED.
func (ev *Evaluator) EvaluateResolution(e *domain.InterfaceException) domain.AlertEvent {
	return ev.build(e, domain.AlertWarning, domain.ReasonExceptionResolved, domain.ImpactLow, nil)
}

func (ev *Evaluator) build(
	e *domain.InterfaceException,
	level domain.AlertLevel,
	reason domain.AlertReason,
	impact domain.AlertImpact,
	affected *int,
) domain.AlertEvent {
	return domain.AlertEvent{
		Level:             level,
		Reason:            reason,
		Impact:            impact,
		Target:            TargetFor(level, reason),
		TransactionID:     e.TransactionID,
		CorrelationID:     uuid.NewString(),
		CausationID:       uuid.NewString(),
		CustomersAffected: affected,
		EmittedAt:         ev.now().UTC(),
	}
}

// TargetFor maps level+reason to the responsible escalation target. The
// emergency level always routes to the highest tier.
func TargetFor(level domain.AlertLevel, reason domain.AlertReason) domain.EscalationTarget {
	if level == domain.AlertEmergency {
		return domain.TargetIncidentCommander
	}

	switch reason {
	case domain.ReasonInfrastructureFault:
		return domain.TargetEngineering
	case domain.ReasonCustomerImpact:
		return domain.TargetSupport
	case domain.ReasonExceptionResolved:
		return domain.TargetSupport
	default:
		return domain.TargetOperations
	}
}
