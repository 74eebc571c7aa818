package domain

import "time"

// AlertLevel orders fired alerts by urgency.
type AlertLevel string

const (
	AlertWarning   AlertLevel = "WARNING"
	AlertHigh      AlertLevel = "HIGH"
	AlertCritical  AlertLevel = "CRITICAL"
	AlertEmergency AlertLevel = "EMERGENCY"
)

func (l AlertLevel) String() string { return string(l) }

// AlertReason is the machine-readable code for why a rule fired.
type AlertReason string

const (
	ReasonCriticalSeverity     AlertReason = "CRITICAL_SEVERITY"
	ReasonRetriesExceeded      AlertReason = "RETRIES_EXCEEDED"
	ReasonInfrastructureFault  AlertReason = "INFRASTRUCTURE_FAULT"
	ReasonCustomerImpact       AlertReason = "CUSTOMER_IMPACT"
	ReasonExceptionResolved    AlertReason = "EXCEPTION_RESOLVED"
)

// AlertImpact estimates the blast radius of the triggering condition.
type AlertImpact string

const (
	ImpactLow    AlertImpact = "LOW"
	ImpactMedium AlertImpact = "MEDIUM"
	ImpactHigh   AlertImpact = "HIGH"
	ImpactSevere AlertImpact = "SEVERE"
)

// EscalationTarget is the internal group responsible for handling an alert.
type EscalationTarget string

const (
	TargetOperations        EscalationTarget = "OPERATIONS"
	TargetSupport           EscalationTarget = "SUPPORT"
	TargetEngineering       EscalationTarget = "ENGINEERING"
	TargetIncidentCommander EscalationTarget = "INCIDENT_COMMANDER"
)

// AlertEvent is the ephemeral value emitted by the rule evaluator. It is
// handed to an external publisher and never persisted by the collector.
type AlertEvent struct {
	Level             AlertLevel
	Reason            AlertReason
	Impact            AlertImpact
	Target            EscalationTarget
	TransactionID     string
	CorrelationID     string
	CausationID       string
	CustomersAffected *int
	EmittedAt         time.Time
}
