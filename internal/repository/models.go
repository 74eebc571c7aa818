package repository

import (
	"time"

	"github.com/kursadbilgin/exception-collector/internal/domain"
)

// ExceptionModel is the persistence model for the interface_exceptions table.
type ExceptionModel struct {
	TransactionID   string               `gorm:"type:varchar(64);primaryKey"`
	InterfaceType   domain.InterfaceType `gorm:"type:varchar(20);not null"`
	OperationName   string               `gorm:"type:varchar(100);not null"`
	ExceptionReason string               `gorm:"type:text;not null"`
	Category        domain.Category      `gorm:"type:varchar(20);not null"`
	Severity        domain.Severity      `gorm:"type:varchar(10);not null"`
	Status          domain.Status        `gorm:"type:varchar(20);not null"`
	Retryable       bool                 `gorm:"not null;default:false"`
	RetryCount      int                  `gorm:"not null;default:0"`
	MaxRetries      int                  `gorm:"not null;default:5"`
	CustomerID      string               `gorm:"type:varchar(64);index"`
	LocationCode    string               `gorm:"type:varchar(32)"`
	ProcessedAt     *time.Time           `gorm:"type:timestamptz"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (ExceptionModel) TableName() string {
	return "interface_exceptions"
}

// RetryAttemptModel is the persistence model for retry_attempts.
type RetryAttemptModel struct {
	ID             string               `gorm:"type:uuid;primaryKey"`
	TransactionID  string               `gorm:"type:varchar(64);not null;index"`
	AttemptNumber  int                  `gorm:"not null"`
	Status         domain.AttemptStatus `gorm:"type:varchar(20);not null"`
	InitiatedBy    string               `gorm:"type:varchar(64);not null"`
	Reason         string               `gorm:"type:text"`
	PreviousStatus domain.Status        `gorm:"type:varchar(20);not null"`
	InitiatedAt    time.Time            `gorm:"not null"`
	CompletedAt    *time.Time           `gorm:"type:timestamptz"`
	Success        *bool
	ErrorDetail    *string `gorm:"type:text"`
}

func (RetryAttemptModel) TableName() string {
	return "retry_attempts"
}

// StatusChangeModel is the persistence model for status_changes.
type StatusChangeModel struct {
	ID            string        `gorm:"type:uuid;primaryKey"`
	TransactionID string        `gorm:"type:varchar(64);not null;index"`
	FromStatus    domain.Status `gorm:"type:varchar(20);not null"`
	ToStatus      domain.Status `gorm:"type:varchar(20);not null"`
	ChangedBy     string        `gorm:"type:varchar(64);not null"`
	Reason        string        `gorm:"type:text"`
	ChangedAt     time.Time     `gorm:"not null"`
}

func (StatusChangeModel) TableName() string {
	return "status_changes"
}

// MutationAuditLogModel is the persistence model for mutation_audit_logs.
type MutationAuditLogModel struct {
	ID             string             `gorm:"type:uuid;primaryKey"`
	Operation      domain.Operation   `gorm:"type:varchar(20);not null"`
	TransactionID  string             `gorm:"type:varchar(64);index"`
	PerformedBy    string             `gorm:"type:varchar(64);not null"`
	Result         domain.AuditResult `gorm:"type:varchar(25);not null"`
	DurationMillis int64              `gorm:"not null;default:0"`
	ErrorDetail    *string            `gorm:"type:text"`
	PerformedAt    time.Time          `gorm:"not null"`
}

func (MutationAuditLogModel) TableName() string {
	return "mutation_audit_logs"
}

func exceptionModelFromDomain(e *domain.InterfaceException) *ExceptionModel {
	if e == nil {
		return nil
	}

	return &ExceptionModel{
		TransactionID:   e.TransactionID,
		InterfaceType:   e.InterfaceType,
		OperationName:   e.OperationName,
		ExceptionReason: e.ExceptionReason,
		Category:        e.Category,
		Severity:        e.Severity,
		Status:          e.Status,
		Retryable:       e.Retryable,
		RetryCount:      e.RetryCount,
		MaxRetries:      e.MaxRetries,
		CustomerID:      e.CustomerID,
		LocationCode:    e.LocationCode,
		ProcessedAt:     e.ProcessedAt,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
}

func exceptionModelToDomain(m *ExceptionModel) *domain.InterfaceException {
	if m == nil {
		return nil
	}

	return &domain.InterfaceException{
		TransactionID:   m.TransactionID,
		InterfaceType:   m.InterfaceType,
		OperationName:   m.OperationName,
		ExceptionReason: m.ExceptionReason,
		Category:        m.Category,
		Severity:        m.Severity,
		Status:          m.Status,
		Retryable:       m.Retryable,
		RetryCount:      m.RetryCount,
		MaxRetries:      m.MaxRetries,
		CustomerID:      m.CustomerID,
		LocationCode:    m.LocationCode,
		ProcessedAt:     m.ProcessedAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func attemptModelFromDomain(a *domain.RetryAttempt) *RetryAttemptModel {
	if a == nil {
		return nil
	}

	return &RetryAttemptModel{
		ID:             a.ID,
		TransactionID:  a.TransactionID,
		AttemptNumber:  a.AttemptNumber,
		Status:         a.Status,
		InitiatedBy:    a.InitiatedBy,
		Reason:         a.Reason,
		PreviousStatus: a.PreviousStatus,
		InitiatedAt:    a.InitiatedAt,
		CompletedAt:    a.CompletedAt,
		Success:        a.Success,
		ErrorDetail:    a.ErrorDetail,
	}
}

func attemptModelToDomain(m *RetryAttemptModel) *domain.RetryAttempt {
	if m == nil {
		return nil
	}

	return &domain.RetryAttempt{
		ID:             m.ID,
		TransactionID:  m.TransactionID,
		AttemptNumber:  m.AttemptNumber,
		Status:         m.Status,
		InitiatedBy:    m.InitiatedBy,
		Reason:         m.Reason,
		PreviousStatus: m.PreviousStatus,
		InitiatedAt:    m.InitiatedAt,
		CompletedAt:    m.CompletedAt,
		Success:        m.Success,
		ErrorDetail:    m.ErrorDetail,
	}
}

func statusChangeModelFromDomain(c *domain.StatusChange) *StatusChangeModel {
	if c == nil {
		return nil
	}

	return &StatusChangeModel{
		ID:            c.ID,
		TransactionID: c.TransactionID,
		FromStatus:    c.FromStatus,
		ToStatus:      c.ToStatus,
		ChangedBy:     c.ChangedBy,
		Reason:        c.Reason,
		ChangedAt:     c.ChangedAt,
	}
}

func statusChangeModelToDomain(m *StatusChangeModel) *domain.StatusChange {
	if m == nil {
		return nil
	}

	return &domain.StatusChange{
		ID:            m.ID,
		TransactionID: m.TransactionID,
		FromStatus:    m.FromStatus,
		ToStatus:      m.ToStatus,
		ChangedBy:     m.ChangedBy,
		Reason:        m.Reason,
		ChangedAt:     m.ChangedAt,
	}
}

func auditModelFromDomain(a *domain.MutationAuditLog) *MutationAuditLogModel {
	if a == nil {
		return nil
	}

	return &MutationAuditLogModel{
		ID:             a.ID,
		Operation:      a.Operation,
		TransactionID:  a.TransactionID,
		PerformedBy:    a.PerformedBy,
		Result:         a.Result,
		DurationMillis: a.DurationMillis,
		ErrorDetail:    a.ErrorDetail,
		PerformedAt:    a.PerformedAt,
	}
}

func auditModelToDomain(m *MutationAuditLogModel) *domain.MutationAuditLog {
	if m == nil {
		return nil
	}

	return &domain.MutationAuditLog{
		ID:             m.ID,
		Operation:      m.Operation,
		TransactionID:  m.TransactionID,
		PerformedBy:    m.PerformedBy,
		Result:         m.Result,
		DurationMillis: m.DurationMillis,
		ErrorDetail:    m.ErrorDetail,
		PerformedAt:    m.PerformedAt,
	}
}
