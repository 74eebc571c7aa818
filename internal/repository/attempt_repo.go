package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/exception-collector/internal/domain"
	"gorm.io/gorm"
)

var openAttemptStatuses = []domain.AttemptStatus{
	domain.AttemptPending,
	domain.AttemptInProgress,
}

type AttemptRepository interface {
	CreateIfNoOpen(ctx context.Context, a *domain.RetryAttempt, expectedStatus domain.Status) error
	GetByTransactionID(ctx context.Context, transactionID string) ([]domain.RetryAttempt, error)
	ListByTransactionIDs(ctx context.Context, transactionIDs []string) ([]domain.RetryAttempt, error)
	LatestOpen(ctx context.Context, transactionID string) (*domain.RetryAttempt, error)
	Complete(ctx context.Context, attemptID string, success bool, errorDetail *string) error
	Cancel(ctx context.Context, attemptID string) error
	ListStale(ctx context.Context, before time.Time, limit int) ([]domain.RetryAttempt, error)
}

type GormAttemptRepo struct {
	db *gorm.DB
}

func NewGormAttemptRepo(db *gorm.DB) *GormAttemptRepo {
	return &GormAttemptRepo{db: db}
}

// CreateIfNoOpen atomically flips the exception into RETRY_IN_PROGRESS and
// inserts the next attempt. The compare-and-set on the exception row keyed by
// transaction id serializes concurrent initiators: only the caller whose
// UPDATE matches the expected status inserts an attempt. Callers on other
// transaction ids never contend.
func (r *GormAttemptRepo) CreateIfNoOpen(ctx context.Context, a *domain.RetryAttempt, expectedStatus domain.Status) error {
	if a == nil {
		return domain.ErrValidation
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&ExceptionModel{}).
			Where("transaction_id = ? AND status = ?", a.TransactionID, expectedStatus).
			Update("status", domain.StatusRetryInProgress)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrConflict
		}

		var openCount int64
		if err := tx.Model(&RetryAttemptModel{}).
			Where("transaction_id = ? AND status IN ?", a.TransactionID, openAttemptStatuses).
			Count(&openCount).Error; err != nil {
			return err
		}
		if openCount > 0 {
			return domain.ErrConflict
		}

		var lastNumber int64
		if err := tx.Model(&RetryAttemptModel{}).
			Where("transaction_id = ?", a.TransactionID).
			Select("COALESCE(MAX(attempt_number), 0)").
			Scan(&lastNumber).Error; err != nil {
			return err
		}

		a.AttemptNumber = int(lastNumber) + 1
		model := attemptModelFromDomain(a)
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		*a = *attemptModelToDomain(model)
		return nil
	})
}

func (r *GormAttemptRepo) GetByTransactionID(ctx context.Context, transactionID string) ([]domain.RetryAttempt, error) {
	var models []RetryAttemptModel
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("attempt_number ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	attempts := make([]domain.RetryAttempt, 0, len(models))
	for i := range models {
		attempts = append(attempts, *attemptModelToDomain(&models[i]))
	}

	return attempts, nil
}

func (r *GormAttemptRepo) ListByTransactionIDs(ctx context.Context, transactionIDs []string) ([]domain.RetryAttempt, error) {
	if len(transactionIDs) == 0 {
		return nil, nil
	}

	var models []RetryAttemptModel
	err := r.db.WithContext(ctx).
		Where("transaction_id IN ?", transactionIDs).
		Order("transaction_id ASC, attempt_number ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	attempts := make([]domain.RetryAttempt, 0, len(models))
	for i := range models {
		attempts = append(attempts, *attemptModelToDomain(&models[i]))
	}

	return attempts, nil
}

func (r *GormAttemptRepo) LatestOpen(ctx context.Context, transactionID string) (*domain.RetryAttempt, error) {
	var model RetryAttemptModel
	err := r.db.WithContext(ctx).
		Where("transaction_id = ? AND status IN ?", transactionID, openAttemptStatuses).
		Order("attempt_number DESC").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return attemptModelToDomain(&model), nil
}

func (r *GormAttemptRepo) Complete(ctx context.Context, attemptID string, success bool, errorDetail *string) error {
	status := domain.AttemptCompleted
	if !success {
		status = domain.AttemptFailed
	}

	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&RetryAttemptModel{}).
		Where("id = ? AND status IN ?", attemptID, openAttemptStatuses).
		Updates(map[string]any{
			"status":       status,
			"success":      success,
			"completed_at": now,
			"error_detail": errorDetail,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormAttemptRepo) Cancel(ctx context.Context, attemptID string) error {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&RetryAttemptModel{}).
		Where("id = ? AND status IN ?", attemptID, openAttemptStatuses).
		Updates(map[string]any{
			"status":       domain.AttemptCancelled,
			"completed_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormAttemptRepo) ListStale(ctx context.Context, before time.Time, limit int) ([]domain.RetryAttempt, error) {
	if limit < 1 {
		limit = 100
	}

	var models []RetryAttemptModel
	err := r.db.WithContext(ctx).
		Where("status IN ? AND initiated_at < ?", openAttemptStatuses, before).
		Order("initiated_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	attempts := make([]domain.RetryAttempt, 0, len(models))
	for i := range models {
		attempts = append(attempts, *attemptModelToDomain(&models[i]))
	}

	return attempts, nil
}
