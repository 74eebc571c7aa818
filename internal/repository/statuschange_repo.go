package repository

import (
	"context"

	"github.com/kursadbilgin/exception-collector/internal/domain"
	"gorm.io/gorm"
)

type StatusChangeRepository interface {
	Append(ctx context.Context, c *domain.StatusChange) error
	GetByTransactionID(ctx context.Context, transactionID string) ([]domain.StatusChange, error)
	ListByTransactionIDs(ctx context.Context, transactionIDs []string) ([]domain.StatusChange, error)
}

type GormStatusChangeRepo struct {
	db *gorm.DB
}

func NewGormStatusChangeRepo(db *gorm.DB) *GormStatusChangeRepo {
	return &GormStatusChangeRepo{db: db}
}

func (r *GormStatusChangeRepo) Append(ctx context.Context, c *domain.StatusChange) error {
	model := statusChangeModelFromDomain(c)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if c != nil {
		*c = *statusChangeModelToDomain(model)
	}
	return nil
}

func (r *GormStatusChangeRepo) GetByTransactionID(ctx context.Context, transactionID string) ([]domain.StatusChange, error) {
	var models []StatusChangeModel
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("changed_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	changes := make([]domain.StatusChange, 0, len(models))
	for i := range models {
		changes = append(changes, *statusChangeModelToDomain(&models[i]))
	}

	return changes, nil
}

func (r *GormStatusChangeRepo) ListByTransactionIDs(ctx context.Context, transactionIDs []string) ([]domain.StatusChange, error) {
	if len(transactionIDs) == 0 {
		return nil, nil
	}

	var models []StatusChangeModel
	err := r.db.WithContext(ctx).
		Where("transaction_id IN ?", transactionIDs).
		Order("transaction_id ASC, changed_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	changes := make([]domain.StatusChange, 0, len(models))
	for i := range models {
		changes = append(changes, *statusChangeModelToDomain(&models[i]))
	}

	return changes, nil
}
