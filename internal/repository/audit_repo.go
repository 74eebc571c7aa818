package repository

import (
	"context"
	"time"

	"github.com/kursadbilgin/exception-collector/internal/domain"
	"gorm.io/gorm"
)

type AuditRepository interface {
	Append(ctx context.Context, a *domain.MutationAuditLog) error
	List(ctx context.Context, performedBy string, from, to *time.Time, limit int) ([]domain.MutationAuditLog, error)
}

type GormAuditRepo struct {
	db *gorm.DB
}

func NewGormAuditRepo(db *gorm.DB) *GormAuditRepo {
	return &GormAuditRepo{db: db}
}

func (r *GormAuditRepo) Append(ctx context.Context, a *domain.MutationAuditLog) error {
	model := auditModelFromDomain(a)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if a != nil {
		*a = *auditModelToDomain(model)
	}
	return nil
}

// List returns audit rows ordered by performed_at. Rows are not written in
// call order under concurrency, so consumers sort by timestamp.
func (r *GormAuditRepo) List(ctx context.Context, performedBy string, from, to *time.Time, limit int) ([]domain.MutationAuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	query := r.db.WithContext(ctx).Model(&MutationAuditLogModel{})
	if performedBy != "" {
		query = query.Where("performed_by = ?", performedBy)
	}
	if from != nil {
		query = query.Where("performed_at >= ?", *from)
	}
	if to != nil {
		query = query.Where("performed_at <= ?", *to)
	}

	var models []MutationAuditLogModel
	err := query.
		Order("performed_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	logs := make([]domain.MutationAuditLog, 0, len(models))
	for i := range models {
		logs = append(logs, *auditModelToDomain(&models[i]))
	}

	return logs, nil
}
