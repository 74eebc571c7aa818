package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/exception-collector/internal/domain"
	"gorm.io/gorm"
)

// ListParams filters and pages the exception listing. Offset/Limit are
// computed by the transport layer from opaque cursors.
type ListParams struct {
	InterfaceType *domain.InterfaceType
	Status        *domain.Status
	Severity      *domain.Severity
	Category      *domain.Category
	CustomerID    *string
	From          *time.Time
	To            *time.Time
	Offset        int
	Limit         int
	SortField     string
	SortDesc      bool
}

var sortableFields = map[string]string{
	"createdAt":     "created_at",
	"severity":      "severity",
	"status":        "status",
	"interfaceType": "interface_type",
	"customerId":    "customer_id",
}

type ExceptionRepository interface {
	Create(ctx context.Context, e *domain.InterfaceException) error
	GetByTransactionID(ctx context.Context, transactionID string) (*domain.InterfaceException, error)
	FindByTransactionIDs(ctx context.Context, transactionIDs []string) ([]domain.InterfaceException, error)
	List(ctx context.Context, params ListParams) ([]domain.InterfaceException, int64, error)
	CompareAndSetStatus(ctx context.Context, transactionID string, from, to domain.Status) (bool, error)
	UpdateRetryResult(ctx context.Context, transactionID string, status domain.Status) error
	CountRecentByCustomer(ctx context.Context, customerID string, since time.Time) (int64, error)
}

type GormExceptionRepo struct {
	db *gorm.DB
}

func NewGormExceptionRepo(db *gorm.DB) *GormExceptionRepo {
	return &GormExceptionRepo{db: db}
}

func (r *GormExceptionRepo) Create(ctx context.Context, e *domain.InterfaceException) error {
	model := exceptionModelFromDomain(e)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if e != nil {
		*e = *exceptionModelToDomain(model)
	}
	return nil
}

func (r *GormExceptionRepo) GetByTransactionID(ctx context.Context, transactionID string) (*domain.InterfaceException, error) {
	var model ExceptionModel
	err := r.db.WithContext(ctx).First(&model, "transaction_id = ?", transactionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return exceptionModelToDomain(&model), nil
}

func (r *GormExceptionRepo) FindByTransactionIDs(ctx context.Context, transactionIDs []string) ([]domain.InterfaceException, error) {
	if len(transactionIDs) == 0 {
		return nil, nil
	}

	var models []ExceptionModel
	err := r.db.WithContext(ctx).
		Where("transaction_id IN ?", transactionIDs).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	exceptions := make([]domain.InterfaceException, 0, len(models))
	for i := range models {
		exceptions = append(exceptions, *exceptionModelToDomain(&models[i]))
	}

	return exceptions, nil
}

func (r *GormExceptionRepo) List(ctx context.Context, params ListParams) ([]domain.InterfaceException, int64, error) {
	query := r.db.WithContext(ctx).Model(&ExceptionModel{})

	if params.InterfaceType != nil {
		query = query.Where("interface_type = ?", *params.InterfaceType)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Severity != nil {
		query = query.Where("severity = ?", *params.Severity)
	}
	if params.Category != nil {
		query = query.Where("category = ?", *params.Category)
	}
	if params.CustomerID != nil {
		query = query.Where("customer_id = ?", *params.CustomerID)
	}
	if params.From != nil {
		query = query.Where("created_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("created_at <= ?", *params.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	column, ok := sortableFields[params.SortField]
	if !ok {
		column = "created_at"
	}
	direction := "ASC"
	if params.SortDesc {
		direction = "DESC"
	}

	limit := params.Limit
	if limit < 1 {
		limit = 50
	}
	offset := max(params.Offset, 0)

	var models []ExceptionModel
	err := query.
		Order(fmt.Sprintf("%s %s, transaction_id ASC", column, direction)).
		Offset(offset).
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	exceptions := make([]domain.InterfaceException, 0, len(models))
	for i := range models {
		exceptions = append(exceptions, *exceptionModelToDomain(&models[i]))
	}

	return exceptions, total, nil
}

// CompareAndSetStatus performs the conditional transition that serializes
// concurrent callers per transaction id. It returns false when another
// caller won the race (the row no longer holds the expected status).
func (r *GormExceptionRepo) CompareAndSetStatus(ctx context.Context, transactionID string, from, to domain.Status) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&ExceptionModel{}).
		Where("transaction_id = ? AND status = ?", transactionID, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// UpdateRetryResult moves an exception out of RETRY_IN_PROGRESS and bumps
// the retry counter in one statement.
func (r *GormExceptionRepo) UpdateRetryResult(ctx context.Context, transactionID string, status domain.Status) error {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&ExceptionModel{}).
		Where("transaction_id = ? AND status = ?", transactionID, domain.StatusRetryInProgress).
		Updates(map[string]any{
			"status":       status,
			"retry_count":  gorm.Expr("retry_count + 1"),
			"processed_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormExceptionRepo) CountRecentByCustomer(ctx context.Context, customerID string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&ExceptionModel{}).
		Where("customer_id = ? AND created_at >= ?", customerID, since).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
