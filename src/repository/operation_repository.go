package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradecore/src/database"
	"tradecore/src/model"
)

// OperationRepository handles read/write operations for trading operations
// (the intended BUY/SELL actions behind executions).
type OperationRepository struct {
	db *gorm.DB
}

// NewOperationRepository creates a new repository instance using the main
// read/write database.
func NewOperationRepository() *OperationRepository {
	return &OperationRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *OperationRepository) WithDB(db *gorm.DB) *OperationRepository {
	return &OperationRepository{db: db}
}

// Create inserts a new operation. The given operation is updated with the
// generated ID and timestamps.
func (r *OperationRepository) Create(ctx context.Context, operation *model.Operation) error {
	err := r.db.WithContext(ctx).Create(operation).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "OperationRepository",
			"op":     "Create",
			"symbol": operation.Symbol,
			"side":   operation.Side,
		}).WithError(err).Error("failed to create operation")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":         "OperationRepository",
		"op":           "Create",
		"operation_id": operation.ID,
		"source":       operation.Source,
	}).Info("operation created")

	return nil
}

// FindByID fetches a single operation by its primary ID.
// Returns (nil, nil) if not found.
func (r *OperationRepository) FindByID(ctx context.Context, id uint) (*model.Operation, error) {
	var operation model.Operation

	err := r.db.WithContext(ctx).First(&operation, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &operation, nil
}

// UpdateStatus moves an operation to a new status with an optional reason.
// Terminal fill states also record the execution timestamp.
func (r *OperationRepository) UpdateStatus(ctx context.Context, id uint, status, reason string) error {
	updates := map[string]interface{}{"status": status}
	if reason != "" {
		updates["reason"] = reason
	}
	if status == model.OperationStatusFilled || status == model.OperationStatusPartiallyFilled {
		updates["executed_at"] = time.Now()
	}

	err := r.db.WithContext(ctx).Model(&model.Operation{}).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":         "OperationRepository",
			"op":           "UpdateStatus",
			"operation_id": id,
			"status":       status,
		}).WithError(err).Error("failed to update operation status")
		return err
	}

	return nil
}

// OperationSearchOptions filters Search. Nil fields are ignored.
type OperationSearchOptions struct {
	ExchangeAccountID *uint
	Symbol            *string
	Status            *string
	Source            *string
	Limit             int
	Offset            int
}

// Search lists operations matching the given filters, newest first.
func (r *OperationRepository) Search(ctx context.Context, options OperationSearchOptions) ([]model.Operation, error) {
	query := r.db.WithContext(ctx).Model(&model.Operation{})

	if options.ExchangeAccountID != nil {
		query = query.Where("exchange_account_id = ?", *options.ExchangeAccountID)
	}
	if options.Symbol != nil {
		query = query.Where("symbol = ?", *options.Symbol)
	}
	if options.Status != nil {
		query = query.Where("status = ?", *options.Status)
	}
	if options.Source != nil {
		query = query.Where("source = ?", *options.Source)
	}

	query = query.Order("id DESC")
	if options.Limit > 0 {
		query = query.Limit(options.Limit)
	}
	if options.Offset > 0 {
		query = query.Offset(options.Offset)
	}

	var operations []model.Operation
	if err := query.Find(&operations).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OperationRepository",
			"op":   "Search",
		}).WithError(err).Error("failed to search operations")
		return nil, err
	}

	return operations, nil
}
