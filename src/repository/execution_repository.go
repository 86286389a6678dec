package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradecore/src/database"
	"tradecore/src/model"
)

// ExecutionRepository persists exchange fills. Creation is idempotent on
// (exchange_account_id, exchange_order_id).
type ExecutionRepository struct {
	db *gorm.DB
}

// NewExecutionRepository creates a new repository instance using the main
// read/write database.
func NewExecutionRepository() *ExecutionRepository {
	return &ExecutionRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *ExecutionRepository) WithDB(db *gorm.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

// Create inserts the execution. The unique index on
// (exchange_account_id, exchange_order_id) is the idempotency anchor: a
// colliding insert returns model.ErrDuplicateExchangeOrder so a wrapping
// transaction rolls back any position mutation made for the same fill. The
// caller resolves the duplicate by re-reading outside the transaction.
func (r *ExecutionRepository) Create(ctx context.Context, execution *model.Execution) error {
	log := logger.WithFields(map[string]interface{}{
		"repo":              "ExecutionRepository",
		"op":                "Create",
		"account_id":        execution.ExchangeAccountID,
		"exchange_order_id": execution.ExchangeOrderID,
		"side":              execution.Side,
	})

	err := r.db.WithContext(ctx).Create(execution).Error
	if err == nil {
		log.WithField("execution_id", execution.ID).Info("execution recorded")
		return nil
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		log.Debug("exchange order id already recorded")
		return model.ErrDuplicateExchangeOrder
	}

	log.WithError(err).Error("failed to record execution")
	return err
}

// FindByExchangeOrderID fetches a fill by its idempotency key.
// Returns (nil, nil) if not found.
func (r *ExecutionRepository) FindByExchangeOrderID(ctx context.Context, accountID uint, exchangeOrderID string) (*model.Execution, error) {
	var execution model.Execution

	err := r.db.WithContext(ctx).
		Where("exchange_account_id = ? AND exchange_order_id = ?", accountID, exchangeOrderID).
		First(&execution).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &execution, nil
}

// FindByID fetches a single execution. Returns (nil, nil) if not found.
func (r *ExecutionRepository) FindByID(ctx context.Context, id uint) (*model.Execution, error) {
	var execution model.Execution

	err := r.db.WithContext(ctx).First(&execution, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &execution, nil
}

// ExecutionSearchOptions filters Search. Nil fields are ignored.
type ExecutionSearchOptions struct {
	ExchangeAccountID *uint
	PositionID        *uint
	Symbol            *string
	Side              *string
	CreatedAfter      *time.Time
	CreatedBefore     *time.Time
	Limit             int
	Offset            int
}

// Search lists executions matching the given filters, newest first.
func (r *ExecutionRepository) Search(ctx context.Context, options ExecutionSearchOptions) ([]model.Execution, error) {
	query := r.db.WithContext(ctx).Model(&model.Execution{})

	if options.ExchangeAccountID != nil {
		query = query.Where("exchange_account_id = ?", *options.ExchangeAccountID)
	}
	if options.PositionID != nil {
		query = query.Where("position_id = ?", *options.PositionID)
	}
	if options.Symbol != nil {
		query = query.Where("symbol = ?", *options.Symbol)
	}
	if options.Side != nil {
		query = query.Where("side = ?", *options.Side)
	}
	if options.CreatedAfter != nil {
		query = query.Where("created_at >= ?", *options.CreatedAfter)
	}
	if options.CreatedBefore != nil {
		query = query.Where("created_at <= ?", *options.CreatedBefore)
	}

	query = query.Order("id DESC")
	if options.Limit > 0 {
		query = query.Limit(options.Limit)
	}
	if options.Offset > 0 {
		query = query.Offset(options.Offset)
	}

	var executions []model.Execution
	if err := query.Find(&executions).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "ExecutionRepository",
			"op":   "Search",
		}).WithError(err).Error("failed to search executions")
		return nil, err
	}

	return executions, nil
}

// FindOrphanedSells returns every SELL execution without a valid position
// link. They stay visible until explicitly resolved or ignored.
func (r *ExecutionRepository) FindOrphanedSells(ctx context.Context) ([]model.Execution, error) {
	var executions []model.Execution

	err := r.db.WithContext(ctx).
		Where("side = ? AND position_id IS NULL", model.SideSell).
		Order("id ASC").
		Find(&executions).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "ExecutionRepository",
			"op":   "FindOrphanedSells",
		}).WithError(err).Error("failed to list orphaned executions")
		return nil, err
	}

	return executions, nil
}

// LinkToPosition attaches a SELL execution to a position, clearing the unlink
// reason and recording the realized P&L computed against the position's
// price_open.
func (r *ExecutionRepository) LinkToPosition(ctx context.Context, executionID uint, positionID uint, realizedPnl decimal.Decimal) error {
	err := r.db.WithContext(ctx).Model(&model.Execution{}).
		Where("id = ?", executionID).
		Updates(map[string]interface{}{
			"position_id":   positionID,
			"unlink_reason": "",
			"realized_pnl":  realizedPnl,
		}).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":         "ExecutionRepository",
			"op":           "LinkToPosition",
			"execution_id": executionID,
			"position_id":  positionID,
		}).WithError(err).Error("failed to link execution")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":         "ExecutionRepository",
		"op":           "LinkToPosition",
		"execution_id": executionID,
		"position_id":  positionID,
	}).Info("execution linked to position")

	return nil
}

// SumLinkedSellQty returns the total SELL quantity linked to a position. Used
// by reconciliation to cross-check qty_total - qty_remaining.
func (r *ExecutionRepository) SumLinkedSellQty(ctx context.Context, positionID uint) (decimal.Decimal, error) {
	var raw *string

	err := r.db.WithContext(ctx).Model(&model.Execution{}).
		Select("SUM(executed_qty)").
		Where("position_id = ? AND side = ?", positionID, model.SideSell).
		Scan(&raw).Error
	if err != nil {
		return decimal.Zero, err
	}
	if raw == nil {
		return decimal.Zero, nil
	}

	sum, err := decimal.NewFromString(*raw)
	if err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}
