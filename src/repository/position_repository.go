package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradecore/src/database"
	"tradecore/src/model"
)

// PositionRepository is the position ledger: it owns opening/grouping of
// positions from BUY fills and the guarded decrement of remaining quantity
// from SELL fills.
type PositionRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewPositionRepository creates a new repository instance using the main
// read/write database.
func NewPositionRepository() *PositionRepository {
	return &PositionRepository{db: database.MainDB, now: time.Now}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *PositionRepository) WithDB(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db, now: time.Now}
}

// WithClock overrides the clock used for grouping-window arithmetic in tests.
func (r *PositionRepository) WithClock(now func() time.Time) *PositionRepository {
	return &PositionRepository{db: r.db, now: now}
}

// withRowLock adds SELECT ... FOR UPDATE where the dialect supports it. The
// sqlite databases used in tests serialize writers anyway.
func withRowLock(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// OpenOrGroup applies a BUY fill: it either merges the fill into the most
// recent OPEN position of (account, symbol) still inside the grouping window,
// recomputing price_open as the quantity-weighted average, or opens a new
// position carrying the account's risk-exit defaults.
//
// The lookup takes a row lock so two concurrent BUY fills cannot both decide
// to open a new position when they should group.
func (r *PositionRepository) OpenOrGroup(
	ctx context.Context,
	account *model.ExchangeAccount,
	symbol string,
	fillQty decimal.Decimal,
	fillPrice decimal.Decimal,
) (*model.Position, error) {

	log := logger.WithFields(map[string]interface{}{
		"repo":       "PositionRepository",
		"op":         "OpenOrGroup",
		"account_id": account.ID,
		"symbol":     symbol,
		"qty":        fillQty,
		"price":      fillPrice,
	})

	var result *model.Position
	window := time.Duration(account.GroupingWindowMinutes) * time.Minute

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if window > 0 {
			var existing model.Position
			cutoff := r.now().Add(-window)

			err := withRowLock(tx).
				Where("exchange_account_id = ? AND symbol = ? AND status = ? AND last_grouped_at >= ?",
					account.ID, symbol, model.PositionStatusOpen, cutoff).
				Order("last_grouped_at DESC").
				First(&existing).Error

			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			if err == nil {
				oldCost := existing.PriceOpen.Mul(existing.QtyTotal)
				newTotal := existing.QtyTotal.Add(fillQty)
				existing.PriceOpen = oldCost.Add(fillPrice.Mul(fillQty)).Div(newTotal)
				existing.QtyTotal = newTotal
				existing.QtyRemaining = existing.QtyRemaining.Add(fillQty)
				existing.LastGroupedAt = r.now()

				if err := tx.Save(&existing).Error; err != nil {
					return err
				}

				log.WithField("position_id", existing.ID).Info("BUY fill grouped into existing position")
				result = &existing
				return nil
			}
		}

		created := model.Position{
			ExchangeAccountID: account.ID,
			Symbol:            symbol,
			TradeMode:         account.TradeMode,
			PriceOpen:         fillPrice,
			QtyTotal:          fillQty,
			QtyRemaining:      fillQty,
			Status:            model.PositionStatusOpen,
			LastGroupedAt:     r.now(),
		}

		var defaults model.RiskExitDefaults
		err := tx.Where("exchange_account_id = ? AND side = ?", account.ID, model.SideBuy).
			First(&defaults).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err == nil {
			defaults.ApplyTo(&created.RiskExit)
		}

		if err := tx.Create(&created).Error; err != nil {
			return err
		}

		log.WithField("position_id", created.ID).Info("opened new position")
		result = &created
		return nil
	})
	if err != nil {
		log.WithError(err).Error("failed to apply BUY fill")
		return nil, err
	}

	return result, nil
}

// DecrementRemaining applies a SELL quantity to a position as a single guarded
// update: the decrement only happens when the position is still OPEN and holds
// at least qty. When the remainder reaches zero the position is closed in the
// same transaction.
//
// Returns model.ErrPositionAlreadyClosed or model.ErrInsufficientQuantity when
// the guard rejects the write.
func (r *PositionRepository) DecrementRemaining(
	ctx context.Context,
	positionID uint,
	qty decimal.Decimal,
) (*model.Position, error) {

	log := logger.WithFields(map[string]interface{}{
		"repo":        "PositionRepository",
		"op":          "DecrementRemaining",
		"position_id": positionID,
		"qty":         qty,
	})

	if qty.LessThanOrEqual(decimal.Zero) {
		return nil, model.ErrInsufficientQuantity
	}

	var result *model.Position

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Position{}).
			Where("id = ? AND status = ? AND qty_remaining >= ?", positionID, model.PositionStatusOpen, qty).
			UpdateColumn("qty_remaining", gorm.Expr("qty_remaining - ?", qty))
		if res.Error != nil {
			return res.Error
		}

		if res.RowsAffected == 0 {
			// Guard rejected the write; re-read to say why.
			var cur model.Position
			if err := tx.First(&cur, positionID).Error; err != nil {
				return err
			}
			if cur.Status == model.PositionStatusClosed {
				return model.ErrPositionAlreadyClosed
			}
			return model.ErrInsufficientQuantity
		}

		var cur model.Position
		if err := tx.First(&cur, positionID).Error; err != nil {
			return err
		}

		if cur.QtyRemaining.IsZero() {
			closedAt := r.now()
			if err := tx.Model(&cur).Updates(map[string]interface{}{
				"status":    model.PositionStatusClosed,
				"closed_at": closedAt,
			}).Error; err != nil {
				return err
			}
			cur.Status = model.PositionStatusClosed
			cur.ClosedAt = &closedAt
			log.Info("position fully consumed, closing")
		}

		result = &cur
		return nil
	})
	if err != nil {
		if errors.Is(err, model.ErrInsufficientQuantity) || errors.Is(err, model.ErrPositionAlreadyClosed) {
			log.WithError(err).Warn("SELL quantity rejected")
		} else {
			log.WithError(err).Error("failed to decrement position")
		}
		return nil, err
	}

	return result, nil
}

// FindByID fetches a single position by its primary ID.
// Returns (nil, nil) if the position is not found.
func (r *PositionRepository) FindByID(ctx context.Context, id uint) (*model.Position, error) {
	var position model.Position

	err := r.db.WithContext(ctx).First(&position, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("failed to fetch position")
		return nil, err
	}

	return &position, nil
}

// PositionSearchOptions filters Search. Nil fields are ignored.
type PositionSearchOptions struct {
	ExchangeAccountID *uint
	Symbol            *string
	Status            *string
	TradeMode         *string
	CreatedAfter      *time.Time
	CreatedBefore     *time.Time
	SortDesc          bool
	Limit             int
	Offset            int
}

// Search lists positions matching the given filters, newest first by default.
func (r *PositionRepository) Search(ctx context.Context, options PositionSearchOptions) ([]model.Position, error) {
	query := r.db.WithContext(ctx).Model(&model.Position{})

	if options.ExchangeAccountID != nil {
		query = query.Where("exchange_account_id = ?", *options.ExchangeAccountID)
	}
	if options.Symbol != nil {
		query = query.Where("symbol = ?", *options.Symbol)
	}
	if options.Status != nil {
		query = query.Where("status = ?", *options.Status)
	}
	if options.TradeMode != nil {
		query = query.Where("trade_mode = ?", *options.TradeMode)
	}
	if options.CreatedAfter != nil {
		query = query.Where("created_at >= ?", *options.CreatedAfter)
	}
	if options.CreatedBefore != nil {
		query = query.Where("created_at <= ?", *options.CreatedBefore)
	}

	order := "id ASC"
	if options.SortDesc {
		order = "id DESC"
	}
	query = query.Order(order)

	if options.Limit > 0 {
		query = query.Limit(options.Limit)
	}
	if options.Offset > 0 {
		query = query.Offset(options.Offset)
	}

	var positions []model.Position
	if err := query.Find(&positions).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "Search",
		}).WithError(err).Error("failed to search positions")
		return nil, err
	}

	return positions, nil
}

// FindOpenWithExitEnabled returns the OPEN positions the risk-exit evaluator
// has to look at on a tick: at least one exit type enabled and nothing
// triggered yet.
func (r *PositionRepository) FindOpenWithExitEnabled(ctx context.Context) ([]model.Position, error) {
	var positions []model.Position

	err := r.db.WithContext(ctx).
		Where("status = ?", model.PositionStatusOpen).
		Where("risk_sl_enabled OR risk_tp_enabled OR risk_sg_enabled OR risk_tsg_enabled").
		Where("NOT (risk_sl_triggered OR risk_tp_triggered OR risk_sg_triggered OR risk_tsg_triggered)").
		Order("id ASC").
		Find(&positions).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "FindOpenWithExitEnabled",
		}).WithError(err).Error("failed to list evaluable positions")
		return nil, err
	}

	return positions, nil
}

// BulkUpdateRiskConfig applies a validated partial risk-exit configuration to
// the given positions. Enabling TSG forces SG off and clears its thresholds.
func (r *PositionRepository) BulkUpdateRiskConfig(ctx context.Context, ids []uint, patch model.RiskConfigPatch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	updates := map[string]interface{}{}
	setBool := func(column string, v *bool) {
		if v != nil {
			updates[column] = *v
		}
	}
	setPct := func(column string, v *decimal.Decimal) {
		if v != nil {
			updates[column] = *v
		}
	}

	setBool("risk_sl_enabled", patch.SLEnabled)
	setPct("risk_sl_pct", patch.SLPct)
	setBool("risk_tp_enabled", patch.TPEnabled)
	setPct("risk_tp_pct", patch.TPPct)
	setBool("risk_sg_enabled", patch.SGEnabled)
	setPct("risk_sg_pct", patch.SGPct)
	setPct("risk_sg_drop_pct", patch.SGDropPct)
	setBool("risk_tsg_enabled", patch.TSGEnabled)
	setPct("risk_tsg_activation_pct", patch.TSGActivationPct)
	setPct("risk_tsg_drop_pct", patch.TSGDropPct)
	setBool("lock_sell_by_webhook", patch.LockSellByWebhook)

	if patch.TSGEnabled != nil && *patch.TSGEnabled {
		updates["risk_sg_enabled"] = false
		updates["risk_sg_pct"] = decimal.Zero
		updates["risk_sg_drop_pct"] = decimal.Zero
	}

	if len(updates) == 0 {
		return nil
	}

	err := r.db.WithContext(ctx).Model(&model.Position{}).
		Where("id IN ?", ids).
		Updates(updates).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":  "PositionRepository",
			"op":    "BulkUpdateRiskConfig",
			"count": len(ids),
		}).WithError(err).Error("failed to bulk update risk config")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":  "PositionRepository",
		"op":    "BulkUpdateRiskConfig",
		"count": len(ids),
	}).Info("risk config updated")

	return nil
}

// RiskStateUpdate carries the evaluator's state changes for one position.
// Flags only ever move to true; prices only move with their rule (peak up).
type RiskStateUpdate struct {
	SLTriggered  bool
	TPTriggered  bool
	SGActivated  bool
	SGTriggered  bool
	TSGActivated bool
	TSGTriggered bool

	SGActivationPrice *decimal.Decimal
	PeakPrice         *decimal.Decimal
}

// UpdateRiskState persists evaluator state transitions. Monotonic: a flag that
// is already true is never written back to false.
func (r *PositionRepository) UpdateRiskState(ctx context.Context, positionID uint, update RiskStateUpdate) error {
	updates := map[string]interface{}{}

	if update.SLTriggered {
		updates["risk_sl_triggered"] = true
	}
	if update.TPTriggered {
		updates["risk_tp_triggered"] = true
	}
	if update.SGActivated {
		updates["risk_sg_activated"] = true
	}
	if update.SGTriggered {
		updates["risk_sg_triggered"] = true
	}
	if update.TSGActivated {
		updates["risk_tsg_activated"] = true
	}
	if update.TSGTriggered {
		updates["risk_tsg_triggered"] = true
	}
	if update.SGActivationPrice != nil {
		updates["risk_sg_activation_price"] = *update.SGActivationPrice
	}
	if update.PeakPrice != nil {
		updates["risk_peak_price"] = *update.PeakPrice
	}

	if len(updates) == 0 {
		return nil
	}

	err := r.db.WithContext(ctx).Model(&model.Position{}).
		Where("id = ?", positionID).
		Updates(updates).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "PositionRepository",
			"op":          "UpdateRiskState",
			"position_id": positionID,
		}).WithError(err).Error("failed to persist risk state")
		return err
	}

	return nil
}

// DeleteVerifiedEmptyDuplicate removes a position only when nothing ever
// consumed it: full remaining quantity and no linked executions. Normal
// closing never deletes.
func (r *PositionRepository) DeleteVerifiedEmptyDuplicate(ctx context.Context, positionID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var position model.Position
		if err := withRowLock(tx).
			First(&position, positionID).Error; err != nil {
			return err
		}

		if !position.QtyRemaining.Equal(position.QtyTotal) {
			return model.ErrPositionNotEmpty
		}

		var linked int64
		if err := tx.Model(&model.Execution{}).
			Where("position_id = ?", positionID).
			Count(&linked).Error; err != nil {
			return err
		}
		if linked > 0 {
			return model.ErrPositionNotEmpty
		}

		logger.WithFields(map[string]interface{}{
			"repo":        "PositionRepository",
			"op":          "DeleteVerifiedEmptyDuplicate",
			"position_id": positionID,
		}).Warn("deleting verified-empty duplicate position")

		return tx.Delete(&model.Position{}, positionID).Error
	})
}
