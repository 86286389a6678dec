// Package linker turns raw exchange fills into persisted executions and the
// position mutations they imply.
package linker

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradecore/src/connectors"
	"tradecore/src/database"
	"tradecore/src/events"
	"tradecore/src/model"
	"tradecore/src/repository"
)

// Linker applies exchange fills to the position ledger. A BUY fill opens or
// grows a position; a SELL fill decrements its target position or is recorded
// orphaned with a reason code for reconciliation to pick up.
type Linker struct {
	db     *gorm.DB
	events events.Publisher
}

// New creates a linker on the main database.
func New(publisher events.Publisher) *Linker {
	return &Linker{db: database.MainDB, events: publisher}
}

// WithDB allows overriding the underlying *gorm.DB instance for tests.
func (l *Linker) WithDB(db *gorm.DB) *Linker {
	return &Linker{db: db, events: l.events}
}

// Result reports what a fill did to the ledger.
type Result struct {
	Execution *model.Execution
	Position  *model.Position
	// Duplicate is true when the fill's exchange order id was already
	// recorded; nothing was mutated.
	Duplicate bool
}

// ApplyFill records one fill idempotently. targetPositionID carries the SELL
// target from the normal trading path; reconciliation imports pass their
// operator-selected position the same way. operationID ties the execution back
// to the operation that produced it, when there is one.
//
// The execution insert and the position mutation commit in one transaction:
// a fill is either fully applied or not recorded at all. The unique index on
// (exchange_account_id, exchange_order_id) is the idempotency anchor, so two
// concurrent applies of the same fill commit the position mutation exactly
// once; the loser's transaction rolls back and reports Duplicate.
func (l *Linker) ApplyFill(
	ctx context.Context,
	account *model.ExchangeAccount,
	fill connectors.Fill,
	operationID *uint,
	targetPositionID *uint,
) (*Result, error) {

	log := logger.WithFields(map[string]interface{}{
		"component":         "Linker",
		"account_id":        account.ID,
		"exchange_order_id": fill.ExchangeOrderID,
		"symbol":            fill.Symbol,
		"side":              fill.Side,
		"qty":               fill.ExecutedQty,
	})

	executions := repository.NewExecutionRepository().WithDB(l.db)

	// Fast path only: a read here can always go stale before the insert
	// below, it just skips the mutation work on the common replay.
	existing, err := executions.FindByExchangeOrderID(ctx, account.ID, fill.ExchangeOrderID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		log.Debug("fill already recorded, idempotent no-op")
		return &Result{Execution: existing, Duplicate: true}, nil
	}

	var result Result
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return l.applyFillTx(ctx, tx, account, fill, operationID, targetPositionID, &result, log)
	})
	if errors.Is(err, model.ErrDuplicateExchangeOrder) {
		// A concurrent apply of the same fill committed first; the unique
		// index rolled this transaction's position mutation back.
		committed, findErr := executions.FindByExchangeOrderID(ctx, account.ID, fill.ExchangeOrderID)
		if findErr != nil {
			return nil, findErr
		}
		if committed == nil {
			return nil, err
		}
		log.Debug("fill applied concurrently, idempotent no-op")
		return &Result{Execution: committed, Duplicate: true}, nil
	}
	if err != nil {
		log.WithError(err).Error("failed to apply fill")
		return nil, err
	}

	l.publish(&result)
	return &result, nil
}

func (l *Linker) applyFillTx(
	ctx context.Context,
	tx *gorm.DB,
	account *model.ExchangeAccount,
	fill connectors.Fill,
	operationID *uint,
	targetPositionID *uint,
	result *Result,
	log *logger.Entry,
) error {
	executions := repository.NewExecutionRepository().WithDB(tx)
	positions := repository.NewPositionRepository().WithDB(tx)

	execution := &model.Execution{
		OperationID:        operationID,
		ExchangeAccountID:  account.ID,
		ExchangeOrderID:    fill.ExchangeOrderID,
		Symbol:             fill.Symbol,
		Side:               fill.Side,
		ExecutedQty:        fill.ExecutedQty,
		AvgPrice:           fill.AvgPrice,
		CumulativeQuoteQty: fill.CumulativeQuoteQty,
		FeeAmount:          fill.FeeAmount,
		FeeCurrency:        fill.FeeCurrency,
		StatusExchange:     fill.Status,
	}

	switch fill.Side {
	case model.SideBuy:
		position, err := positions.OpenOrGroup(ctx, account, fill.Symbol, fill.ExecutedQty, fill.AvgPrice)
		if err != nil {
			return err
		}
		execution.PositionID = &position.ID
		result.Position = position

	case model.SideSell:
		if targetPositionID == nil {
			execution.UnlinkReason = model.UnlinkReasonNoPositionID
			log.Warn("SELL fill without target position, recording orphaned")
			break
		}

		position, err := positions.DecrementRemaining(ctx, *targetPositionID, fill.ExecutedQty)
		switch {
		case err == nil:
			execution.PositionID = &position.ID
			execution.RealizedPnl = fill.AvgPrice.Sub(position.PriceOpen).Mul(fill.ExecutedQty)
			result.Position = position
		case errors.Is(err, model.ErrPositionAlreadyClosed):
			execution.UnlinkReason = model.UnlinkReasonPositionClosed
			log.Warn("SELL fill for closed position, recording orphaned")
		case errors.Is(err, model.ErrInsufficientQuantity):
			execution.UnlinkReason = model.UnlinkReasonQtyExceedsRemaining
			log.Warn("SELL fill exceeds remaining quantity, recording orphaned")
		default:
			return err
		}

	default:
		log.Errorf("unknown fill side %q", fill.Side)
	}

	if err := executions.Create(ctx, execution); err != nil {
		return err
	}
	result.Execution = execution
	return nil
}

// RealizedPnlAgainst computes the P&L a SELL execution realizes against a
// given open price. Reconciliation uses it when force-linking to an
// alternative position.
func RealizedPnlAgainst(execution *model.Execution, priceOpen decimal.Decimal) decimal.Decimal {
	return execution.AvgPrice.Sub(priceOpen).Mul(execution.ExecutedQty)
}

func (l *Linker) publish(result *Result) {
	if l.events == nil {
		return
	}

	l.events.Publish(events.EventOrderFilled, result.Execution)
	if result.Position == nil {
		return
	}
	if result.Position.Status == model.PositionStatusClosed {
		l.events.Publish(events.EventPositionClosed, result.Position)
		return
	}
	l.events.Publish(events.EventPositionUpdated, result.Position)
}
