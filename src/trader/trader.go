// Package trader is the single order-placement path: every trade intent
// (confirmed signal, risk exit, manual close) becomes an operation, an
// exchange order and, through the linker, a ledger mutation.
package trader

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradecore/src/confirmation"
	"tradecore/src/connectors"
	"tradecore/src/events"
	"tradecore/src/linker"
	"tradecore/src/model"
	"tradecore/src/repository"
)

// Intent is one intended trading action entering the placement path.
type Intent struct {
	AccountID  uint
	Symbol     string
	Side       string
	Qty        decimal.Decimal
	PositionID *uint
	Source     string
	Reason     string
}

type Trader struct {
	operations *repository.OperationRepository
	positions  *repository.PositionRepository
	accounts   *repository.AccountRepository
	clients    connectors.ClientProvider
	linker     *linker.Linker
	events     events.Publisher
}

func New(
	operations *repository.OperationRepository,
	positions *repository.PositionRepository,
	accounts *repository.AccountRepository,
	clients connectors.ClientProvider,
	lnk *linker.Linker,
	publisher events.Publisher,
) *Trader {
	return &Trader{
		operations: operations,
		positions:  positions,
		accounts:   accounts,
		clients:    clients,
		linker:     lnk,
		events:     publisher,
	}
}

// Execute runs one intent end to end: operation row, exchange order, fill
// application. The operation row carries the outcome either way.
func (t *Trader) Execute(ctx context.Context, intent Intent) (*linker.Result, error) {
	log := logger.WithFields(map[string]interface{}{
		"component":  "Trader",
		"account_id": intent.AccountID,
		"symbol":     intent.Symbol,
		"side":       intent.Side,
		"qty":        intent.Qty,
		"source":     intent.Source,
	})

	account, err := t.accounts.FindByID(ctx, intent.AccountID)
	if err != nil {
		return nil, err
	}
	if account == nil || !account.Enabled {
		return nil, fmt.Errorf("account %d not found or disabled", intent.AccountID)
	}

	operation := &model.Operation{
		ClientOrderID:     uuid.NewString(),
		ExchangeAccountID: intent.AccountID,
		Symbol:            intent.Symbol,
		Side:              intent.Side,
		Qty:               intent.Qty,
		PositionID:        intent.PositionID,
		Status:            model.OperationStatusPending,
		Reason:            intent.Reason,
		Source:            intent.Source,
	}
	if err := t.operations.Create(ctx, operation); err != nil {
		return nil, err
	}

	if intent.Side == model.SideSell && intent.PositionID != nil && intent.Source == model.OperationSourceWebhook {
		position, err := t.positions.FindByID(ctx, *intent.PositionID)
		if err != nil {
			return nil, err
		}
		if position != nil && position.LockSellByWebhook {
			log.Warn("position locked against webhook sells, cancelling operation")
			_ = t.operations.UpdateStatus(ctx, operation.ID, model.OperationStatusCancelled, "SELL_LOCKED_BY_WEBHOOK")
			t.publishCancelled(operation)
			return nil, nil
		}
	}

	client, err := t.clients.ClientForAccount(intent.AccountID)
	if err != nil {
		_ = t.operations.UpdateStatus(ctx, operation.ID, model.OperationStatusFailed, err.Error())
		return nil, err
	}

	if err := t.operations.UpdateStatus(ctx, operation.ID, model.OperationStatusExecuting, ""); err != nil {
		return nil, err
	}

	fill, err := client.PlaceOrder(ctx, intent.Symbol, intent.Side, intent.Qty, operation.ClientOrderID)
	if err != nil {
		log.WithError(err).Error("order placement failed")
		_ = t.operations.UpdateStatus(ctx, operation.ID, model.OperationStatusFailed, err.Error())
		t.publishCancelled(operation)
		return nil, err
	}

	result, err := t.linker.ApplyFill(ctx, account, *fill, &operation.ID, intent.PositionID)
	if err != nil {
		// The fill happened on the exchange; reconciliation will find it.
		log.WithError(err).Error("failed to apply fill, leaving operation executing for reconciliation")
		return nil, err
	}

	status := model.OperationStatusFilled
	if fill.ExecutedQty.LessThan(intent.Qty) {
		status = model.OperationStatusPartiallyFilled
	}
	if err := t.operations.UpdateStatus(ctx, operation.ID, status, intent.Reason); err != nil {
		return nil, err
	}

	log.WithFields(map[string]interface{}{
		"operation_id":      operation.ID,
		"exchange_order_id": fill.ExchangeOrderID,
		"status":            status,
	}).Info("intent executed")

	return result, nil
}

// SubmitRiskExit implements riskexit.IntentSubmitter: sell the full remaining
// quantity of a position, attributed to the trigger that fired.
func (t *Trader) SubmitRiskExit(ctx context.Context, position *model.Position, trigger string) error {
	_, err := t.Execute(ctx, Intent{
		AccountID:  position.ExchangeAccountID,
		Symbol:     position.Symbol,
		Side:       model.SideSell,
		Qty:        position.QtyRemaining,
		PositionID: &position.ID,
		Source:     model.OperationSourceRiskExit,
		Reason:     trigger,
	})
	return err
}

// SubmitConfirmedSignal implements confirmation.ConfirmedSubmitter.
func (t *Trader) SubmitConfirmedSignal(ctx context.Context, signal confirmation.Signal) error {
	_, err := t.Execute(ctx, Intent{
		AccountID:  signal.AccountID,
		Symbol:     signal.Symbol,
		Side:       signal.Side,
		Qty:        signal.Qty,
		PositionID: signal.PositionID,
		Source:     model.OperationSourceWebhook,
	})
	return err
}

func (t *Trader) publishCancelled(operation *model.Operation) {
	if t.events == nil {
		return
	}
	t.events.Publish(events.EventOrderCancelled, operation)
}
