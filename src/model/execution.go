package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Reasons a SELL execution can be recorded without a valid position link.
const (
	UnlinkReasonNoPositionID         = "NO_POSITION_ID"
	UnlinkReasonPositionClosed       = "POSITION_ALREADY_CLOSED"
	UnlinkReasonQtyExceedsRemaining  = "QTY_EXCEEDS_REMAINING"
	UnlinkReasonAwaitingManualSelect = "AWAITING_MANUAL_SELECT"
)

// Execution is one exchange fill, immutable once recorded. The unique index on
// (exchange_account_id, exchange_order_id) is the idempotency anchor for both
// live linking and reconciliation import.
type Execution struct {
	ID                uint   `gorm:"primaryKey" json:"id"`
	OperationID       *uint  `gorm:"index" json:"operation_id,omitempty"`
	ExchangeAccountID uint   `gorm:"not null;uniqueIndex:ux_executions_account_order,priority:1" json:"exchange_account_id"`
	ExchangeOrderID   string `gorm:"size:255;not null;uniqueIndex:ux_executions_account_order,priority:2" json:"exchange_order_id"`

	Symbol             string          `gorm:"size:50;not null" json:"symbol"`
	Side               string          `gorm:"size:10;not null" json:"side"`
	ExecutedQty        decimal.Decimal `gorm:"type:numeric(30,12);not null" json:"executed_qty"`
	AvgPrice           decimal.Decimal `gorm:"type:numeric(30,12);not null" json:"avg_price"`
	CumulativeQuoteQty decimal.Decimal `gorm:"type:numeric(30,12)" json:"cumulative_quote_qty"`
	FeeAmount          decimal.Decimal `gorm:"type:numeric(30,12)" json:"fee_amount"`
	FeeCurrency        string          `gorm:"size:20" json:"fee_currency"`
	StatusExchange     string          `gorm:"size:50" json:"status_exchange"`

	// PositionID is nil for a SELL until the fill is linked; UnlinkReason says why.
	PositionID   *uint  `gorm:"index" json:"position_id,omitempty"`
	UnlinkReason string `gorm:"size:50" json:"unlink_reason,omitempty"`

	// RealizedPnl is set when a SELL is linked, computed from the linked
	// position's price_open.
	RealizedPnl decimal.Decimal `gorm:"type:numeric(30,12)" json:"realized_pnl"`

	CreatedAt time.Time `json:"created_at"`
}

func (Execution) TableName() string {
	return "executions"
}

// Orphaned reports whether this is a SELL fill with no valid position link.
func (e *Execution) Orphaned() bool {
	return e.Side == SideSell && e.PositionID == nil
}
