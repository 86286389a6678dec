package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OperationStatusPending         = "PENDING"
	OperationStatusExecuting       = "EXECUTING"
	OperationStatusFilled          = "FILLED"
	OperationStatusPartiallyFilled = "PARTIALLY_FILLED"
	OperationStatusFailed          = "FAILED"
	OperationStatusCancelled       = "CANCELLED"
)

const (
	OperationSourceWebhook        = "WEBHOOK"
	OperationSourceRiskExit       = "RISK_EXIT"
	OperationSourceReconciliation = "RECONCILIATION"
	OperationSourceManual         = "MANUAL"
)

// Operation is one intended trading action (BUY or SELL) sent to an exchange.
// It produces zero or more Executions.
type Operation struct {
	ID                uint   `gorm:"primaryKey" json:"id"`
	ClientOrderID     string `gorm:"size:64;index" json:"client_order_id"`
	ExchangeAccountID uint   `gorm:"not null;index" json:"exchange_account_id"`

	Symbol string          `gorm:"size:50;not null" json:"symbol"`
	Side   string          `gorm:"size:10;not null" json:"side"`
	Qty    decimal.Decimal `gorm:"type:numeric(30,12);not null" json:"qty"`

	// PositionID is the SELL target; nil for BUY operations.
	PositionID *uint `gorm:"index" json:"position_id,omitempty"`

	Status string `gorm:"size:30;not null;default:PENDING;index" json:"status"`
	// Reason explains terminal non-success states and records what fired the
	// operation (e.g. "TSG" for a trailing stop gain exit).
	Reason string `gorm:"size:255" json:"reason,omitempty"`
	Source string `gorm:"size:30;not null" json:"source"`

	ExecutedAt *time.Time `json:"executed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (Operation) TableName() string {
	return "operations"
}
