package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PositionStatusOpen   = "OPEN"
	PositionStatusClosed = "CLOSED"
)

const (
	TradeModeReal       = "REAL"
	TradeModeSimulation = "SIMULATION"
)

// Position is one directional long holding of a symbol on one exchange account,
// opened by BUY fills and reduced by linked SELL fills.
type Position struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	ExchangeAccountID uint            `gorm:"not null;index:idx_positions_account_symbol,priority:1" json:"exchange_account_id"`
	Symbol            string          `gorm:"size:50;not null;index:idx_positions_account_symbol,priority:2" json:"symbol"`
	TradeMode         string          `gorm:"size:20;not null;default:REAL" json:"trade_mode"`
	PriceOpen         decimal.Decimal `gorm:"type:numeric(30,12);not null" json:"price_open"`
	QtyTotal          decimal.Decimal `gorm:"type:numeric(30,12);not null" json:"qty_total"`
	QtyRemaining      decimal.Decimal `gorm:"type:numeric(30,12);not null" json:"qty_remaining"`
	Status            string          `gorm:"size:20;not null;default:OPEN;index" json:"status"`
	LockSellByWebhook bool            `json:"lock_sell_by_webhook"`

	// LastGroupedAt moves forward on every BUY fill merged into this position.
	// The grouping window is measured against it, not against CreatedAt.
	LastGroupedAt time.Time  `gorm:"not null" json:"last_grouped_at"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`

	RiskExit RiskExitState `gorm:"embedded;embeddedPrefix:risk_" json:"risk_exit"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Position) TableName() string {
	return "positions"
}

// RiskExitState carries the per-position automated exit configuration plus the
// evaluator's runtime state. The boolean flags are monotonic: once set they are
// never cleared while the position stays open.
type RiskExitState struct {
	SLEnabled bool            `json:"sl_enabled"`
	SLPct     decimal.Decimal `gorm:"type:numeric(10,4)" json:"sl_pct"`

	TPEnabled bool            `json:"tp_enabled"`
	TPPct     decimal.Decimal `gorm:"type:numeric(10,4)" json:"tp_pct"`

	SGEnabled bool            `json:"sg_enabled"`
	SGPct     decimal.Decimal `gorm:"type:numeric(10,4)" json:"sg_pct"`
	SGDropPct decimal.Decimal `gorm:"type:numeric(10,4)" json:"sg_drop_pct"`

	TSGEnabled       bool            `json:"tsg_enabled"`
	TSGActivationPct decimal.Decimal `gorm:"type:numeric(10,4)" json:"tsg_activation_pct"`
	TSGDropPct       decimal.Decimal `gorm:"type:numeric(10,4)" json:"tsg_drop_pct"`

	// Runtime state.
	SLTriggered  bool `json:"sl_triggered"`
	TPTriggered  bool `json:"tp_triggered"`
	SGActivated  bool `json:"sg_activated"`
	SGTriggered  bool `json:"sg_triggered"`
	TSGActivated bool `json:"tsg_activated"`
	TSGTriggered bool `json:"tsg_triggered"`

	// SGActivationPrice is the fixed drop reference recorded when SG activates.
	// PeakPrice is the highest price seen since TSG activation.
	SGActivationPrice decimal.Decimal `gorm:"type:numeric(30,12)" json:"sg_activation_price"`
	PeakPrice         decimal.Decimal `gorm:"type:numeric(30,12)" json:"peak_price"`
}

// AnyExitEnabled reports whether the risk-exit evaluator has anything to do
// for this position.
func (s RiskExitState) AnyExitEnabled() bool {
	return s.SLEnabled || s.TPEnabled || s.SGEnabled || s.TSGEnabled
}

// Triggered reports whether any exit already fired a SELL for this position.
func (s RiskExitState) Triggered() bool {
	return s.SLTriggered || s.TPTriggered || s.SGTriggered || s.TSGTriggered
}

// RiskConfigPatch is a partial update applied to the risk-exit configuration of
// one or more positions. Nil fields are left untouched.
type RiskConfigPatch struct {
	SLEnabled *bool            `json:"sl_enabled,omitempty"`
	SLPct     *decimal.Decimal `json:"sl_pct,omitempty"`

	TPEnabled *bool            `json:"tp_enabled,omitempty"`
	TPPct     *decimal.Decimal `json:"tp_pct,omitempty"`

	SGEnabled *bool            `json:"sg_enabled,omitempty"`
	SGPct     *decimal.Decimal `json:"sg_pct,omitempty"`
	SGDropPct *decimal.Decimal `json:"sg_drop_pct,omitempty"`

	TSGEnabled       *bool            `json:"tsg_enabled,omitempty"`
	TSGActivationPct *decimal.Decimal `json:"tsg_activation_pct,omitempty"`
	TSGDropPct       *decimal.Decimal `json:"tsg_drop_pct,omitempty"`

	LockSellByWebhook *bool `json:"lock_sell_by_webhook,omitempty"`
}

// Validate rejects configurations that would be ambiguous at evaluation time.
// Enabling TSG and SG together is not allowed; when TSG is enabled the store
// clears SG instead (see PositionRepository.BulkUpdateRiskConfig).
func (p RiskConfigPatch) Validate() error {
	enabledSG := p.SGEnabled != nil && *p.SGEnabled
	enabledTSG := p.TSGEnabled != nil && *p.TSGEnabled
	if enabledSG && enabledTSG {
		return ErrInvalidRiskConfig
	}

	for _, pct := range []*decimal.Decimal{p.SLPct, p.TPPct, p.SGPct, p.SGDropPct, p.TSGActivationPct, p.TSGDropPct} {
		if pct != nil && pct.LessThanOrEqual(decimal.Zero) {
			return ErrInvalidRiskConfig
		}
	}
	return nil
}
