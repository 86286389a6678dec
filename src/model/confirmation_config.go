package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConfirmationConfig is the per-account trigger configuration for the
// price-action confirmation engine. One row per (account, side): the BUY row
// confirms on a rise, the SELL row confirms on a fall; the fields are
// symmetric.
type ConfirmationConfig struct {
	ID                uint   `gorm:"primaryKey" json:"id"`
	ExchangeAccountID uint   `gorm:"not null;index:ux_confirmation_account_side,unique,priority:1" json:"exchange_account_id"`
	Side              string `gorm:"size:10;not null;index:ux_confirmation_account_side,unique,priority:2" json:"side"`

	CheckIntervalSec int `gorm:"not null;default:10" json:"check_interval_sec"`

	LateralTolerancePct decimal.Decimal `gorm:"type:numeric(10,4)" json:"lateral_tolerance_pct"`
	LateralCyclesMin    int             `gorm:"not null;default:3" json:"lateral_cycles_min"`

	// TriggerPct is the favorable move from the running extreme that confirms
	// momentum; it must persist for TriggerCyclesMin consecutive ticks.
	TriggerPct       decimal.Decimal `gorm:"type:numeric(10,4)" json:"trigger_pct"`
	TriggerCyclesMin int             `gorm:"not null;default:2" json:"trigger_cycles_min"`

	// MaxAdversePct cancels the signal when the move against the favorable
	// direction since monitoring started exceeds it.
	MaxAdversePct decimal.Decimal `gorm:"type:numeric(10,4)" json:"max_adverse_pct"`

	MaxMonitoringTimeMin      int `gorm:"not null;default:30" json:"max_monitoring_time_min"`
	CooldownAfterExecutionMin int `gorm:"not null;default:15" json:"cooldown_after_execution_min"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ConfirmationConfig) TableName() string {
	return "confirmation_configs"
}

// Validate rejects configurations the state machine cannot make progress with.
func (c ConfirmationConfig) Validate() error {
	if c.Side != SideBuy && c.Side != SideSell {
		return ErrInvalidRiskConfig
	}
	if c.CheckIntervalSec <= 0 || c.LateralCyclesMin <= 0 || c.TriggerCyclesMin <= 0 || c.MaxMonitoringTimeMin <= 0 {
		return ErrInvalidRiskConfig
	}
	for _, pct := range []decimal.Decimal{c.LateralTolerancePct, c.TriggerPct, c.MaxAdversePct} {
		if pct.LessThanOrEqual(decimal.Zero) {
			return ErrInvalidRiskConfig
		}
	}
	return nil
}
