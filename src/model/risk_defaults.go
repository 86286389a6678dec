package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskExitDefaults holds the per-account default SL/TP/SG/TSG configuration
// applied to new positions. One row per (account, side).
type RiskExitDefaults struct {
	ID                uint   `gorm:"primaryKey" json:"id"`
	ExchangeAccountID uint   `gorm:"not null;index:ux_risk_defaults_account_side,unique,priority:1" json:"exchange_account_id"`
	Side              string `gorm:"size:10;not null;index:ux_risk_defaults_account_side,unique,priority:2" json:"side"`

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

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (RiskExitDefaults) TableName() string {
	return "risk_exit_defaults"
}

// Validate applies the same constraints as RiskConfigPatch: TSG and SG are
// mutually exclusive, enabled thresholds must be positive.
func (d RiskExitDefaults) Validate() error {
	if d.SGEnabled && d.TSGEnabled {
		return ErrInvalidRiskConfig
	}

	checks := []struct {
		enabled bool
		pcts    []decimal.Decimal
	}{
		{d.SLEnabled, []decimal.Decimal{d.SLPct}},
		{d.TPEnabled, []decimal.Decimal{d.TPPct}},
		{d.SGEnabled, []decimal.Decimal{d.SGPct, d.SGDropPct}},
		{d.TSGEnabled, []decimal.Decimal{d.TSGActivationPct, d.TSGDropPct}},
	}
	for _, c := range checks {
		if !c.enabled {
			continue
		}
		for _, pct := range c.pcts {
			if pct.LessThanOrEqual(decimal.Zero) {
				return ErrInvalidRiskConfig
			}
		}
	}
	return nil
}

// ApplyTo copies the defaults onto a fresh position's risk-exit state.
func (d RiskExitDefaults) ApplyTo(s *RiskExitState) {
	s.SLEnabled = d.SLEnabled
	s.SLPct = d.SLPct
	s.TPEnabled = d.TPEnabled
	s.TPPct = d.TPPct
	s.SGEnabled = d.SGEnabled
	s.SGPct = d.SGPct
	s.SGDropPct = d.SGDropPct
	s.TSGEnabled = d.TSGEnabled
	s.TSGActivationPct = d.TSGActivationPct
	s.TSGDropPct = d.TSGDropPct
}
