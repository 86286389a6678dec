// Package confirmation delays or cancels webhook trade signals until the
// short-term price action confirms them.
package confirmation

import (
	"github.com/shopspring/decimal"

	"tradecore/src/model"
)

// Phase is the monitor's state machine phase.
type Phase string

const (
	PhaseMonitoring       Phase = "MONITORING"
	PhaseConfirmed        Phase = "CONFIRMED"
	PhaseCancelledTimeout Phase = "CANCELLED_TIMEOUT"
	PhaseCancelledAdverse Phase = "CANCELLED_ADVERSE"
)

// Config is the monitor's trigger configuration, snapshotted from the
// account's model.ConfirmationConfig when monitoring starts. Changing account
// defaults never mutates a running monitor.
type Config struct {
	CheckIntervalSec int

	LateralTolerancePct decimal.Decimal
	LateralCyclesMin    int

	TriggerPct       decimal.Decimal
	TriggerCyclesMin int

	MaxAdversePct        decimal.Decimal
	MaxMonitoringTimeMin int
}

// ConfigFromModel snapshots the persisted per-account row.
func ConfigFromModel(c *model.ConfirmationConfig) Config {
	return Config{
		CheckIntervalSec:     c.CheckIntervalSec,
		LateralTolerancePct:  c.LateralTolerancePct,
		LateralCyclesMin:     c.LateralCyclesMin,
		TriggerPct:           c.TriggerPct,
		TriggerCyclesMin:     c.TriggerCyclesMin,
		MaxAdversePct:        c.MaxAdversePct,
		MaxMonitoringTimeMin: c.MaxMonitoringTimeMin,
	}
}

// State is one pending signal's monitor state. Step is a pure function of
// (state, price): given the same price sequence and config the terminal phase
// and confirming tick are always the same.
type State struct {
	Side   string
	Config Config

	EntryPrice decimal.Decimal
	// Extreme is the running minimum for a BUY setup, running maximum for a
	// SELL setup.
	Extreme decimal.Decimal

	CyclesWithoutNewExtreme int
	TriggerStreak           int

	// Ticks counts processed prices including the entry tick.
	Ticks int
	Phase Phase
	// DecidedTick is the tick index at which a terminal phase was reached.
	DecidedTick int
}

// NewState starts monitoring at the signal's arrival price (tick 1).
func NewState(side string, config Config, entryPrice decimal.Decimal) State {
	return State{
		Side:       side,
		Config:     config,
		EntryPrice: entryPrice,
		Extreme:    entryPrice,
		Ticks:      1,
		Phase:      PhaseMonitoring,
	}
}

var hundred = decimal.NewFromInt(100)

// favorableMovePct is the percentage move from the extreme toward the
// favorable direction: up from the minimum for BUY, down from the maximum for
// SELL. Negative values mean the price sits beyond the recorded extreme.
func (s *State) favorableMovePct(price decimal.Decimal) decimal.Decimal {
	if s.Side == model.SideBuy {
		return price.Sub(s.Extreme).Div(s.Extreme).Mul(hundred)
	}
	return s.Extreme.Sub(price).Div(s.Extreme).Mul(hundred)
}

// adverseMovePct is the move against the favorable direction since monitoring
// started: a fall for BUY, a rise for SELL.
func (s *State) adverseMovePct(price decimal.Decimal) decimal.Decimal {
	if s.Side == model.SideBuy {
		return s.EntryPrice.Sub(price).Div(s.EntryPrice).Mul(hundred)
	}
	return price.Sub(s.EntryPrice).Div(s.EntryPrice).Mul(hundred)
}

func (s *State) moreExtreme(price decimal.Decimal) bool {
	if s.Side == model.SideBuy {
		return price.LessThan(s.Extreme)
	}
	return price.GreaterThan(s.Extreme)
}

// Step consumes one price tick. Terminal states are absorbing.
//
// Confirmation rules, checked in order:
//   - lateral exhaustion: LateralCyclesMin consecutive ticks without a new
//     extreme beyond LateralTolerancePct, meaning price stopped making
//     meaningful new extremes and it is safe to act;
//   - momentum: the favorable move from the extreme held at or above
//     TriggerPct for TriggerCyclesMin consecutive ticks.
//
// Cancellation rules:
//   - adverse: the move against the signal since entry exceeded MaxAdversePct;
//   - timeout: elapsed monitoring time (ticks x interval) exceeded
//     MaxMonitoringTimeMin.
func Step(s State, price decimal.Decimal) State {
	if s.Phase != PhaseMonitoring {
		return s
	}

	s.Ticks++

	if s.moreExtreme(price) {
		// Only an extreme that clears the lateral tolerance interrupts the
		// exhaustion count; a marginally lower low (or higher high) is still
		// lateral drift.
		significant := false
		if s.Side == model.SideBuy {
			drop := s.Extreme.Sub(price).Div(s.Extreme).Mul(hundred)
			significant = drop.GreaterThan(s.Config.LateralTolerancePct)
		} else {
			rise := price.Sub(s.Extreme).Div(s.Extreme).Mul(hundred)
			significant = rise.GreaterThan(s.Config.LateralTolerancePct)
		}

		s.Extreme = price
		s.TriggerStreak = 0
		if significant {
			s.CyclesWithoutNewExtreme = 0
		} else {
			s.CyclesWithoutNewExtreme++
		}
	} else {
		move := s.favorableMovePct(price)

		if move.GreaterThanOrEqual(s.Config.TriggerPct) {
			s.TriggerStreak++
		} else {
			s.TriggerStreak = 0
		}

		if move.LessThanOrEqual(s.Config.LateralTolerancePct) {
			s.CyclesWithoutNewExtreme++
		}
	}

	switch {
	case s.CyclesWithoutNewExtreme >= s.Config.LateralCyclesMin:
		s.Phase = PhaseConfirmed
		s.DecidedTick = s.Ticks

	case s.TriggerStreak >= s.Config.TriggerCyclesMin:
		s.Phase = PhaseConfirmed
		s.DecidedTick = s.Ticks

	case s.adverseMovePct(price).GreaterThan(s.Config.MaxAdversePct):
		s.Phase = PhaseCancelledAdverse
		s.DecidedTick = s.Ticks

	case s.elapsedSec() > s.Config.MaxMonitoringTimeMin*60:
		s.Phase = PhaseCancelledTimeout
		s.DecidedTick = s.Ticks
	}

	return s
}

// elapsedSec derives elapsed monitoring time from the tick count, keeping the
// machine independent of wall-clock time.
func (s *State) elapsedSec() int {
	return (s.Ticks - 1) * s.Config.CheckIntervalSec
}

// Terminal reports whether the monitor reached a final phase.
func (s *State) Terminal() bool {
	return s.Phase != PhaseMonitoring
}
