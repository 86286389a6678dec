// Package riskexit implements the per-position SL/TP/SG/TSG exit state
// machine driven by price ticks.
package riskexit

import (
	"github.com/shopspring/decimal"

	"tradecore/src/model"
)

// Trigger identifies which exit rule fired a SELL.
type Trigger string

const (
	TriggerNone Trigger = ""
	TriggerSL   Trigger = "SL"
	TriggerTP   Trigger = "TP"
	TriggerSG   Trigger = "SG"
	TriggerTSG  Trigger = "TSG"
)

// Decision is the outcome of one evaluation tick: either nothing, or a SELL
// of the position's full remaining quantity attributed to one trigger.
type Decision struct {
	Trigger Trigger
	SellQty decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// movePct is the percentage move of price from the position's open price.
func movePct(priceOpen, price decimal.Decimal) decimal.Decimal {
	return price.Sub(priceOpen).Div(priceOpen).Mul(hundred)
}

// Evaluate applies one price tick to a position's exit state and returns the
// decision plus the updated state. It is a pure function: persistence and
// order placement belong to the caller.
//
// Rules, in evaluation order:
//  1. Stop loss on a drop of sl_pct from price_open.
//  2. Take profit on a rise of tp_pct. When TSG is also enabled both are
//     checked every tick and the first to be true wins, TP taking the tick
//     when they land together.
//  3. Stop gain: arms at sg_pct above open, sells on a drop of sg_drop_pct
//     from the price recorded at activation (fixed reference).
//  4. Trailing stop gain: arms at tsg_activation_pct above open, tracks the
//     peak price since activation, sells on a drop of tsg_drop_pct from the
//     peak.
//
// All flag transitions are monotonic; once any trigger fired, later ticks are
// no-ops until the closing fill ends evaluation.
func Evaluate(position *model.Position, price decimal.Decimal) (Decision, model.RiskExitState) {
	s := position.RiskExit

	if !s.AnyExitEnabled() || s.Triggered() {
		return Decision{Trigger: TriggerNone}, s
	}

	move := movePct(position.PriceOpen, price)
	sell := func(t Trigger) (Decision, model.RiskExitState) {
		return Decision{Trigger: t, SellQty: position.QtyRemaining}, s
	}

	if s.SLEnabled && move.Neg().GreaterThanOrEqual(s.SLPct) {
		s.SLTriggered = true
		return sell(TriggerSL)
	}

	// TSG activation and peak tracking happen on this tick, before the TP/TSG
	// race is decided.
	if s.TSGEnabled {
		if !s.TSGActivated {
			if move.GreaterThanOrEqual(s.TSGActivationPct) {
				s.TSGActivated = true
				s.PeakPrice = price
			}
		} else if price.GreaterThan(s.PeakPrice) {
			s.PeakPrice = price
		}
	}

	if s.TPEnabled && move.GreaterThanOrEqual(s.TPPct) {
		s.TPTriggered = true
		return sell(TriggerTP)
	}

	if s.SGEnabled {
		if !s.SGActivated {
			if move.GreaterThanOrEqual(s.SGPct) {
				s.SGActivated = true
				s.SGActivationPrice = price
			}
		} else {
			drop := s.SGActivationPrice.Sub(price).Div(s.SGActivationPrice).Mul(hundred)
			if drop.GreaterThanOrEqual(s.SGDropPct) {
				s.SGTriggered = true
				return sell(TriggerSG)
			}
		}
	}

	if s.TSGEnabled && s.TSGActivated {
		drop := s.PeakPrice.Sub(price).Div(s.PeakPrice).Mul(hundred)
		if drop.GreaterThanOrEqual(s.TSGDropPct) {
			s.TSGTriggered = true
			return sell(TriggerTSG)
		}
	}

	return Decision{Trigger: TriggerNone}, s
}

// Metrics are the observability numbers exposed per evaluated position.
type Metrics struct {
	TPProximityPct  decimal.Decimal `json:"tp_proximity_pct"`
	SLProximityPct  decimal.Decimal `json:"sl_proximity_pct"`
	DistanceToTPPct decimal.Decimal `json:"distance_to_tp_pct"`
}

// ComputeMetrics reports how close the position is to its TP and SL
// thresholds at the given price.
func ComputeMetrics(position *model.Position, price decimal.Decimal) Metrics {
	s := position.RiskExit
	move := movePct(position.PriceOpen, price)

	var m Metrics
	if s.TPEnabled && s.TPPct.IsPositive() {
		proximity := move.Div(s.TPPct).Mul(hundred)
		if proximity.GreaterThan(hundred) {
			proximity = hundred
		}
		m.TPProximityPct = proximity

		distance := s.TPPct.Sub(move)
		if distance.IsNegative() {
			distance = decimal.Zero
		}
		m.DistanceToTPPct = distance
	}
	if s.SLEnabled && s.SLPct.IsPositive() {
		proximity := move.Neg().Div(s.SLPct).Mul(hundred)
		if proximity.GreaterThan(hundred) {
			proximity = hundred
		}
		m.SLProximityPct = proximity
	}
	return m
}
