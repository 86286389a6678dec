package riskexit

import (
	"context"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradecore/src/connectors"
	"tradecore/src/model"
	"tradecore/src/repository"
)

// IntentSubmitter is the order-placement path the evaluator hands SELL
// intents to. The evaluator never awaits the resulting fill.
type IntentSubmitter interface {
	SubmitRiskExit(ctx context.Context, position *model.Position, trigger string) error
}

// Service runs the evaluator over every eligible open position on a scheduler
// tick.
type Service struct {
	positions *repository.PositionRepository
	feeds     map[string]connectors.PriceFeed
	submitter IntentSubmitter
}

// NewService wires one price feed per trade mode (REAL reads the live market,
// SIMULATION reads the paper feed).
func NewService(positions *repository.PositionRepository, realFeed, simFeed connectors.PriceFeed, submitter IntentSubmitter) *Service {
	return &Service{
		positions: positions,
		feeds: map[string]connectors.PriceFeed{
			model.TradeModeReal:       realFeed,
			model.TradeModeSimulation: simFeed,
		},
		submitter: submitter,
	}
}

// Tick evaluates every open position with at least one exit enabled. One
// position's failure never aborts the tick for the others; the first error is
// returned at the end for the scheduler's run statistics.
func (s *Service) Tick(ctx context.Context) error {
	positions, err := s.positions.FindOpenWithExitEnabled(ctx)
	if err != nil {
		return err
	}

	type priceKey struct {
		mode   string
		symbol string
	}
	priceCache := map[priceKey]decimal.Decimal{}

	var firstErr error
	fail := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	for i := range positions {
		position := &positions[i]

		log := logger.WithFields(map[string]interface{}{
			"component":   "RiskExitService",
			"position_id": position.ID,
			"symbol":      position.Symbol,
		})

		key := priceKey{mode: position.TradeMode, symbol: position.Symbol}
		price, ok := priceCache[key]
		if !ok {
			feed, found := s.feeds[position.TradeMode]
			if !found {
				log.Errorf("no price feed for trade mode %s", position.TradeMode)
				continue
			}
			var err error
			price, err = feed.Price(ctx, position.Symbol)
			if err != nil {
				log.WithError(err).Error("failed to fetch price, skipping position")
				fail(err)
				continue
			}
			priceCache[key] = price
		}

		decision, newState := Evaluate(position, price)

		metrics := ComputeMetrics(position, price)
		log.WithFields(map[string]interface{}{
			"price":              price,
			"tp_proximity_pct":   metrics.TPProximityPct,
			"sl_proximity_pct":   metrics.SLProximityPct,
			"distance_to_tp_pct": metrics.DistanceToTPPct,
		}).Debug("position evaluated")

		update := diffState(position.RiskExit, newState)
		if err := s.positions.UpdateRiskState(ctx, position.ID, update); err != nil {
			fail(err)
			continue
		}

		if decision.Trigger == TriggerNone {
			continue
		}

		// The triggered flag is already persisted, so a slow or failed order
		// placement cannot re-fire on the next tick.
		log.WithFields(map[string]interface{}{
			"trigger": decision.Trigger,
			"qty":     decision.SellQty,
		}).Info("exit triggered, submitting SELL")

		position.RiskExit = newState
		if err := s.submitter.SubmitRiskExit(ctx, position, string(decision.Trigger)); err != nil {
			log.WithError(err).Error("failed to submit exit SELL")
			fail(err)
		}
	}

	return firstErr
}

// diffState converts the evaluator's state transition into the monotonic
// repository update.
func diffState(prev, next model.RiskExitState) repository.RiskStateUpdate {
	update := repository.RiskStateUpdate{
		SLTriggered:  next.SLTriggered && !prev.SLTriggered,
		TPTriggered:  next.TPTriggered && !prev.TPTriggered,
		SGActivated:  next.SGActivated && !prev.SGActivated,
		SGTriggered:  next.SGTriggered && !prev.SGTriggered,
		TSGActivated: next.TSGActivated && !prev.TSGActivated,
		TSGTriggered: next.TSGTriggered && !prev.TSGTriggered,
	}
	if !next.SGActivationPrice.Equal(prev.SGActivationPrice) {
		price := next.SGActivationPrice
		update.SGActivationPrice = &price
	}
	if !next.PeakPrice.Equal(prev.PeakPrice) {
		price := next.PeakPrice
		update.PeakPrice = &price
	}
	return update
}
