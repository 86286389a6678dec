// Package engine boots the full trading engine: database, exchange clients,
// risk-exit and confirmation tickers, reconciliation, events and the HTTP API.
package engine

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"

	"tradecore/src/confirmation"
	"tradecore/src/connectors"
	"tradecore/src/database"
	"tradecore/src/events"
	"tradecore/src/linker"
	"tradecore/src/model"
	"tradecore/src/reconciliation"
	"tradecore/src/repository"
	"tradecore/src/riskexit"
	"tradecore/src/scheduler"
	"tradecore/src/server"
	"tradecore/src/trader"
)

type Engine struct{}

// Start wires every component and blocks serving HTTP until shutdown.
func (e *Engine) Start() error {
	config := GetConfig()

	if err := database.InitMainDB(); err != nil {
		return err
	}

	positions := repository.NewPositionRepository()
	executions := repository.NewExecutionRepository()
	operations := repository.NewOperationRepository()
	accounts := repository.NewAccountRepository()

	hub := events.NewHub()

	realFeed := connectors.NewBinancePriceFeed()
	simFeed := connectors.NewStaticPriceFeed()
	clients := connectors.NewAccountClientProvider(accounts, realFeed)

	lnk := linker.New(hub)
	trd := trader.New(operations, positions, accounts, clients, lnk, hub)

	riskService := riskexit.NewService(positions, realFeed, simFeed, trd)
	confirmEngine := confirmation.NewEngine(realFeed, simFeed, trd)
	reconcile := reconciliation.NewService(database.MainDB, positions, executions, operations, accounts, clients, lnk)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := scheduler.NewRegistry()
	mustRegister(registry, "risk-exit-tick", time.Duration(config.RiskTickSec)*time.Second, riskService.Tick)
	mustRegister(registry, "confirmation-tick", time.Duration(config.ConfirmTickSec)*time.Second, confirmEngine.Tick)
	mustRegister(registry, "fill-poll", time.Duration(config.FillPollSec)*time.Second,
		fillPollJob(accounts, positions, clients, lnk, time.Duration(config.FillPollLookbackMin)*time.Minute))
	registry.Start(ctx)

	server.StartServer(ctx, server.GetConfig(), server.Dependencies{
		Engine:         confirmEngine,
		Reconciliation: reconcile,
		Scheduler:      registry,
		Hub:            hub,
	})

	cancel()
	registry.Wait()
	return nil
}

func mustRegister(registry *scheduler.Registry, name string, interval time.Duration, fn scheduler.JobFunc) {
	if err := registry.Register(name, interval, fn); err != nil {
		logger.WithError(err).Fatalf("failed to register job %s", name)
	}
}

// fillPollJob is the safety net behind the synchronous trading path: it
// replays recent exchange fills for every symbol with an open position, so a
// fill the engine missed still reaches the ledger. Replays are idempotent.
func fillPollJob(
	accounts *repository.AccountRepository,
	positions *repository.PositionRepository,
	clients *connectors.AccountClientProvider,
	lnk *linker.Linker,
	lookback time.Duration,
) scheduler.JobFunc {
	return func(ctx context.Context) error {
		enabled, err := accounts.FindEnabled(ctx)
		if err != nil {
			return err
		}

		var firstErr error
		for i := range enabled {
			account := &enabled[i]

			status := model.PositionStatusOpen
			open, err := positions.Search(ctx, repository.PositionSearchOptions{
				ExchangeAccountID: &account.ID,
				Status:            &status,
			})
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}

			symbols := map[string]bool{}
			for _, position := range open {
				symbols[position.Symbol] = true
			}
			if len(symbols) == 0 {
				continue
			}

			client, err := clients.ClientForAccount(account.ID)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}

			to := time.Now()
			from := to.Add(-lookback)
			for symbol := range symbols {
				fills, err := client.FetchFills(ctx, symbol, from, to)
				if err != nil {
					logger.WithFields(map[string]interface{}{
						"job":        "fill-poll",
						"account_id": account.ID,
						"symbol":     symbol,
					}).WithError(err).Error("failed to fetch fills")
					if firstErr == nil {
						firstErr = err
					}
					continue
				}

				for _, fill := range fills {
					if _, err := lnk.ApplyFill(ctx, account, fill, nil, nil); err != nil && firstErr == nil {
						firstErr = err
					}
				}
			}
		}
		return firstErr
	}
}
