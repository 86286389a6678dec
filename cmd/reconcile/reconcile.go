// Package reconcile runs a one-shot reconciliation sweep from the command
// line and prints the reports as JSON.
package reconcile

import (
	"context"
	"encoding/json"
	"os"
	"time"

	logger "github.com/sirupsen/logrus"

	"tradecore/src/connectors"
	"tradecore/src/database"
	"tradecore/src/events"
	"tradecore/src/linker"
	"tradecore/src/reconciliation"
	"tradecore/src/repository"
)

type Reconcile struct{}

func (r *Reconcile) Start() error {
	config := GetConfig()

	if err := database.InitMainDB(); err != nil {
		return err
	}

	accounts := repository.NewAccountRepository()
	feed := connectors.NewBinancePriceFeed()
	clients := connectors.NewAccountClientProvider(accounts, feed)

	service := reconciliation.NewService(
		database.MainDB,
		repository.NewPositionRepository(),
		repository.NewExecutionRepository(),
		repository.NewOperationRepository(),
		accounts,
		clients,
		linker.New(events.NoopPublisher{}),
	)

	ctx := context.Background()
	to := time.Now().Truncate(time.Minute)
	from := to.Add(-time.Duration(config.WindowHours) * time.Hour)

	missing, err := service.DetectMissingOrders(ctx, config.AccountID, config.Symbol, from, to)
	if err != nil {
		return err
	}

	orphans, err := service.DetectOrphanedExecutions(ctx)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(missing); err != nil {
		return err
	}
	if err := encoder.Encode(orphans); err != nil {
		return err
	}

	logger.WithFields(map[string]interface{}{
		"missing_buys":  len(missing.Buys),
		"missing_sells": len(missing.Sells),
		"orphans":       len(orphans),
	}).Info("reconciliation sweep finished")

	return nil
}
