package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradecore/src/confirmation"
	"tradecore/src/model"
	"tradecore/src/repository"
)

type signalStarter interface {
	StartMonitor(ctx context.Context, signal confirmation.Signal, config *model.ConfirmationConfig) error
}

type accountConfigReader interface {
	FindByID(ctx context.Context, id uint) (*model.ExchangeAccount, error)
	GetConfirmationConfig(ctx context.Context, accountID uint, side string) (*model.ConfirmationConfig, error)
}

type webhookSignalRequest struct {
	AccountID  uint            `json:"account_id"`
	Symbol     string          `json:"symbol"`
	Side       string          `json:"side"`
	Qty        decimal.Decimal `json:"qty"`
	PositionID *uint           `json:"position_id,omitempty"`
}

// WebhookSignalHandler receives trading signals and hands them to the
// confirmation engine. Signals never place orders directly; the monitor
// decides after watching the price action.
func WebhookSignalHandler(engine signalStarter, accounts accountConfigReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var request webhookSignalRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}

		if request.Symbol == "" || request.AccountID == 0 {
			http.Error(w, "account_id and symbol are required", http.StatusBadRequest)
			return
		}
		if request.Side != model.SideBuy && request.Side != model.SideSell {
			http.Error(w, "side must be BUY or SELL", http.StatusBadRequest)
			return
		}
		if request.Qty.LessThanOrEqual(decimal.Zero) {
			http.Error(w, "qty must be positive", http.StatusBadRequest)
			return
		}

		log := logger.WithFields(map[string]interface{}{
			"handler":    "WebhookSignal",
			"account_id": request.AccountID,
			"symbol":     request.Symbol,
			"side":       request.Side,
		})

		account, err := accounts.FindByID(r.Context(), request.AccountID)
		if err != nil {
			log.WithError(err).Error("failed to fetch account")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if account == nil || !account.Enabled {
			http.Error(w, "account not found or disabled", http.StatusUnprocessableEntity)
			return
		}

		config, err := accounts.GetConfirmationConfig(r.Context(), request.AccountID, request.Side)
		if err != nil {
			log.WithError(err).Error("failed to fetch confirmation config")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if config == nil {
			http.Error(w, "no confirmation config for this account and side", http.StatusUnprocessableEntity)
			return
		}

		signal := confirmation.Signal{
			AccountID:  request.AccountID,
			TradeMode:  account.TradeMode,
			Symbol:     request.Symbol,
			Side:       request.Side,
			Qty:        request.Qty,
			PositionID: request.PositionID,
		}

		err = engine.StartMonitor(r.Context(), signal, config)
		switch {
		case err == nil:
			w.WriteHeader(http.StatusAccepted)
		case errors.Is(err, model.ErrMonitorActive):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, model.ErrCooldownActive):
			http.Error(w, err.Error(), http.StatusTooManyRequests)
		case errors.Is(err, model.ErrInvalidRiskConfig):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			log.WithError(err).Error("failed to start signal monitor")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
	}
}

type monitorLister interface {
	Active() []confirmation.MonitorView
	Abort(accountID uint, symbol, side string) bool
}

// ListMonitorsHandler lists the running signal monitors.
func ListMonitorsHandler(engine monitorLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, engine.Active())
	}
}

type abortMonitorRequest struct {
	AccountID uint   `json:"account_id"`
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
}

// AbortMonitorHandler cancels a running monitor without starting a cooldown.
func AbortMonitorHandler(engine monitorLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var request abortMonitorRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}

		if !engine.Abort(request.AccountID, request.Symbol, request.Side) {
			http.Error(w, "no active monitor", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// DefaultWebhookSignalHandler wires the handler to the production account
// repository.
func DefaultWebhookSignalHandler(engine signalStarter) http.HandlerFunc {
	return WebhookSignalHandler(engine, repository.NewAccountRepository())
}
