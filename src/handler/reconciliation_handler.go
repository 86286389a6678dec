package handler

import (
	"encoding/json"
	"net/http"
	"time"

	logger "github.com/sirupsen/logrus"
)

type detectMissingRequest struct {
	AccountID uint      `json:"account_id"`
	Symbol    string    `json:"symbol"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
}

// DetectMissingOrdersHandler runs a missing-order sweep over a time window.
func DetectMissingOrdersHandler(service Reconciler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var request detectMissingRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		if request.AccountID == 0 || request.Symbol == "" {
			http.Error(w, "account_id and symbol are required", http.StatusBadRequest)
			return
		}
		if !request.To.After(request.From) {
			http.Error(w, "to must be after from", http.StatusBadRequest)
			return
		}

		report, err := service.DetectMissingOrders(r.Context(), request.AccountID, request.Symbol, request.From, request.To)
		if err != nil {
			logger.WithError(err).Error("missing-order detection failed")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, report)
	}
}

type importMissingRequest struct {
	AccountID   uint            `json:"account_id"`
	Symbol      string          `json:"symbol"`
	From        time.Time       `json:"from"`
	To          time.Time       `json:"to"`
	OrderIDs    []string        `json:"order_ids"`
	SellTargets map[string]uint `json:"sell_targets,omitempty"`
}

// ImportMissingOrdersHandler replays selected exchange fills into the ledger.
func ImportMissingOrdersHandler(service Reconciler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var request importMissingRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		if request.AccountID == 0 || len(request.OrderIDs) == 0 {
			http.Error(w, "account_id and order_ids are required", http.StatusBadRequest)
			return
		}

		results, err := service.ImportMissingOrders(r.Context(), request.AccountID, request.Symbol,
			request.From, request.To, request.OrderIDs, request.SellTargets)
		if err != nil {
			logger.WithError(err).Error("missing-order import failed")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, results)
	}
}

// ListOrphanedExecutionsHandler lists unlinked SELL executions for review.
func ListOrphanedExecutionsHandler(service Reconciler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orphans, err := service.DetectOrphanedExecutions(r.Context())
		if err != nil {
			logger.WithError(err).Error("orphan detection failed")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, orphans)
	}
}

type fixOrphansRequest struct {
	ExecutionIDs []uint        `json:"execution_ids"`
	Alternatives map[uint]uint `json:"alternatives,omitempty"`
}

// FixOrphanedExecutionsHandler relinks orphaned executions, optionally with
// operator-selected alternative positions.
func FixOrphanedExecutionsHandler(service Reconciler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var request fixOrphansRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		if len(request.ExecutionIDs) == 0 {
			http.Error(w, "execution_ids is required", http.StatusBadRequest)
			return
		}

		results := service.FixOrphanedExecutions(r.Context(), request.ExecutionIDs, request.Alternatives)
		writeJSON(w, results)
	}
}
