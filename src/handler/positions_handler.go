package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"tradecore/src/model"
	"tradecore/src/repository"
)

type positionSearcher interface {
	Search(ctx context.Context, options repository.PositionSearchOptions) ([]model.Position, error)
}

type positionFinder interface {
	FindByID(ctx context.Context, id uint) (*model.Position, error)
}

type riskConfigUpdater interface {
	BulkUpdateRiskConfig(ctx context.Context, ids []uint, patch model.RiskConfigPatch) error
}

type positionDeleter interface {
	DeleteVerifiedEmptyDuplicate(ctx context.Context, positionID uint) error
}

// SearchPositionsHandler lists positions with filters, sorting and pagination.
// Filters: accountId, symbol, status, tradeMode, createdFrom, createdTo.
func SearchPositionsHandler(repo positionSearcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		options := repository.PositionSearchOptions{}

		if accountParam := r.URL.Query().Get("accountId"); accountParam != "" {
			id, err := strconv.ParseUint(accountParam, 10, 64)
			if err != nil {
				http.Error(w, "invalid accountId", http.StatusBadRequest)
				return
			}
			accountID := uint(id)
			options.ExchangeAccountID = &accountID
		}

		if symbolParam := r.URL.Query().Get("symbol"); symbolParam != "" {
			options.Symbol = &symbolParam
		}
		if statusParam := r.URL.Query().Get("status"); statusParam != "" {
			options.Status = &statusParam
		}
		if modeParam := r.URL.Query().Get("tradeMode"); modeParam != "" {
			options.TradeMode = &modeParam
		}

		if createdFromParam := r.URL.Query().Get("createdFrom"); createdFromParam != "" {
			parsed, err := time.Parse(time.RFC3339, createdFromParam)
			if err != nil {
				http.Error(w, "invalid createdFrom", http.StatusBadRequest)
				return
			}
			options.CreatedAfter = &parsed
		}
		if createdToParam := r.URL.Query().Get("createdTo"); createdToParam != "" {
			parsed, err := time.Parse(time.RFC3339, createdToParam)
			if err != nil {
				http.Error(w, "invalid createdTo", http.StatusBadRequest)
				return
			}
			options.CreatedBefore = &parsed
		}

		options.SortDesc = r.URL.Query().Get("sort") == "desc"

		page := 1
		if pageParam := r.URL.Query().Get("page"); pageParam != "" {
			parsedPage, err := strconv.Atoi(pageParam)
			if err != nil || parsedPage <= 0 {
				http.Error(w, "invalid page", http.StatusBadRequest)
				return
			}
			page = parsedPage
		}

		pageSize := 20
		if sizeParam := r.URL.Query().Get("pageSize"); sizeParam != "" {
			parsedSize, err := strconv.Atoi(sizeParam)
			if err != nil || parsedSize <= 0 {
				http.Error(w, "invalid pageSize", http.StatusBadRequest)
				return
			}
			pageSize = parsedSize
		}

		options.Limit = pageSize
		options.Offset = (page - 1) * pageSize

		positions, err := repo.Search(r.Context(), options)
		if err != nil {
			logger.WithError(err).Error("failed to search positions")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, positions)
	}
}

// GetPositionHandler fetches one position by path id.
func GetPositionHandler(repo positionFinder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid id", http.StatusBadRequest)
			return
		}

		position, err := repo.FindByID(r.Context(), uint(id))
		if err != nil {
			logger.WithError(err).Error("failed to fetch position")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if position == nil {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}

		writeJSON(w, position)
	}
}

type bulkRiskConfigRequest struct {
	PositionIDs []uint                `json:"position_ids"`
	Patch       model.RiskConfigPatch `json:"patch"`
}

// BulkRiskConfigHandler applies a partial risk-exit configuration to a list of
// positions. Invalid combinations are rejected before any write.
func BulkRiskConfigHandler(repo riskConfigUpdater) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var request bulkRiskConfigRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		if len(request.PositionIDs) == 0 {
			http.Error(w, "position_ids is required", http.StatusBadRequest)
			return
		}

		err := repo.BulkUpdateRiskConfig(r.Context(), request.PositionIDs, request.Patch)
		if err != nil {
			if errors.Is(err, model.ErrInvalidRiskConfig) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			logger.WithError(err).Error("failed to bulk update risk config")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// DeletePositionHandler removes a verified-empty duplicate position. Positions
// that ever held quantity or executions are refused.
func DeletePositionHandler(repo positionDeleter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid id", http.StatusBadRequest)
			return
		}

		if err := repo.DeleteVerifiedEmptyDuplicate(r.Context(), uint(id)); err != nil {
			if errors.Is(err, model.ErrPositionNotEmpty) {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
			logger.WithError(err).Error("failed to delete position")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// DefaultSearchPositionsHandler wires the handler to the production repository
// implementation.
func DefaultSearchPositionsHandler() http.HandlerFunc {
	return SearchPositionsHandler(repository.NewPositionRepository())
}

func DefaultGetPositionHandler() http.HandlerFunc {
	return GetPositionHandler(repository.NewPositionRepository())
}

func DefaultBulkRiskConfigHandler() http.HandlerFunc {
	return BulkRiskConfigHandler(repository.NewPositionRepository())
}

func DefaultDeletePositionHandler() http.HandlerFunc {
	return DeletePositionHandler(repository.NewPositionRepository())
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.WithError(err).Error("failed to encode response")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
