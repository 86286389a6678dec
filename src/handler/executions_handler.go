package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	logger "github.com/sirupsen/logrus"

	"tradecore/src/model"
	"tradecore/src/repository"
)

type executionSearcher interface {
	Search(ctx context.Context, options repository.ExecutionSearchOptions) ([]model.Execution, error)
}

// SearchExecutionsHandler lists executions. Filters: accountId, positionId,
// symbol, side, createdFrom, createdTo.
func SearchExecutionsHandler(repo executionSearcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		options := repository.ExecutionSearchOptions{}

		if accountParam := r.URL.Query().Get("accountId"); accountParam != "" {
			id, err := strconv.ParseUint(accountParam, 10, 64)
			if err != nil {
				http.Error(w, "invalid accountId", http.StatusBadRequest)
				return
			}
			accountID := uint(id)
			options.ExchangeAccountID = &accountID
		}

		if positionParam := r.URL.Query().Get("positionId"); positionParam != "" {
			id, err := strconv.ParseUint(positionParam, 10, 64)
			if err != nil {
				http.Error(w, "invalid positionId", http.StatusBadRequest)
				return
			}
			positionID := uint(id)
			options.PositionID = &positionID
		}

		if symbolParam := r.URL.Query().Get("symbol"); symbolParam != "" {
			options.Symbol = &symbolParam
		}
		if sideParam := r.URL.Query().Get("side"); sideParam != "" {
			options.Side = &sideParam
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

		executions, err := repo.Search(r.Context(), options)
		if err != nil {
			logger.WithError(err).Error("failed to search executions")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, executions)
	}
}

// DefaultSearchExecutionsHandler wires the handler to the production
// repository implementation.
func DefaultSearchExecutionsHandler() http.HandlerFunc {
	return SearchExecutionsHandler(repository.NewExecutionRepository())
}
