package handler

import (
	"context"
	"net/http"
	"strconv"

	logger "github.com/sirupsen/logrus"

	"tradecore/src/model"
	"tradecore/src/repository"
)

type operationSearcher interface {
	Search(ctx context.Context, options repository.OperationSearchOptions) ([]model.Operation, error)
}

// SearchOperationsHandler lists operations. Filters: accountId, symbol,
// status, source.
func SearchOperationsHandler(repo operationSearcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		options := repository.OperationSearchOptions{}

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
		if sourceParam := r.URL.Query().Get("source"); sourceParam != "" {
			options.Source = &sourceParam
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

		operations, err := repo.Search(r.Context(), options)
		if err != nil {
			logger.WithError(err).Error("failed to search operations")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, operations)
	}
}

// DefaultSearchOperationsHandler wires the handler to the production
// repository implementation.
func DefaultSearchOperationsHandler() http.HandlerFunc {
	return SearchOperationsHandler(repository.NewOperationRepository())
}
