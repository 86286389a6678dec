// Package reconciliation detects and repairs drift between the position
// ledger and the exchange's fill history: fills the ledger never saw, and
// SELL executions recorded without a valid position link.
package reconciliation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradecore/src/connectors"
	"tradecore/src/linker"
	"tradecore/src/model"
	"tradecore/src/repository"
)

// Service runs the sweeps. Sweeps collect per-item errors into the report and
// keep going; financial records are never deleted to resolve a discrepancy.
type Service struct {
	db         *gorm.DB
	positions  *repository.PositionRepository
	executions *repository.ExecutionRepository
	operations *repository.OperationRepository
	accounts   *repository.AccountRepository
	clients    connectors.ClientProvider
	linker     *linker.Linker
}

func NewService(
	db *gorm.DB,
	positions *repository.PositionRepository,
	executions *repository.ExecutionRepository,
	operations *repository.OperationRepository,
	accounts *repository.AccountRepository,
	clients connectors.ClientProvider,
	lnk *linker.Linker,
) *Service {
	return &Service{
		db:         db,
		positions:  positions,
		executions: executions,
		operations: operations,
		accounts:   accounts,
		clients:    clients,
		linker:     lnk,
	}
}

// CandidatePosition is an OPEN position able to absorb a missing SELL fill.
type CandidatePosition struct {
	PositionID   uint   `json:"position_id"`
	Symbol       string `json:"symbol"`
	PriceOpen    string `json:"price_open"`
	QtyRemaining string `json:"qty_remaining"`
}

// MissingOrder is one exchange fill with no recorded execution.
type MissingOrder struct {
	Fill connectors.Fill `json:"fill"`
	// Candidates lists the OPEN positions of the fill's symbol whose remaining
	// quantity covers it. Only meaningful for SELL fills.
	Candidates []CandidatePosition `json:"candidates,omitempty"`
	// AutoSelectable is true when exactly one candidate exists, so the import
	// can pick it without an operator choice.
	AutoSelectable bool `json:"auto_selectable"`
}

// MissingOrdersReport is the outcome of one detection sweep.
type MissingOrdersReport struct {
	ReportID string         `json:"report_id"`
	Buys     []MissingOrder `json:"buys"`
	Sells    []MissingOrder `json:"sells"`
	Errors   []string       `json:"errors,omitempty"`
}

// DetectMissingOrders fetches the exchange's fill history for the window and
// returns the fills whose exchange order id has no matching execution,
// partitioned into importable BUYs and SELLs needing a target position.
func (s *Service) DetectMissingOrders(ctx context.Context, accountID uint, symbol string, from, to time.Time) (*MissingOrdersReport, error) {
	log := logger.WithFields(map[string]interface{}{
		"component":  "Reconciliation",
		"op":         "DetectMissingOrders",
		"account_id": accountID,
		"symbol":     symbol,
	})

	report := &MissingOrdersReport{ReportID: uuid.NewString()}

	client, err := s.clients.ClientForAccount(accountID)
	if err != nil {
		return nil, err
	}

	fills, err := client.FetchFills(ctx, symbol, from, to)
	if err != nil {
		return nil, err
	}

	for _, fill := range fills {
		existing, err := s.executions.FindByExchangeOrderID(ctx, accountID, fill.ExchangeOrderID)
		if err != nil {
			report.Errors = append(report.Errors, fill.ExchangeOrderID+": "+err.Error())
			continue
		}
		if existing != nil {
			continue
		}

		missing := MissingOrder{Fill: fill}

		switch fill.Side {
		case model.SideBuy:
			report.Buys = append(report.Buys, missing)

		case model.SideSell:
			candidates, err := s.sellCandidates(ctx, accountID, fill)
			if err != nil {
				report.Errors = append(report.Errors, fill.ExchangeOrderID+": "+err.Error())
				continue
			}
			missing.Candidates = candidates
			missing.AutoSelectable = len(candidates) == 1
			report.Sells = append(report.Sells, missing)
		}
	}

	log.WithFields(map[string]interface{}{
		"buys":   len(report.Buys),
		"sells":  len(report.Sells),
		"errors": len(report.Errors),
	}).Info("missing-order sweep finished")

	return report, nil
}

// sellCandidates lists the OPEN positions of the fill's symbol whose remaining
// quantity covers the fill.
func (s *Service) sellCandidates(ctx context.Context, accountID uint, fill connectors.Fill) ([]CandidatePosition, error) {
	status := model.PositionStatusOpen
	open, err := s.positions.Search(ctx, repository.PositionSearchOptions{
		ExchangeAccountID: &accountID,
		Symbol:            &fill.Symbol,
		Status:            &status,
	})
	if err != nil {
		return nil, err
	}

	var candidates []CandidatePosition
	for _, position := range open {
		if position.QtyRemaining.GreaterThanOrEqual(fill.ExecutedQty) {
			candidates = append(candidates, CandidatePosition{
				PositionID:   position.ID,
				Symbol:       position.Symbol,
				PriceOpen:    position.PriceOpen.String(),
				QtyRemaining: position.QtyRemaining.String(),
			})
		}
	}
	return candidates, nil
}

// ImportResult is the outcome for one replayed order id.
type ImportResult struct {
	ExchangeOrderID string `json:"exchange_order_id"`
	Imported        bool   `json:"imported"`
	Duplicate       bool   `json:"duplicate"`
	Skipped         bool   `json:"skipped"`
	PositionID      *uint  `json:"position_id,omitempty"`
	Error           string `json:"error,omitempty"`
}

// ImportMissingOrders replays the selected fills through the linker. Import is
// idempotent on exchange order id. SELLs without an entry in sellTargets are
// skipped and reported, never guessed.
func (s *Service) ImportMissingOrders(
	ctx context.Context,
	accountID uint,
	symbol string,
	from, to time.Time,
	orderIDs []string,
	sellTargets map[string]uint,
) ([]ImportResult, error) {

	log := logger.WithFields(map[string]interface{}{
		"component":  "Reconciliation",
		"op":         "ImportMissingOrders",
		"account_id": accountID,
		"count":      len(orderIDs),
	})

	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, model.ErrNoCompatiblePosition
	}

	client, err := s.clients.ClientForAccount(accountID)
	if err != nil {
		return nil, err
	}
	fills, err := client.FetchFills(ctx, symbol, from, to)
	if err != nil {
		return nil, err
	}

	fillsByID := make(map[string]connectors.Fill, len(fills))
	for _, fill := range fills {
		fillsByID[fill.ExchangeOrderID] = fill
	}

	results := make([]ImportResult, 0, len(orderIDs))
	for _, orderID := range orderIDs {
		result := ImportResult{ExchangeOrderID: orderID}

		fill, ok := fillsByID[orderID]
		if !ok {
			result.Error = "order id not present in exchange fill history for the window"
			results = append(results, result)
			continue
		}

		var target *uint
		if fill.Side == model.SideSell {
			positionID, chosen := sellTargets[orderID]
			if !chosen {
				result.Skipped = true
				result.Error = "SELL without a selected target position"
				results = append(results, result)
				continue
			}
			target = &positionID
		}

		applied, err := s.linker.ApplyFill(ctx, account, fill, nil, target)
		if err != nil {
			result.Error = err.Error()
			results = append(results, result)
			continue
		}

		result.Imported = !applied.Duplicate
		result.Duplicate = applied.Duplicate
		if applied.Position != nil {
			result.PositionID = &applied.Position.ID
		}
		results = append(results, result)
	}

	log.Info("missing-order import finished")
	return results, nil
}

// OrphanedExecution is one unlinked SELL with the last known state of the
// position it referenced, for operator review.
type OrphanedExecution struct {
	Execution      model.Execution `json:"execution"`
	UnlinkReason   string          `json:"unlink_reason"`
	PositionStatus string          `json:"position_status,omitempty"`
}

// DetectOrphanedExecutions scans for SELL executions without a valid position
// link. Items stay visible until explicitly resolved or ignored.
func (s *Service) DetectOrphanedExecutions(ctx context.Context) ([]OrphanedExecution, error) {
	executions, err := s.executions.FindOrphanedSells(ctx)
	if err != nil {
		return nil, err
	}

	orphans := make([]OrphanedExecution, 0, len(executions))
	for _, execution := range executions {
		orphan := OrphanedExecution{
			Execution:    execution,
			UnlinkReason: execution.UnlinkReason,
		}

		// The intended SELL target lives on the originating operation; surface
		// its last known status so the operator can judge the relink.
		if execution.OperationID != nil {
			operation, err := s.operations.FindByID(ctx, *execution.OperationID)
			if err == nil && operation != nil && operation.PositionID != nil {
				if position, err := s.positions.FindByID(ctx, *operation.PositionID); err == nil && position != nil {
					orphan.PositionStatus = position.Status
				}
			}
		}

		orphans = append(orphans, orphan)
	}

	return orphans, nil
}

// FixResult is the outcome for one orphaned execution.
type FixResult struct {
	ExecutionID      uint   `json:"execution_id"`
	Relinked         bool   `json:"relinked"`
	PositionID       *uint  `json:"position_id,omitempty"`
	NeedsAlternative bool   `json:"needs_alternative"`
	Error            string `json:"error,omitempty"`
}

// FixOrphanedExecutions relinks orphaned SELLs. Automatic relinking happens
// only when an OPEN same-symbol position still covers the quantity; otherwise
// the item is reported as needing an alternative. An entry in alternatives
// forces the link to that OPEN same-symbol position, recomputing the realized
// P&L from its price_open. Never force-links without an explicit choice.
func (s *Service) FixOrphanedExecutions(ctx context.Context, ids []uint, alternatives map[uint]uint) []FixResult {
	log := logger.WithFields(map[string]interface{}{
		"component": "Reconciliation",
		"op":        "FixOrphanedExecutions",
		"count":     len(ids),
	})

	results := make([]FixResult, 0, len(ids))
	for _, id := range ids {
		result := s.fixOne(ctx, id, alternatives)
		results = append(results, result)
	}

	log.Info("orphan fix sweep finished")
	return results
}

func (s *Service) fixOne(ctx context.Context, executionID uint, alternatives map[uint]uint) FixResult {
	result := FixResult{ExecutionID: executionID}

	execution, err := s.executions.FindByID(ctx, executionID)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	if execution == nil {
		result.Error = "execution not found"
		return result
	}
	if !execution.Orphaned() {
		result.Error = "execution is not orphaned"
		return result
	}

	if positionID, ok := alternatives[executionID]; ok {
		return s.forceLink(ctx, execution, positionID)
	}

	candidates, err := s.sellCandidates(ctx, execution.ExchangeAccountID, connectors.Fill{
		Symbol:      execution.Symbol,
		ExecutedQty: execution.ExecutedQty,
	})
	if err != nil {
		result.Error = err.Error()
		return result
	}
	if len(candidates) != 1 {
		result.NeedsAlternative = true
		return result
	}

	return s.forceLink(ctx, execution, candidates[0].PositionID)
}

// forceLink decrements the chosen position and links the execution to it.
// Both writes commit in one transaction: a failed link never leaves consumed
// quantity without a linked execution to account for it.
func (s *Service) forceLink(ctx context.Context, execution *model.Execution, positionID uint) FixResult {
	result := FixResult{ExecutionID: execution.ID}

	position, err := s.positions.FindByID(ctx, positionID)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	if position == nil {
		result.Error = "alternative position not found"
		return result
	}
	if position.Symbol != execution.Symbol {
		result.Error = "alternative position symbol mismatch"
		return result
	}
	if position.Status != model.PositionStatusOpen {
		result.Error = model.ErrPositionAlreadyClosed.Error()
		result.NeedsAlternative = true
		return result
	}

	realizedPnl := linker.RealizedPnlAgainst(execution, position.PriceOpen)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.positions.WithDB(tx).DecrementRemaining(ctx, position.ID, execution.ExecutedQty); err != nil {
			return err
		}
		return s.executions.WithDB(tx).LinkToPosition(ctx, execution.ID, position.ID, realizedPnl)
	})
	if err != nil {
		result.Error = err.Error()
		if errors.Is(err, model.ErrInsufficientQuantity) || errors.Is(err, model.ErrPositionAlreadyClosed) {
			result.NeedsAlternative = true
		}
		return result
	}

	result.Relinked = true
	result.PositionID = &position.ID
	return result
}
