package handler

import (
	"context"
	"time"

	"tradecore/src/confirmation"
	"tradecore/src/model"
	"tradecore/src/reconciliation"
	"tradecore/src/scheduler"
)

// SignalEngine is the confirmation engine surface the HTTP layer depends on.
type SignalEngine interface {
	StartMonitor(ctx context.Context, signal confirmation.Signal, config *model.ConfirmationConfig) error
	Active() []confirmation.MonitorView
	Abort(accountID uint, symbol, side string) bool
}

// Reconciler is the reconciliation service surface the HTTP layer depends on.
type Reconciler interface {
	DetectMissingOrders(ctx context.Context, accountID uint, symbol string, from, to time.Time) (*reconciliation.MissingOrdersReport, error)
	ImportMissingOrders(ctx context.Context, accountID uint, symbol string, from, to time.Time, orderIDs []string, sellTargets map[string]uint) ([]reconciliation.ImportResult, error)
	DetectOrphanedExecutions(ctx context.Context) ([]reconciliation.OrphanedExecution, error)
	FixOrphanedExecutions(ctx context.Context, ids []uint, alternatives map[uint]uint) []reconciliation.FixResult
}

// JobRegistry is the scheduler surface the HTTP layer depends on.
type JobRegistry interface {
	Stats() []scheduler.RunStats
	Enable(ctx context.Context, name string) error
	Disable(name string) error
	Pause(name string) error
	Resume(name string) error
	ExecuteNow(ctx context.Context, name string) error
}
