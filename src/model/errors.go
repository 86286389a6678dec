package model

import "errors"

var (
	// ErrInsufficientQuantity means a SELL asked for more than the position's
	// remaining quantity. Never clamped silently.
	ErrInsufficientQuantity = errors.New("sell quantity exceeds remaining position quantity")

	// ErrPositionAlreadyClosed means the target position has no remaining
	// quantity to decrement.
	ErrPositionAlreadyClosed = errors.New("position is already closed")

	// ErrNoCompatiblePosition means a reconciliation SELL had no open position
	// of the same symbol with enough remaining quantity.
	ErrNoCompatiblePosition = errors.New("no compatible open position for sell fill")

	// ErrDuplicateExchangeOrder marks an idempotent re-import of an already
	// recorded exchange order id. Callers treat it as a no-op, not a failure.
	ErrDuplicateExchangeOrder = errors.New("exchange order already recorded")

	// ErrExchangeUnavailable wraps exhausted retries against the exchange API.
	ErrExchangeUnavailable = errors.New("exchange unavailable")

	// ErrInvalidRiskConfig rejects TSG+SG enabled together or non-positive
	// thresholds, always at configuration time.
	ErrInvalidRiskConfig = errors.New("invalid risk-exit configuration")

	// ErrMonitorActive means a confirmation monitor for the same
	// (account, symbol, side) is already running; the new signal is rejected.
	ErrMonitorActive = errors.New("signal monitor already active")

	// ErrCooldownActive means the (account, symbol, side) is inside the
	// post-execution cooldown window; the new signal is rejected.
	ErrCooldownActive = errors.New("signal cooldown active")

	// ErrPositionNotEmpty guards administrative cleanup: only verified-empty
	// duplicates may be deleted.
	ErrPositionNotEmpty = errors.New("position has consumed quantity or linked executions")
)
