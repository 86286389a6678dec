package confirmation

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradecore/src/connectors"
	"tradecore/src/model"
)

// ConfirmedSubmitter receives the trade intent once a signal is confirmed.
type ConfirmedSubmitter interface {
	SubmitConfirmedSignal(ctx context.Context, signal Signal) error
}

// Signal is one webhook-triggered trade intent awaiting confirmation.
type Signal struct {
	AccountID uint
	TradeMode string
	Symbol    string
	Side      string
	Qty       decimal.Decimal
	// PositionID is the SELL target, nil for BUY signals.
	PositionID *uint
}

type monitorKey struct {
	accountID uint
	symbol    string
	side      string
}

type monitor struct {
	signal Signal
	state  State
}

// MonitorView is the admin surface's read model of a running monitor.
type MonitorView struct {
	AccountID               uint            `json:"account_id"`
	Symbol                  string          `json:"symbol"`
	Side                    string          `json:"side"`
	Phase                   Phase           `json:"phase"`
	Ticks                   int             `json:"ticks"`
	EntryPrice              decimal.Decimal `json:"entry_price"`
	Extreme                 decimal.Decimal `json:"extreme"`
	CyclesWithoutNewExtreme int             `json:"cycles_without_new_extreme"`
}

// Engine owns the live signal monitors. Only one monitor per
// (account, symbol, side) may run at a time; terminal states start a cooldown
// during which identical signals are rejected outright.
type Engine struct {
	mu          sync.Mutex
	monitors    map[monitorKey]*monitor
	cooldowns   map[monitorKey]time.Time
	cooldownFor map[monitorKey]time.Duration

	feeds     map[string]connectors.PriceFeed
	submitter ConfirmedSubmitter
	now       func() time.Time
}

func NewEngine(realFeed, simFeed connectors.PriceFeed, submitter ConfirmedSubmitter) *Engine {
	return &Engine{
		monitors:    map[monitorKey]*monitor{},
		cooldowns:   map[monitorKey]time.Time{},
		cooldownFor: map[monitorKey]time.Duration{},
		feeds: map[string]connectors.PriceFeed{
			model.TradeModeReal:       realFeed,
			model.TradeModeSimulation: simFeed,
		},
		submitter: submitter,
		now:       time.Now,
	}
}

// WithClock overrides the cooldown clock in tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// StartMonitor begins confirming a signal against price action. The config is
// snapshotted here: later changes to account defaults never touch a running
// monitor. Returns model.ErrMonitorActive or model.ErrCooldownActive when the
// (account, symbol, side) slot is taken.
func (e *Engine) StartMonitor(ctx context.Context, signal Signal, config *model.ConfirmationConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}

	feed, ok := e.feeds[signal.TradeMode]
	if !ok {
		return model.ErrInvalidRiskConfig
	}
	entryPrice, err := feed.Price(ctx, signal.Symbol)
	if err != nil {
		return err
	}

	key := monitorKey{accountID: signal.AccountID, symbol: signal.Symbol, side: signal.Side}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, active := e.monitors[key]; active {
		return model.ErrMonitorActive
	}
	if until, ok := e.cooldowns[key]; ok {
		if e.now().Before(until) {
			return model.ErrCooldownActive
		}
		delete(e.cooldowns, key)
	}

	e.monitors[key] = &monitor{
		signal: signal,
		state:  NewState(signal.Side, ConfigFromModel(config), entryPrice),
	}
	e.cooldownFor[key] = time.Duration(config.CooldownAfterExecutionMin) * time.Minute

	logger.WithFields(map[string]interface{}{
		"component":   "ConfirmationEngine",
		"account_id":  signal.AccountID,
		"symbol":      signal.Symbol,
		"side":        signal.Side,
		"entry_price": entryPrice,
	}).Info("signal monitor started")

	return nil
}

// Abort cancels a running monitor without starting a cooldown.
func (e *Engine) Abort(accountID uint, symbol, side string) bool {
	key := monitorKey{accountID: accountID, symbol: symbol, side: side}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.monitors[key]; !ok {
		return false
	}
	delete(e.monitors, key)
	delete(e.cooldownFor, key)

	logger.WithFields(map[string]interface{}{
		"component":  "ConfirmationEngine",
		"account_id": accountID,
		"symbol":     symbol,
		"side":       side,
	}).Warn("signal monitor aborted by operator")

	return true
}

// Tick advances every running monitor by one price sample. Confirmed signals
// are handed to the submitter; terminal monitors start their cooldown and are
// removed either way, so the machine can never sit in MONITORING forever.
func (e *Engine) Tick(ctx context.Context) error {
	e.mu.Lock()
	keys := make([]monitorKey, 0, len(e.monitors))
	for key := range e.monitors {
		keys = append(keys, key)
	}
	e.mu.Unlock()

	var firstErr error

	for _, key := range keys {
		e.mu.Lock()
		m, ok := e.monitors[key]
		e.mu.Unlock()
		if !ok {
			continue
		}

		log := logger.WithFields(map[string]interface{}{
			"component":  "ConfirmationEngine",
			"account_id": key.accountID,
			"symbol":     key.symbol,
			"side":       key.side,
		})

		feed := e.feeds[m.signal.TradeMode]
		price, err := feed.Price(ctx, key.symbol)
		if err != nil {
			log.WithError(err).Error("failed to fetch price for monitor")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		state := Step(m.state, price)

		e.mu.Lock()
		if current, ok := e.monitors[key]; ok {
			current.state = state
		}
		e.mu.Unlock()

		if !state.Terminal() {
			continue
		}

		switch state.Phase {
		case PhaseConfirmed:
			log.WithField("tick", state.DecidedTick).Info("signal confirmed, submitting order")
			if err := e.submitter.SubmitConfirmedSignal(ctx, m.signal); err != nil {
				log.WithError(err).Error("failed to submit confirmed signal")
				if firstErr == nil {
					firstErr = err
				}
			}
		case PhaseCancelledAdverse:
			log.WithField("tick", state.DecidedTick).Warn("signal cancelled on adverse move")
		case PhaseCancelledTimeout:
			log.WithField("tick", state.DecidedTick).Warn("signal cancelled on timeout")
		}

		e.finish(key)
	}

	return firstErr
}

func (e *Engine) finish(key monitorKey) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.monitors, key)
	e.cooldowns[key] = e.now().Add(e.cooldownFor[key])
	delete(e.cooldownFor, key)
}

// Active lists the running monitors for the admin surface.
func (e *Engine) Active() []MonitorView {
	e.mu.Lock()
	defer e.mu.Unlock()

	views := make([]MonitorView, 0, len(e.monitors))
	for key, m := range e.monitors {
		views = append(views, MonitorView{
			AccountID:               key.accountID,
			Symbol:                  key.symbol,
			Side:                    key.side,
			Phase:                   m.state.Phase,
			Ticks:                   m.state.Ticks,
			EntryPrice:              m.state.EntryPrice,
			Extreme:                 m.state.Extreme,
			CyclesWithoutNewExtreme: m.state.CyclesWithoutNewExtreme,
		})
	}
	return views
}
