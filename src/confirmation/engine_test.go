package confirmation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/src/connectors"
	"tradecore/src/model"
)

type fakeSubmitter struct {
	signals []Signal
	err     error
}

func (f *fakeSubmitter) SubmitConfirmedSignal(_ context.Context, signal Signal) error {
	f.signals = append(f.signals, signal)
	return f.err
}

func testConfig() *model.ConfirmationConfig {
	return &model.ConfirmationConfig{
		ExchangeAccountID:         1,
		Side:                      model.SideBuy,
		CheckIntervalSec:          60,
		LateralTolerancePct:       dec("0.3"),
		LateralCyclesMin:          2,
		TriggerPct:                dec("5"),
		TriggerCyclesMin:          2,
		MaxAdversePct:             dec("1"),
		MaxMonitoringTimeMin:      30,
		CooldownAfterExecutionMin: 15,
	}
}

func testSignal() Signal {
	return Signal{
		AccountID: 1,
		TradeMode: model.TradeModeSimulation,
		Symbol:    "BTCUSDT",
		Side:      model.SideBuy,
		Qty:       dec("0.5"),
	}
}

func newTestEngine(submitter ConfirmedSubmitter) (*Engine, *connectors.StaticPriceFeed) {
	feed := connectors.NewStaticPriceFeed()
	feed.Set("BTCUSDT", dec("100"))
	return NewEngine(feed, feed, submitter), feed
}

func TestStartMonitorRejectsSecondSignal(t *testing.T) {
	engine, _ := newTestEngine(&fakeSubmitter{})
	ctx := context.Background()

	require.NoError(t, engine.StartMonitor(ctx, testSignal(), testConfig()))

	err := engine.StartMonitor(ctx, testSignal(), testConfig())
	assert.ErrorIs(t, err, model.ErrMonitorActive)

	// A different symbol occupies a different slot.
	other := testSignal()
	other.Symbol = "ETHUSDT"
	engine.feeds[model.TradeModeSimulation].(*connectors.StaticPriceFeed).Set("ETHUSDT", dec("2000"))
	assert.NoError(t, engine.StartMonitor(ctx, other, testConfig()))
}

func TestStartMonitorRejectsInvalidConfig(t *testing.T) {
	engine, _ := newTestEngine(&fakeSubmitter{})

	config := testConfig()
	config.MaxMonitoringTimeMin = 0
	err := engine.StartMonitor(context.Background(), testSignal(), config)
	assert.ErrorIs(t, err, model.ErrInvalidRiskConfig)
}

func TestTickConfirmsAndSubmits(t *testing.T) {
	submitter := &fakeSubmitter{}
	engine, feed := newTestEngine(submitter)
	ctx := context.Background()

	require.NoError(t, engine.StartMonitor(ctx, testSignal(), testConfig()))

	// Two lateral ticks inside tolerance confirm the signal.
	feed.Set("BTCUSDT", dec("100.05"))
	require.NoError(t, engine.Tick(ctx))
	feed.Set("BTCUSDT", dec("100.1"))
	require.NoError(t, engine.Tick(ctx))

	require.Len(t, submitter.signals, 1)
	assert.Equal(t, "BTCUSDT", submitter.signals[0].Symbol)
	assert.Empty(t, engine.Active())
}

func TestCooldownAfterTerminalState(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	submitter := &fakeSubmitter{}
	engine, feed := newTestEngine(submitter)
	engine.WithClock(clock)
	ctx := context.Background()

	require.NoError(t, engine.StartMonitor(ctx, testSignal(), testConfig()))

	// Adverse move cancels the monitor and starts the cooldown.
	feed.Set("BTCUSDT", dec("98"))
	require.NoError(t, engine.Tick(ctx))
	assert.Empty(t, submitter.signals)

	err := engine.StartMonitor(ctx, testSignal(), testConfig())
	assert.ErrorIs(t, err, model.ErrCooldownActive)

	// Identical signals are accepted again once the cooldown elapses.
	now = now.Add(16 * time.Minute)
	feed.Set("BTCUSDT", dec("100"))
	assert.NoError(t, engine.StartMonitor(ctx, testSignal(), testConfig()))
}

func TestAbortSkipsCooldown(t *testing.T) {
	engine, _ := newTestEngine(&fakeSubmitter{})
	ctx := context.Background()

	require.NoError(t, engine.StartMonitor(ctx, testSignal(), testConfig()))
	require.True(t, engine.Abort(1, "BTCUSDT", model.SideBuy))

	assert.False(t, engine.Abort(1, "BTCUSDT", model.SideBuy))
	assert.NoError(t, engine.StartMonitor(ctx, testSignal(), testConfig()))
}

func TestActiveReportsRunningMonitors(t *testing.T) {
	engine, _ := newTestEngine(&fakeSubmitter{})
	ctx := context.Background()

	require.NoError(t, engine.StartMonitor(ctx, testSignal(), testConfig()))

	views := engine.Active()
	require.Len(t, views, 1)
	assert.Equal(t, uint(1), views[0].AccountID)
	assert.Equal(t, PhaseMonitoring, views[0].Phase)
	assert.Equal(t, 1, views[0].Ticks)
	assert.True(t, views[0].EntryPrice.Equal(dec("100")))
}
