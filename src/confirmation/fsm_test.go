package confirmation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/src/model"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func baseConfig() Config {
	return Config{
		CheckIntervalSec:     60,
		LateralTolerancePct:  dec("0.3"),
		LateralCyclesMin:     3,
		TriggerPct:           dec("1"),
		TriggerCyclesMin:     2,
		MaxAdversePct:        dec("1"),
		MaxMonitoringTimeMin: 30,
	}
}

func run(state State, prices ...string) State {
	for _, p := range prices {
		state = Step(state, dec(p))
	}
	return state
}

func TestStepLateralExhaustionConfirms(t *testing.T) {
	config := baseConfig()
	config.TriggerPct = dec("5") // keep the momentum rule out of the way

	state := NewState(model.SideBuy, config, dec("100"))

	// Drift inside the 0.3% tolerance band: the marginally lower low at 99.95
	// updates the extreme but still counts as a cycle without a meaningful new
	// extreme.
	state = run(state, "100.1", "99.95", "100.05")

	require.Equal(t, PhaseConfirmed, state.Phase)
	assert.Equal(t, 4, state.DecidedTick)
	assert.True(t, state.Extreme.Equal(dec("99.95")))
}

func TestStepSignificantNewExtremeResetsLateralCount(t *testing.T) {
	config := baseConfig()
	config.TriggerPct = dec("5")

	state := NewState(model.SideBuy, config, dec("100"))

	// Two lateral cycles, then a drop well beyond tolerance: the count starts
	// over and the monitor keeps running.
	state = run(state, "100.1", "100.05", "99.0")

	assert.Equal(t, PhaseMonitoring, state.Phase)
	assert.Equal(t, 0, state.CyclesWithoutNewExtreme)
	assert.True(t, state.Extreme.Equal(dec("99.0")))
}

func TestStepMomentumConfirms(t *testing.T) {
	config := baseConfig()
	config.LateralCyclesMin = 10

	state := NewState(model.SideBuy, config, dec("100"))

	// Two consecutive ticks at least 1% above the extreme.
	state = run(state, "101.2", "101.5")

	require.Equal(t, PhaseConfirmed, state.Phase)
	assert.Equal(t, 3, state.DecidedTick)
}

func TestStepMomentumStreakBreaks(t *testing.T) {
	config := baseConfig()
	config.LateralCyclesMin = 10

	state := NewState(model.SideBuy, config, dec("100"))

	// The pullback to 100.5 breaks the streak before the second cycle lands.
	state = run(state, "101.2", "100.5", "101.2")

	assert.Equal(t, PhaseMonitoring, state.Phase)
	assert.Equal(t, 1, state.TriggerStreak)
}

func TestStepSellSideMomentum(t *testing.T) {
	config := baseConfig()
	config.LateralCyclesMin = 10

	state := NewState(model.SideSell, config, dec("100"))

	// For a SELL setup the favorable direction is down.
	state = run(state, "98.8", "98.7")

	require.Equal(t, PhaseConfirmed, state.Phase)
	assert.Equal(t, 3, state.DecidedTick)
}

func TestStepAdverseCancels(t *testing.T) {
	state := NewState(model.SideBuy, baseConfig(), dec("100"))

	state = Step(state, dec("98.9"))

	require.Equal(t, PhaseCancelledAdverse, state.Phase)
	assert.Equal(t, 2, state.DecidedTick)
}

func TestStepTimeoutCancels(t *testing.T) {
	config := baseConfig()
	config.LateralTolerancePct = dec("0.1")
	config.LateralCyclesMin = 10
	config.TriggerPct = dec("5")
	config.MaxMonitoringTimeMin = 2

	state := NewState(model.SideBuy, config, dec("100"))

	// Elapsed time is (ticks-1) * interval: tick 4 sits at 180s > 120s.
	state = run(state, "100.5", "100.2", "100.4")

	require.Equal(t, PhaseCancelledTimeout, state.Phase)
	assert.Equal(t, 4, state.DecidedTick)
}

func TestStepTerminalStatesAbsorb(t *testing.T) {
	state := NewState(model.SideBuy, baseConfig(), dec("100"))
	state = Step(state, dec("98")) // adverse cancel

	require.True(t, state.Terminal())
	after := Step(state, dec("150"))
	assert.Equal(t, state, after)
}

func TestStepDeterministic(t *testing.T) {
	prices := []string{"100.1", "99.95", "100.05", "100.02"}

	first := run(NewState(model.SideBuy, baseConfig(), dec("100")), prices...)
	second := run(NewState(model.SideBuy, baseConfig(), dec("100")), prices...)

	assert.Equal(t, first, second)
	assert.Equal(t, first.Phase, second.Phase)
	assert.Equal(t, first.DecidedTick, second.DecidedTick)
}
