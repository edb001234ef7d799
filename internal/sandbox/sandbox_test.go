package sandbox

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskdesk/internal/model"
	"riskdesk/internal/rules"
)

type recordBus struct {
	events []model.Event
}

func (b *recordBus) Emit(t model.EventType, source string, payload map[string]interface{}) string {
	id := fmt.Sprintf("ev-%d", len(b.events))
	b.events = append(b.events, model.Event{ID: id, EventType: t, Source: source, Payload: payload})
	return id
}

func newEngine() (*Engine, *recordBus) {
	bus := &recordBus{}
	return NewEngine(bus, zerolog.Nop()), bus
}

// stressedState triggers shock_throttle and stable_rotation.
func stressedState() MarketState {
	return MarketState{
		Context: rules.Context{
			ShockScore:    3.0,
			VolRegime:     "normal",
			SuggestedSize: 0.2,
		},
		CurrentPrice:   150.0,
		PriceChangePct: -2.0,
		SpreadBPS:      10.0,
	}
}

func TestRunAggressiveConfigScalesSize(t *testing.T) {
	e, _ := newEngine()
	cmp := e.Run(DefaultConfigA(), DefaultConfigB(), stressedState())

	require.Len(t, cmp.StrategyA.Decisions, 2)
	require.Len(t, cmp.StrategyB.Decisions, 2)

	// A keeps the suggested size, B scales it by 1.5.
	assert.Equal(t, 0.2, cmp.StrategyA.Decisions[0].Size)
	assert.Equal(t, 0.3, cmp.StrategyB.Decisions[0].Size)

	// PnL = size * price_change_pct / 100 summed over two triggered rules.
	assert.InDelta(t, 2*0.2*-2.0/100.0, cmp.StrategyA.TotalPnL, 1e-9)
	assert.InDelta(t, 2*0.3*-2.0/100.0, cmp.StrategyB.TotalPnL, 1e-9)
}

func TestRunWinnerByTotalPnL(t *testing.T) {
	e, _ := newEngine()

	// Negative price move: the smaller-sized config loses less and wins.
	cmp := e.Run(DefaultConfigA(), DefaultConfigB(), stressedState())
	assert.Equal(t, "A", cmp.Winner)

	// Positive move: the aggressive config earns more.
	up := stressedState()
	up.PriceChangePct = 2.0
	cmp = e.Run(DefaultConfigA(), DefaultConfigB(), up)
	assert.Equal(t, "B", cmp.Winner)
}

func TestRunTieGoesToA(t *testing.T) {
	e, _ := newEngine()

	// No rules trigger, both PnL zero.
	cmp := e.Run(DefaultConfigA(), DefaultConfigB(), MarketState{CurrentPrice: 100})
	assert.Equal(t, "A", cmp.Winner)
	assert.Equal(t, 0.0, cmp.PnLDifference)
	assert.Equal(t, 0, cmp.StrategyA.TradeCount)
}

func TestRunDefaultsApplied(t *testing.T) {
	e, _ := newEngine()
	cmp := e.Run(Config{}, Config{}, MarketState{})

	assert.Equal(t, "Config A (Default)", cmp.StrategyA.ConfigName)
	assert.Equal(t, "Config B (Aggressive)", cmp.StrategyB.ConfigName)
	assert.Equal(t, 1.5, cmp.StrategyB.Config.VolScaleFactor)
	assert.Equal(t, 100.0, cmp.MarketState.CurrentPrice)
	// Unset spread falls back to 5 bps, halved for the slippage estimate.
	assert.Equal(t, 2.5, cmp.StrategyA.AvgSlippageEstBPS)
}

func TestRunMonteCarloSubreport(t *testing.T) {
	e, _ := newEngine()
	cmp := e.Run(DefaultConfigA(), DefaultConfigB(), stressedState())

	require.NotNil(t, cmp.StrategyA.MonteCarlo)
	assert.Equal(t, 1000, cmp.StrategyA.MonteCarlo.NPaths)
	assert.Equal(t, 150.0, cmp.StrategyA.MonteCarlo.CurrentPrice)
	assert.GreaterOrEqual(t, cmp.StrategyA.VaR95, 0.0)
}

func TestRunHighlightsTradeCountDelta(t *testing.T) {
	e, _ := newEngine()

	cmp := e.Run(DefaultConfigA(), DefaultConfigB(), stressedState())
	// Same rules trigger for both, so no trade-count highlight; the losing
	// side has the deeper drawdown.
	assert.Contains(t, cmp.Highlights, "Config A has lower drawdown")
}

func TestRunEmitsComparisonAndKeepsHistory(t *testing.T) {
	e, bus := newEngine()
	require.Nil(t, e.Latest())

	cmp := e.Run(DefaultConfigA(), DefaultConfigB(), stressedState())

	require.Len(t, bus.events, 1)
	ev := bus.events[0]
	assert.Equal(t, model.EventSandboxComparison, ev.EventType)
	assert.Equal(t, "strategy_sandbox", ev.Source)
	assert.Equal(t, cmp.Winner, ev.Payload["winner"])

	require.NotNil(t, e.Latest())
	assert.Len(t, e.History(), 1)
}

func TestHistoryBounded(t *testing.T) {
	e, _ := newEngine()
	state := MarketState{CurrentPrice: 100}
	for i := 0; i < maxHistory+5; i++ {
		e.Run(DefaultConfigA(), DefaultConfigB(), state)
	}
	assert.Len(t, e.History(), maxHistory)
}
