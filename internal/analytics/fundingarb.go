package analytics

import (
	"math"
	"time"

	"riskdesk/internal/model"
	"riskdesk/internal/ringbuf"
)

// Funding arb tuning.
const (
	fundingArbHistory    = 100
	FundingSpreadMinBPS  = 5.0
	ArbShortHLLongDrift  = "short_hl_long_drift"
	ArbLongHLShortDrift  = "long_hl_short_drift"
	ArbNone              = "none"
)

type fundingObs struct {
	SpreadBPS  float64
	RecordedAt time.Time
}

// FundingArbResult is one funding-rate arbitrage assessment between the two
// perp venues.
type FundingArbResult struct {
	ArbSignal          string    `json:"arb_signal"`
	SpreadBPS          float64   `json:"spread_bps"`
	PersistenceMinutes float64   `json:"persistence_minutes"`
	ExpectedNetCarry   float64   `json:"expected_net_carry"`
	Direction          string    `json:"direction,omitempty"`
	Confidence         float64   `json:"confidence"`
	HistoricalMeanBPS  float64   `json:"historical_mean_spread_bps"`
	HistoryLen         int       `json:"history_len"`
	TS                 time.Time `json:"ts"`
}

// FundingArbDetector watches the Hyperliquid/Drift funding spread and flags
// opportunities that are wide and persistent enough to carry.
type FundingArbDetector struct {
	history *ringbuf.Ring[fundingObs]
	now     func() time.Time
}

func NewFundingArbDetector() *FundingArbDetector {
	return &FundingArbDetector{
		history: ringbuf.New[fundingObs](fundingArbHistory),
		now:     model.NowUTC,
	}
}

// Detect records the current spread and classifies it. Confidence grows with
// persistence and spread width, capped at 0.95.
func (f *FundingArbDetector) Detect(hlFunding, driftFunding float64) FundingArbResult {
	now := f.now()
	spreadBPS := (hlFunding - driftFunding) * 10000.0
	f.history.Push(fundingObs{SpreadBPS: spreadBPS, RecordedAt: now})

	res := FundingArbResult{
		ArbSignal:  ArbNone,
		SpreadBPS:  round2(spreadBPS),
		HistoryLen: f.history.Len(),
		TS:         now,
	}
	if math.Abs(spreadBPS) < FundingSpreadMinBPS {
		return res
	}

	direction := ArbLongHLShortDrift
	if spreadBPS > 0 {
		direction = ArbShortHLLongDrift
	}

	persistence := f.persistenceMinutes(direction)
	res.ArbSignal = direction
	res.Direction = direction
	res.PersistenceMinutes = round2(persistence)
	res.ExpectedNetCarry = round4(math.Abs(spreadBPS) * 3 * 365 / 10000.0)
	res.HistoricalMeanBPS = round2(f.meanSpread())
	res.Confidence = round4(math.Min(0.95, 0.5+persistence/60.0*0.3+math.Abs(spreadBPS)/50.0*0.2))
	return res
}

// persistenceMinutes walks history backwards counting how long the spread
// has held the current sign.
func (f *FundingArbDetector) persistenceMinutes(direction string) float64 {
	obs := f.history.Values()
	if len(obs) < 2 {
		return 0
	}

	latest := obs[len(obs)-1].RecordedAt
	earliest := latest
	for i := len(obs) - 1; i >= 0; i-- {
		e := obs[i]
		if (direction == ArbShortHLLongDrift && e.SpreadBPS > 0) ||
			(direction == ArbLongHLShortDrift && e.SpreadBPS < 0) {
			earliest = e.RecordedAt
			continue
		}
		break
	}
	return latest.Sub(earliest).Minutes()
}

func (f *FundingArbDetector) meanSpread() float64 {
	obs := f.history.Values()
	if len(obs) == 0 {
		return 0
	}
	var sum float64
	for _, e := range obs {
		sum += e.SpreadBPS
	}
	return sum / float64(len(obs))
}
