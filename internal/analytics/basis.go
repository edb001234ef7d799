package analytics

import (
	"time"

	"riskdesk/internal/model"
	"riskdesk/internal/ringbuf"
)

// BasisSnapshot captures cross-venue perp/spot basis and the funding carry
// between the two perp venues at one instant.
type BasisSnapshot struct {
	HLSpotBasisBPS     float64   `json:"hl_spot_basis_bps"`
	DriftSpotBasisBPS  float64   `json:"drift_spot_basis_bps"`
	HLDriftSpreadBPS   float64   `json:"hl_drift_spread_bps"`
	AnnualizedBasisBPS float64   `json:"annualized_basis_bps"`
	FundingDiffBPS     float64   `json:"funding_diff_bps"`
	NetCarry           float64   `json:"net_carry"`
	HLPerpPrice        float64   `json:"hl_perp_price"`
	DriftPerpPrice     float64   `json:"drift_perp_price"`
	SpotPrice          float64   `json:"spot_price"`
	HLFunding          float64   `json:"hl_funding"`
	DriftFunding       float64   `json:"drift_funding"`
	Error              string    `json:"error,omitempty"`
	TS                 time.Time `json:"ts"`
}

// BasisEngine tracks perp premiums over spot across Hyperliquid and Drift.
// Basis annualizes at three funding periods per day.
type BasisEngine struct {
	history *ringbuf.Ring[BasisSnapshot]
}

func NewBasisEngine() *BasisEngine {
	return &BasisEngine{history: ringbuf.New[BasisSnapshot](200)}
}

// Compute derives the basis snapshot. A non-positive spot price yields a
// zero-valued snapshot carrying an error marker rather than failing.
func (b *BasisEngine) Compute(hlPerpPrice, driftPerpPrice, spotPrice, hlFunding, driftFunding float64) BasisSnapshot {
	now := model.NowUTC()
	if spotPrice <= 0 {
		return BasisSnapshot{Error: "invalid_spot_price", TS: now}
	}

	snap := BasisSnapshot{
		HLPerpPrice:    hlPerpPrice,
		DriftPerpPrice: driftPerpPrice,
		SpotPrice:      spotPrice,
		HLFunding:      hlFunding,
		DriftFunding:   driftFunding,
		TS:             now,
	}
	snap.HLSpotBasisBPS = round2((hlPerpPrice - spotPrice) / spotPrice * 10000)
	snap.DriftSpotBasisBPS = round2((driftPerpPrice - spotPrice) / spotPrice * 10000)
	if driftPerpPrice > 0 {
		snap.HLDriftSpreadBPS = round2((hlPerpPrice - driftPerpPrice) / driftPerpPrice * 10000)
	}

	avgBasisBPS := (snap.HLSpotBasisBPS + snap.DriftSpotBasisBPS) / 2.0
	snap.AnnualizedBasisBPS = round2(avgBasisBPS * 365 * 3)
	snap.FundingDiffBPS = round2((hlFunding - driftFunding) * 10000)
	snap.NetCarry = round2(snap.AnnualizedBasisBPS + snap.FundingDiffBPS)

	b.history.Push(snap)
	return snap
}

// AssessFeasibility scores how tradable the basis is, 0-100. Wide spreads,
// thin liquidity and price-integrity problems each subtract.
func (b *BasisEngine) AssessFeasibility(spreadBPS, liquidityDepth float64, integrityStatus string) int {
	score := 100

	absSpread := spreadBPS
	if absSpread < 0 {
		absSpread = -absSpread
	}
	switch {
	case absSpread > 100:
		score -= 40
	case absSpread > 50:
		score -= 20
	case absSpread > 20:
		score -= 10
	}

	switch {
	case liquidityDepth < 0.3:
		score -= 30
	case liquidityDepth < 0.6:
		score -= 15
	case liquidityDepth < 0.8:
		score -= 5
	}

	if integrityStatus != "ok" {
		score -= 25
	}

	if score < 0 {
		score = 0
	}
	return score
}

// History returns the most recent snapshots, newest first.
func (b *BasisEngine) History(limit int) []BasisSnapshot {
	items := b.history.Last(limit)
	out := make([]BasisSnapshot, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		out = append(out, items[i])
	}
	return out
}
