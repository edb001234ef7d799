package analytics

import (
	"math"
	"time"

	"riskdesk/internal/model"
)

// PnLAttributionInputs feed one attribution pass for a position.
type PnLAttributionInputs struct {
	TotalPnL           float64
	PositionSize       float64
	EntryPrice         float64
	CurrentPrice       float64
	FundingAccumulated float64
	TariffIndexDelta   float64
	ShockScore         float64
	RealizedVol        float64
	SlippageCost       float64
	BasisPnL           float64
}

// PnLAttribution decomposes total PnL into explainable components plus an
// unexplained residual.
type PnLAttribution struct {
	TotalPnL          float64   `json:"total_pnl"`
	PricePnL          float64   `json:"price_pnl"`
	FundingIncome     float64   `json:"funding_income"`
	MacroEffect       float64   `json:"macro_effect"`
	BasisSpread       float64   `json:"basis_spread"`
	ExecutionSlippage float64   `json:"execution_slippage"`
	VolatilityDrift   float64   `json:"volatility_drift"`
	Unexplained       float64   `json:"unexplained"`
	TS                time.Time `json:"ts"`
}

// PnLAttributor splits realized PnL into price, funding, macro, basis,
// slippage and volatility-drift buckets.
type PnLAttributor struct{}

func NewPnLAttributor() *PnLAttributor {
	return &PnLAttributor{}
}

// Attribute decomposes the PnL. The macro effect is a signed-negative proxy
// scaled by the tariff move and amplified under news shock; anything the
// components fail to cover lands in Unexplained.
func (a *PnLAttributor) Attribute(in PnLAttributionInputs) PnLAttribution {
	pricePnL := in.PositionSize * (in.CurrentPrice - in.EntryPrice)

	macroProxy := -math.Abs(in.TariffIndexDelta * 0.01 * in.PositionSize * in.CurrentPrice)
	if in.ShockScore > 1.0 {
		macroProxy *= 1 + in.ShockScore*0.1
	}

	var volDrift float64
	if in.RealizedVol > 0.5 {
		volDrift = -math.Abs(in.TotalPnL) * 0.05 * in.RealizedVol
	}

	unexplained := in.TotalPnL - (pricePnL + in.FundingAccumulated + macroProxy + in.BasisPnL - in.SlippageCost + volDrift)

	return PnLAttribution{
		TotalPnL:          round2(in.TotalPnL),
		PricePnL:          round2(pricePnL),
		FundingIncome:     round2(in.FundingAccumulated),
		MacroEffect:       round2(macroProxy),
		BasisSpread:       round2(in.BasisPnL),
		ExecutionSlippage: round2(-in.SlippageCost),
		VolatilityDrift:   round2(volDrift),
		Unexplained:       round2(unexplained),
		TS:                model.NowUTC(),
	}
}
