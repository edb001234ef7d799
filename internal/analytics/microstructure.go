package analytics

import (
	"math"
	"sort"
	"time"

	"riskdesk/internal/model"
)

// Orderbook bias labels.
const (
	BiasBullish = "bullish"
	BiasBearish = "bearish"
	BiasNeutral = "neutral"
)

// ImbalanceResult summarizes top-of-book depth skew.
type ImbalanceResult struct {
	BidVolume     float64   `json:"bid_volume"`
	AskVolume     float64   `json:"ask_volume"`
	Imbalance     float64   `json:"imbalance"`
	Bias          string    `json:"bias"`
	LiquidityThin bool      `json:"liquidity_thin"`
	TS            time.Time `json:"ts"`
}

// DislocationAlert flags two venues quoting materially different prices.
type DislocationAlert struct {
	VenueA    string    `json:"venue_a"`
	VenueB    string    `json:"venue_b"`
	PriceA    float64   `json:"price_a"`
	PriceB    float64   `json:"price_b"`
	SpreadBPS float64   `json:"spread_bps"`
	TS        time.Time `json:"ts"`
}

// BasisOpportunity is a perp/spot basis wide enough to trade.
type BasisOpportunity struct {
	PerpVenue string    `json:"perp_venue"`
	SpotVenue string    `json:"spot_venue"`
	PerpPrice float64   `json:"perp_price"`
	SpotPrice float64   `json:"spot_price"`
	BasisBPS  float64   `json:"basis_bps"`
	Direction string    `json:"direction"`
	TS        time.Time `json:"ts"`
}

// ConvergenceResult estimates how fast a spread mean-reverts.
type ConvergenceResult struct {
	HalfLife          float64 `json:"half_life"` // zero when not mean-reverting
	HasHalfLife       bool    `json:"has_half_life"`
	MeanReversionRate float64 `json:"mean_reversion_speed"`
}

// MicrostructureAnalyzer derives depth, dislocation and basis signals from
// orderbook and cross-venue price snapshots.
type MicrostructureAnalyzer struct{}

func NewMicrostructureAnalyzer() *MicrostructureAnalyzer {
	return &MicrostructureAnalyzer{}
}

// ComputeImbalance sums depth over the top levels of each side. Imbalance is
// (bid-ask)/total in [-1, 1]; beyond ±0.2 the book reads directional.
func (m *MicrostructureAnalyzer) ComputeImbalance(bids, asks []model.PriceLevel, levels int) ImbalanceResult {
	if levels <= 0 {
		levels = 10
	}
	bidVol := sumDepth(bids, levels)
	askVol := sumDepth(asks, levels)
	total := bidVol + askVol

	var imb float64
	if total != 0 {
		imb = (bidVol - askVol) / total
	}

	bias := BiasNeutral
	switch {
	case imb > 0.2:
		bias = BiasBullish
	case imb < -0.2:
		bias = BiasBearish
	}

	return ImbalanceResult{
		BidVolume:     round2(bidVol),
		AskVolume:     round2(askVol),
		Imbalance:     round4(imb),
		Bias:          bias,
		LiquidityThin: total < 100.0,
		TS:            model.NowUTC(),
	}
}

func sumDepth(levels []model.PriceLevel, n int) float64 {
	var sum float64
	for i, l := range levels {
		if i >= n {
			break
		}
		sum += l.Qty
	}
	return sum
}

// DetectDislocation compares every venue pair; each pair further apart than
// thresholdBPS produces an alert.
func (m *MicrostructureAnalyzer) DetectDislocation(prices map[string]float64, thresholdBPS float64) []DislocationAlert {
	venues := make([]string, 0, len(prices))
	for v, p := range prices {
		if p > 0 {
			venues = append(venues, v)
		}
	}
	if len(venues) < 2 {
		return nil
	}
	sort.Strings(venues)

	var alerts []DislocationAlert
	for i := 0; i < len(venues); i++ {
		for j := i + 1; j < len(venues); j++ {
			pa, pb := prices[venues[i]], prices[venues[j]]
			mid := (pa + pb) / 2.0
			if mid == 0 {
				continue
			}
			spreadBPS := math.Abs(pa-pb) / mid * 10000.0
			if spreadBPS > thresholdBPS {
				alerts = append(alerts, DislocationAlert{
					VenueA:    venues[i],
					VenueB:    venues[j],
					PriceA:    round4(pa),
					PriceB:    round4(pb),
					SpreadBPS: round2(spreadBPS),
					TS:        model.NowUTC(),
				})
			}
		}
	}
	return alerts
}

// DetectBasisOpportunity flags a perp trading away from spot by more than
// thresholdBPS. Positive basis means the perp is rich: short perp, long spot.
func (m *MicrostructureAnalyzer) DetectBasisOpportunity(perpPrice, spotPrice float64, perpVenue, spotVenue string, thresholdBPS float64) *BasisOpportunity {
	if perpPrice == 0 || spotPrice == 0 {
		return nil
	}
	basisBPS := (perpPrice - spotPrice) / spotPrice * 10000.0
	if math.Abs(basisBPS) <= thresholdBPS {
		return nil
	}

	direction := "long_perp_short_spot"
	if basisBPS > 0 {
		direction = "short_perp_long_spot"
	}
	return &BasisOpportunity{
		PerpVenue: perpVenue,
		SpotVenue: spotVenue,
		PerpPrice: round4(perpPrice),
		SpotPrice: round4(spotPrice),
		BasisBPS:  round2(basisBPS),
		Direction: direction,
		TS:        model.NowUTC(),
	}
}

// ComputeConvergenceSpeed regresses spread changes on levels (AR(1) drift).
// A negative beta means mean reversion; half-life is -ln(2)/beta.
func (m *MicrostructureAnalyzer) ComputeConvergenceSpeed(spread []float64) ConvergenceResult {
	if len(spread) < 3 {
		return ConvergenceResult{}
	}

	levels := spread[:len(spread)-1]
	var sumXY, sumXX float64
	for i, l := range levels {
		change := spread[i+1] - spread[i]
		sumXY += l * change
		sumXX += l * l
	}
	if sumXX == 0 {
		return ConvergenceResult{}
	}

	beta := sumXY / sumXX
	res := ConvergenceResult{MeanReversionRate: round6(math.Abs(beta))}
	if beta < 0 {
		res.HalfLife = round2(-math.Log(2) / beta)
		res.HasHalfLife = true
	}
	return res
}

func round6(x float64) float64 { return math.Round(x*1e6) / 1e6 }
