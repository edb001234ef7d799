package analytics

import (
	"math"
	"time"

	"riskdesk/internal/model"
)

// PredictorFeatures are the inputs to the directional macro model. Encoded
// regimes come from EncodeFundingRegime / EncodeVolRegime.
type PredictorFeatures struct {
	TariffMomentum       float64
	ShockScore           float64
	FundingRegimeScore   float64
	VolRegimeScore       float64
	CrossVenueSpreadBPS  float64
	StablecoinHealth     float64 // 1.0 = fully healthy
	OrderbookImbalance   float64
}

// Prediction is a 4-hour directional probability with per-feature
// attribution.
type Prediction struct {
	ProbUpNext4H   float64            `json:"prob_up_next_4h"`
	ProbDownNext4H float64            `json:"prob_down_next_4h"`
	Confidence     float64            `json:"confidence"`
	RawScore       float64            `json:"raw_score"`
	Contributions  map[string]float64 `json:"feature_contributions"`
	TS             time.Time          `json:"ts"`
}

// MacroPredictor is a fixed-weight linear scorer squashed through a sigmoid.
// Weights sum to 1; each feature pushes the 4h direction probability.
type MacroPredictor struct {
	weights map[string]float64
}

func NewMacroPredictor() *MacroPredictor {
	return &MacroPredictor{
		weights: map[string]float64{
			"tariff_momentum":      0.25,
			"shock_score":          0.20,
			"funding_regime":       0.15,
			"vol_regime":           0.15,
			"cross_venue_spread":   0.10,
			"stablecoin_health":    0.10,
			"orderbook_imbalance":  0.05,
		},
	}
}

// Predict scores the features. Rising tariffs, news shock, volatility and
// wide cross-venue spreads read bearish; contango funding, healthy stables
// and bid-heavy books read bullish.
func (p *MacroPredictor) Predict(f PredictorFeatures) Prediction {
	contributions := make(map[string]float64, len(p.weights))
	var raw float64

	add := func(name string, signal float64) {
		c := signal * p.weights[name]
		raw += c
		contributions[name] = round4(c)
	}

	add("tariff_momentum", -f.TariffMomentum*0.1)
	add("shock_score", -f.ShockScore*0.5)
	add("funding_regime", f.FundingRegimeScore*2.0)
	add("vol_regime", -math.Abs(f.VolRegimeScore)*0.3)
	add("cross_venue_spread", -math.Abs(f.CrossVenueSpreadBPS)*0.01)
	add("stablecoin_health", (f.StablecoinHealth-0.5)*2.0)
	add("orderbook_imbalance", f.OrderbookImbalance)

	probUp := sigmoid(raw)
	return Prediction{
		ProbUpNext4H:   round4(probUp),
		ProbDownNext4H: round4(1.0 - probUp),
		Confidence:     round4(math.Abs(probUp-0.5) * 2.0),
		RawScore:       round4(raw),
		Contributions:  contributions,
		TS:             model.NowUTC(),
	}
}

// EncodeFundingRegime maps regime labels onto [-1, 1].
func EncodeFundingRegime(regime string) float64 {
	switch regime {
	case RegimeContango:
		return 1.0
	case RegimeBackwardation:
		return -1.0
	default:
		return 0.0
	}
}

// EncodeVolRegime maps volatility buckets onto [0, 1].
func EncodeVolRegime(regime string) float64 {
	switch regime {
	case VolLow:
		return 0.0
	case VolHigh:
		return 0.7
	case VolExtreme:
		return 1.0
	default:
		return 0.3
	}
}

func sigmoid(x float64) float64 {
	x = math.Max(math.Min(x, 20.0), -20.0)
	return 1.0 / (1.0 + math.Exp(-x))
}
