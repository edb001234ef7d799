package analytics

import (
	"math"
	"time"

	"riskdesk/internal/model"
	"riskdesk/internal/ringbuf"
)

// ShockSpikeThreshold is the z-score above which a shock counts as a spike.
const ShockSpikeThreshold = 2.0

// ShockResult is one scored news-shock observation.
type ShockResult struct {
	Raw       float64   `json:"raw"`
	Score     float64   `json:"shock_score"`
	Attention float64   `json:"attention"`
	Tone      float64   `json:"tone"`
	IsSpike   bool      `json:"is_spike"`
	TS        time.Time `json:"ts"`
}

// ShockCalculator scores news bursts: article volume gives attention,
// negative tone amplifies it, and a rolling z-score normalizes against
// recent history.
type ShockCalculator struct {
	history *ringbuf.Ring[float64]
}

// NewShockCalculator keeps the given number of raw scores for the z-score
// baseline.
func NewShockCalculator(historySize int) *ShockCalculator {
	if historySize <= 0 {
		historySize = 100
	}
	return &ShockCalculator{history: ringbuf.New[float64](historySize)}
}

// Compute scores one observation window. Tone contributes only when the mean
// tone is negative.
func (s *ShockCalculator) Compute(articleCount int, tones []float64) ShockResult {
	attention := math.Log1p(float64(articleCount))

	var tone float64
	if len(tones) > 0 {
		tone = math.Max(-mean(tones), 0)
	}
	raw := attention * (1 + tone)

	score := raw
	if hist := s.history.Values(); len(hist) >= 2 {
		m := mean(hist)
		sd := stddev(hist)
		if sd != 0 {
			score = (raw - m) / sd
		} else {
			score = 0.0
		}
	}
	s.history.Push(raw)

	return ShockResult{
		Raw:       raw,
		Score:     score,
		Attention: attention,
		Tone:      tone,
		IsSpike:   score > ShockSpikeThreshold,
		TS:        model.NowUTC(),
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev is the sample standard deviation (n-1 denominator).
func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}
