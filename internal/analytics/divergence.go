package analytics

import (
	"math"
	"sort"
	"time"
)

// SpreadPoint is one timestamped cross-venue spread observation, in percent.
type SpreadPoint struct {
	TS    time.Time
	Value float64
}

// DivergenceAlert describes a sustained cross-venue price divergence.
type DivergenceAlert struct {
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationMinutes float64   `json:"duration_minutes"`
	MaxSpreadPct    float64   `json:"max_spread_pct"`
	MeanSpreadPct   float64   `json:"mean_spread_pct"`
	Ongoing         bool      `json:"ongoing,omitempty"`
}

// DivergenceDetector finds windows where two venues disagree on price for
// long enough to matter.
type DivergenceDetector struct{}

func NewDivergenceDetector() *DivergenceDetector {
	return &DivergenceDetector{}
}

// ComputeSpread returns the percent spread of a over b relative to their
// midpoint for each timestamp present in both series. A zero midpoint yields
// no point for that timestamp.
func (d *DivergenceDetector) ComputeSpread(a, b map[time.Time]float64) []SpreadPoint {
	out := make([]SpreadPoint, 0, len(a))
	for ts, pa := range a {
		pb, ok := b[ts]
		if !ok {
			continue
		}
		mid := (pa + pb) / 2.0
		if mid == 0 {
			continue
		}
		out = append(out, SpreadPoint{TS: ts, Value: (pa - pb) / mid * 100.0})
	}
	sortSpread(out)
	return out
}

// DetectDivergence scans the spread series for stretches where |spread|
// stays above thresholdPct for at least minDuration. A stretch still open at
// the end of the series is reported as ongoing.
func (d *DivergenceDetector) DetectDivergence(spread []SpreadPoint, thresholdPct float64, minDuration time.Duration) []DivergenceAlert {
	if len(spread) == 0 {
		return nil
	}

	var alerts []DivergenceAlert
	inDivergence := false
	var start time.Time

	for _, p := range spread {
		above := math.Abs(p.Value) > thresholdPct
		switch {
		case above && !inDivergence:
			inDivergence = true
			start = p.TS
		case !above && inDivergence:
			inDivergence = false
			if a, ok := d.summarize(spread, start, p.TS, minDuration, false); ok {
				alerts = append(alerts, a)
			}
		}
	}

	if inDivergence {
		last := spread[len(spread)-1].TS
		if a, ok := d.summarize(spread, start, last, minDuration, true); ok {
			alerts = append(alerts, a)
		}
	}
	return alerts
}

func (d *DivergenceDetector) summarize(spread []SpreadPoint, start, end time.Time, minDuration time.Duration, ongoing bool) (DivergenceAlert, bool) {
	dur := end.Sub(start)
	if dur < minDuration {
		return DivergenceAlert{}, false
	}

	var maxAbs, sum float64
	var n int
	for _, p := range spread {
		if p.TS.Before(start) || p.TS.After(end) {
			continue
		}
		if abs := math.Abs(p.Value); abs > maxAbs {
			maxAbs = abs
		}
		sum += p.Value
		n++
	}

	a := DivergenceAlert{
		Start:           start,
		End:             end,
		DurationMinutes: round2(dur.Minutes()),
		MaxSpreadPct:    round4(maxAbs),
		Ongoing:         ongoing,
	}
	if n > 0 {
		a.MeanSpreadPct = round4(sum / float64(n))
	}
	return a, true
}

// ComputeBasis is the perp premium over spot, in percent.
func (d *DivergenceDetector) ComputeBasis(perpPrice, spotPrice float64) float64 {
	if spotPrice == 0 {
		return 0
	}
	return (perpPrice - spotPrice) / spotPrice * 100.0
}

func sortSpread(ps []SpreadPoint) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].TS.Before(ps[j].TS) })
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }
func round4(x float64) float64 { return math.Round(x*10000) / 10000 }
