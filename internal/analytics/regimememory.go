package analytics

import (
	"sort"
	"sync"
	"time"

	"riskdesk/internal/model"
)

// RegimeRecord is one remembered market regime snapshot, later annotated
// with realized forward returns.
type RegimeRecord struct {
	ShockState    string    `json:"shock_state"`
	FundingRegime string    `json:"funding_regime"`
	VolRegime     string    `json:"vol_regime"`
	TariffIndex   float64   `json:"tariff_index"`
	Price         float64   `json:"price"`
	TS            time.Time `json:"ts"`

	Return4H  *float64 `json:"return_4h"`
	Return24H *float64 `json:"return_24h"`
	Return3D  *float64 `json:"return_3d"`

	MatchScore int `json:"match_score,omitempty"`
}

// OutcomeDistribution summarizes what happened historically in regimes like
// the current one.
type OutcomeDistribution struct {
	AvgReturn4H  float64       `json:"avg_return_4h"`
	AvgReturn24H float64       `json:"avg_return_24h"`
	AvgReturn3D  float64       `json:"avg_return_3d"`
	WinRate4H    float64       `json:"win_rate_4h"`
	WinRate24H   float64       `json:"win_rate_24h"`
	Count        int           `json:"count"`
	BestAnalog   *RegimeRecord `json:"best_analog"`
	TS           time.Time     `json:"ts"`
}

// RegimeMemorySummary describes the memory's coverage.
type RegimeMemorySummary struct {
	TotalRecords       int            `json:"total_records"`
	RecordsWithReturns int            `json:"records_with_returns"`
	RegimeDistribution map[string]int `json:"regime_distribution"`
	TS                 time.Time      `json:"ts"`
}

// RegimeMemory remembers past regime states and their outcomes so the desk
// can reason by analogy. Matching weighs shock state 3, funding 2, vol 1; a
// record is an analogue at score 3 or above.
type RegimeMemory struct {
	mu         sync.Mutex
	history    []RegimeRecord
	maxEntries int
}

func NewRegimeMemory() *RegimeMemory {
	return &RegimeMemory{maxEntries: 500}
}

// Record stores the current regime snapshot. Returns the record's index for
// later annotation via UpdateReturns.
func (r *RegimeMemory) Record(shockState, fundingRegime, volRegime string, tariffIndex, price float64) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.history = append(r.history, RegimeRecord{
		ShockState:    shockState,
		FundingRegime: fundingRegime,
		VolRegime:     volRegime,
		TariffIndex:   tariffIndex,
		Price:         price,
		TS:            model.NowUTC(),
	})
	if len(r.history) > r.maxEntries {
		r.history = r.history[len(r.history)-r.maxEntries:]
	}
	return len(r.history) - 1
}

// UpdateReturns fills in realized forward returns on a stored record. Nil
// arguments leave the corresponding horizon untouched.
func (r *RegimeMemory) UpdateReturns(index int, return4h, return24h, return3d *float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if index < 0 || index >= len(r.history) {
		return
	}
	rec := &r.history[index]
	if return4h != nil {
		rec.Return4H = return4h
	}
	if return24h != nil {
		rec.Return24H = return24h
	}
	if return3d != nil {
		rec.Return3D = return3d
	}
}

// FindAnalogues returns past records matching the given regime, best match
// first. Only records with a realized 4h return qualify.
func (r *RegimeMemory) FindAnalogues(shockState, fundingRegime, volRegime string, maxResults int) []RegimeRecord {
	if maxResults <= 0 {
		maxResults = 10
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var matches []RegimeRecord
	for _, e := range r.history {
		score := matchScore(e, shockState, fundingRegime, volRegime)
		if score >= 3 && e.Return4H != nil {
			e.MatchScore = score
			matches = append(matches, e)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].MatchScore > matches[j].MatchScore })
	if len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	return matches
}

// OutcomeDistribution aggregates realized returns across all analogues of
// the given regime.
func (r *RegimeMemory) OutcomeDistribution(shockState, fundingRegime, volRegime string) OutcomeDistribution {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matches []RegimeRecord
	for _, e := range r.history {
		score := matchScore(e, shockState, fundingRegime, volRegime)
		if score >= 3 {
			e.MatchScore = score
			matches = append(matches, e)
		}
	}

	out := OutcomeDistribution{TS: model.NowUTC()}
	if len(matches) == 0 {
		return out
	}

	var r4, r24, r3d []float64
	for _, e := range matches {
		if e.Return4H != nil {
			r4 = append(r4, *e.Return4H)
		}
		if e.Return24H != nil {
			r24 = append(r24, *e.Return24H)
		}
		if e.Return3D != nil {
			r3d = append(r3d, *e.Return3D)
		}
	}

	out.AvgReturn4H = round6(mean(r4))
	out.AvgReturn24H = round6(mean(r24))
	out.AvgReturn3D = round6(mean(r3d))
	out.WinRate4H = round4(winRate(r4))
	out.WinRate24H = round4(winRate(r24))
	out.Count = len(matches)

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].MatchScore > matches[j].MatchScore })
	best := matches[0]
	out.BestAnalog = &best
	return out
}

// Summary reports record counts and the regime distribution.
func (r *RegimeMemory) Summary() RegimeMemorySummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	withReturns := 0
	dist := make(map[string]int)
	for _, e := range r.history {
		if e.Return4H != nil {
			withReturns++
		}
		dist[e.ShockState+"|"+e.FundingRegime+"|"+e.VolRegime]++
	}
	return RegimeMemorySummary{
		TotalRecords:       len(r.history),
		RecordsWithReturns: withReturns,
		RegimeDistribution: dist,
		TS:                 model.NowUTC(),
	}
}

// History returns the most recent records, oldest first.
func (r *RegimeMemory) History(limit int) []RegimeRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 || limit > len(r.history) {
		limit = len(r.history)
	}
	out := make([]RegimeRecord, limit)
	copy(out, r.history[len(r.history)-limit:])
	return out
}

func matchScore(e RegimeRecord, shockState, fundingRegime, volRegime string) int {
	score := 0
	if e.ShockState == shockState {
		score += 3
	}
	if e.FundingRegime == fundingRegime {
		score += 2
	}
	if e.VolRegime == volRegime {
		score += 1
	}
	return score
}

func winRate(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	wins := 0
	for _, r := range returns {
		if r > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(returns))
}
