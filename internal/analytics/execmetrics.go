package analytics

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"riskdesk/internal/model"
	"riskdesk/internal/ringbuf"
)

// Execution quality tuning.
const (
	ExecRollingWindow            = 100
	SlippageAnomalyThresholdBPS  = 50.0
	SlippageAnomalyZScore        = 2.5
)

// FillRecord is one executed fill with derived latency and slippage.
type FillRecord struct {
	OrderTS           time.Time `json:"order_ts"`
	FillTS            time.Time `json:"fill_ts"`
	ExpectedPrice     float64   `json:"expected_price"`
	FillPrice         float64   `json:"fill_price"`
	Venue             string    `json:"venue"`
	Market            string    `json:"market"`
	LatencyMS         float64   `json:"latency_ms"`
	SlippageBPS       float64   `json:"slippage_bps"`
	SignedSlippageBPS float64   `json:"signed_slippage_bps"`
	RecordedAt        time.Time `json:"recorded_at"`
}

// SlippageAnomaly explains whether one fill's slippage is out of line.
type SlippageAnomaly struct {
	IsAnomaly    bool    `json:"is_anomaly"`
	SlippageBPS  float64 `json:"slippage_bps"`
	Venue        string  `json:"venue"`
	Method       string  `json:"method"` // absolute_threshold | z_score
	ThresholdBPS float64 `json:"threshold_bps,omitempty"`
	ZScore       float64 `json:"z_score,omitempty"`
	ZThreshold   float64 `json:"z_threshold,omitempty"`
	MeanBPS      float64 `json:"mean_bps,omitempty"`
	StdBPS       float64 `json:"std_bps,omitempty"`
	Reason       string  `json:"reason"`
}

// VenueExecStats are execution quality aggregates for one venue.
type VenueExecStats struct {
	FillCount       int     `json:"fill_count"`
	LatencyP50MS    float64 `json:"latency_p50_ms"`
	LatencyP95MS    float64 `json:"latency_p95_ms"`
	SlippageMeanBPS float64 `json:"slippage_mean_bps"`
	SlippageP95BPS  float64 `json:"slippage_p95_bps"`
}

// EQIReport is the execution quality index: latency and slippage percentiles
// rolled into a 0-100 score.
type EQIReport struct {
	EQIScore        float64                   `json:"eqi_score"`
	FillCount       int                       `json:"fill_count"`
	LatencyP50MS    float64                   `json:"latency_p50_ms"`
	LatencyP95MS    float64                   `json:"latency_p95_ms"`
	SlippageMeanBPS float64                   `json:"slippage_mean_bps"`
	SlippageP50BPS  float64                   `json:"slippage_p50_bps"`
	SlippageP95BPS  float64                   `json:"slippage_p95_bps"`
	Anomalies       []SlippageAnomaly         `json:"anomalies"`
	VenueBreakdown  map[string]VenueExecStats `json:"venue_breakdown"`
	TS              time.Time                 `json:"ts"`
}

// ExecutionMetrics tracks per-fill latency and slippage over rolling windows
// and scores overall execution quality.
type ExecutionMetrics struct {
	mu       sync.Mutex
	window   int
	byVenue  map[string]*ringbuf.Ring[FillRecord]
	allFills *ringbuf.Ring[FillRecord]
}

func NewExecutionMetrics(rollingWindow int) *ExecutionMetrics {
	if rollingWindow <= 0 {
		rollingWindow = ExecRollingWindow
	}
	return &ExecutionMetrics{
		window:   rollingWindow,
		byVenue:  make(map[string]*ringbuf.Ring[FillRecord]),
		allFills: ringbuf.New[FillRecord](rollingWindow * 10),
	}
}

// RecordFill derives latency and slippage for one fill and stores it.
func (m *ExecutionMetrics) RecordFill(orderTS, fillTS time.Time, expectedPrice, fillPrice float64, venue, market string) FillRecord {
	latencyMS := fillTS.Sub(orderTS).Seconds() * 1000.0
	if latencyMS < 0 {
		latencyMS = 0
	}

	var slippageBPS, signedBPS float64
	if expectedPrice > 0 {
		signedBPS = (fillPrice - expectedPrice) / expectedPrice * 10000.0
		slippageBPS = signedBPS
		if slippageBPS < 0 {
			slippageBPS = -slippageBPS
		}
	}

	rec := FillRecord{
		OrderTS:           orderTS,
		FillTS:            fillTS,
		ExpectedPrice:     expectedPrice,
		FillPrice:         fillPrice,
		Venue:             venue,
		Market:            market,
		LatencyMS:         latencyMS,
		SlippageBPS:       slippageBPS,
		SignedSlippageBPS: signedBPS,
		RecordedAt:        model.NowUTC(),
	}

	m.mu.Lock()
	ring, ok := m.byVenue[venue]
	if !ok {
		ring = ringbuf.New[FillRecord](m.window)
		m.byVenue[venue] = ring
	}
	ring.Push(rec)
	m.allFills.Push(rec)
	m.mu.Unlock()

	return rec
}

// EQI computes the execution quality index over all recorded fills. An empty
// history scores a clean 100.
func (m *ExecutionMetrics) EQI() EQIReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.allFills.Values()
	report := EQIReport{
		EQIScore:       100.0,
		Anomalies:      []SlippageAnomaly{},
		VenueBreakdown: map[string]VenueExecStats{},
		TS:             model.NowUTC(),
	}
	if len(all) == 0 {
		return report
	}

	latencies := make([]float64, 0, len(all))
	slippages := make([]float64, 0, len(all))
	for _, r := range all {
		latencies = append(latencies, r.LatencyMS)
		slippages = append(slippages, r.SlippageBPS)
	}
	sort.Float64s(latencies)
	sort.Float64s(slippages)

	latP95 := percentile(latencies, 95)
	slipP95 := percentile(slippages, 95)

	latencyScore := maxFloat(0, 100.0-latP95/10.0)
	slippageScore := maxFloat(0, 100.0-slipP95/5.0)
	eqi := clampFloat(latencyScore*0.4+slippageScore*0.6, 0, 100)

	report.EQIScore = round2(eqi)
	report.FillCount = len(all)
	report.LatencyP50MS = round2(percentile(latencies, 50))
	report.LatencyP95MS = round2(latP95)
	report.SlippageMeanBPS = round2(mean(slippages))
	report.SlippageP50BPS = round2(percentile(slippages, 50))
	report.SlippageP95BPS = round2(slipP95)

	// Scan the most recent fills for anomalies.
	start := len(all) - 20
	if start < 0 {
		start = 0
	}
	for _, r := range all[start:] {
		if a := m.detectAnomalyLocked(r.SlippageBPS, r.Venue); a.IsAnomaly {
			report.Anomalies = append(report.Anomalies, a)
		}
	}

	for venue, ring := range m.byVenue {
		recs := ring.Values()
		if len(recs) == 0 {
			continue
		}
		vLats := make([]float64, 0, len(recs))
		vSlips := make([]float64, 0, len(recs))
		for _, r := range recs {
			vLats = append(vLats, r.LatencyMS)
			vSlips = append(vSlips, r.SlippageBPS)
		}
		sort.Float64s(vLats)
		sort.Float64s(vSlips)
		report.VenueBreakdown[venue] = VenueExecStats{
			FillCount:       len(recs),
			LatencyP50MS:    round2(percentile(vLats, 50)),
			LatencyP95MS:    round2(percentile(vLats, 95)),
			SlippageMeanBPS: round2(mean(vSlips)),
			SlippageP95BPS:  round2(percentile(vSlips, 95)),
		}
	}
	return report
}

// DetectSlippageAnomaly checks one slippage reading against the venue's
// history: z-score when enough spread exists, absolute threshold otherwise.
func (m *ExecutionMetrics) DetectSlippageAnomaly(slippageBPS float64, venue string) SlippageAnomaly {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detectAnomalyLocked(slippageBPS, venue)
}

func (m *ExecutionMetrics) detectAnomalyLocked(slippageBPS float64, venue string) SlippageAnomaly {
	var historical []float64
	if ring, ok := m.byVenue[venue]; ok {
		for _, r := range ring.Values() {
			historical = append(historical, r.SlippageBPS)
		}
	}

	if len(historical) < 5 {
		isAnomaly := slippageBPS > SlippageAnomalyThresholdBPS
		reason := "within threshold"
		if isAnomaly {
			reason = fmt.Sprintf("slippage %.1fbps exceeds threshold %.0fbps", slippageBPS, SlippageAnomalyThresholdBPS)
		}
		return SlippageAnomaly{
			IsAnomaly:    isAnomaly,
			SlippageBPS:  round2(slippageBPS),
			Venue:        venue,
			Method:       "absolute_threshold",
			ThresholdBPS: SlippageAnomalyThresholdBPS,
			Reason:       reason,
		}
	}

	meanSlip := mean(historical)
	stdSlip := populationStd(historical)

	if stdSlip < 0.01 {
		isAnomaly := slippageBPS > SlippageAnomalyThresholdBPS
		reason := "within threshold"
		if isAnomaly {
			reason = fmt.Sprintf("low variance, absolute check: %.1fbps vs %.0fbps", slippageBPS, SlippageAnomalyThresholdBPS)
		}
		return SlippageAnomaly{
			IsAnomaly:    isAnomaly,
			SlippageBPS:  round2(slippageBPS),
			Venue:        venue,
			Method:       "absolute_threshold",
			ThresholdBPS: SlippageAnomalyThresholdBPS,
			MeanBPS:      round2(meanSlip),
			StdBPS:       round2(stdSlip),
			Reason:       reason,
		}
	}

	z := (slippageBPS - meanSlip) / stdSlip
	isAnomaly := z > SlippageAnomalyZScore || slippageBPS > SlippageAnomalyThresholdBPS
	reason := "within normal range"
	if isAnomaly {
		reason = fmt.Sprintf("z_score=%.2f exceeds %.1f", z, SlippageAnomalyZScore)
	}
	return SlippageAnomaly{
		IsAnomaly:   isAnomaly,
		SlippageBPS: round2(slippageBPS),
		Venue:       venue,
		Method:      "z_score",
		ZScore:      round2(z),
		ZThreshold:  SlippageAnomalyZScore,
		MeanBPS:     round2(meanSlip),
		StdBPS:      round2(stdSlip),
		Reason:      reason,
	}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
