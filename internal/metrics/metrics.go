// Package metrics exposes Prometheus instrumentation and a JSON health probe
// for the risk desk.
package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics holds all Prometheus metrics for the desk.
type Metrics struct {
	EventsEmitted  *prometheus.CounterVec // labels: event_type
	EventLogErrors prometheus.Counter

	IngestRuns     *prometheus.CounterVec // labels: job
	IngestFailures *prometheus.CounterVec // labels: job
	IngestDuration *prometheus.HistogramVec
	WSReconnects   prometheus.Counter

	OrdersRouted  *prometheus.CounterVec // labels: status
	RouteDuration prometheus.Histogram
	PaperBookSize prometheus.Gauge

	AgentSignals   *prometheus.CounterVec // labels: agent, severity
	RulesTriggered *prometheus.CounterVec // labels: rule

	TariffIndex    prometheus.Gauge
	ShockScore     prometheus.Gauge
	ThrottleActive prometheus.Gauge // 0 or 1

	ReplayRuns  prometheus.Counter
	SandboxRuns prometheus.Counter
}

// New registers and returns all desk metrics on the given registerer; pass
// nil to use the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		EventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riskdesk_events_emitted_total",
			Help: "Events emitted on the bus, by type",
		}, []string{"event_type"}),
		EventLogErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riskdesk_event_log_errors_total",
			Help: "Durable event log write failures",
		}),
		IngestRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riskdesk_ingest_runs_total",
			Help: "Completed ingest job runs, by job",
		}, []string{"job"}),
		IngestFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riskdesk_ingest_failures_total",
			Help: "Failed ingest job runs, by job",
		}, []string{"job"}),
		IngestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "riskdesk_ingest_duration_seconds",
			Help:    "Ingest job run duration",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"job"}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riskdesk_ws_reconnects_total",
			Help: "Hyperliquid WebSocket reconnection attempts",
		}),
		OrdersRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riskdesk_orders_routed_total",
			Help: "Orders through the execution router, by outcome status",
		}, []string{"status"}),
		RouteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "riskdesk_route_duration_seconds",
			Help:    "route_order decision latency",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		PaperBookSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "riskdesk_paper_positions",
			Help: "Open positions in the paper book",
		}),
		AgentSignals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riskdesk_agent_signals_total",
			Help: "Agent signals produced, by agent and severity",
		}, []string{"agent", "severity"}),
		RulesTriggered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riskdesk_rules_triggered_total",
			Help: "Rules engine triggers, by rule",
		}, []string{"rule"}),
		TariffIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "riskdesk_tariff_index",
			Help: "Latest composite tariff index value",
		}),
		ShockScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "riskdesk_shock_score",
			Help: "Latest news shock score",
		}),
		ThrottleActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "riskdesk_risk_throttle_active",
			Help: "Whether the risk throttle is engaged (0/1)",
		}),
		ReplayRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riskdesk_replay_runs_total",
			Help: "Completed replay runs",
		}),
		SandboxRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riskdesk_sandbox_runs_total",
			Help: "Completed sandbox comparisons",
		}),
	}

	reg.MustRegister(
		m.EventsEmitted, m.EventLogErrors,
		m.IngestRuns, m.IngestFailures, m.IngestDuration, m.WSReconnects,
		m.OrdersRouted, m.RouteDuration, m.PaperBookSize,
		m.AgentSignals, m.RulesTriggered,
		m.TariffIndex, m.ShockScore, m.ThrottleActive,
		m.ReplayRuns, m.SandboxRuns,
	)
	return m
}

// HealthStatus tracks liveness of the desk's dependencies.
type HealthStatus struct {
	mu sync.RWMutex

	WSConnected    bool
	LastTickTime   time.Time
	RedisConnected bool
	EventLogOK     bool
	SchedulerJobs  int

	RedisLatencyMs float64
	LastCheckAt    time.Time
	StartedAt      time.Time
}

func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now(), EventLogOK: true}
}

func (h *HealthStatus) SetWSConnected(v bool) {
	h.mu.Lock()
	h.WSConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetEventLogOK(v bool) {
	h.mu.Lock()
	h.EventLogOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSchedulerJobs(n int) {
	h.mu.Lock()
	h.SchedulerJobs = n
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency probes until ctx ends. rdb
// may be nil when the snapshot store is in-memory.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if rdb != nil {
					probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
					h.CheckRedis(probeCtx, rdb)
					cancel()
				} else {
					h.mu.Lock()
					h.LastCheckAt = time.Now()
					h.mu.Unlock()
				}
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.EventLogOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status         string  `json:"status"`
		Uptime         string  `json:"uptime"`
		WSConnected    bool    `json:"ws_connected"`
		LastTickTime   string  `json:"last_tick_time"`
		TickAge        string  `json:"tick_age"`
		RedisConnected bool    `json:"redis_connected"`
		RedisLatencyMs float64 `json:"redis_latency_ms"`
		EventLogOK     bool    `json:"event_log_ok"`
		SchedulerJobs  int     `json:"scheduler_jobs"`
		LastCheckAt    string  `json:"last_check_at"`
	}{
		Status:         overallStatus,
		Uptime:         time.Since(h.StartedAt).Round(time.Second).String(),
		WSConnected:    h.WSConnected,
		LastTickTime:   h.LastTickTime.Format(time.RFC3339),
		TickAge:        tickAge,
		RedisConnected: h.RedisConnected,
		RedisLatencyMs: h.RedisLatencyMs,
		EventLogOK:     h.EventLogOK,
		SchedulerJobs:  h.SchedulerJobs,
		LastCheckAt:    h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server exposes /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
	log    zerolog.Logger
}

func NewServer(addr string, health *HealthStatus, log zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv:    &http.Server{Addr: addr, Handler: mux},
		log:    log,
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("metrics server listening")
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("metrics server error")
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	if err := s.srv.Shutdown(ctx); err != nil {
		s.log.Warn().Err(err).Msg("metrics server shutdown")
	}
}
