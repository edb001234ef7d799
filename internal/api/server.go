// Package api exposes the desk over HTTP: snapshot and event reads, order
// submission through the execution router, risk throttle control, replay and
// sandbox runs, and a WebSocket event stream.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"riskdesk/internal/agent"
	"riskdesk/internal/bus"
	"riskdesk/internal/exec"
	"riskdesk/internal/metrics"
	"riskdesk/internal/replay"
	"riskdesk/internal/risk"
	"riskdesk/internal/sandbox"
	"riskdesk/internal/store"
)

// Deps are the desk components the API serves. Journal may be nil when the
// paper journal is disabled.
type Deps struct {
	Store   store.Store
	Bus     *bus.Bus
	Risk    *risk.Engine
	Router  *exec.Router
	Paper   *exec.PaperExecutor
	Journal *exec.Journal
	Agents  *agent.Coordinator
	Replay  *replay.Engine
	Sandbox *sandbox.Engine
	Health  *metrics.HealthStatus
}

// Server is the HTTP API front end.
type Server struct {
	deps Deps
	hub  *Hub
	addr string
	srv  *http.Server
	log  zerolog.Logger
}

func NewServer(addr string, deps Deps, log zerolog.Logger) *Server {
	s := &Server{
		deps: deps,
		hub:  NewHub(log),
		addr: addr,
		log:  log,
	}

	mux := http.NewServeMux()
	if deps.Health != nil {
		mux.HandleFunc("/api/v1/health", deps.Health.ServeHTTP)
	}
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/snapshots/", s.handleSnapshot)
	mux.HandleFunc("/api/v1/risk/status", s.handleRiskStatus)
	mux.HandleFunc("/api/v1/risk/throttle", s.handleRiskThrottle)
	mux.HandleFunc("/api/v1/positions", s.handlePositions)
	mux.HandleFunc("/api/v1/trades", s.handleTrades)
	mux.HandleFunc("/api/v1/orders", s.handleOrders)
	mux.HandleFunc("/api/v1/agents/signals", s.handleAgentSignals)
	mux.HandleFunc("/api/v1/agents/evaluate", s.handleAgentEvaluate)
	mux.HandleFunc("/api/v1/replay", s.handleReplay)
	mux.HandleFunc("/api/v1/replay/latest", s.handleReplayLatest)
	mux.HandleFunc("/api/v1/sandbox", s.handleSandbox)
	mux.HandleFunc("/api/v1/sandbox/latest", s.handleSandboxLatest)
	mux.HandleFunc("/api/v1/sandbox/history", s.handleSandboxHistory)
	mux.HandleFunc("/api/v1/stream", s.hub.HandleWS)

	s.srv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start launches the listener and the stream hub. The hub consumes a live
// bus subscription until ctx ends.
func (s *Server) Start(ctx context.Context) {
	if s.deps.Bus != nil {
		go s.hub.Run(ctx, s.deps.Bus.Subscribe())
	}
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("api server listening")
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("api server error")
		}
	}()
}

// Stop gracefully shuts down the listener.
func (s *Server) Stop(ctx context.Context) {
	if err := s.srv.Shutdown(ctx); err != nil {
		s.log.Warn().Err(err).Msg("api server shutdown")
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
