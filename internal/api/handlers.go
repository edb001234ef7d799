package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"riskdesk/internal/model"
	"riskdesk/internal/replay"
	"riskdesk/internal/sandbox"
	"riskdesk/internal/store"
)

// snapshotKeys maps URL suffixes to store keys.
var snapshotKeys = map[string]string{
	"index":          store.KeyIndexLatest,
	"regime":         store.KeyRegimeLatest,
	"microstructure": store.KeyMicroLatest,
	"integrity":      store.KeyPriceIntegrity,
	"carry":          store.KeyCarryLatest,
	"stables":        store.KeyStableHealth,
	"prediction":     store.PredictionKey("latest"),
	"weights":        store.KeyWeightsLatest,
	"solana":         store.KeySolanaRPC,
	"divergence":     "divergence:latest",
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/api/v1/snapshots/")
	key, ok := snapshotKeys[name]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown snapshot: "+name)
		return
	}
	snap, ok := s.deps.Store.Get(key)
	if !ok {
		writeError(w, http.StatusNotFound, "no data for "+name)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	events := s.deps.Bus.Recent(limit)

	if want := r.URL.Query().Get("type"); want != "" {
		filtered := events[:0]
		for _, ev := range events {
			if string(ev.EventType) == want {
				filtered = append(filtered, ev)
			}
		}
		events = filtered
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

func (s *Server) handleRiskStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Risk.Status())
}

func (s *Server) handleRiskThrottle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var body struct {
		Active bool   `json:"active"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if body.Active {
		if body.Reason == "" {
			body.Reason = "manual"
		}
		s.deps.Risk.ActivateThrottle(body.Reason)
	} else {
		s.deps.Risk.DeactivateThrottle()
	}
	writeJSON(w, http.StatusOK, s.deps.Risk.Status())
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"positions": s.deps.Paper.Positions(),
	})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	if s.deps.Journal == nil {
		writeError(w, http.StatusNotFound, "trade journal disabled")
		return
	}
	trades, err := s.deps.Journal.GetTrades(queryInt(r, "limit", 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"trades": trades})
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req model.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if req.Venue == "" || req.Market == "" || req.Side == "" || req.Size <= 0 {
		writeError(w, http.StatusBadRequest, "venue, market, side and a positive size are required")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Router.RouteOrder(r.Context(), req))
}

func (s *Server) handleAgentSignals(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.deps.Store.Get(store.KeyAgentSignals)
	if !ok {
		writeError(w, http.StatusNotFound, "no agent signals yet")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleAgentEvaluate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	signals := s.deps.Agents.Evaluate()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"signals": signals,
		"count":   len(signals),
	})
}

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var body struct {
		Limit           int                    `json:"limit"`
		Start           time.Time              `json:"start"`
		End             time.Time              `json:"end"`
		StrategyOverlay map[string]interface{} `json:"strategy_overlay"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if body.Limit <= 0 {
		body.Limit = 1000
	}

	events := s.deps.Bus.Recent(body.Limit)
	report := s.deps.Replay.Run(events, replay.Options{
		StrategyOverlay: body.StrategyOverlay,
		Start:           body.Start,
		End:             body.End,
	})
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleReplayLatest(w http.ResponseWriter, r *http.Request) {
	latest := s.deps.Replay.Latest()
	if latest == nil {
		writeError(w, http.StatusNotFound, "no replay run yet")
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

func (s *Server) handleSandbox(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var body struct {
		ConfigA     sandbox.Config      `json:"config_a"`
		ConfigB     sandbox.Config      `json:"config_b"`
		MarketState sandbox.MarketState `json:"market_state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Sandbox.Run(body.ConfigA, body.ConfigB, body.MarketState))
}

func (s *Server) handleSandboxLatest(w http.ResponseWriter, r *http.Request) {
	latest := s.deps.Sandbox.Latest()
	if latest == nil {
		writeError(w, http.StatusNotFound, "no sandbox run yet")
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

func (s *Server) handleSandboxHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"history": s.deps.Sandbox.History(),
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
