package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskdesk/internal/agent"
	"riskdesk/internal/bus"
	"riskdesk/internal/exec"
	"riskdesk/internal/metrics"
	"riskdesk/internal/model"
	"riskdesk/internal/replay"
	"riskdesk/internal/risk"
	"riskdesk/internal/sandbox"
	"riskdesk/internal/store"
)

func newTestServer(t *testing.T) (*Server, store.Store, *bus.Bus) {
	t.Helper()
	nop := zerolog.Nop()
	st := store.NewMemory()
	evbus := bus.New(64, nil, nop)

	riskEngine := risk.NewEngine(3.0, 0.6, 500.0, time.Minute, st, nop)
	paper := exec.NewPaperExecutor(evbus, nop)
	router := exec.NewRouter(exec.RouterConfig{Mode: "paper"}, evbus, riskEngine, nil, st, paper, nil, nop)

	deps := Deps{
		Store:   st,
		Bus:     evbus,
		Risk:    riskEngine,
		Router:  router,
		Paper:   paper,
		Agents:  agent.NewCoordinator(st, evbus, nop),
		Replay:  replay.NewEngine(evbus, nop),
		Sandbox: sandbox.NewEngine(evbus, nop),
		Health:  metrics.NewHealthStatus(),
	}
	return NewServer(":0", deps, nop), st, evbus
}

func doJSON(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, req)

	out := map[string]interface{}{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestSnapshotEndpoint(t *testing.T) {
	s, st, _ := newTestServer(t)
	require.NoError(t, st.Set(store.KeyIndexLatest, map[string]interface{}{
		"tariff_index": 42.5,
	}, 0))

	rec, out := doJSON(t, s, "GET", "/api/v1/snapshots/index", "")
	require.Equal(t, 200, rec.Code)
	assert.Equal(t, 42.5, out["tariff_index"])

	rec, _ = doJSON(t, s, "GET", "/api/v1/snapshots/regime", "")
	assert.Equal(t, 404, rec.Code)

	rec, _ = doJSON(t, s, "GET", "/api/v1/snapshots/bogus", "")
	assert.Equal(t, 404, rec.Code)
}

func TestEventsEndpointFiltersByType(t *testing.T) {
	s, _, evbus := newTestServer(t)
	evbus.Emit(model.EventIndexUpdate, "test", map[string]interface{}{"n": 1})
	evbus.Emit(model.EventShockSpike, "test", map[string]interface{}{"n": 2})
	evbus.Emit(model.EventIndexUpdate, "test", map[string]interface{}{"n": 3})

	rec, out := doJSON(t, s, "GET", "/api/v1/events?type=INDEX_UPDATE", "")
	require.Equal(t, 200, rec.Code)
	assert.Equal(t, 2.0, out["count"])
}

func TestRiskThrottleToggle(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec, out := doJSON(t, s, "POST", "/api/v1/risk/throttle", `{"active":true,"reason":"drill"}`)
	require.Equal(t, 200, rec.Code)
	assert.Equal(t, true, out["throttle_active"])
	assert.Equal(t, "drill", out["throttle_reason"])

	rec, out = doJSON(t, s, "POST", "/api/v1/risk/throttle", `{"active":false}`)
	require.Equal(t, 200, rec.Code)
	assert.Equal(t, false, out["throttle_active"])

	rec, _ = doJSON(t, s, "GET", "/api/v1/risk/throttle", "")
	assert.Equal(t, 405, rec.Code)
}

func TestOrdersEndpointRoutesPaperFill(t *testing.T) {
	s, st, _ := newTestServer(t)
	require.NoError(t, st.Set(store.PriceKey("pyth", "SOL_USD"), map[string]interface{}{
		"price": 150.0,
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
	}, 0))

	rec, out := doJSON(t, s, "POST", "/api/v1/orders",
		`{"venue":"hyperliquid","market":"SOL-PERP","side":"buy","size":0.5}`)
	require.Equal(t, 200, rec.Code)
	assert.Equal(t, model.StatusPaperFilled, out["status"])
	assert.NotEmpty(t, out["order_id"])
}

func TestOrdersEndpointValidatesBody(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec, _ := doJSON(t, s, "POST", "/api/v1/orders", `{"venue":"hyperliquid"}`)
	assert.Equal(t, 400, rec.Code)

	rec, _ = doJSON(t, s, "GET", "/api/v1/orders", "")
	assert.Equal(t, 405, rec.Code)
}

func TestOrdersEndpointBlocksWithoutPrice(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec, out := doJSON(t, s, "POST", "/api/v1/orders",
		`{"venue":"hyperliquid","market":"SOL-PERP","side":"buy","size":0.5}`)
	require.Equal(t, 200, rec.Code)
	assert.Equal(t, model.StatusBlocked, out["status"])
}

func TestReplayEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec, out := doJSON(t, s, "POST", "/api/v1/replay", `{"limit":10}`)
	require.Equal(t, 200, rec.Code)
	assert.Equal(t, "completed", out["status"])

	rec, _ = doJSON(t, s, "GET", "/api/v1/replay/latest", "")
	assert.Equal(t, 200, rec.Code)
}

func TestSandboxEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec, out := doJSON(t, s, "POST", "/api/v1/sandbox", `{}`)
	require.Equal(t, 200, rec.Code)
	assert.Equal(t, "A", out["winner"])

	rec, _ = doJSON(t, s, "GET", "/api/v1/sandbox/latest", "")
	assert.Equal(t, 200, rec.Code)

	rec, out = doJSON(t, s, "GET", "/api/v1/sandbox/history", "")
	require.Equal(t, 200, rec.Code)
	history, ok := out["history"].([]interface{})
	require.True(t, ok)
	assert.Len(t, history, 1)
}

func TestAgentEvaluateEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec, out := doJSON(t, s, "POST", "/api/v1/agents/evaluate", "")
	require.Equal(t, 200, rec.Code)
	assert.NotNil(t, out["count"])

	// Evaluate persists the signal snapshot for the read endpoint.
	rec, _ = doJSON(t, s, "GET", "/api/v1/agents/signals", "")
	assert.Equal(t, 200, rec.Code)
}

func TestReplayLatestEmptyIs404(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec, _ := doJSON(t, s, "GET", "/api/v1/replay/latest", "")
	assert.Equal(t, 404, rec.Code)
}

func TestStreamBroadcastAndFilter(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(filterMsg{EventTypes: []string{"SHOCK_SPIKE"}}))

	// Wait for the filter to land before broadcasting.
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		for c := range hub.clients {
			if c.wants(model.EventShockSpike) && !c.wants(model.EventIndexUpdate) {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	hub.broadcast(model.Event{ID: "e1", EventType: model.EventIndexUpdate})
	hub.broadcast(model.Event{ID: "e2", EventType: model.EventShockSpike})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev model.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "e2", ev.ID)
	assert.Equal(t, model.EventShockSpike, ev.EventType)
}
