package ingest

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"riskdesk/internal/model"
	"riskdesk/internal/store"
)

const (
	hyperliquidWSURL = "wss://api.hyperliquid.xyz/ws"
	hlCoin           = "SOL"

	hlPingInterval = 20 * time.Second
	hlMidTTL       = 60 * time.Second
	hlTradeTTL     = 60 * time.Second
	hlBookTTL      = 30 * time.Second

	hlBackoffInitial = time.Second
	hlBackoffMax     = 60 * time.Second
)

// HyperliquidWS maintains a streaming connection to the Hyperliquid exchange
// and mirrors mid prices, trades and the order book into the snapshot store.
// The connection reconnects with doubling backoff until the context ends.
type HyperliquidWS struct {
	url        string
	coin       string
	store      store.Store
	log        zerolog.Logger
	dialer     *websocket.Dialer
	backoff    time.Duration
	maxBackoff time.Duration

	// OnReconnect is an optional metrics hook fired before each
	// reconnection attempt.
	OnReconnect func()
}

func NewHyperliquidWS(st store.Store, backoffCap time.Duration, log zerolog.Logger) *HyperliquidWS {
	if backoffCap <= 0 {
		backoffCap = hlBackoffMax
	}
	return &HyperliquidWS{
		url:        hyperliquidWSURL,
		coin:       hlCoin,
		store:      st,
		log:        log,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		backoff:    hlBackoffInitial,
		maxBackoff: backoffCap,
	}
}

// Run blocks until ctx is cancelled, reconnecting across failures.
func (h *HyperliquidWS) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		err := h.runOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		h.log.Warn().Err(err).Dur("backoff", h.backoff).Msg("hyperliquid ws disconnected")
		if h.OnReconnect != nil {
			h.OnReconnect()
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(h.backoff):
		}
		h.backoff *= 2
		if h.backoff > h.maxBackoff {
			h.backoff = h.maxBackoff
		}
	}
}

func (h *HyperliquidWS) runOnce(ctx context.Context) error {
	conn, _, err := h.dialer.DialContext(ctx, h.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := h.subscribe(conn); err != nil {
		return err
	}
	h.log.Info().Str("coin", h.coin).Msg("hyperliquid ws connected")
	h.backoff = hlBackoffInitial

	done := make(chan struct{})
	defer close(done)
	go h.keepAlive(ctx, conn, done)

	for {
		conn.SetReadDeadline(time.Now().Add(2 * hlPingInterval))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		h.handleMessage(raw)
	}
}

func (h *HyperliquidWS) subscribe(conn *websocket.Conn) error {
	subs := []map[string]interface{}{
		{"type": "allMids"},
		{"type": "trades", "coin": h.coin},
		{"type": "l2Book", "coin": h.coin},
	}
	for _, sub := range subs {
		msg := map[string]interface{}{"method": "subscribe", "subscription": sub}
		if err := conn.WriteJSON(msg); err != nil {
			return err
		}
	}
	return nil
}

// keepAlive pings on the application channel; Hyperliquid drops connections
// that go quiet.
func (h *HyperliquidWS) keepAlive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(hlPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			conn.Close()
			return
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteJSON(map[string]string{"method": "ping"}); err != nil {
				return
			}
		}
	}
}

func (h *HyperliquidWS) handleMessage(raw []byte) {
	var envelope struct {
		Channel string          `json:"channel"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		h.log.Debug().Err(err).Msg("hyperliquid ws: unparseable frame")
		return
	}
	switch envelope.Channel {
	case "allMids":
		h.handleAllMids(envelope.Data)
	case "trades":
		h.handleTrades(envelope.Data)
	case "l2Book":
		h.handleL2Book(envelope.Data)
	}
}

func (h *HyperliquidWS) handleAllMids(data json.RawMessage) {
	var payload struct {
		Mids map[string]string `json:"mids"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	raw, ok := payload.Mids[h.coin]
	if !ok {
		return
	}
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil || price <= 0 {
		return
	}
	tick := model.PriceTick{
		Symbol:     h.coin + "/USD",
		Venue:      "hyperliquid",
		Price:      price,
		Confidence: hlConfidence,
		TS:         model.NowUTC(),
	}
	if err := storeTick(h.store, tick, hlMidTTL); err != nil {
		h.log.Warn().Err(err).Msg("hyperliquid mid store failed")
	}
}

func (h *HyperliquidWS) handleTrades(data json.RawMessage) {
	var trades []struct {
		Coin string `json:"coin"`
		Px   string `json:"px"`
		Sz   string `json:"sz"`
		Side string `json:"side"`
		Time int64  `json:"time"`
	}
	if err := json.Unmarshal(data, &trades); err != nil || len(trades) == 0 {
		return
	}
	last := trades[len(trades)-1]
	price, err := strconv.ParseFloat(last.Px, 64)
	if err != nil || price <= 0 {
		return
	}
	size, _ := strconv.ParseFloat(last.Sz, 64)
	snap := map[string]interface{}{
		"coin":  last.Coin,
		"price": price,
		"size":  size,
		"side":  last.Side,
		"ts":    NormalizeTimestamp(last.Time).Format(time.RFC3339Nano),
	}
	key := "price:hyperliquid:trade:" + last.Coin
	if err := h.store.Set(key, snap, hlTradeTTL); err != nil {
		h.log.Warn().Err(err).Msg("hyperliquid trade store failed")
	}
}

func (h *HyperliquidWS) handleL2Book(data json.RawMessage) {
	var book struct {
		Coin   string `json:"coin"`
		Levels [][]struct {
			Px string `json:"px"`
			Sz string `json:"sz"`
		} `json:"levels"`
		Time int64 `json:"time"`
	}
	if err := json.Unmarshal(data, &book); err != nil || len(book.Levels) < 2 {
		return
	}

	toLevels := func(side []struct {
		Px string `json:"px"`
		Sz string `json:"sz"`
	}) []interface{} {
		out := make([]interface{}, 0, len(side))
		for _, lvl := range side {
			px, err := strconv.ParseFloat(lvl.Px, 64)
			if err != nil {
				continue
			}
			sz, _ := strconv.ParseFloat(lvl.Sz, 64)
			out = append(out, map[string]interface{}{"price": px, "qty": sz})
		}
		return out
	}

	snap := map[string]interface{}{
		"venue":  "hyperliquid",
		"market": book.Coin,
		"bids":   toLevels(book.Levels[0]),
		"asks":   toLevels(book.Levels[1]),
		"ts":     NormalizeTimestamp(book.Time).Format(time.RFC3339Nano),
	}
	key := "orderbook:hyperliquid:" + book.Coin
	if err := h.store.Set(key, snap, hlBookTTL); err != nil {
		h.log.Warn().Err(err).Msg("hyperliquid book store failed")
	}
}
