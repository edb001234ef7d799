package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"riskdesk/internal/bus"
	"riskdesk/internal/model"
)

const (
	streamSendBuffer = 256
	streamPingPeriod = 30 * time.Second
	streamWriteWait  = 10 * time.Second
)

// Hub fans bus events out to WebSocket clients. Delivery is best-effort: a
// slow client drops events, never the hub.
type Hub struct {
	log      zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*streamClient]bool
}

// streamClient is one WebSocket peer with an optional event-type filter.
type streamClient struct {
	conn *websocket.Conn
	send chan []byte

	mu    sync.RWMutex
	types map[model.EventType]struct{} // nil = all types
}

// filterMsg is the client -> server subscription update.
type filterMsg struct {
	EventTypes []string `json:"event_types"`
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*streamClient]bool),
	}
}

// Run consumes the bus subscription and broadcasts until ctx ends.
func (h *Hub) Run(ctx context.Context, sub *bus.Subscription) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case ev, ok := <-sub.C:
			if !ok {
				h.closeAll()
				return
			}
			h.broadcast(ev)
		}
	}
}

// HandleWS upgrades the connection and registers the peer.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}

	c := &streamClient{
		conn: conn,
		send: make(chan []byte, streamSendBuffer),
	}

	h.mu.Lock()
	h.clients[c] = true
	clientCount := len(h.clients)
	h.mu.Unlock()
	h.log.Info().Int("clients", clientCount).Msg("stream client connected")

	go c.writePump()
	go h.readLoop(c)
}

func (h *Hub) readLoop(c *streamClient) {
	defer h.drop(c)
	c.conn.SetReadLimit(4096)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg filterMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		c.setFilter(msg.EventTypes)
	}
}

func (h *Hub) broadcast(ev model.Event) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(ev.EventType) {
			continue
		}
		select {
		case c.send <- raw:
		default:
			// Slow consumer; this event is lost for them.
		}
	}
}

func (h *Hub) drop(c *streamClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	c.conn.Close()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		c.conn.Close()
	}
	h.mu.Unlock()
}

func (c *streamClient) setFilter(types []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(types) == 0 {
		c.types = nil
		return
	}
	c.types = make(map[model.EventType]struct{}, len(types))
	for _, t := range types {
		c.types[model.EventType(t)] = struct{}{}
	}
}

func (c *streamClient) wants(t model.EventType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.types == nil {
		return true
	}
	_, ok := c.types[t]
	return ok
}

func (c *streamClient) writePump() {
	ticker := time.NewTicker(streamPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
