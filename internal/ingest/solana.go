package ingest

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"riskdesk/internal/store"
)

const (
	solanaSlotTime = 400 * time.Millisecond
	solanaSnapTTL  = 120 * time.Second
)

// SolanaPoller probes the configured Solana RPC endpoint with getSlot and
// records request latency plus how far slot production lags wall clock
// between polls. Agents read the snapshot to detect chain congestion.
type SolanaPoller struct {
	client *pollerClient
	store  store.Store
	log    zerolog.Logger
	now    func() time.Time

	lastSlot int64
	lastAt   time.Time
}

func NewSolanaPoller(rpcURL string, st store.Store, log zerolog.Logger) *SolanaPoller {
	return &SolanaPoller{
		client: newPollerClient("solana", rpcURL, 10*time.Second, 2*time.Second),
		store:  st,
		log:    log,
		now:    time.Now,
	}
}

type solanaRPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

func (p *SolanaPoller) Poll(ctx context.Context) error {
	start := time.Now()
	var out struct {
		Result int64 `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	req := solanaRPCRequest{JSONRPC: "2.0", ID: 1, Method: "getSlot"}
	if err := p.client.post(ctx, "", req, &out); err != nil {
		return fmt.Errorf("solana getSlot: %w", err)
	}
	if out.Error != nil {
		return fmt.Errorf("solana getSlot: rpc error %d: %s", out.Error.Code, out.Error.Message)
	}
	if out.Result <= 0 {
		return fmt.Errorf("solana getSlot: empty result")
	}
	latencyMS := math.Round(float64(time.Since(start).Microseconds())/10) / 100

	// Slot delta is how many slots the chain fell behind wall clock since the
	// previous poll, at the nominal 400ms slot time. The first poll reports
	// zero because there is no baseline yet.
	now := p.now()
	var slotDelta int64
	if !p.lastAt.IsZero() && out.Result >= p.lastSlot {
		expected := int64(now.Sub(p.lastAt) / solanaSlotTime)
		observed := out.Result - p.lastSlot
		if d := expected - observed; d > 0 {
			slotDelta = d
		}
	}
	p.lastSlot = out.Result
	p.lastAt = now

	if err := p.store.Set(store.KeySolanaRPC, map[string]interface{}{
		"latency_ms": latencyMS,
		"slot":       out.Result,
		"slot_delta": slotDelta,
		"ts":         now.UTC().Format(time.RFC3339Nano),
	}, solanaSnapTTL); err != nil {
		return err
	}
	p.log.Debug().
		Float64("latency_ms", latencyMS).
		Int64("slot", out.Result).
		Int64("slot_delta", slotDelta).
		Msg("solana rpc probed")
	return nil
}
