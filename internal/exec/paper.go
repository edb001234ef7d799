package exec

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"riskdesk/internal/model"
)

type paperOrder struct {
	model.OrderRequest
	OrderID   string
	Status    string
	FillPrice float64
}

// PaperExecutor fills every order instantly at the supplied price and tracks
// positions with real flip/close arithmetic. It is the default executor and
// the fallback when a live venue is unavailable.
type PaperExecutor struct {
	bus Emitter
	log zerolog.Logger

	mu        sync.Mutex
	positions map[string]*model.Position
	orders    map[string]*paperOrder
}

func NewPaperExecutor(bus Emitter, log zerolog.Logger) *PaperExecutor {
	return &PaperExecutor{
		bus:       bus,
		log:       log,
		positions: make(map[string]*model.Position),
		orders:    make(map[string]*paperOrder),
	}
}

// Enabled is always true for the paper book.
func (p *PaperExecutor) Enabled() bool { return true }

// PlaceOrder fills the order at its limit price (0 when none was supplied),
// updates the position book, and emits ORDER_SENT and ORDER_FILLED carrying
// the data context.
func (p *PaperExecutor) PlaceOrder(_ context.Context, req model.OrderRequest, dataCtx model.DataContext) (model.OrderResult, error) {
	orderID := uuid.NewString()
	now := model.NowUTC()

	fillPrice := 0.0
	if req.Price > 0 {
		fillPrice = req.Price
	}

	p.emitOrderEvent(model.EventOrderSent, orderID, req, fillPrice, dataCtx,
		fmt.Sprintf("Paper %s %g %s @ %.4f", strings.ToUpper(req.Side), req.Size, req.Market, fillPrice))

	p.mu.Lock()
	p.orders[orderID] = &paperOrder{
		OrderRequest: req,
		OrderID:      orderID,
		Status:       model.StatusPaperFilled,
		FillPrice:    fillPrice,
	}
	p.updatePositionLocked(req.Venue, req.Market, req.Side, req.Size, fillPrice)
	p.mu.Unlock()

	p.emitOrderEvent(model.EventOrderFilled, orderID, req, fillPrice, dataCtx,
		fmt.Sprintf("Paper %s %g %s filled @ %.4f", strings.ToUpper(req.Side), req.Size, req.Market, fillPrice))

	p.log.Info().
		Str("venue", req.Venue).
		Str("market", req.Market).
		Str("side", req.Side).
		Float64("size", req.Size).
		Float64("price", fillPrice).
		Str("order_id", orderID).
		Msg("paper order filled")

	return model.OrderResult{
		OrderID:     orderID,
		Status:      model.StatusPaperFilled,
		FillPrice:   fillPrice,
		Venue:       req.Venue,
		Market:      req.Market,
		Side:        req.Side,
		Size:        req.Size,
		DataContext: dataCtx,
		TS:          now,
	}, nil
}

func (p *PaperExecutor) emitOrderEvent(t model.EventType, orderID string, req model.OrderRequest, fillPrice float64, dataCtx model.DataContext, message string) {
	if p.bus == nil {
		return
	}
	payload := map[string]interface{}{
		"order_id":     orderID,
		"venue":        req.Venue,
		"market":       req.Market,
		"side":         req.Side,
		"size":         req.Size,
		"price":        fillPrice,
		"message":      message,
		"data_context": dataCtx.Payload(),
	}
	p.bus.Emit(t, "paper_executor", payload)
}

// CancelOrder marks a known order cancelled; unknown ids report not_found.
func (p *PaperExecutor) CancelOrder(orderID string) model.OrderResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ord, ok := p.orders[orderID]; ok {
		ord.Status = model.StatusCancelled
		return model.OrderResult{OrderID: orderID, Status: model.StatusCancelled, TS: model.NowUTC()}
	}
	return model.OrderResult{OrderID: orderID, Status: model.StatusNotFound, TS: model.NowUTC()}
}

// Positions returns a copy of the paper book.
func (p *PaperExecutor) Positions() []model.Position {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]model.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, *pos)
	}
	return out
}

// updatePositionLocked applies one fill to the book. Same-sign adds VWAP the
// entry; a flip through zero resets the entry to the trade price; a partial
// close keeps the old entry. Caller holds p.mu.
func (p *PaperExecutor) updatePositionLocked(venue, market, side string, size, price float64) {
	key := venue + ":" + market
	signed := size
	if strings.ToLower(side) != "buy" {
		signed = -size
	}

	existing, ok := p.positions[key]
	if !ok {
		p.positions[key] = &model.Position{
			Venue:      venue,
			Market:     market,
			Size:       signed,
			EntryPrice: price,
		}
		return
	}

	oldSize := existing.Size
	newSize := oldSize + signed

	if abs(newSize) < 1e-12 {
		delete(p.positions, key)
		return
	}

	switch {
	case (oldSize > 0 && signed > 0) || (oldSize < 0 && signed < 0):
		totalCost := abs(oldSize)*existing.EntryPrice + abs(signed)*price
		existing.EntryPrice = totalCost / abs(newSize)
	case abs(newSize) >= abs(oldSize):
		// Flipped through zero: the surviving position opened at this fill.
		existing.EntryPrice = price
	default:
		// Partial close: the remainder keeps its original basis.
	}
	existing.Size = newSize
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
