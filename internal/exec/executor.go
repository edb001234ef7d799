// Package exec routes orders through the desk's gates (price freshness,
// integrity, risk, execution agent) to the paper executor or a live venue
// adapter, emitting an event for every transition.
package exec

import (
	"context"

	"riskdesk/internal/model"
)

// Emitter is the slice of the event bus the execution path needs.
type Emitter interface {
	Emit(eventType model.EventType, source string, payload map[string]interface{}) string
}

// Executor places and cancels orders against one venue (or the paper book).
type Executor interface {
	// PlaceOrder submits the order. The data context travels with the order
	// so fills can be audited against the market data they saw.
	PlaceOrder(ctx context.Context, req model.OrderRequest, dataCtx model.DataContext) (model.OrderResult, error)

	// CancelOrder cancels a resting order by id.
	CancelOrder(orderID string) model.OrderResult

	// Positions returns the executor's current book.
	Positions() []model.Position

	// Enabled reports whether the executor can accept orders.
	Enabled() bool
}

// RiskChecker is the guardrail gate the router consults before execution.
type RiskChecker interface {
	CheckConstraints(positions []model.Position, action model.OrderRequest, executionMode string) (bool, []string)
}

// PreTradeChecker is the execution agent's market-condition gate, consulted
// in live mode only.
type PreTradeChecker interface {
	PreTradeCheck(req model.OrderRequest, marketState map[string]interface{}) (bool, []string)
}
