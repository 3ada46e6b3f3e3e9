package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Broker is the brokerage collaborator. Implementations must treat a
// network timeout as an error, never block indefinitely.
type Broker interface {
	GetAccount(ctx context.Context) (Account, error)
	GetPositions(ctx context.Context) ([]Position, error)
	GetPosition(ctx context.Context, symbol string) (PositionLookup, error)
	GetClock(ctx context.Context) (Clock, error)
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderAck, error)
}

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

type OrderType string

const (
	Market OrderType = "market"
	Limit  OrderType = "limit"
)

type TimeInForce string

const (
	Day TimeInForce = "day"
	GTC TimeInForce = "gtc"
)

// Account is a point-in-time snapshot. It is read fresh at the start of
// every run and never mutated.
type Account struct {
	ID          string  `json:"id"`
	Equity      float64 `json:"equity"`
	Cash        float64 `json:"cash"`
	BuyingPower float64 `json:"buying_power"`
}

type Position struct {
	Symbol      string  `json:"symbol"`
	Qty         float64 `json:"qty"`
	MarketValue float64 `json:"market_value"`
}

// PositionLookup separates "no position" from a failed query: a lookup
// that returns a nil error with Found == false means the account holds
// nothing in the symbol.
type PositionLookup struct {
	Position
	Found bool
}

type Clock struct {
	Timestamp time.Time `json:"timestamp"`
	IsOpen    bool      `json:"is_open"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
}

type OrderRequest struct {
	Symbol        string
	Qty           int64
	Side          Side
	Type          OrderType
	TimeInForce   TimeInForce
	ClientOrderID string

	// Optional bracket legs.
	TakeProfit *float64
	StopLoss   *float64
}

// Validate rejects requests that must never reach a brokerage.
func (r OrderRequest) Validate() error {
	if strings.TrimSpace(r.Symbol) == "" {
		return errors.New("order symbol is required")
	}
	if r.Qty <= 0 {
		return fmt.Errorf("order qty must be positive, got %d", r.Qty)
	}
	if r.Side != Buy && r.Side != Sell {
		return fmt.Errorf("unknown order side %q", r.Side)
	}
	if r.ClientOrderID == "" {
		return errors.New("client order id is required")
	}
	return nil
}

// Bracket reports whether the request carries take-profit or stop-loss legs.
func (r OrderRequest) Bracket() bool {
	return r.TakeProfit != nil || r.StopLoss != nil
}

type OrderAck struct {
	BrokerOrderID string `json:"broker_order_id"`
	ClientOrderID string `json:"client_order_id"`
	Status        string `json:"status"`
}

// PositionsBySymbol indexes positions by upper-cased symbol.
func PositionsBySymbol(ps []Position) map[string]Position {
	out := make(map[string]Position, len(ps))
	for _, p := range ps {
		out[strings.ToUpper(p.Symbol)] = p
	}
	return out
}
