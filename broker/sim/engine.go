package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rustyeddy/rebalancer/broker"
	"github.com/rustyeddy/rebalancer/market"
	"github.com/rustyeddy/rebalancer/pkg/id"
)

var (
	ErrInsufficientFunds = errors.New("insufficient buying power")
	ErrInsufficientQty   = errors.New("insufficient position qty")
	ErrNoPrice           = errors.New("no price")
)

// Engine is an in-memory cash brokerage. Market orders fill immediately at
// the last set price. It also serves market data, so one Engine can stand
// in for both collaborators in dry runs and tests.
type Engine struct {
	mu        sync.Mutex
	accountID string
	cash      float64
	positions map[string]*holding
	prices    map[string]float64
	history   map[string]market.Series
	open      bool
	now       func() time.Time

	failures map[string]error
	orders   []Order
}

type holding struct {
	qty      float64
	avgPrice float64
}

// Order is a filled order as seen by the simulator.
type Order struct {
	ID      string
	Request broker.OrderRequest
	Price   float64
	Time    time.Time
}

func NewEngine(accountID string, cash float64) *Engine {
	return &Engine{
		accountID: accountID,
		cash:      cash,
		positions: make(map[string]*holding),
		prices:    make(map[string]float64),
		history:   make(map[string]market.Series),
		failures:  make(map[string]error),
		open:      true,
		now:       time.Now,
	}
}

// SetClock overrides the engine's time source.
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

// SetMarketOpen sets what GetClock reports.
func (e *Engine) SetMarketOpen(open bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.open = open
}

// SetPrice sets the latest price. A non-positive price removes it.
func (e *Engine) SetPrice(symbol string, price float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sym := strings.ToUpper(symbol)
	if price <= 0 {
		delete(e.prices, sym)
		return
	}
	e.prices[sym] = price
}

// SetHistory stores daily bars for a symbol and, when non-empty, sets the
// latest price to the last close.
func (e *Engine) SetHistory(s market.Series) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sym := strings.ToUpper(s.Symbol)
	e.history[sym] = s.Sorted()
	if last, ok := s.Sorted().Last(); ok {
		e.prices[sym] = last.Close
	}
}

// SetPosition seeds a holding at the given average price.
func (e *Engine) SetPosition(symbol string, qty, avgPrice float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sym := strings.ToUpper(symbol)
	if qty == 0 {
		delete(e.positions, sym)
		return
	}
	e.positions[sym] = &holding{qty: qty, avgPrice: avgPrice}
}

// SetCash overrides the cash balance.
func (e *Engine) SetCash(cash float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cash = cash
}

// FailOrders makes every submission for symbol fail with err. A nil err
// clears the failure.
func (e *Engine) FailOrders(symbol string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sym := strings.ToUpper(symbol)
	if err == nil {
		delete(e.failures, sym)
		return
	}
	e.failures[sym] = err
}

// Orders returns filled orders in submission order.
func (e *Engine) Orders() []Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Order, len(e.orders))
	copy(out, e.orders)
	return out
}

func (e *Engine) GetAccount(ctx context.Context) (broker.Account, error) {
	if err := ctx.Err(); err != nil {
		return broker.Account{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	return broker.Account{
		ID:          e.accountID,
		Equity:      e.equityLocked(),
		Cash:        e.cash,
		BuyingPower: math.Max(e.cash, 0),
	}, nil
}

func (e *Engine) GetPositions(ctx context.Context) ([]broker.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	syms := make([]string, 0, len(e.positions))
	for s := range e.positions {
		syms = append(syms, s)
	}
	sort.Strings(syms)

	out := make([]broker.Position, 0, len(syms))
	for _, s := range syms {
		out = append(out, e.positionLocked(s))
	}
	return out, nil
}

func (e *Engine) GetPosition(ctx context.Context, symbol string) (broker.PositionLookup, error) {
	if err := ctx.Err(); err != nil {
		return broker.PositionLookup{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	sym := strings.ToUpper(symbol)
	if _, ok := e.positions[sym]; !ok {
		return broker.PositionLookup{}, nil
	}
	return broker.PositionLookup{Position: e.positionLocked(sym), Found: true}, nil
}

func (e *Engine) GetClock(ctx context.Context) (broker.Clock, error) {
	if err := ctx.Err(); err != nil {
		return broker.Clock{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return broker.Clock{Timestamp: e.now(), IsOpen: e.open}, nil
}

func (e *Engine) SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderAck, error) {
	if err := ctx.Err(); err != nil {
		return broker.OrderAck{}, err
	}
	if err := req.Validate(); err != nil {
		return broker.OrderAck{}, broker.Rejected(422, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	sym := strings.ToUpper(req.Symbol)
	if err, ok := e.failures[sym]; ok {
		return broker.OrderAck{}, broker.Rejected(400, err)
	}
	price, ok := e.prices[sym]
	if !ok {
		return broker.OrderAck{}, broker.Rejected(422, fmt.Errorf("%w for %s", ErrNoPrice, sym))
	}

	qty := float64(req.Qty)
	switch req.Side {
	case broker.Buy:
		cost := qty * price
		if cost > e.cash {
			return broker.OrderAck{}, broker.Rejected(403,
				fmt.Errorf("%w: need %.2f, have %.2f", ErrInsufficientFunds, cost, e.cash))
		}
		h := e.positions[sym]
		if h == nil {
			h = &holding{}
			e.positions[sym] = h
		}
		h.avgPrice = (h.avgPrice*h.qty + cost) / (h.qty + qty)
		h.qty += qty
		e.cash -= cost
	case broker.Sell:
		h := e.positions[sym]
		if h == nil || h.qty < qty {
			return broker.OrderAck{}, broker.Rejected(403, fmt.Errorf("%w: %s", ErrInsufficientQty, sym))
		}
		h.qty -= qty
		if h.qty == 0 {
			delete(e.positions, sym)
		}
		e.cash += qty * price
	}

	oid := id.NewAt(e.now())
	e.orders = append(e.orders, Order{ID: oid, Request: req, Price: price, Time: e.now()})

	return broker.OrderAck{
		BrokerOrderID: oid,
		ClientOrderID: req.ClientOrderID,
		Status:        "filled",
	}, nil
}

func (e *Engine) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.prices[strings.ToUpper(symbol)]
	if !ok {
		return 0, fmt.Errorf("latest price %s: %w", symbol, market.ErrDataUnavailable)
	}
	return p, nil
}

func (e *Engine) GetHistory(ctx context.Context, symbol string, start, end time.Time) (market.Series, error) {
	if err := ctx.Err(); err != nil {
		return market.Series{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.history[strings.ToUpper(symbol)]
	if !ok {
		return market.Series{}, fmt.Errorf("history %s: %w", symbol, market.ErrDataUnavailable)
	}
	out := market.Series{Symbol: s.Symbol}
	for _, b := range s.Bars {
		if b.Time.Before(start) {
			continue
		}
		if !end.IsZero() && b.Time.After(end) {
			continue
		}
		out.Bars = append(out.Bars, b)
	}
	if len(out.Bars) == 0 {
		return market.Series{}, fmt.Errorf("history %s: %w", symbol, market.ErrDataUnavailable)
	}
	return out, nil
}

func (e *Engine) positionLocked(sym string) broker.Position {
	h := e.positions[sym]
	price, ok := e.prices[sym]
	if !ok {
		price = h.avgPrice
	}
	return broker.Position{Symbol: sym, Qty: h.qty, MarketValue: h.qty * price}
}

func (e *Engine) equityLocked() float64 {
	eq := e.cash
	for sym := range e.positions {
		eq += e.positionLocked(sym).MarketValue
	}
	return eq
}
