// Package alpaca adapts the Alpaca trading and market data APIs to the
// broker.Broker and market.Provider contracts.
package alpaca

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	alpacaapi "github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rustyeddy/rebalancer/broker"
	"github.com/rustyeddy/rebalancer/market"
	"github.com/rustyeddy/rebalancer/pkg/logging"
)

// tradingAPI is the subset of *alpaca.Client the adapter uses.
type tradingAPI interface {
	GetAccount() (*alpacaapi.Account, error)
	GetPositions() ([]alpacaapi.Position, error)
	GetPosition(symbol string) (*alpacaapi.Position, error)
	GetClock() (*alpacaapi.Clock, error)
	PlaceOrder(req alpacaapi.PlaceOrderRequest) (*alpacaapi.Order, error)
}

// dataAPI is the subset of *marketdata.Client the adapter uses.
type dataAPI interface {
	GetLatestTrade(symbol string, req marketdata.GetLatestTradeRequest) (*marketdata.Trade, error)
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

type Client struct {
	trading tradingAPI
	data    dataAPI
	log     *zap.Logger
}

var (
	_ broker.Broker   = (*Client)(nil)
	_ market.Provider = (*Client)(nil)
)

func New(cfg Config, log *zap.Logger) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	base, err := cfg.endpoint()
	if err != nil {
		return nil, err
	}

	trading := alpacaapi.NewClient(alpacaapi.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		BaseURL:   base,
	})
	data := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	})

	return newClient(trading, data, log), nil
}

func newClient(t tradingAPI, d dataAPI, log *zap.Logger) *Client {
	return &Client{trading: t, data: d, log: logging.OrNop(log)}
}

func (c *Client) GetAccount(ctx context.Context) (broker.Account, error) {
	if err := ctx.Err(); err != nil {
		return broker.Account{}, err
	}
	a, err := c.trading.GetAccount()
	if err != nil {
		return broker.Account{}, wrap("get account", err)
	}
	return toAccount(a)
}

func (c *Client) GetPositions(ctx context.Context) ([]broker.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ps, err := c.trading.GetPositions()
	if err != nil {
		return nil, wrap("get positions", err)
	}
	out := make([]broker.Position, 0, len(ps))
	for _, p := range ps {
		bp, err := toPosition(p)
		if err != nil {
			return nil, err
		}
		out = append(out, bp)
	}
	return out, nil
}

// GetPosition maps Alpaca's 404 to a not-found lookup; every other
// failure is returned as an error.
func (c *Client) GetPosition(ctx context.Context, symbol string) (broker.PositionLookup, error) {
	if err := ctx.Err(); err != nil {
		return broker.PositionLookup{}, err
	}
	p, err := c.trading.GetPosition(strings.ToUpper(symbol))
	if err != nil {
		var apiErr *alpacaapi.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return broker.PositionLookup{}, nil
		}
		return broker.PositionLookup{}, wrap("get position "+symbol, err)
	}
	if p == nil {
		return broker.PositionLookup{}, nil
	}
	bp, err := toPosition(*p)
	if err != nil {
		return broker.PositionLookup{}, err
	}
	return broker.PositionLookup{Position: bp, Found: true}, nil
}

func (c *Client) GetClock(ctx context.Context) (broker.Clock, error) {
	if err := ctx.Err(); err != nil {
		return broker.Clock{}, err
	}
	clk, err := c.trading.GetClock()
	if err != nil {
		return broker.Clock{}, wrap("get clock", err)
	}
	return broker.Clock{
		Timestamp: clk.Timestamp,
		IsOpen:    clk.IsOpen,
		NextOpen:  clk.NextOpen,
		NextClose: clk.NextClose,
	}, nil
}

func (c *Client) SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderAck, error) {
	if err := ctx.Err(); err != nil {
		return broker.OrderAck{}, err
	}
	if err := req.Validate(); err != nil {
		return broker.OrderAck{}, broker.Rejected(0, err)
	}

	o, err := c.trading.PlaceOrder(toPlaceOrder(req))
	if err != nil {
		status := 0
		var apiErr *alpacaapi.APIError
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return broker.OrderAck{}, broker.Rejected(status, err)
	}

	c.log.Debug("order accepted",
		zap.String("symbol", req.Symbol),
		zap.String("client_id", req.ClientOrderID),
		zap.String("order_id", o.ID),
		zap.String("status", string(o.Status)))

	return broker.OrderAck{
		BrokerOrderID: o.ID,
		ClientOrderID: o.ClientOrderID,
		Status:        string(o.Status),
	}, nil
}

// GetLatestPrice returns the last trade price, falling back to the most
// recent daily close when no trade is available.
func (c *Client) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	sym := strings.ToUpper(symbol)

	tr, err := c.data.GetLatestTrade(sym, marketdata.GetLatestTradeRequest{})
	if err == nil && tr != nil && tr.Price > 0 {
		return tr.Price, nil
	}
	if err != nil {
		c.log.Debug("latest trade unavailable, trying daily bar", zap.String("symbol", sym), zap.Error(err))
	}

	bars, berr := c.data.GetBars(sym, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     time.Now().AddDate(0, 0, -10),
	})
	if berr != nil || len(bars) == 0 || bars[len(bars)-1].Close <= 0 {
		return 0, fmt.Errorf("latest price %s: %w", sym, market.ErrDataUnavailable)
	}
	return bars[len(bars)-1].Close, nil
}

func (c *Client) GetHistory(ctx context.Context, symbol string, start, end time.Time) (market.Series, error) {
	if err := ctx.Err(); err != nil {
		return market.Series{}, err
	}
	sym := strings.ToUpper(symbol)

	bars, err := c.data.GetBars(sym, marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneDay,
		Adjustment: marketdata.Raw,
		Start:      start,
		End:        end,
	})
	if err != nil {
		return market.Series{}, fmt.Errorf("history %s: %w: %v", sym, market.ErrDataUnavailable, err)
	}
	if len(bars) == 0 {
		return market.Series{}, fmt.Errorf("history %s: %w", sym, market.ErrDataUnavailable)
	}
	return toSeries(sym, bars), nil
}

func wrap(op string, err error) error {
	be := &broker.Error{Op: op, Msg: err.Error(), Err: err}
	var apiErr *alpacaapi.APIError
	if errors.As(err, &apiErr) {
		be.StatusCode = apiErr.StatusCode
	}
	return be
}

func toAccount(a *alpacaapi.Account) (broker.Account, error) {
	if a == nil {
		return broker.Account{}, fmt.Errorf("account: %w", market.ErrDataUnavailable)
	}
	return broker.Account{
		ID:          a.ID,
		Equity:      a.Equity.InexactFloat64(),
		Cash:        a.Cash.InexactFloat64(),
		BuyingPower: a.BuyingPower.InexactFloat64(),
	}, nil
}

func toPosition(p alpacaapi.Position) (broker.Position, error) {
	if p.MarketValue == nil {
		return broker.Position{}, fmt.Errorf("position %s market value: %w", p.Symbol, market.ErrDataUnavailable)
	}
	return broker.Position{
		Symbol:      strings.ToUpper(p.Symbol),
		Qty:         p.Qty.InexactFloat64(),
		MarketValue: p.MarketValue.InexactFloat64(),
	}, nil
}

// cents rounds a price to the penny; Alpaca rejects sub-penny bracket legs.
func cents(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v).Round(2)
	return &d
}

func toPlaceOrder(req broker.OrderRequest) alpacaapi.PlaceOrderRequest {
	qty := decimal.NewFromInt(req.Qty)

	side := alpacaapi.Buy
	if req.Side == broker.Sell {
		side = alpacaapi.Sell
	}
	typ := alpacaapi.Market
	if req.Type == broker.Limit {
		typ = alpacaapi.Limit
	}
	tif := alpacaapi.Day
	if req.TimeInForce == broker.GTC {
		tif = alpacaapi.GTC
	}

	out := alpacaapi.PlaceOrderRequest{
		Symbol:        strings.ToUpper(req.Symbol),
		Qty:           &qty,
		Side:          side,
		Type:          typ,
		TimeInForce:   tif,
		ClientOrderID: req.ClientOrderID,
	}
	if req.Bracket() {
		out.OrderClass = alpacaapi.Bracket
		if req.TakeProfit != nil {
			out.TakeProfit = &alpacaapi.TakeProfit{LimitPrice: cents(*req.TakeProfit)}
		}
		if req.StopLoss != nil {
			out.StopLoss = &alpacaapi.StopLoss{StopPrice: cents(*req.StopLoss)}
		}
	}
	return out
}

func toSeries(sym string, bars []marketdata.Bar) market.Series {
	s := market.Series{Symbol: sym, Bars: make([]market.Bar, 0, len(bars))}
	for _, b := range bars {
		s.Bars = append(s.Bars, market.Bar{
			Time:   b.Timestamp.UTC(),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: float64(b.Volume),
		})
	}
	return s.Sorted()
}
