package alpaca

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	alpacaapi "github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/rebalancer/broker"
	"github.com/rustyeddy/rebalancer/market"
)

type fakeTrading struct {
	account   *alpacaapi.Account
	positions []alpacaapi.Position
	position  *alpacaapi.Position
	posErr    error
	clock     *alpacaapi.Clock
	placeErr  error
	placed    []alpacaapi.PlaceOrderRequest
}

func (f *fakeTrading) GetAccount() (*alpacaapi.Account, error) { return f.account, nil }
func (f *fakeTrading) GetPositions() ([]alpacaapi.Position, error) {
	return f.positions, nil
}
func (f *fakeTrading) GetPosition(string) (*alpacaapi.Position, error) {
	return f.position, f.posErr
}
func (f *fakeTrading) GetClock() (*alpacaapi.Clock, error) { return f.clock, nil }
func (f *fakeTrading) PlaceOrder(req alpacaapi.PlaceOrderRequest) (*alpacaapi.Order, error) {
	f.placed = append(f.placed, req)
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	return &alpacaapi.Order{ID: "ord-1", ClientOrderID: req.ClientOrderID, Status: "accepted"}, nil
}

type fakeData struct {
	trade    *marketdata.Trade
	tradeErr error
	bars     []marketdata.Bar
	barsErr  error
}

func (f *fakeData) GetLatestTrade(string, marketdata.GetLatestTradeRequest) (*marketdata.Trade, error) {
	return f.trade, f.tradeErr
}
func (f *fakeData) GetBars(string, marketdata.GetBarsRequest) ([]marketdata.Bar, error) {
	return f.bars, f.barsErr
}

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func TestBaseURL(t *testing.T) {
	t.Parallel()

	u, err := BaseURL("paper")
	require.NoError(t, err)
	assert.Equal(t, PaperURL, u)

	u, err = BaseURL(" LIVE ")
	require.NoError(t, err)
	assert.Equal(t, LiveURL, u)

	_, err = BaseURL("sandbox")
	assert.Error(t, err)
}

func TestNewRequiresCredentials(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, nil)
	assert.ErrorContains(t, err, "api key")
}

func TestGetAccount(t *testing.T) {
	t.Parallel()

	ft := &fakeTrading{account: &alpacaapi.Account{
		ID: "A1", Equity: dec(50000), Cash: dec(12000.5), BuyingPower: dec(24001),
	}}
	c := newClient(ft, &fakeData{}, nil)

	acct, err := c.GetAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "A1", acct.ID)
	assert.InDelta(t, 50000, acct.Equity, 1e-9)
	assert.InDelta(t, 12000.5, acct.Cash, 1e-9)
	assert.InDelta(t, 24001, acct.BuyingPower, 1e-9)
}

func TestGetPositionsMissingMarketValue(t *testing.T) {
	t.Parallel()

	mv := dec(1500)
	ft := &fakeTrading{positions: []alpacaapi.Position{
		{Symbol: "aapl", Qty: dec(10), MarketValue: &mv},
	}}
	c := newClient(ft, &fakeData{}, nil)

	ps, err := c.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, "AAPL", ps[0].Symbol)
	assert.InDelta(t, 1500, ps[0].MarketValue, 1e-9)

	ft.positions = append(ft.positions, alpacaapi.Position{Symbol: "MSFT", Qty: dec(1)})
	_, err = c.GetPositions(context.Background())
	assert.ErrorIs(t, err, market.ErrDataUnavailable)
}

func TestGetPositionNotFoundVersusOutage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ft := &fakeTrading{posErr: &alpacaapi.APIError{StatusCode: http.StatusNotFound, Message: "position does not exist"}}
	c := newClient(ft, &fakeData{}, nil)

	lk, err := c.GetPosition(ctx, "AAPL")
	require.NoError(t, err)
	assert.False(t, lk.Found)

	ft.posErr = &alpacaapi.APIError{StatusCode: http.StatusServiceUnavailable, Message: "maintenance"}
	_, err = c.GetPosition(ctx, "AAPL")
	require.Error(t, err)
	var be *broker.Error
	require.True(t, errors.As(err, &be))
	assert.Equal(t, http.StatusServiceUnavailable, be.StatusCode)

	mv := dec(300)
	ft.posErr = nil
	ft.position = &alpacaapi.Position{Symbol: "AAPL", Qty: dec(3), MarketValue: &mv}
	lk, err = c.GetPosition(ctx, "AAPL")
	require.NoError(t, err)
	assert.True(t, lk.Found)
	assert.Equal(t, 3.0, lk.Qty)
}

func TestSubmitBracketOrder(t *testing.T) {
	t.Parallel()

	ft := &fakeTrading{}
	c := newClient(ft, &fakeData{}, nil)

	tp, sl := 110.126, 95.004
	ack, err := c.SubmitOrder(context.Background(), broker.OrderRequest{
		Symbol: "nvda", Qty: 7, Side: broker.Buy, Type: broker.Market, TimeInForce: broker.Day,
		ClientOrderID: "live-NVDA-1-abcdef12", TakeProfit: &tp, StopLoss: &sl,
	})
	require.NoError(t, err)
	assert.Equal(t, "ord-1", ack.BrokerOrderID)
	assert.Equal(t, "live-NVDA-1-abcdef12", ack.ClientOrderID)

	require.Len(t, ft.placed, 1)
	req := ft.placed[0]
	assert.Equal(t, "NVDA", req.Symbol)
	assert.True(t, req.Qty.Equal(decimal.NewFromInt(7)))
	assert.Equal(t, alpacaapi.Buy, req.Side)
	assert.Equal(t, alpacaapi.Bracket, req.OrderClass)
	require.NotNil(t, req.TakeProfit)
	assert.Equal(t, "110.13", req.TakeProfit.LimitPrice.StringFixed(2))
	require.NotNil(t, req.StopLoss)
	assert.Equal(t, "95.00", req.StopLoss.StopPrice.StringFixed(2))
}

func TestSubmitSimpleSellOrder(t *testing.T) {
	t.Parallel()

	ft := &fakeTrading{}
	c := newClient(ft, &fakeData{}, nil)

	_, err := c.SubmitOrder(context.Background(), broker.OrderRequest{
		Symbol: "XLP", Qty: 2, Side: broker.Sell, ClientOrderID: "c",
	})
	require.NoError(t, err)
	assert.Equal(t, alpacaapi.Sell, ft.placed[0].Side)
	assert.Nil(t, ft.placed[0].TakeProfit)
	assert.Empty(t, ft.placed[0].OrderClass)
}

func TestSubmitRejected(t *testing.T) {
	t.Parallel()

	ft := &fakeTrading{placeErr: &alpacaapi.APIError{StatusCode: 403, Message: "insufficient buying power"}}
	c := newClient(ft, &fakeData{}, nil)

	_, err := c.SubmitOrder(context.Background(), broker.OrderRequest{
		Symbol: "AAPL", Qty: 1, Side: broker.Buy, ClientOrderID: "c",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, broker.ErrRejected)
	var be *broker.Error
	require.True(t, errors.As(err, &be))
	assert.Equal(t, 403, be.StatusCode)

	_, err = c.SubmitOrder(context.Background(), broker.OrderRequest{Symbol: "AAPL", Side: broker.Buy, ClientOrderID: "c"})
	assert.ErrorIs(t, err, broker.ErrRejected)
	assert.Len(t, ft.placed, 1, "invalid request must not reach the API")
}

func TestGetLatestPriceFallsBackToBars(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fd := &fakeData{trade: &marketdata.Trade{Price: 187.25}}
	c := newClient(&fakeTrading{}, fd, nil)

	p, err := c.GetLatestPrice(ctx, "aapl")
	require.NoError(t, err)
	assert.Equal(t, 187.25, p)

	fd.trade, fd.tradeErr = nil, errors.New("no trades")
	fd.bars = []marketdata.Bar{{Close: 180}, {Close: 181.5}}
	p, err = c.GetLatestPrice(ctx, "aapl")
	require.NoError(t, err)
	assert.Equal(t, 181.5, p)

	fd.bars = nil
	_, err = c.GetLatestPrice(ctx, "aapl")
	assert.ErrorIs(t, err, market.ErrDataUnavailable)
}

func TestGetHistory(t *testing.T) {
	t.Parallel()

	d0 := time.Date(2026, 4, 1, 4, 0, 0, 0, time.UTC)
	fd := &fakeData{bars: []marketdata.Bar{
		{Timestamp: d0.AddDate(0, 0, 1), Open: 2, High: 3, Low: 1, Close: 2.5, Volume: 10},
		{Timestamp: d0, Open: 1, High: 2, Low: 1, Close: 1.5, Volume: 20},
	}}
	c := newClient(&fakeTrading{}, fd, nil)

	s, err := c.GetHistory(context.Background(), "spy", d0, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "SPY", s.Symbol)
	require.Equal(t, 2, s.Len())
	assert.Equal(t, 1.5, s.Bars[0].Close)
	assert.Equal(t, 20.0, s.Bars[0].Volume)
	assert.NoError(t, s.Validate())

	fd.bars, fd.barsErr = nil, errors.New("rate limited")
	_, err = c.GetHistory(context.Background(), "spy", d0, time.Time{})
	assert.ErrorIs(t, err, market.ErrDataUnavailable)
}

func TestCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ft := &fakeTrading{}
	c := newClient(ft, &fakeData{}, nil)
	_, err := c.SubmitOrder(ctx, broker.OrderRequest{Symbol: "A", Qty: 1, Side: broker.Buy, ClientOrderID: "c"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, ft.placed)
}
