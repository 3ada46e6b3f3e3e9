package sim

import (
	"context"
	"time"

	"github.com/rustyeddy/rebalancer/market"
)

// Mirror serves market data from a real source and copies every quote it
// sees into the engine, so simulated fills happen at live prices.
type Mirror struct {
	*Engine
	src market.Provider
}

func NewMirror(e *Engine, src market.Provider) *Mirror {
	return &Mirror{Engine: e, src: src}
}

func (m *Mirror) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	p, err := m.src.GetLatestPrice(ctx, symbol)
	if err != nil {
		return 0, err
	}
	m.Engine.SetPrice(symbol, p)
	return p, nil
}

func (m *Mirror) GetHistory(ctx context.Context, symbol string, start, end time.Time) (market.Series, error) {
	s, err := m.src.GetHistory(ctx, symbol, start, end)
	if err != nil {
		return market.Series{}, err
	}
	if s.Symbol == "" {
		s.Symbol = symbol
	}
	m.Engine.SetHistory(s)
	return s, nil
}
