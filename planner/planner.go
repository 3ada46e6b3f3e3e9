// Package planner turns desired dollar allocations into whole-share order
// intents.
package planner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/rustyeddy/rebalancer/broker"
	"github.com/rustyeddy/rebalancer/market"
	"github.com/rustyeddy/rebalancer/risk"
)

// Skip reasons. Outcomes report them as "skipped_<reason>".
const (
	SkipDust    = "dust"
	SkipNoPrice = "no_price"
	SkipQty0    = risk.ReasonQty0
)

// Target is the desired dollar value of one symbol.
type Target struct {
	Symbol string  `json:"symbol"`
	Value  float64 `json:"value"`
}

type Skip struct {
	Symbol string  `json:"symbol"`
	Reason string  `json:"reason"`
	Delta  float64 `json:"delta"`
	Note   string  `json:"note,omitempty"`
}

type Plan struct {
	Intents []risk.Intent `json:"intents"`
	Skipped []Skip        `json:"skipped"`
}

type Planner struct {
	prices      market.PriceSource
	minOrderUSD float64
	log         *zap.Logger
}

func New(prices market.PriceSource, minOrderUSD float64, log *zap.Logger) *Planner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Planner{prices: prices, minOrderUSD: minOrderUSD, log: log}
}

// Plan computes the deltas between targets and current holdings. Intents
// come back in target order. Buys are capped by the buying power left
// after every earlier buy in the same plan; sells never exceed the owned
// quantity. A missing price skips that symbol only.
func (p *Planner) Plan(ctx context.Context, targets []Target, positions []broker.Position, acct broker.Account) (Plan, error) {
	held := broker.PositionsBySymbol(positions)
	remaining := math.Max(acct.BuyingPower, 0)

	var plan Plan
	for _, tgt := range targets {
		if err := ctx.Err(); err != nil {
			return plan, err
		}

		sym := strings.ToUpper(strings.TrimSpace(tgt.Symbol))
		pos := held[sym]
		delta := tgt.Value - pos.MarketValue

		if math.Abs(delta) < p.minOrderUSD {
			plan.Skipped = append(plan.Skipped, Skip{Symbol: sym, Reason: SkipDust, Delta: delta})
			continue
		}

		price, err := p.prices.GetLatestPrice(ctx, sym)
		if err == nil && (price <= 0 || math.IsNaN(price)) {
			err = fmt.Errorf("price %v for %s: %w", price, sym, market.ErrDataUnavailable)
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return plan, err
			}
			p.log.Warn("no price, skipping symbol", zap.String("symbol", sym), zap.Error(err))
			plan.Skipped = append(plan.Skipped, Skip{Symbol: sym, Reason: SkipNoPrice, Delta: delta, Note: err.Error()})
			continue
		}

		in := risk.Intent{Symbol: sym, RefPrice: price}
		if delta > 0 {
			in.Side = broker.Buy
			in.Qty = min(risk.FloorQty(delta/price), risk.FloorQty(remaining/price))
		} else {
			in.Side = broker.Sell
			in.Qty = min(risk.FloorQty(-delta/price), risk.FloorQty(pos.Qty))
		}

		if in.Qty <= 0 {
			plan.Skipped = append(plan.Skipped, Skip{Symbol: sym, Reason: SkipQty0, Delta: delta})
			continue
		}
		if in.Side == broker.Buy {
			remaining -= in.Notional()
		}
		plan.Intents = append(plan.Intents, in)
	}
	return plan, nil
}
