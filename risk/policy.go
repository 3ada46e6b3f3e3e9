package risk

import (
	"errors"
	"fmt"
	"math"

	"github.com/rustyeddy/rebalancer/broker"
)

// ErrInvalidLimits marks a misconfigured Limits value.
var ErrInvalidLimits = errors.New("invalid risk limits")

type Limits struct {
	// Exposure limits, as fractions of equity.
	MaxPositionPct   float64 `json:"max_position_pct" yaml:"max_position_pct"`     // 0.20
	MaxTotalExposure float64 `json:"max_total_exposure" yaml:"max_total_exposure"` // 0.80

	// Circuit breaker.
	MaxDailyLoss float64 `json:"max_daily_loss" yaml:"max_daily_loss"` // 0.02

	// Signal sizing.
	RiskPerTrade float64 `json:"risk_per_trade" yaml:"risk_per_trade"` // 0.01

	// Orders below this notional are dust.
	MinOrderUSD float64 `json:"min_order_usd" yaml:"min_order_usd"`

	// Submitted orders per UTC day; 0 disables the cap.
	MaxDailyTrades int `json:"max_daily_trades" yaml:"max_daily_trades"`
}

func DefaultLimits() Limits {
	return Limits{
		MaxPositionPct:   0.20,
		MaxTotalExposure: 0.80,
		MaxDailyLoss:     0.02,
		RiskPerTrade:     0.01,
		MinOrderUSD:      1.0,
		MaxDailyTrades:   5,
	}
}

func (l Limits) Validate() error {
	check := func(name string, v float64) error {
		if math.IsNaN(v) || v <= 0 || v > 1 {
			return fmt.Errorf("%w: %s must be in (0, 1], got %v", ErrInvalidLimits, name, v)
		}
		return nil
	}
	if err := check("max_position_pct", l.MaxPositionPct); err != nil {
		return err
	}
	if err := check("max_total_exposure", l.MaxTotalExposure); err != nil {
		return err
	}
	if err := check("max_daily_loss", l.MaxDailyLoss); err != nil {
		return err
	}
	if err := check("risk_per_trade", l.RiskPerTrade); err != nil {
		return err
	}
	if l.MinOrderUSD < 0 || math.IsNaN(l.MinOrderUSD) {
		return fmt.Errorf("%w: min_order_usd must not be negative, got %v", ErrInvalidLimits, l.MinOrderUSD)
	}
	if l.MaxDailyTrades < 0 {
		return fmt.Errorf("%w: max_daily_trades must not be negative, got %d", ErrInvalidLimits, l.MaxDailyTrades)
	}
	return nil
}

// Intent is a proposed, not yet submitted order. Quantities are whole
// shares.
type Intent struct {
	Symbol   string      `json:"symbol"`
	Side     broker.Side `json:"side"`
	Qty      int64       `json:"qty"`
	RefPrice float64     `json:"ref_price"`

	TakeProfit *float64 `json:"take_profit,omitempty"`
	StopLoss   *float64 `json:"stop_loss,omitempty"`

	// Note travels to the outcome and ledger record of a submitted order.
	Note string `json:"note,omitempty"`
}

// Notional is Qty × RefPrice.
func (i Intent) Notional() float64 {
	return float64(i.Qty) * i.RefPrice
}

// FloorQty floors a share count. The small epsilon absorbs binary
// rounding so that e.g. 500/5 never lands on 99.
func FloorQty(x float64) int64 {
	if math.IsNaN(x) || x <= 0 {
		return 0
	}
	// float64(MaxInt64) rounds up to 2^63, which no int64 can hold.
	if x >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(math.Floor(x + 1e-9))
}
