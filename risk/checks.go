package risk

import (
	"fmt"
	"strings"

	"github.com/rustyeddy/rebalancer/broker"
)

// Rejection reasons. Outcomes report them as "skipped_<reason>".
const (
	ReasonQty0        = "qty0"
	ReasonPositionCap = "position_cap"
	ReasonExposureCap = "exposure_cap"
	ReasonBuyingPower = "buying_power"
	ReasonOversell    = "oversell"
)

// tolerance for comparing dollar amounts
const epsilon = 1e-6

type Rejection struct {
	Intent Intent `json:"intent"`
	Reason string `json:"reason"`
	Msg    string `json:"msg"`
}

func (r Rejection) Error() string {
	return fmt.Sprintf("%s %s: %s", r.Intent.Symbol, r.Reason, r.Msg)
}

// Gate is the last check every intent passes before it may reach the
// brokerage.
type Gate struct {
	Limits Limits
}

func NewGate(l Limits) Gate { return Gate{Limits: l} }

// Check evaluates intents against the limits using the run-start account
// snapshot and positions. Sells are credited first; buys are then checked
// in input order so that earlier accepted buys consume headroom for later
// ones. Rejections never abort the batch.
func (g Gate) Check(intents []Intent, acct broker.Account, positions []broker.Position) ([]Intent, []Rejection) {
	value := make(map[string]float64, len(positions))
	owned := make(map[string]float64, len(positions))
	exposure := 0.0
	for _, p := range positions {
		sym := strings.ToUpper(p.Symbol)
		value[sym] += abs(p.MarketValue)
		owned[sym] += p.Qty
		exposure += abs(p.MarketValue)
	}

	// sells reduce exposure before any buy is considered
	for _, in := range intents {
		if in.Side != broker.Sell || in.Qty <= 0 {
			continue
		}
		sym := strings.ToUpper(in.Symbol)
		if float64(in.Qty) > owned[sym]+epsilon {
			continue
		}
		credit := min(in.Notional(), value[sym])
		value[sym] -= credit
		exposure = max(exposure-credit, 0)
	}

	posCap := acct.Equity * g.Limits.MaxPositionPct
	expCap := acct.Equity * g.Limits.MaxTotalExposure
	spent := 0.0

	var accepted []Intent
	var rejected []Rejection
	reject := func(in Intent, reason, format string, args ...any) {
		rejected = append(rejected, Rejection{Intent: in, Reason: reason, Msg: fmt.Sprintf(format, args...)})
	}

	for _, in := range intents {
		sym := strings.ToUpper(in.Symbol)
		if in.Qty <= 0 {
			reject(in, ReasonQty0, "quantity %d is not positive", in.Qty)
			continue
		}

		if in.Side == broker.Sell {
			if float64(in.Qty) > owned[sym]+epsilon {
				reject(in, ReasonOversell, "sell %d exceeds owned %.4f", in.Qty, owned[sym])
				continue
			}
			accepted = append(accepted, in)
			continue
		}

		n := in.Notional()
		if post := value[sym] + n; post > posCap+epsilon {
			reject(in, ReasonPositionCap, "post-trade value %.2f exceeds cap %.2f", post, posCap)
			continue
		}
		if post := exposure + n; post > expCap+epsilon {
			reject(in, ReasonExposureCap, "post-trade exposure %.2f exceeds cap %.2f", post, expCap)
			continue
		}
		if spent+n > acct.BuyingPower+epsilon {
			reject(in, ReasonBuyingPower, "buy notional %.2f exceeds buying power %.2f", spent+n, acct.BuyingPower)
			continue
		}

		value[sym] += n
		exposure += n
		spent += n
		accepted = append(accepted, in)
	}

	return accepted, rejected
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
