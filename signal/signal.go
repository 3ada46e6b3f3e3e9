// Package signal produces buy/hold decisions from a moving-average
// crossover with ATR-based exits.
package signal

import (
	"fmt"

	"github.com/rustyeddy/rebalancer/market"
)

type Action string

const (
	Buy  Action = "buy"
	Hold Action = "hold"
)

type Params struct {
	ShortWindow   int     `json:"short_window"`
	LongWindow    int     `json:"long_window"`
	ATRPeriod     int     `json:"atr_period,omitempty"`
	ATRMultiplier float64 `json:"atr_multiplier"`
}

func DefaultParams() Params {
	return Params{
		ShortWindow:   15,
		LongWindow:    80,
		ATRPeriod:     14,
		ATRMultiplier: 2.0,
	}
}

func (p Params) withDefaults() Params {
	if p.ATRPeriod <= 0 {
		p.ATRPeriod = 14
	}
	return p
}

func (p Params) Validate() error {
	p = p.withDefaults()
	if p.ShortWindow <= 0 || p.LongWindow <= 0 {
		return fmt.Errorf("windows must be positive, got %d/%d", p.ShortWindow, p.LongWindow)
	}
	if p.ShortWindow >= p.LongWindow {
		return fmt.Errorf("short window %d must be below long window %d", p.ShortWindow, p.LongWindow)
	}
	if p.ATRMultiplier <= 0 {
		return fmt.Errorf("atr multiplier must be positive, got %v", p.ATRMultiplier)
	}
	return nil
}

// MinBars is the history length Decide needs.
func (p Params) MinBars() int {
	p = p.withDefaults()
	return max(p.LongWindow, p.ATRPeriod+1)
}

type Decision struct {
	Symbol     string  `json:"symbol"`
	Action     Action  `json:"action"`
	Entry      float64 `json:"entry,omitempty"`
	Stop       float64 `json:"stop,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
	ATR        float64 `json:"atr,omitempty"`
}

// Decide buys when the short SMA is above the long SMA at the last bar.
// The stop sits ATRMultiplier ATRs under the close and the target two
// ATRs above it. A flat ATR is treated as 1.
func Decide(s market.Series, p Params) (Decision, error) {
	if err := p.Validate(); err != nil {
		return Decision{}, fmt.Errorf("decide %s: %w", s.Symbol, err)
	}
	p = p.withDefaults()

	if s.Len() < p.MinBars() {
		return Decision{}, fmt.Errorf("decide %s: need %d bars, got %d: %w",
			s.Symbol, p.MinBars(), s.Len(), market.ErrDataUnavailable)
	}

	closes := s.Closes()
	short, err := SMA(closes, p.ShortWindow)
	if err != nil {
		return Decision{}, err
	}
	long, err := SMA(closes, p.LongWindow)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{Symbol: s.Symbol, Action: Hold}
	if short <= long {
		return d, nil
	}

	atr, err := ATR(s.Bars, p.ATRPeriod)
	if err != nil {
		return Decision{}, err
	}
	if atr <= 0 {
		atr = 1
	}

	last, _ := s.Last()
	d.Action = Buy
	d.Entry = last.Close
	d.ATR = atr
	d.Stop = last.Close - atr*p.ATRMultiplier
	d.TakeProfit = last.Close + 2*atr
	return d, nil
}
