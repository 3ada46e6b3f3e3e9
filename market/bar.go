package market

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrDataUnavailable reports that a price or history is missing for a
// symbol. Callers skip the symbol and continue.
var ErrDataUnavailable = errors.New("data unavailable")

// Bar is one daily OHLCV sample.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Series is an ascending-by-time sequence of bars for one symbol.
// No gaps are introduced or filled.
type Series struct {
	Symbol string `json:"symbol"`
	Bars   []Bar  `json:"bars"`
}

// Len returns the number of bars.
func (s Series) Len() int { return len(s.Bars) }

// Last returns the most recent bar.
func (s Series) Last() (Bar, bool) {
	if len(s.Bars) == 0 {
		return Bar{}, false
	}
	return s.Bars[len(s.Bars)-1], true
}

// Closes returns the close prices in order.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Validate checks ordering and price sanity.
func (s Series) Validate() error {
	for i, b := range s.Bars {
		if b.Close <= 0 || b.High < b.Low {
			return fmt.Errorf("%s bar %d (%s): invalid prices", s.Symbol, i, b.Time.Format("2006-01-02"))
		}
		if i > 0 && !s.Bars[i-1].Time.Before(b.Time) {
			return fmt.Errorf("%s bar %d (%s): not ascending", s.Symbol, i, b.Time.Format("2006-01-02"))
		}
	}
	return nil
}

// Sorted returns a copy of s ordered by time. Duplicate timestamps are
// kept; Validate reports them.
func (s Series) Sorted() Series {
	bars := make([]Bar, len(s.Bars))
	copy(bars, s.Bars)
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return Series{Symbol: s.Symbol, Bars: bars}
}
