package signal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/rebalancer/market"
)

func series(sym string, closes []float64, spread float64) market.Series {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := market.Series{Symbol: sym}
	for i, c := range closes {
		s.Bars = append(s.Bars, market.Bar{
			Time:  t0.AddDate(0, 0, i),
			Open:  c,
			High:  c + spread,
			Low:   c - spread,
			Close: c,
		})
	}
	return s
}

func ramp(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func TestSMA(t *testing.T) {
	t.Parallel()

	v, err := SMA([]float64{1, 2, 3, 4, 5}, 2)
	require.NoError(t, err)
	assert.InDelta(t, 4.5, v, 1e-9)

	_, err = SMA([]float64{1}, 2)
	assert.Error(t, err)
	_, err = SMA([]float64{1}, 0)
	assert.Error(t, err)
}

func TestATR(t *testing.T) {
	t.Parallel()

	bars := []market.Bar{
		{High: 11, Low: 9, Close: 10},
		{High: 12, Low: 10, Close: 11},  // max(2, 2, 0) = 2
		{High: 11.5, Low: 8, Close: 9},  // max(3.5, .5, 3) = 3.5
		{High: 14, Low: 12, Close: 13},  // max(2, 5, 3) = 5
	}
	v, err := ATR(bars, 3)
	require.NoError(t, err)
	assert.InDelta(t, (2+3.5+5)/3.0, v, 1e-9)

	v, err = ATR(bars, 1)
	require.NoError(t, err)
	assert.InDelta(t, 5, v, 1e-9)

	_, err = ATR(bars, 4)
	assert.Error(t, err)
}

func TestDecideUptrendBuys(t *testing.T) {
	t.Parallel()

	s := series("SPY", ramp(100, 100, 1), 1)
	d, err := Decide(s, DefaultParams())
	require.NoError(t, err)

	assert.Equal(t, Buy, d.Action)
	assert.Equal(t, "SPY", d.Symbol)
	assert.InDelta(t, 199, d.Entry, 1e-9)
	// each bar's range is 2 and the close-to-close move is 1
	assert.InDelta(t, 2, d.ATR, 1e-9)
	assert.InDelta(t, 195, d.Stop, 1e-9)
	assert.InDelta(t, 203, d.TakeProfit, 1e-9)
	assert.Less(t, d.Stop, d.Entry)
}

func TestDecideDowntrendHolds(t *testing.T) {
	t.Parallel()

	d, err := Decide(series("TLT", ramp(100, 200, -1), 1), DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, Hold, d.Action)
	assert.Zero(t, d.Entry)
}

func TestDecideFlatATR(t *testing.T) {
	t.Parallel()

	// flat bars with the last two closes nudged up: zero true range
	s := series("X", ramp(100, 100, 0), 0)
	for _, i := range []int{98, 99} {
		s.Bars[i].Close = 100.0001
		s.Bars[i].High = 100.0001
		s.Bars[i].Low = 100.0001
	}

	d, err := Decide(s, Params{ShortWindow: 2, LongWindow: 50, ATRPeriod: 1, ATRMultiplier: 2})
	require.NoError(t, err)
	require.Equal(t, Buy, d.Action)
	assert.InDelta(t, 1, d.ATR, 1e-9)
	assert.InDelta(t, 98.0001, d.Stop, 1e-9)
}

func TestDecideInsufficientHistory(t *testing.T) {
	t.Parallel()

	_, err := Decide(series("SPY", ramp(79, 100, 1), 1), DefaultParams())
	assert.ErrorIs(t, err, market.ErrDataUnavailable)
}

func TestParamsValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, DefaultParams().Validate())
	assert.Error(t, Params{ShortWindow: 80, LongWindow: 15, ATRMultiplier: 2}.Validate())
	assert.Error(t, Params{ShortWindow: 0, LongWindow: 15, ATRMultiplier: 2}.Validate())
	assert.Error(t, Params{ShortWindow: 5, LongWindow: 15}.Validate())
	assert.Equal(t, 80, DefaultParams().MinBars())
	assert.Equal(t, 21, Params{ShortWindow: 2, LongWindow: 5, ATRPeriod: 20, ATRMultiplier: 1}.MinBars())
}

func TestParamStore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "best_params.json")

	ps, err := LoadParams(path)
	require.NoError(t, err)
	assert.Empty(t, ps)
	assert.Equal(t, DefaultParams(), ps.For("SPY"))

	raw := `{"spy": {"params": {"short_window": 10, "long_window": 50, "atr_multiplier": 1.5}, "score": 1.2},
	         "bad": {"params": {"short_window": 50, "long_window": 10, "atr_multiplier": 1.5}}}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	ps, err = LoadParams(path)
	require.NoError(t, err)
	got := ps.For("SPY")
	assert.Equal(t, 10, got.ShortWindow)
	assert.Equal(t, 50, got.LongWindow)
	assert.Equal(t, 14, got.ATRPeriod)
	assert.InDelta(t, 1.5, got.ATRMultiplier, 1e-9)
	assert.InDelta(t, 1.2, ps["SPY"].Score, 1e-9)
	assert.Equal(t, DefaultParams(), ps.For("BAD"))

	out := filepath.Join(dir, "copy.json")
	require.NoError(t, ps.Save(out))
	again, err := LoadParams(out)
	require.NoError(t, err)
	assert.Equal(t, ps.For("SPY"), again.For("SPY"))

	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, err = LoadParams(path)
	assert.Error(t, err)
}
