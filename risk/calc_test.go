package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSizeByRisk(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                           string
		entry, stop, risk, maxPos, exp float64
		equity                         float64
		want                           int64
	}{
		{"reference case", 100, 95, 0.01, 0.2, 0.8, 50000, 100},
		{"position cap binds", 100, 99, 0.01, 0.2, 0.8, 50000, 100},
		{"exposure cap binds", 100, 99, 0.01, 0.5, 0.3, 50000, 150},
		{"risk binds", 100, 90, 0.01, 0.2, 0.8, 50000, 50},
		{"stop equals entry", 100, 100, 0.01, 0.2, 0.8, 50000, 0},
		{"stop above entry", 100, 105, 0.01, 0.2, 0.8, 50000, 0},
		{"below one share", 100, 50, 0.001, 0.2, 0.8, 10000, 0},
		{"zero equity", 100, 95, 0.01, 0.2, 0.8, 0, 0},
		{"zero entry", 0, -1, 0.01, 0.2, 0.8, 1000, 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := SizeByRisk(tt.entry, tt.stop, tt.risk, tt.maxPos, tt.exp, tt.equity)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSizeByRiskStopNeverPositive(t *testing.T) {
	t.Parallel()

	for _, stop := range []float64{100, 100.01, 150, 1e9} {
		for _, eq := range []float64{1, 1000, 1e7} {
			assert.Zero(t, SizeByRisk(100, stop, 0.05, 1, 1, eq))
		}
	}
}

func TestSizeByRiskRespectsCaps(t *testing.T) {
	t.Parallel()

	for _, entry := range []float64{3.33, 17, 101.5, 999} {
		q := SizeByRisk(entry, entry*0.97, 0.02, 0.15, 0.6, 73210)
		assert.LessOrEqual(t, float64(q)*entry, 73210*0.15+1e-6)
	}

	// a stop a hair under entry makes the raw risk quantity overflow int64;
	// the caps still apply
	entry := 1e-3
	q := SizeByRisk(entry, math.Nextafter(entry, 0), 0.01, 0.2, 0.8, 50000)
	assert.Equal(t, int64(10000000), q)
}

func TestFloorQty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(100), FloorQty(500.0/5.0))
	assert.Equal(t, int64(99), FloorQty(99.99))
	assert.Equal(t, int64(0), FloorQty(-3))
	assert.Equal(t, int64(0), FloorQty(math.NaN()))
	assert.Equal(t, int64(math.MaxInt64), FloorQty(math.Inf(1)))
	assert.Equal(t, int64(math.MaxInt64), FloorQty(1e20))
	assert.Equal(t, int64(math.MaxInt64), FloorQty(float64(math.MaxInt64)))
}

func TestRiskAmountAndRR(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 500, RiskAmount(100, 100, 95), 1e-9)
	assert.InDelta(t, 2, RR(100, 95, 110), 1e-9)
	assert.Zero(t, RR(100, 100, 110))
}

func TestLimitsValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, DefaultLimits().Validate())

	tests := []struct {
		name   string
		mutate func(*Limits)
		errMsg string
	}{
		{"negative position pct", func(l *Limits) { l.MaxPositionPct = -0.1 }, "max_position_pct"},
		{"zero exposure", func(l *Limits) { l.MaxTotalExposure = 0 }, "max_total_exposure"},
		{"loss above one", func(l *Limits) { l.MaxDailyLoss = 1.5 }, "max_daily_loss"},
		{"nan risk", func(l *Limits) { l.RiskPerTrade = math.NaN() }, "risk_per_trade"},
		{"negative min order", func(l *Limits) { l.MinOrderUSD = -1 }, "min_order_usd"},
		{"negative trade cap", func(l *Limits) { l.MaxDailyTrades = -1 }, "max_daily_trades"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l := DefaultLimits()
			tt.mutate(&l)
			err := l.Validate()
			assert.ErrorIs(t, err, ErrInvalidLimits)
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}
