package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rustyeddy/rebalancer/broker"
	"github.com/rustyeddy/rebalancer/broker/sim"
	"github.com/rustyeddy/rebalancer/journal"
	"github.com/rustyeddy/rebalancer/market"
	"github.com/rustyeddy/rebalancer/planner"
	"github.com/rustyeddy/rebalancer/risk"
)

var t0 = time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recorder struct {
	mu      sync.Mutex
	results []Result
}

func (r *recorder) ObserveRun(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

type fixture struct {
	clock *testClock
	sim   *sim.Engine
	store *journal.SQLStore
	rec   *recorder
	logs  *observer.ObservedLogs
	log   *zap.Logger
}

func testLimits() risk.Limits {
	return risk.Limits{
		MaxPositionPct:   0.2,
		MaxTotalExposure: 0.8,
		MaxDailyLoss:     0.02,
		RiskPerTrade:     0.01,
		MinOrderUSD:      1,
	}
}

func newFixture(t *testing.T, cash float64) *fixture {
	t.Helper()

	clock := &testClock{t: t0}
	s := sim.NewEngine("acct", cash)
	s.SetClock(clock.Now)

	store, err := journal.NewSQLite(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	core, logs := observer.New(zapcore.DebugLevel)
	return &fixture{
		clock: clock,
		sim:   s,
		store: store,
		rec:   &recorder{},
		logs:  logs,
		log:   zap.New(core),
	}
}

// coordinator builds a Coordinator over the fixture. b and st default to
// the simulator and the SQLite store.
func (f *fixture) coordinator(opts Options, b broker.Broker, st journal.Store) *Coordinator {
	if opts.AccountID == "" {
		opts.AccountID = "acct"
	}
	if opts.Limits == (risk.Limits{}) {
		opts.Limits = testLimits()
	}
	if b == nil {
		b = f.sim
	}
	if st == nil {
		st = f.store
	}
	return New(b, f.sim, st, opts,
		WithClock(f.clock.Now),
		WithLogger(f.log),
		WithRecorder(f.rec))
}

func growth(symbols ...string) []planner.Group {
	return []planner.Group{{Name: "growth", Weight: 0.5, Symbols: symbols}}
}

func statuses(r Result) map[string]string {
	out := map[string]string{}
	for _, o := range r.Details {
		out[o.Symbol] = o.Status
	}
	return out
}

// trend builds n daily bars ending the day before end.
func trend(sym string, end time.Time, n int, start, step float64) market.Series {
	s := market.Series{Symbol: sym}
	for i := 0; i < n; i++ {
		c := start + step*float64(i)
		s.Bars = append(s.Bars, market.Bar{
			Time:  end.AddDate(0, 0, -(n - i)),
			Open:  c,
			High:  c + 1,
			Low:   c - 1,
			Close: c,
		})
	}
	return s
}

// broker wrappers

type clockless struct{ *sim.Engine }

func (clockless) GetClock(context.Context) (broker.Clock, error) {
	return broker.Clock{}, market.ErrDataUnavailable
}

type cancelAfter struct {
	*sim.Engine
	n      int
	calls  int
	cancel context.CancelFunc
}

func (b *cancelAfter) SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderAck, error) {
	ack, err := b.Engine.SubmitOrder(ctx, req)
	b.calls++
	if b.calls == b.n {
		b.cancel()
	}
	return ack, err
}

type countingBroker struct {
	*sim.Engine
	positionCalls int
}

func (b *countingBroker) GetPositions(ctx context.Context) ([]broker.Position, error) {
	b.positionCalls++
	return b.Engine.GetPositions(ctx)
}

type failingLedger struct {
	journal.Store
	err error
}

func (s failingLedger) AppendExecution(context.Context, journal.Execution) error {
	return s.err
}
