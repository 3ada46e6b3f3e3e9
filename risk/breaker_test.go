package risk

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rustyeddy/rebalancer/broker"
	"github.com/rustyeddy/rebalancer/journal"
)

type memState struct {
	mu      sync.Mutex
	states  map[string]journal.State
	saves   int
	saveErr error
}

func newMemState() *memState {
	return &memState{states: map[string]journal.State{}}
}

func (m *memState) LoadState(_ context.Context, id string) (journal.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[id]
	if !ok {
		return journal.State{AccountID: id}, nil
	}
	return st, nil
}

func (m *memState) SaveState(_ context.Context, st journal.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.states[st.AccountID] = st
	return nil
}

func acctWith(equity float64) broker.Account {
	return broker.Account{ID: "acct", Equity: equity, Cash: equity, BuyingPower: equity}
}

func TestBreakerTripsOnDailyLoss(t *testing.T) {
	t.Parallel()

	store := newMemState()
	b := NewBreaker(store, "acct", 0.02, 0, nil)
	ctx := context.Background()
	morning := time.Date(2024, 5, 1, 13, 30, 0, 0, time.UTC)

	d, err := b.Evaluate(ctx, morning, acctWith(10000))
	require.NoError(t, err)
	assert.False(t, d.Halt)
	st, _ := store.LoadState(ctx, "acct")
	require.NotNil(t, st.DayStartEquity)
	assert.InDelta(t, 10000, *st.DayStartEquity, 1e-9)
	assert.Equal(t, "2024-05-01", st.DayStartDate)

	noon := morning.Add(3 * time.Hour)
	d, err = b.Evaluate(ctx, noon, acctWith(9700))
	require.NoError(t, err)
	assert.True(t, d.Halt)
	assert.Equal(t, HaltMaxDailyLoss, d.Reason)
	assert.InDelta(t, 0.03, d.Drawdown, 1e-9)
	assert.True(t, d.Until.Equal(noon.Add(24*time.Hour)))

	st, _ = store.LoadState(ctx, "acct")
	require.NotNil(t, st.CircuitBreakerUntil)
	assert.True(t, st.CircuitBreakerUntil.Equal(d.Until))

	// a later run before cooldown expires halts even with equity recovered
	d, err = b.Evaluate(ctx, noon.Add(2*time.Hour), acctWith(11000))
	require.NoError(t, err)
	assert.True(t, d.Halt)
	assert.Equal(t, HaltCircuitBreaker, d.Reason)

	// after cooldown a fresh day baseline is taken
	d, err = b.Evaluate(ctx, noon.Add(25*time.Hour), acctWith(9700))
	require.NoError(t, err)
	assert.False(t, d.Halt)
	st, _ = store.LoadState(ctx, "acct")
	assert.Equal(t, "2024-05-02", st.DayStartDate)
	assert.InDelta(t, 9700, *st.DayStartEquity, 1e-9)
}

func TestBreakerBelowThresholdProceeds(t *testing.T) {
	t.Parallel()

	store := newMemState()
	b := NewBreaker(store, "acct", 0.02, time.Hour, nil)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC)

	_, err := b.Evaluate(ctx, now, acctWith(10000))
	require.NoError(t, err)

	d, err := b.Evaluate(ctx, now.Add(time.Minute), acctWith(9850))
	require.NoError(t, err)
	assert.False(t, d.Halt)
	assert.InDelta(t, 0.015, d.Drawdown, 1e-9)
	assert.Equal(t, 1, store.saves)
}

func TestBreakerCustomCooldown(t *testing.T) {
	t.Parallel()

	store := newMemState()
	b := NewBreaker(store, "acct", 0.02, 2*time.Hour, nil)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC)

	_, _ = b.Evaluate(ctx, now, acctWith(10000))
	d, err := b.Evaluate(ctx, now, acctWith(9800))
	require.NoError(t, err)
	assert.True(t, d.Halt)
	assert.True(t, d.Until.Equal(now.Add(2*time.Hour)))

	d, err = b.Evaluate(ctx, now.Add(2*time.Hour), acctWith(10000))
	require.NoError(t, err)
	assert.False(t, d.Halt)
}

func TestBreakerNonPositiveBaselineLogsAnomaly(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	store := newMemState()
	zero := 0.0
	store.states["acct"] = journal.State{AccountID: "acct", DayStartEquity: &zero, DayStartDate: "2024-05-01"}

	b := NewBreaker(store, "acct", 0.02, 0, zap.New(core))
	d, err := b.Evaluate(context.Background(), time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC), acctWith(5000))
	require.NoError(t, err)
	assert.False(t, d.Halt)

	entries := logs.FilterMessageSnippet("non-positive day start equity").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "acct", entries[0].ContextMap()["account"])
}

func TestBreakerStoreErrors(t *testing.T) {
	t.Parallel()

	store := newMemState()
	store.saveErr = errors.New("disk full")
	b := NewBreaker(store, "acct", 0.02, 0, nil)

	_, err := b.Evaluate(context.Background(), time.Now(), acctWith(10000))
	assert.ErrorIs(t, err, store.saveErr)
}

func TestBreakerReset(t *testing.T) {
	t.Parallel()

	store := newMemState()
	until := time.Date(2024, 5, 2, 14, 0, 0, 0, time.UTC)
	eq := 10000.0
	store.states["acct"] = journal.State{AccountID: "acct", CircuitBreakerUntil: &until, DayStartEquity: &eq, DayStartDate: "2024-05-01"}

	b := NewBreaker(store, "acct", 0.02, 0, nil)
	require.NoError(t, b.Reset(context.Background()))

	st, _ := store.LoadState(context.Background(), "acct")
	assert.Nil(t, st.CircuitBreakerUntil)
	require.NotNil(t, st.DayStartEquity)

	// idempotent
	require.NoError(t, b.Reset(context.Background()))
	assert.Equal(t, 1, store.saves)
}

func TestBreakerWithSQLite(t *testing.T) {
	t.Parallel()

	j, err := journal.NewSQLite(t.TempDir() + "/state.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	ctx := context.Background()
	now := time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC)
	b := NewBreaker(j, "acct", 0.02, 0, nil)

	_, err = b.Evaluate(ctx, now, acctWith(10000))
	require.NoError(t, err)
	d, err := b.Evaluate(ctx, now.Add(time.Hour), acctWith(9700))
	require.NoError(t, err)
	require.True(t, d.Halt)

	// a second breaker over the same store sees the persisted trip
	b2 := NewBreaker(j, "acct", 0.02, 0, nil)
	d, err = b2.Evaluate(ctx, now.Add(2*time.Hour), acctWith(10000))
	require.NoError(t, err)
	assert.True(t, d.Halt)
	assert.Equal(t, HaltCircuitBreaker, d.Reason)
}
