package risk

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/rebalancer/broker"
	"github.com/rustyeddy/rebalancer/journal"
)

const (
	HaltCircuitBreaker = "circuit_breaker"
	HaltMaxDailyLoss   = "max_daily_loss_reached"
)

const DefaultCooldown = 24 * time.Hour

// StateStore is the slice of journal.Store the breaker needs.
type StateStore interface {
	LoadState(ctx context.Context, accountID string) (journal.State, error)
	SaveState(ctx context.Context, st journal.State) error
}

type Decision struct {
	Halt     bool      `json:"halt"`
	Reason   string    `json:"reason,omitempty"`
	Until    time.Time `json:"until,omitempty"`
	Drawdown float64   `json:"drawdown"`
}

// Breaker halts trading for a cooldown once the account has lost
// MaxDailyLoss of its day-start equity.
type Breaker struct {
	store        StateStore
	accountID    string
	maxDailyLoss float64
	cooldown     time.Duration
	log          *zap.Logger
}

func NewBreaker(store StateStore, accountID string, maxDailyLoss float64, cooldown time.Duration, log *zap.Logger) *Breaker {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Breaker{
		store:        store,
		accountID:    accountID,
		maxDailyLoss: maxDailyLoss,
		cooldown:     cooldown,
		log:          log.With(zap.String("account", accountID)),
	}
}

// Evaluate decides whether trading may proceed at now given the fresh
// account snapshot. A trip is persisted before Evaluate returns.
func (b *Breaker) Evaluate(ctx context.Context, now time.Time, acct broker.Account) (Decision, error) {
	st, err := b.store.LoadState(ctx, b.accountID)
	if err != nil {
		return Decision{}, fmt.Errorf("breaker load state: %w", err)
	}

	if st.Halted(now) {
		return Decision{Halt: true, Reason: HaltCircuitBreaker, Until: *st.CircuitBreakerUntil}, nil
	}

	today := now.UTC().Format(journal.DayLayout)
	if st.DayStartEquity == nil || st.DayStartDate != today {
		eq := acct.Equity
		st.DayStartEquity = &eq
		st.DayStartDate = today
		if err := b.store.SaveState(ctx, st); err != nil {
			return Decision{}, fmt.Errorf("breaker record baseline: %w", err)
		}
		b.log.Info("day start equity recorded", zap.String("day", today), zap.Float64("equity", eq))
		return Decision{}, nil
	}

	start := *st.DayStartEquity
	if start <= 0 {
		b.log.Warn("non-positive day start equity, skipping drawdown check",
			zap.String("day", today), zap.Float64("start_equity", start))
		return Decision{}, nil
	}

	dd := (start - acct.Equity) / start
	if dd < b.maxDailyLoss {
		return Decision{Drawdown: dd}, nil
	}

	until := now.Add(b.cooldown).UTC()
	st.CircuitBreakerUntil = &until
	if err := b.store.SaveState(ctx, st); err != nil {
		return Decision{}, fmt.Errorf("breaker persist trip: %w", err)
	}
	b.log.Warn("circuit breaker tripped",
		zap.Float64("start_equity", start),
		zap.Float64("equity", acct.Equity),
		zap.Float64("drawdown", dd),
		zap.Time("until", until))

	return Decision{Halt: true, Reason: HaltMaxDailyLoss, Until: until, Drawdown: dd}, nil
}

// Reset clears an active halt. The day-start baseline is kept.
func (b *Breaker) Reset(ctx context.Context) error {
	st, err := b.store.LoadState(ctx, b.accountID)
	if err != nil {
		return fmt.Errorf("breaker load state: %w", err)
	}
	if st.CircuitBreakerUntil == nil {
		return nil
	}
	st.CircuitBreakerUntil = nil
	if err := b.store.SaveState(ctx, st); err != nil {
		return fmt.Errorf("breaker reset: %w", err)
	}
	b.log.Info("circuit breaker reset")
	return nil
}
