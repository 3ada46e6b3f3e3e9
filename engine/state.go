package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rustyeddy/rebalancer/journal"
)

// Snapshot is the persisted guard state of the account.
type Snapshot struct {
	AccountID   string         `json:"account_id"`
	State       journal.State  `json:"state"`
	Halted      bool           `json:"halted"`
	Periods     map[Job]string `json:"periods"`
	TradesToday int            `json:"trades_today"`
}

func (c *Coordinator) Snapshot(ctx context.Context) (Snapshot, error) {
	now := c.now()
	st, err := c.store.LoadState(ctx, c.opts.AccountID)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		AccountID: c.opts.AccountID,
		State:     st,
		Halted:    st.Halted(now),
		Periods:   map[Job]string{},
	}
	for _, job := range []Job{JobRun, JobRebalance} {
		p, err := c.store.LastPeriod(ctx, c.opts.AccountID, string(job))
		if err != nil {
			return Snapshot{}, err
		}
		snap.Periods[job] = p
	}

	snap.TradesToday, err = c.store.CountExecutions(ctx, c.opts.AccountID, now.UTC().Format(journal.DayLayout), journal.StatusSubmitted)
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// ResetBreaker clears an active circuit breaker halt.
func (c *Coordinator) ResetBreaker(ctx context.Context) error {
	unlock, err := c.lock.Lock(ctx, c.opts.AccountID)
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	defer unlock()
	return c.breaker.Reset(ctx)
}

// Report summarizes the ledger over [since, until). A zero until reaches
// up to and including now.
func (c *Coordinator) Report(ctx context.Context, since, until time.Time) (journal.Summary, error) {
	if until.IsZero() {
		until = c.now().Add(time.Nanosecond)
	}
	if !since.Before(until) {
		return journal.Summary{}, fmt.Errorf("%w: report window %s..%s is empty", ErrConfiguration,
			since.Format(time.RFC3339), until.Format(time.RFC3339))
	}
	return journal.Report(ctx, c.store, c.opts.AccountID, since, until)
}
