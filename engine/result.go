package engine

import (
	"time"
)

// State is a step of the coordinator state machine. A Result carries the
// terminal one.
type State string

const (
	Idle                   State = "idle"
	CheckingPeriod         State = "checking_period"
	CheckingCircuitBreaker State = "checking_circuit_breaker"
	Planning               State = "planning"
	Gating                 State = "gating"
	Executing              State = "executing"
	Done                   State = "done"

	SkippedAlreadyRun      State = "skipped_already_run"
	SkippedHalted          State = "skipped_halted"
	SkippedTradeCapReached State = "skipped_trade_cap_reached"
	SkippedMarketClosed    State = "skipped_market_closed"
	Failed                 State = "failed"
)

// Run-level result statuses.
const (
	StatusDone    = "done"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

// Per-symbol outcome statuses; skips are "skipped_<reason>".
const (
	OutcomeSubmitted       = "submitted"
	OutcomeError           = "error"
	OutcomeHold            = "hold"
	OutcomeAlreadyPosition = "already_position"
	OutcomeCancelled       = "skipped_cancelled"
)

func skipped(reason string) string { return "skipped_" + reason }

type Outcome struct {
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side,omitempty"`
	Status   string  `json:"status"`
	Qty      int64   `json:"qty,omitempty"`
	Price    float64 `json:"price,omitempty"`
	ClientID string  `json:"client_id,omitempty"`
	BrokerID string  `json:"broker_id,omitempty"`
	Note     string  `json:"note,omitempty"`
}

// Result is what every run returns, whatever happened.
type Result struct {
	Status     string     `json:"status"`
	Reason     string     `json:"reason,omitempty"`
	State      State      `json:"state"`
	Job        Job        `json:"job"`
	AccountID  string     `json:"account_id"`
	Period     string     `json:"period"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Until      *time.Time `json:"until,omitempty"`
	Details    []Outcome  `json:"details"`

	// Err is set when State is Failed.
	Err error `json:"-"`
}

// Count returns how many outcomes have status.
func (r Result) Count(status string) int {
	n := 0
	for _, o := range r.Details {
		if o.Status == status {
			n++
		}
	}
	return n
}

func (r Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

func statusOf(s State) string {
	switch s {
	case Done:
		return StatusDone
	case Failed:
		return StatusError
	default:
		return StatusSkipped
	}
}
