// journal/journal.go
package journal

import (
	"context"
	"errors"
	"time"
)

// ErrPeriodConflict is returned by MarkPeriod when the stored mark no
// longer matches the caller's expected previous value.
var ErrPeriodConflict = errors.New("period mark changed concurrently")

type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusError     Status = "error"
)

// State is the per-account guard state that survives restarts.
type State struct {
	AccountID           string
	CircuitBreakerUntil *time.Time
	DayStartEquity      *float64
	DayStartDate        string // YYYY-MM-DD, UTC
	UpdatedAt           time.Time
}

// Halted reports whether the breaker is still active at now.
func (s State) Halted(now time.Time) bool {
	return s.CircuitBreakerUntil != nil && now.Before(*s.CircuitBreakerUntil)
}

// Execution is one order attempt. Records are append-only.
type Execution struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Job       string    `json:"job"`
	Period    string    `json:"period"`
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Qty       float64   `json:"qty"`
	Price     float64   `json:"price"`
	BrokerID  string    `json:"broker_id,omitempty"`
	ClientID  string    `json:"client_id"`
	Status    Status    `json:"status"`
	Note      string    `json:"note,omitempty"`
}

// Day is the UTC calendar date of the record.
func (e Execution) Day() string {
	return e.Timestamp.UTC().Format(DayLayout)
}

const DayLayout = "2006-01-02"

// Filter selects executions. Zero values match everything.
type Filter struct {
	AccountID string
	Symbol    string
	Status    Status
	Since     time.Time // inclusive
	Until     time.Time // exclusive
	Limit     int
}

// Store persists period state and the execution ledger.
type Store interface {
	LoadState(ctx context.Context, accountID string) (State, error)
	SaveState(ctx context.Context, st State) error

	// LastPeriod returns "" when the job has never completed.
	LastPeriod(ctx context.Context, accountID, job string) (string, error)
	// MarkPeriod sets the job's period to next only if it still equals prev.
	MarkPeriod(ctx context.Context, accountID, job, prev, next string) error

	AppendExecution(ctx context.Context, e Execution) error
	CountExecutions(ctx context.Context, accountID, day string, status Status) (int, error)
	ListExecutions(ctx context.Context, f Filter) ([]Execution, error)

	Close() error
}
