package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriods(t *testing.T) {
	t.Parallel()

	est := time.FixedZone("EST", -5*3600)
	tests := []struct {
		name   string
		at     time.Time
		daily  string
		weekly string
	}{
		{"midweek", time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC), "2024-05-01", "2024-W18"},
		{"local evening is next UTC day", time.Date(2024, 5, 1, 22, 30, 0, 0, est), "2024-05-02", "2024-W18"},
		{"iso year before", time.Date(2021, 1, 3, 12, 0, 0, 0, time.UTC), "2021-01-03", "2020-W53"},
		{"iso year after", time.Date(2024, 12, 30, 12, 0, 0, 0, time.UTC), "2024-12-30", "2025-W01"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.daily, Daily(tt.at))
			assert.Equal(t, tt.weekly, Weekly(tt.at))
		})
	}

	// same week, different days
	assert.Equal(t, Weekly(time.Date(2024, 4, 29, 0, 0, 0, 0, time.UTC)), Weekly(time.Date(2024, 5, 5, 23, 59, 0, 0, time.UTC)))
}

func TestCadence(t *testing.T) {
	t.Parallel()

	f, err := Cadence("Weekly")
	require.NoError(t, err)
	assert.Equal(t, "2024-W18", f(t0))

	f, err = Cadence("daily")
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", f(t0))

	_, err = Cadence("hourly")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestRunLock(t *testing.T) {
	t.Parallel()

	l := NewRunLock()
	unlock, err := l.Lock(context.Background(), "acct")
	require.NoError(t, err)

	// other keys are independent
	other, err := l.Lock(context.Background(), "other")
	require.NoError(t, err)
	other()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "acct")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	acquired := make(chan struct{})
	go func() {
		u, err := l.Lock(context.Background(), "acct")
		if err == nil {
			u()
		}
		close(acquired)
	}()
	unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the lock")
	}
}
