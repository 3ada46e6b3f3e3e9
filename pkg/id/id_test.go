package id

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsSortable(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC)
	a := NewAt(ts)
	b := NewAt(ts)
	c := NewAt(ts.Add(time.Second))

	assert.Len(t, a, 26)
	assert.Less(t, a, b)
	assert.Less(t, b, c)
}

func TestClientOrderID(t *testing.T) {
	t.Parallel()

	now := time.Unix(1767605400, 0)

	tests := []struct {
		name   string
		tag    string
		symbol string
		re     string
	}{
		{"no tag", "", "aapl", `^AAPL-1767605400-[0-9a-f]{8}$`},
		{"paper tag", "paper", "MSFT", `^paper-MSFT-1767605400-[0-9a-f]{8}$`},
		{"trimmed", "live", " nvda ", `^live-NVDA-1767605400-[0-9a-f]{8}$`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ClientOrderID(tt.tag, tt.symbol, now)
			require.Regexp(t, regexp.MustCompile(tt.re), got)
		})
	}
}

func TestClientOrderIDUnique(t *testing.T) {
	t.Parallel()

	now := time.Now()
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		cid := ClientOrderID("", "SPY", now)
		assert.False(t, seen[cid], "duplicate client id %s", cid)
		seen[cid] = true
	}
}
