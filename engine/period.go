package engine

import (
	"fmt"
	"strings"
	"time"
)

// PeriodFunc maps an instant to the identifier of the period containing it.
// Two instants in the same period must yield the same string.
type PeriodFunc func(time.Time) string

// Daily identifies UTC calendar days, e.g. 2024-05-01.
func Daily(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Weekly identifies ISO weeks in UTC, e.g. 2024-W18.
func Weekly(t time.Time) string {
	y, w := t.UTC().ISOWeek()
	return fmt.Sprintf("%04d-W%02d", y, w)
}

// Cadence resolves a configured cadence name.
func Cadence(name string) (PeriodFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "daily", "day":
		return Daily, nil
	case "weekly", "week":
		return Weekly, nil
	default:
		return nil, fmt.Errorf("%w: unknown cadence %q", ErrConfiguration, name)
	}
}
