package journal

import (
	"context"
	"fmt"
	"sort"
	"time"
)

type SymbolSummary struct {
	Symbol       string  `json:"symbol"`
	Buys         int     `json:"buys"`
	Sells        int     `json:"sells"`
	Errors       int     `json:"errors"`
	BuyNotional  float64 `json:"buy_notional"`
	SellNotional float64 `json:"sell_notional"`
}

// Summary aggregates a slice of the ledger. Notional only counts
// submitted records.
type Summary struct {
	From         time.Time       `json:"from,omitempty"`
	To           time.Time       `json:"to,omitempty"`
	Total        int             `json:"total"`
	ByStatus     map[Status]int  `json:"by_status"`
	BuyNotional  float64         `json:"buy_notional"`
	SellNotional float64         `json:"sell_notional"`
	Symbols      []SymbolSummary `json:"symbols"`
}

func Summarize(execs []Execution) Summary {
	sum := Summary{ByStatus: map[Status]int{}}
	bySym := map[string]*SymbolSummary{}

	for _, e := range execs {
		sum.Total++
		sum.ByStatus[e.Status]++
		if sum.From.IsZero() || e.Timestamp.Before(sum.From) {
			sum.From = e.Timestamp
		}
		if e.Timestamp.After(sum.To) {
			sum.To = e.Timestamp
		}

		ss, ok := bySym[e.Symbol]
		if !ok {
			ss = &SymbolSummary{Symbol: e.Symbol}
			bySym[e.Symbol] = ss
		}
		if e.Status != StatusSubmitted {
			ss.Errors++
			continue
		}

		n := e.Qty * e.Price
		switch e.Side {
		case "buy":
			ss.Buys++
			ss.BuyNotional += n
			sum.BuyNotional += n
		case "sell":
			ss.Sells++
			ss.SellNotional += n
			sum.SellNotional += n
		}
	}

	for _, ss := range bySym {
		sum.Symbols = append(sum.Symbols, *ss)
	}
	sort.Slice(sum.Symbols, func(i, j int) bool { return sum.Symbols[i].Symbol < sum.Symbols[j].Symbol })
	return sum
}

// Report lists the ledger for accountID over [since, until) and summarizes it.
func Report(ctx context.Context, s Store, accountID string, since, until time.Time) (Summary, error) {
	execs, err := s.ListExecutions(ctx, Filter{AccountID: accountID, Since: since, Until: until})
	if err != nil {
		return Summary{}, fmt.Errorf("report: %w", err)
	}
	return Summarize(execs), nil
}
