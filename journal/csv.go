package journal

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

var csvHeader = []string{
	"id", "account_id", "job", "period", "timestamp", "symbol", "side",
	"qty", "price", "broker_id", "client_id", "status", "note",
}

// WriteCSV writes the ledger as CSV with a header row.
func WriteCSV(w io.Writer, execs []Execution) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, e := range execs {
		err := cw.Write([]string{
			e.ID,
			e.AccountID,
			e.Job,
			e.Period,
			e.Timestamp.UTC().Format(time.RFC3339),
			e.Symbol,
			e.Side,
			f(e.Qty),
			f(e.Price),
			e.BrokerID,
			e.ClientID,
			string(e.Status),
			e.Note,
		})
		if err != nil {
			return fmt.Errorf("write csv row %s: %w", e.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
