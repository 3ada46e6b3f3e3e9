package journal

import (
	"fmt"
	"strings"
	"time"
)

// FormatExecutionOrg renders an Execution as an Org-mode block. Facts go in
// a PROPERTIES drawer for search; the Review heading is left for notes.
func FormatExecutionOrg(e Execution) string {
	heading := fmt.Sprintf("** %s %s %s (%s)", strings.ToUpper(e.Side), e.Symbol, e.Status, shortID(e.ID))

	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n")
	b.WriteString(":PROPERTIES:\n")
	b.WriteString(fmt.Sprintf(":ID: %s\n", e.ID))
	b.WriteString(fmt.Sprintf(":ACCOUNT: %s\n", e.AccountID))
	b.WriteString(fmt.Sprintf(":JOB: %s\n", e.Job))
	b.WriteString(fmt.Sprintf(":PERIOD: %s\n", e.Period))
	b.WriteString(fmt.Sprintf(":TIME: %s\n", e.Timestamp.UTC().Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf(":SYMBOL: %s\n", e.Symbol))
	b.WriteString(fmt.Sprintf(":SIDE: %s\n", e.Side))
	b.WriteString(fmt.Sprintf(":QTY: %.0f\n", e.Qty))
	b.WriteString(fmt.Sprintf(":PRICE: %.2f\n", e.Price))
	b.WriteString(fmt.Sprintf(":CLIENT_ID: %s\n", e.ClientID))
	if e.BrokerID != "" {
		b.WriteString(fmt.Sprintf(":BROKER_ID: %s\n", e.BrokerID))
	}
	b.WriteString(fmt.Sprintf(":STATUS: %s\n", e.Status))
	if e.Note != "" {
		b.WriteString(fmt.Sprintf(":NOTE: %s\n", oneLine(e.Note)))
	}
	b.WriteString(":END:\n")
	b.WriteString("\n")
	b.WriteString("*** Review\n- \n")

	return b.String()
}

// FormatExecutionsOrg renders multiple records separated by blank lines.
func FormatExecutionsOrg(execs []Execution) string {
	var b strings.Builder
	for i, e := range execs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(FormatExecutionOrg(e))
	}
	return b.String()
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[:8]
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
