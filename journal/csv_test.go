package journal

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCSV(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	err := WriteCSV(&buf, []Execution{
		{ID: "E1", AccountID: "acct", Job: "run", Period: "2024-05-01", Timestamp: ts, Symbol: "AAPL", Side: "buy", Qty: 10, Price: 190.5, BrokerID: "b1", ClientID: "c1", Status: StatusSubmitted},
		{ID: "E2", AccountID: "acct", Job: "run", Period: "2024-05-01", Timestamp: ts, Symbol: "MSFT", Side: "buy", Qty: 5, Price: 410, ClientID: "c2", Status: StatusError, Note: "insufficient, buying power"},
	})
	require.NoError(t, err)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{
		"E1", "acct", "run", "2024-05-01", "2024-05-01T15:00:00Z", "AAPL", "buy",
		"10.000000", "190.500000", "b1", "c1", "submitted", "",
	}, rows[1])
	assert.Equal(t, "insufficient, buying power", rows[2][12])
}

func TestWriteCSVEmpty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, "id,account_id,job,period,timestamp,symbol,side,qty,price,broker_id,client_id,status,note\n", buf.String())
}
