package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/rebalancer/pkg/id"
)

// SQLStore is the database/sql backed Store shared by the SQLite and
// Postgres drivers. Queries are written with ? placeholders and rebound
// for Postgres.
type SQLStore struct {
	db       *sql.DB
	postgres bool
	now      func() time.Time
}

var _ Store = (*SQLStore)(nil)

// Open picks the backend from the DSN: postgres:// or postgresql:// URLs
// use Postgres, anything else is a SQLite file path.
func Open(dsn string) (*SQLStore, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return NewPostgres(dsn)
	}
	return NewSQLite(dsn)
}

func newSQLStore(db *sql.DB, postgres bool) (*SQLStore, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLStore{db: db, postgres: postgres, now: time.Now}, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) bind(q string) string {
	if !s.postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) LoadState(ctx context.Context, accountID string) (State, error) {
	st := State{AccountID: accountID}

	var (
		until     sql.NullInt64
		equity    sql.NullFloat64
		updatedAt int64
	)
	row := s.db.QueryRowContext(ctx, s.bind(`
		SELECT breaker_until, day_start_equity, day_start_date, updated_at
		FROM period_state
		WHERE account_id = ?`), accountID)
	err := row.Scan(&until, &equity, &st.DayStartDate, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("load state %q: %w", accountID, err)
	}

	if until.Valid {
		t := time.Unix(0, until.Int64).UTC()
		st.CircuitBreakerUntil = &t
	}
	if equity.Valid {
		v := equity.Float64
		st.DayStartEquity = &v
	}
	st.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return st, nil
}

func (s *SQLStore) SaveState(ctx context.Context, st State) error {
	if st.AccountID == "" {
		return errors.New("save state: empty account id")
	}

	var until sql.NullInt64
	if st.CircuitBreakerUntil != nil {
		until = sql.NullInt64{Int64: st.CircuitBreakerUntil.UnixNano(), Valid: true}
	}
	var equity sql.NullFloat64
	if st.DayStartEquity != nil {
		equity = sql.NullFloat64{Float64: *st.DayStartEquity, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, s.bind(`
		INSERT INTO period_state (account_id, breaker_until, day_start_equity, day_start_date, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (account_id) DO UPDATE SET
			breaker_until = excluded.breaker_until,
			day_start_equity = excluded.day_start_equity,
			day_start_date = excluded.day_start_date,
			updated_at = excluded.updated_at`),
		st.AccountID, until, equity, st.DayStartDate, s.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save state %q: %w", st.AccountID, err)
	}
	return nil
}

func (s *SQLStore) LastPeriod(ctx context.Context, accountID, job string) (string, error) {
	var period string
	err := s.db.QueryRowContext(ctx, s.bind(`
		SELECT period FROM period_marks WHERE account_id = ? AND job = ?`),
		accountID, job,
	).Scan(&period)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("last period %s/%s: %w", accountID, job, err)
	}
	return period, nil
}

func (s *SQLStore) MarkPeriod(ctx context.Context, accountID, job, prev, next string) error {
	if next == "" {
		return errors.New("mark period: empty period")
	}
	now := s.now().UnixNano()

	res, err := s.db.ExecContext(ctx, s.bind(`
		UPDATE period_marks SET period = ?, updated_at = ?
		WHERE account_id = ? AND job = ? AND period = ?`),
		next, now, accountID, job, prev,
	)
	if err != nil {
		return fmt.Errorf("mark period %s/%s: %w", accountID, job, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		return nil
	}
	if prev != "" {
		return fmt.Errorf("mark period %s/%s from %q: %w", accountID, job, prev, ErrPeriodConflict)
	}

	res, err = s.db.ExecContext(ctx, s.bind(`
		INSERT INTO period_marks (account_id, job, period, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (account_id, job) DO NOTHING`),
		accountID, job, next, now,
	)
	if err != nil {
		return fmt.Errorf("mark period %s/%s: %w", accountID, job, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark period %s/%s: %w", accountID, job, err)
	}
	if n == 0 {
		return fmt.Errorf("mark period %s/%s: %w", accountID, job, ErrPeriodConflict)
	}
	return nil
}

func (s *SQLStore) AppendExecution(ctx context.Context, e Execution) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	if e.ID == "" {
		e.ID = id.NewAt(e.Timestamp)
	}

	_, err := s.db.ExecContext(ctx, s.bind(`
		INSERT INTO executions
		(id, account_id, job, period, ts, day, symbol, side, qty, price, broker_id, client_id, status, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		e.ID, e.AccountID, e.Job, e.Period, e.Timestamp.UnixNano(), e.Day(),
		e.Symbol, e.Side, e.Qty, e.Price, e.BrokerID, e.ClientID, string(e.Status), e.Note,
	)
	if err != nil {
		return fmt.Errorf("append execution %s: %w", e.ClientID, err)
	}
	return nil
}

func (s *SQLStore) CountExecutions(ctx context.Context, accountID, day string, status Status) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.bind(`
		SELECT COUNT(*) FROM executions
		WHERE account_id = ? AND day = ? AND status = ?`),
		accountID, day, string(status),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count executions %s %s: %w", accountID, day, err)
	}
	return n, nil
}

// ListExecutions returns matching records oldest first.
func (s *SQLStore) ListExecutions(ctx context.Context, f Filter) ([]Execution, error) {
	var (
		where []string
		args  []any
	)
	if f.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, f.AccountID)
	}
	if f.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, strings.ToUpper(f.Symbol))
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if !f.Since.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, f.Since.UnixNano())
	}
	if !f.Until.IsZero() {
		where = append(where, "ts < ?")
		args = append(args, f.Until.UnixNano())
	}

	q := `SELECT id, account_id, job, period, ts, symbol, side, qty, price, broker_id, client_id, status, note
		FROM executions`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY ts ASC, id ASC"
	if f.Limit > 0 {
		q += " LIMIT " + strconv.Itoa(f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.bind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []Execution
	for rows.Next() {
		var (
			e      Execution
			ts     int64
			status string
		)
		if err := rows.Scan(
			&e.ID,
			&e.AccountID,
			&e.Job,
			&e.Period,
			&ts,
			&e.Symbol,
			&e.Side,
			&e.Qty,
			&e.Price,
			&e.BrokerID,
			&e.ClientID,
			&status,
			&e.Note,
		); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		e.Timestamp = time.Unix(0, ts).UTC()
		e.Status = Status(status)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	return out, nil
}
