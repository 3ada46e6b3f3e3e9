// journal/schema.go
package journal

// Schema is portable between SQLite and Postgres. Timestamps are unix
// nanoseconds so range queries sort the same on both.
const Schema = `
CREATE TABLE IF NOT EXISTS period_state (
	account_id TEXT PRIMARY KEY,
	breaker_until BIGINT,
	day_start_equity DOUBLE PRECISION,
	day_start_date TEXT NOT NULL DEFAULT '',
	updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS period_marks (
	account_id TEXT NOT NULL,
	job TEXT NOT NULL,
	period TEXT NOT NULL,
	updated_at BIGINT NOT NULL,
	PRIMARY KEY (account_id, job)
);

CREATE TABLE IF NOT EXISTS executions (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	job TEXT NOT NULL,
	period TEXT NOT NULL,
	ts BIGINT NOT NULL,
	day TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	qty DOUBLE PRECISION NOT NULL,
	price DOUBLE PRECISION NOT NULL,
	broker_id TEXT NOT NULL,
	client_id TEXT NOT NULL,
	status TEXT NOT NULL,
	note TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_executions_day ON executions(account_id, day, status);
CREATE INDEX IF NOT EXISTS idx_executions_ts ON executions(ts);
`
