package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// NewSQLite opens (creating if needed) a SQLite state store at path.
func NewSQLite(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// one writer; avoids SQLITE_BUSY between the runner and the server
	db.SetMaxOpenConns(1)

	s, err := newSQLStore(db, false)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}
