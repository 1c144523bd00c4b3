// Package store persists the agent's local state: delivery history, the
// per-command execution log, and the web UI's admin login. One SQLite file,
// WAL mode, one writer connection.
package store

import (
	"database/sql"
	"fmt"
	"net/url"

	_ "modernc.org/sqlite"
)

// DB is the agent's local history database.
type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema. The pool is capped at a single connection: every writer here is a
// background goroutine and SQLite serializes them regardless.
func Open(path string) (*DB, error) {
	pragmas := url.Values{}
	pragmas.Set("_journal_mode", "WAL")
	pragmas.Set("_busy_timeout", "5000")
	pragmas.Set("_foreign_keys", "on")

	sqlDB, err := sql.Open("sqlite", "file:"+path+"?"+pragmas.Encode())
	if err != nil {
		return nil, fmt.Errorf("open history db %s: %w", path, err)
	}
	sqlDB.SetMaxOpenConns(1)

	db := &DB{sqlDB}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return db, nil
}
