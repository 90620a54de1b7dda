package sqlite

import (
	"database/sql"
	"fmt"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

// InitDB opens the SQLite database at path and creates the transfers table if
// it doesn't exist.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writers; one connection avoids "database is locked".
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS transfers (
		id INTEGER PRIMARY KEY,
		kind TEXT NOT NULL,
		transfer_key TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		file_path TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		bytes INTEGER NOT NULL DEFAULT 0,
		digest TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL,
		UNIQUE(kind, transfer_key)
	)`)
	if err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to create transfers table: %w", err)
	}

	return db, nil
}
