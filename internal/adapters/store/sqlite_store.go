package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// SQLiteStore keeps sender history in a SQLite database
type SQLiteStore struct {
	sqlStore
}

// NewSQLiteStore opens (and if needed creates) the database at dbPath
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sender_history (
			sender_email TEXT PRIMARY KEY,
			seen INTEGER NOT NULL DEFAULT 0,
			flag_count INTEGER NOT NULL DEFAULT 0,
			surface_count INTEGER NOT NULL DEFAULT 0,
			ignore_count INTEGER NOT NULL DEFAULT 0,
			last_seen TEXT
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &SQLiteStore{sqlStore{
		db:   db,
		name: "sqlite",
		upsert: `
			INSERT INTO sender_history (sender_email, seen, flag_count, surface_count, ignore_count, last_seen)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(sender_email) DO UPDATE SET
				seen = seen + excluded.seen,
				flag_count = flag_count + excluded.flag_count,
				surface_count = surface_count + excluded.surface_count,
				ignore_count = ignore_count + excluded.ignore_count,
				last_seen = excluded.last_seen
		`,
		logger: logger,
		now:    time.Now,
	}}, nil
}
