package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

// MySQLStore keeps sender history in a MySQL table, for setups where
// several filter instances share one history
type MySQLStore struct {
	sqlStore
}

// NewMySQLStore connects to dsn and creates the table if needed
func NewMySQLStore(dsn string, logger *zap.Logger) (*MySQLStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sender_history (
			sender_email VARCHAR(255) PRIMARY KEY,
			seen INT NOT NULL DEFAULT 0,
			flag_count INT NOT NULL DEFAULT 0,
			surface_count INT NOT NULL DEFAULT 0,
			ignore_count INT NOT NULL DEFAULT 0,
			last_seen VARCHAR(64) NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &MySQLStore{sqlStore{
		db:   db,
		name: "mysql",
		upsert: `
			INSERT INTO sender_history (sender_email, seen, flag_count, surface_count, ignore_count, last_seen)
			VALUES (?, ?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
				seen = seen + VALUES(seen),
				flag_count = flag_count + VALUES(flag_count),
				surface_count = surface_count + VALUES(surface_count),
				ignore_count = ignore_count + VALUES(ignore_count),
				last_seen = VALUES(last_seen)
		`,
		logger: logger,
		now:    time.Now,
	}}, nil
}
