package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/senders"
)

// sqlStore holds the logic shared by the SQLite and MySQL stores. Each
// commit runs in one transaction and adds per-sender deltas with an upsert,
// so concurrent writers never overwrite each other's counts.
type sqlStore struct {
	db     *sql.DB
	name   string
	upsert string
	logger *zap.Logger
	now    func() time.Time
}

// Name identifies the store in logs and metrics
func (s *sqlStore) Name() string {
	return s.name
}

// Load reads every sender row
func (s *sqlStore) Load(ctx context.Context) (*senders.Profile, error) {
	profile := senders.NewProfile()

	rows, err := s.db.QueryContext(ctx, `
		SELECT sender_email, seen, flag_count, surface_count, ignore_count, last_seen
		FROM sender_history
	`)
	if err != nil {
		return profile, fmt.Errorf("failed to query sender history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sender string
		var lastSeen sql.NullString
		rec := &senders.Record{}
		if err := rows.Scan(&sender, &rec.Seen, &rec.FlagCount, &rec.SurfaceCount, &rec.IgnoreCount, &lastSeen); err != nil {
			return senders.NewProfile(), fmt.Errorf("failed to scan sender history: %w", err)
		}
		if lastSeen.Valid {
			ts := lastSeen.String
			rec.LastSeen = &ts
		}
		profile.Senders[sender] = rec
	}
	if err := rows.Err(); err != nil {
		return senders.NewProfile(), fmt.Errorf("failed to read sender history: %w", err)
	}
	return profile, nil
}

// Commit adds the batch's decisions to the stored counters
func (s *sqlStore) Commit(ctx context.Context, observations []senders.Observation) error {
	delta := senders.Update(senders.NewProfile(), observations, s.now())
	if len(delta.Senders) == 0 {
		return nil
	}

	keys := make([]string, 0, len(delta.Senders))
	for k := range delta.Senders {
		keys = append(keys, k)
	}
	// stable lock order across concurrent writers
	sort.Strings(keys)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.upsert)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, sender := range keys {
		rec := delta.Senders[sender]
		if _, err := stmt.ExecContext(ctx, sender, rec.Seen, rec.FlagCount, rec.SurfaceCount, rec.IgnoreCount, rec.LastSeen); err != nil {
			return fmt.Errorf("failed to update sender %s: %w", sender, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sender history: %w", err)
	}

	s.logger.Debug("Committed sender history",
		zap.String("store", s.name),
		zap.Int("senders", len(keys)),
		zap.Int("observations", len(observations)))
	return nil
}

// Close closes the database connection
func (s *sqlStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close %s database: %w", s.name, err)
	}
	return nil
}
