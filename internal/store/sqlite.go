// Package store persists filing history in a local SQLite database, so
// an already archived message can be recognized across sessions.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/kup/belegmail/internal/model"
)

// SQLiteStore records filings in a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// RecordFiling inserts a filing. A missing ID or FiledAt is filled in.
func (s *SQLiteStore) RecordFiling(ctx context.Context, f model.Filing) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.FiledAt.IsZero() {
		f.FiledAt = time.Now()
	}

	const query = `
		INSERT INTO filings (
			id, uid, folder, message_id,
			vendor, date, currency, amount,
			category, archived_path, filed_at
		) VALUES (
			:id, :uid, :folder, :message_id,
			:vendor, :date, :currency, :amount,
			:category, :archived_path, :filed_at
		)`

	if _, err := s.db.NamedExecContext(ctx, query, f); err != nil {
		return fmt.Errorf("recording filing for uid %d: %w", f.UID, err)
	}
	return nil
}

// ListFilings returns the most recent filings, newest first. A limit
// of zero or less returns all.
func (s *SQLiteStore) ListFilings(ctx context.Context, limit int) ([]model.Filing, error) {
	query := "SELECT * FROM filings ORDER BY filed_at DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var filings []model.Filing
	if err := s.db.SelectContext(ctx, &filings, query, args...); err != nil {
		return nil, fmt.Errorf("listing filings: %w", err)
	}
	return filings, nil
}

// FilingByMessageID returns the filing for a protocol message id, or
// nil when the message was never filed.
func (s *SQLiteStore) FilingByMessageID(ctx context.Context, messageID string) (*model.Filing, error) {
	if messageID == "" {
		return nil, nil
	}

	var f model.Filing
	err := s.db.GetContext(ctx, &f,
		"SELECT * FROM filings WHERE message_id = ? ORDER BY filed_at DESC LIMIT 1",
		messageID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up filing for %s: %w", messageID, err)
	}
	return &f, nil
}
