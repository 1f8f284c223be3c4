// CLAUDE:SUMMARY SQLite snapshot backend: opens the DB with WAL pragmas, full-overwrite Save inside a BUSY-retrying transaction.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Schema is the snapshot table. class holds the attachment list as JSON.
const Schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	snap_key   TEXT PRIMARY KEY,
	gun        TEXT NOT NULL,
	class      TEXT NOT NULL DEFAULT '[]',
	mode       TEXT NOT NULL,
	range_band TEXT NOT NULL,
	message_id TEXT NOT NULL DEFAULT '',
	saved_at   INTEGER NOT NULL
);
`

var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 10000",
	"PRAGMA synchronous = NORMAL",
}

// SQLiteStore keeps the snapshot in an SQLite table.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("snapshot: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("snapshot: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("snapshot: schema: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) Map {
	rows, err := s.db.QueryContext(ctx, `SELECT snap_key, gun, class, mode, range_band, message_id FROM snapshots`)
	if err != nil {
		s.logger.Warn("snapshot: query failed, starting empty", "error", err)
		return Map{}
	}
	defer rows.Close()

	m := Map{}
	for rows.Next() {
		var key, class string
		var e Entry
		if err := rows.Scan(&key, &e.Gun, &class, &e.Mode, &e.Range, &e.MessageID); err != nil {
			s.logger.Warn("snapshot: scan failed, starting empty", "error", err)
			return Map{}
		}
		if err := json.Unmarshal([]byte(class), &e.Class); err != nil {
			s.logger.Warn("snapshot: malformed class, starting empty", "key", key, "error", err)
			return Map{}
		}
		m[key] = e
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn("snapshot: rows failed, starting empty", "error", err)
		return Map{}
	}
	return m
}

func (s *SQLiteStore) Save(ctx context.Context, m Map) error {
	now := time.Now().Unix()
	return runTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots`); err != nil {
			return fmt.Errorf("snapshot: clear: %w", err)
		}
		for key, e := range m {
			class := e.Class
			if class == nil {
				class = []string{}
			}
			data, err := json.Marshal(class)
			if err != nil {
				return fmt.Errorf("snapshot: marshal class: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO snapshots (snap_key, gun, class, mode, range_band, message_id, saved_at)
				VALUES (?,?,?,?,?,?,?)`,
				key, e.Gun, string(data), e.Mode, e.Range, e.MessageID, now); err != nil {
				return fmt.Errorf("snapshot: insert %s: %w", key, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const maxRetries = 3

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// runTx executes fn in a transaction, retrying up to 3 times on SQLITE_BUSY.
func runTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	for i := 0; i < maxRetries; i++ {
		err := runOnce(ctx, db, fn)
		if err == nil {
			return nil
		}
		if !isBusy(err) || i == maxRetries-1 {
			return err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("snapshot: context cancelled during retry: %w", ctx.Err())
		case <-time.After(time.Duration(100*(i+1)) * time.Millisecond):
		}
	}
	return fmt.Errorf("snapshot: max retries exceeded")
}

func runOnce(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("snapshot: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("snapshot: commit: %w", err)
	}
	return nil
}
