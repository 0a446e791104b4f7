// Package storage is KICKAI's sqlite-backed persistence layer (C1):
// teams, players, members, invites, matches, reminders, the chat-scoped
// inbox queue, and the command audit log. Every repository hangs off one
// *Store and shares its migration ledger and retry-on-busy helper.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	schemaVersionLatest  = 1
	schemaChecksumLatest = "kickai-v1-2026-domain-schema"
)

// Store wraps the single sqlite connection shared by all repositories.
// Writes are serialized (MaxOpenConns=1): sqlite concurrency is bought
// with WAL + retryOnBusy, not a connection pool.
type Store struct {
	db *sql.DB
}

// DefaultDBPath returns the default sqlite file location under the KICKAI
// home directory.
func DefaultDBPath(homeDir string) string {
	return filepath.Join(homeDir, "kickai.db")
}

// Open creates (or reuses) the sqlite database at path, applying pragmas
// and running the schema migration.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("storage: empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite3: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db}
	if err := store.configurePragmas(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) configurePragmas(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
	}
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	return nil
}

// retryOnBusy retries f when sqlite returns BUSY/LOCKED, with bounded
// exponential backoff and jitter.
func retryOnBusy(ctx context.Context, maxRetries int, f func() error) error {
	const baseDelay = 50 * time.Millisecond
	const maxDelay = 500 * time.Millisecond

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = f()
		if err == nil {
			return nil
		}
		if !isSQLiteBusy(err) {
			return err
		}
		if attempt == maxRetries {
			return err
		}
		delay := baseDelay << uint(attempt)
		if delay > maxDelay {
			delay = maxDelay
		}
		jitter := time.Duration(rand.IntN(int(delay / 2)))
		delay = delay - delay/4 + jitter

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "(5)") ||
		strings.Contains(msg, "(6)")
}

func (s *Store) initSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var maxVersion int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations;`).Scan(&maxVersion); err != nil {
		return fmt.Errorf("read migration max version: %w", err)
	}
	if maxVersion > schemaVersionLatest {
		return fmt.Errorf("db schema version %d is newer than supported %d", maxVersion, schemaVersionLatest)
	}
	if maxVersion == schemaVersionLatest {
		var existingChecksum string
		if err := tx.QueryRowContext(ctx, `SELECT checksum FROM schema_migrations WHERE version = ?;`, schemaVersionLatest).Scan(&existingChecksum); err != nil {
			return fmt.Errorf("read schema migration checksum: %w", err)
		}
		if existingChecksum != schemaChecksumLatest {
			return fmt.Errorf("schema checksum mismatch for version %d: got %q want %q", schemaVersionLatest, existingChecksum, schemaChecksumLatest)
		}
		return tx.Commit()
	}
	if maxVersion != 0 {
		return fmt.Errorf("db schema version %d is older than supported minimum %d", maxVersion, schemaVersionLatest)
	}

	tableStatements := []string{
		`CREATE TABLE IF NOT EXISTS teams (
			team_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			main_chat_id INTEGER,
			leadership_chat_id INTEGER,
			disabled INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS players (
			player_id TEXT PRIMARY KEY,
			team_id TEXT NOT NULL REFERENCES teams(team_id),
			telegram_id INTEGER,
			name TEXT NOT NULL,
			phone TEXT,
			position TEXT,
			status TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending','active','inactive')),
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(team_id, telegram_id)
		);`,
		`CREATE TABLE IF NOT EXISTS members (
			member_id TEXT PRIMARY KEY,
			team_id TEXT NOT NULL REFERENCES teams(team_id),
			telegram_id INTEGER,
			name TEXT NOT NULL,
			phone TEXT,
			email TEXT,
			role TEXT,
			emergency_contact TEXT,
			is_admin INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending','active','inactive')),
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(team_id, telegram_id)
		);`,
		`CREATE TABLE IF NOT EXISTS invites (
			invite_id TEXT PRIMARY KEY,
			team_id TEXT NOT NULL REFERENCES teams(team_id),
			chat_kind TEXT NOT NULL CHECK(chat_kind IN ('main','leadership')),
			subject_kind TEXT NOT NULL CHECK(subject_kind IN ('player','member')),
			subject_id TEXT NOT NULL,
			issuer_id TEXT,
			issued_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			expires_at DATETIME NOT NULL,
			used_at DATETIME,
			used_by INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS matches (
			match_id TEXT PRIMARY KEY,
			team_id TEXT NOT NULL REFERENCES teams(team_id),
			opponent TEXT NOT NULL,
			kickoff_at DATETIME,
			venue TEXT,
			status TEXT NOT NULL DEFAULT 'scheduled' CHECK(status IN ('scheduled','squad_selected','completed','cancelled')),
			selected_player_ids TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS availability (
			match_id TEXT NOT NULL REFERENCES matches(match_id),
			player_id TEXT NOT NULL REFERENCES players(player_id),
			response TEXT NOT NULL CHECK(response IN ('available','unavailable')),
			responded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY(match_id, player_id)
		);`,
		`CREATE TABLE IF NOT EXISTS reminders (
			reminder_id TEXT PRIMARY KEY,
			team_id TEXT NOT NULL REFERENCES teams(team_id),
			chat_kind TEXT NOT NULL CHECK(chat_kind IN ('main','leadership')),
			body TEXT NOT NULL,
			cron_expr TEXT NOT NULL,
			created_by TEXT,
			enabled INTEGER NOT NULL DEFAULT 1,
			next_run_at DATETIME,
			last_run_at DATETIME
		);`,
		`CREATE TABLE IF NOT EXISTS polls (
			poll_id TEXT PRIMARY KEY,
			team_id TEXT NOT NULL REFERENCES teams(team_id),
			chat_kind TEXT NOT NULL CHECK(chat_kind IN ('main','leadership')),
			question TEXT NOT NULL,
			options TEXT NOT NULL,
			created_by TEXT,
			closed_at DATETIME
		);`,
		`CREATE TABLE IF NOT EXISTS poll_votes (
			poll_id TEXT NOT NULL REFERENCES polls(poll_id),
			subject_id TEXT NOT NULL,
			option_index INTEGER NOT NULL,
			voted_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY(poll_id, subject_id)
		);`,
		`CREATE TABLE IF NOT EXISTS command_audit_log (
			audit_id INTEGER PRIMARY KEY AUTOINCREMENT,
			trace_id TEXT,
			team_id TEXT,
			chat_kind TEXT,
			telegram_id INTEGER,
			command TEXT NOT NULL,
			decision TEXT NOT NULL,
			error_kind TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS inbox_tasks (
			id TEXT PRIMARY KEY,
			team_id TEXT NOT NULL,
			chat_kind TEXT NOT NULL,
			chat_id INTEGER NOT NULL,
			status TEXT NOT NULL CHECK(status IN ('QUEUED','CLAIMED','RUNNING','SUCCEEDED','FAILED','CANCELED')),
			trace_id TEXT NOT NULL,
			payload TEXT NOT NULL,
			result TEXT,
			error TEXT,
			lease_owner TEXT,
			lease_expires_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
	}
	for _, stmt := range tableStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}

	indexStatements := []string{
		`CREATE INDEX IF NOT EXISTS idx_invites_team ON invites(team_id);`,
		`CREATE INDEX IF NOT EXISTS idx_matches_team ON matches(team_id);`,
		`CREATE INDEX IF NOT EXISTS idx_inbox_chat_order ON inbox_tasks(team_id, chat_kind, chat_id, status, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_team ON command_audit_log(team_id, created_at);`,
	}
	for _, stmt := range indexStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec index migration: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, checksum) VALUES (?, ?);`, schemaVersionLatest, schemaChecksumLatest); err != nil {
		return fmt.Errorf("record schema migration: %w", err)
	}
	return tx.Commit()
}
