// Package store is the thin persistence adapter backing the monitor
// pipeline, the hot-words service and the AI gateway. It speaks plain
// database/sql; sqlite (modernc driver) is the default backend and postgres
// (lib/pq) the alternate, selected by DSN scheme.
package store

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Store wraps the SQL connection plus dialect-specific query rebinding.
type Store struct {
	db       *sql.DB
	postgres bool
}

// Open connects, bootstraps the schema, and returns the store.
// DSN forms: "sqlite://path/to.db", "sqlite://:memory:", "postgres://...".
func Open(dsn string) (*Store, error) {
	var (
		driver string
		source string
		pg     bool
	)
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		driver, source = "sqlite", strings.TrimPrefix(dsn, "sqlite://")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		driver, source, pg = "postgres", dsn, true
	default:
		return nil, fmt.Errorf("unsupported database DSN %q (want sqlite:// or postgres://)", dsn)
	}

	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if !pg {
		// modernc sqlite: a single writer avoids SQLITE_BUSY under load.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}

	s := &Store{db: db, postgres: pg}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the raw handle for callers with bespoke queries.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies connectivity (used by the doctor command).
func (s *Store) Ping() error { return s.db.Ping() }

// q rebinds "?" placeholders to "$n" for postgres. Sqlite takes the query
// unchanged.
func (s *Store) q(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS monitor_channels (
		channel_id TEXT PRIMARY KEY,
		name       TEXT NOT NULL DEFAULT '',
		enabled    INTEGER NOT NULL DEFAULT 1,
		category   TEXT NOT NULL DEFAULT 'market'
	)`,
	`CREATE TABLE IF NOT EXISTS monitor_vip_users (
		user_id  TEXT PRIMARY KEY,
		username TEXT NOT NULL DEFAULT '',
		name     TEXT NOT NULL DEFAULT '',
		enabled  INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS monitor_blacklist (
		channel_id TEXT PRIMARY KEY,
		name       TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS monitor_history (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		chat_id    TEXT NOT NULL,
		message_id BIGINT NOT NULL,
		target     TEXT NOT NULL,
		ts         BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS monitor_message_cache (
		id           TEXT PRIMARY KEY,
		channel_id   TEXT NOT NULL,
		channel_name TEXT NOT NULL DEFAULT '',
		sender       TEXT NOT NULL DEFAULT '',
		text         TEXT NOT NULL,
		ts           BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_message_cache_channel_ts
		ON monitor_message_cache (channel_id, ts)`,
	`CREATE TABLE IF NOT EXISTS hot_words (
		date     TEXT NOT NULL,
		word     TEXT NOT NULL,
		count    INTEGER NOT NULL DEFAULT 0,
		category TEXT NOT NULL DEFAULT 'general',
		channel  TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (date, word)
	)`,
	`CREATE TABLE IF NOT EXISTS ai_token_usage (
		provider          TEXT NOT NULL,
		model             TEXT NOT NULL,
		prompt_tokens     BIGINT NOT NULL DEFAULT 0,
		completion_tokens BIGINT NOT NULL DEFAULT 0,
		calls             BIGINT NOT NULL DEFAULT 0,
		errors            BIGINT NOT NULL DEFAULT 0,
		updated_at        BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (provider, model)
	)`,
	`CREATE TABLE IF NOT EXISTS ai_chats (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		title      TEXT NOT NULL DEFAULT '',
		provider   TEXT NOT NULL DEFAULT '',
		model      TEXT NOT NULL DEFAULT '',
		is_active  INTEGER NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ai_chats_user ON ai_chats (user_id, updated_at)`,
	`CREATE TABLE IF NOT EXISTS ai_messages (
		id         TEXT PRIMARY KEY,
		chat_id    TEXT NOT NULL REFERENCES ai_chats(id) ON DELETE CASCADE,
		role       TEXT NOT NULL,
		content    TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ai_messages_chat ON ai_messages (chat_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS ai_settings (
		user_id         TEXT PRIMARY KEY,
		provider        TEXT NOT NULL DEFAULT '',
		model           TEXT NOT NULL DEFAULT '',
		default_agent   TEXT NOT NULL DEFAULT 'chat',
		auto_route      INTEGER NOT NULL DEFAULT 1,
		show_thinking   INTEGER NOT NULL DEFAULT 0,
		show_tool_calls INTEGER NOT NULL DEFAULT 1,
		chat_mode       TEXT NOT NULL DEFAULT 'single'
	)`,
	`CREATE TABLE IF NOT EXISTS ai_memory (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		content    TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
}

func (s *Store) migrate() error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
