// Package sqlite implements store.Store on a local SQLite file.
// This is the standalone backend; managed deployments use internal/store/pg.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/coursehub/modhub/internal/store"
)

// timeLayout is the canonical timestamp format in every table. UTC plus a
// fixed layout keeps lexicographic ordering equal to chronological ordering,
// which the triage and stats queries rely on.
const timeLayout = "2006-01-02 15:04:05"

// Store implements store.Store backed by a SQLite database.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) the SQLite database at path and
// initializes the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Single writer; concurrent listeners serialize on this connection
	// so every operation is one transaction.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS message_mapping (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			hub_message_id INTEGER NOT NULL UNIQUE,
			original_message_id INTEGER NOT NULL,
			original_chat_id INTEGER NOT NULL,
			source TEXT NOT NULL,
			business_connection_id TEXT NOT NULL DEFAULT '',
			sender_id INTEGER NOT NULL,
			sender_name TEXT NOT NULL,
			sender_username TEXT NOT NULL DEFAULT '',
			chat_name TEXT NOT NULL,
			chat_kind TEXT NOT NULL,
			priority TEXT NOT NULL DEFAULT 'normal',
			timestamp TEXT NOT NULL,
			replied INTEGER NOT NULL DEFAULT 0,
			replied_at TEXT,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE INDEX IF NOT EXISTS idx_mapping_hub
			ON message_mapping(hub_message_id);
		CREATE INDEX IF NOT EXISTS idx_mapping_original
			ON message_mapping(original_chat_id, original_message_id);
		CREATE INDEX IF NOT EXISTS idx_mapping_replied
			ON message_mapping(replied);

		CREATE TABLE IF NOT EXISTS muted_chats (
			chat_id INTEGER PRIMARY KEY,
			reason TEXT NOT NULL DEFAULT '',
			muted_at TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS processed_messages (
			source TEXT NOT NULL,
			chat_id INTEGER NOT NULL,
			message_id INTEGER NOT NULL,
			processed_at TEXT NOT NULL DEFAULT (datetime('now')),
			PRIMARY KEY (source, chat_id, message_id)
		);

		CREATE TABLE IF NOT EXISTS daily_stats (
			date TEXT PRIMARY KEY,
			total_messages INTEGER NOT NULL DEFAULT 0,
			ai_drafts INTEGER NOT NULL DEFAULT 0,
			responses_sent INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS source_stats (
			date TEXT NOT NULL,
			source TEXT NOT NULL,
			messages INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (date, source)
		);

		CREATE TABLE IF NOT EXISTS kb_articles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			category TEXT NOT NULL DEFAULT 'faq',
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			keywords TEXT NOT NULL DEFAULT '',
			usage_count INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE INDEX IF NOT EXISTS idx_kb_category ON kb_articles(category);

		CREATE TABLE IF NOT EXISTS learned_replies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			question_text TEXT NOT NULL,
			reply_text TEXT NOT NULL,
			sender_name TEXT NOT NULL DEFAULT '',
			chat_name TEXT NOT NULL DEFAULT '',
			quality_score REAL NOT NULL DEFAULT 1.0,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS ai_actions (
			id TEXT PRIMARY KEY,
			hub_message_id INTEGER NOT NULL,
			action TEXT NOT NULL,
			draft_text TEXT NOT NULL DEFAULT '',
			final_text TEXT NOT NULL DEFAULT '',
			generation_ms INTEGER NOT NULL DEFAULT 0,
			sources TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		);
	`)
	if err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// isUniqueViolation detects a SQLite unique-constraint failure without
// depending on driver-internal error types.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func sinceDate(days int) string {
	return formatTime(time.Now().UTC().AddDate(0, 0, -days))
}

func today() string {
	return time.Now().UTC().Format("2006-01-02")
}
