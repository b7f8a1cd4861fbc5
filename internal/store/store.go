package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const pragmaJournalMode = "PRAGMA journal_mode=WAL;"

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrCustomNodeNotFound   = errors.New("custom node not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrSettingNotFound      = errors.New("setting not found")
	ErrDuplicateName        = errors.New("name already in use")
)

// Store owns the sqlite database that backs subscriptions, cached
// nodes, users, the render template and all server settings.
type Store struct {
	db *sql.DB
}

// Open creates the database file if needed, applies the schema and
// returns a ready Store.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("store path is empty")
	}

	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	db.SetMaxOpenConns(1)

	if _, err := db.Exec(pragmaJournalMode); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close releases the underlying database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	const subscriptionsSchema = `
CREATE TABLE IF NOT EXISTS subscriptions (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    url TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    user_agent TEXT NOT NULL DEFAULT '',
    upload INTEGER NOT NULL DEFAULT 0,
    download INTEGER NOT NULL DEFAULT 0,
    total INTEGER NOT NULL DEFAULT 0,
    expire INTEGER NOT NULL DEFAULT 0,
    node_count INTEGER NOT NULL DEFAULT 0,
    last_error TEXT NOT NULL DEFAULT '',
    fetched_at TIMESTAMP,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_subscriptions_enabled ON subscriptions(enabled);
`
	if _, err := s.db.Exec(subscriptionsSchema); err != nil {
		return fmt.Errorf("migrate subscriptions: %w", err)
	}

	const subscriptionNodesSchema = `
CREATE TABLE IF NOT EXISTS subscription_nodes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    subscription_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    name TEXT NOT NULL,
    protocol TEXT NOT NULL,
    clash_config TEXT NOT NULL,
    FOREIGN KEY (subscription_id) REFERENCES subscriptions(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_subscription_nodes_sub ON subscription_nodes(subscription_id, position);
`
	if _, err := s.db.Exec(subscriptionNodesSchema); err != nil {
		return fmt.Errorf("migrate subscription_nodes: %w", err)
	}

	const customNodesSchema = `
CREATE TABLE IF NOT EXISTS custom_nodes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    protocol TEXT NOT NULL,
    raw_url TEXT NOT NULL DEFAULT '',
    clash_config TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(name)
);
CREATE INDEX IF NOT EXISTS idx_custom_nodes_enabled ON custom_nodes(enabled);
`
	if _, err := s.db.Exec(customNodesSchema); err != nil {
		return fmt.Errorf("migrate custom_nodes: %w", err)
	}

	const sourceOrderSchema = `
CREATE TABLE IF NOT EXISTS source_order (
    position INTEGER PRIMARY KEY,
    source_id TEXT NOT NULL
);
`
	if _, err := s.db.Exec(sourceOrderSchema); err != nil {
		return fmt.Errorf("migrate source_order: %w", err)
	}

	const usersSchema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    token TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    expires_at INTEGER NOT NULL DEFAULT 0,
    allocation TEXT NOT NULL DEFAULT '{}',
    note TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(name),
    UNIQUE(token)
);
`
	if _, err := s.db.Exec(usersSchema); err != nil {
		return fmt.Errorf("migrate users: %w", err)
	}

	const settingsSchema = `
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
	if _, err := s.db.Exec(settingsSchema); err != nil {
		return fmt.Errorf("migrate settings: %w", err)
	}

	const templateSchema = `
CREATE TABLE IF NOT EXISTS template (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    content TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
	if _, err := s.db.Exec(templateSchema); err != nil {
		return fmt.Errorf("migrate template: %w", err)
	}

	return nil
}
