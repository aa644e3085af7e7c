// Package store persists conversations and their ordered messages in SQLite.
//
// A conversation owns zero or more messages. Message rowids are assigned by
// SQLite's AUTOINCREMENT, so reading a conversation's messages in ascending
// id order replays the exact turn sequence as submitted. Deleting a
// conversation cascades to its messages through the foreign key, in a single
// statement, so a partially deleted conversation is never observable.
//
// Store is safe for concurrent use; SQLite serializes writers and the DSN
// sets a busy timeout so concurrent callers block instead of failing
// immediately.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/scoutd/scout/internal/config"
	"github.com/scoutd/scout/internal/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	metadata   TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS messages (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	timestamp       TIMESTAMP NOT NULL,
	metadata        TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);
`

// Store is the durable record of conversations and messages.
type Store struct {
	db        *sql.DB
	listLimit int
	now       func() time.Time
}

// Open opens (creating if necessary) the SQLite database at cfg.Path and
// ensures the schema exists. The foreign_keys pragma is required: SQLite
// defaults it to off, and without it appends to a missing conversation would
// not fail and delete would not cascade. Pragmas go in the DSN so every
// pooled connection gets them, not just the one a PRAGMA statement ran on.
func Open(cfg config.StorageConfig) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)", cfg.Path, cfg.BusyTimeoutMS)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", classify(err))
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", classify(err))
	}

	limit := cfg.ListLimit
	if limit <= 0 {
		limit = config.DefaultListLimit
	}

	logger.L.Info("conversation store initialized", "path", cfg.Path)
	return &Store{db: db, listLimit: limit, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
