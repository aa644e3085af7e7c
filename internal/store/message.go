package store

import (
	"context"
	"fmt"
	"time"

	"github.com/scoutd/scout/internal/logger"
)

// Message roles. The store treats role as an opaque tag; these two are the
// ones the rest of the system writes.
const (
	RoleHuman = "human"
	RoleAI    = "ai"
)

// Message is one turn's role-tagged text, immutable once written. The id is
// assigned by SQLite at insertion and is unique across the whole store;
// ascending id order within a conversation is submission order.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	Metadata       Metadata  `json:"metadata"`
}

// AddMessage appends a message to a conversation and bumps the owning
// conversation's updated_at. Both writes happen in one transaction: a reader
// never observes the touch without the message or the message without the
// touch. Appending to a conversation that does not exist fails the foreign
// key and returns ErrConstraint.
func (s *Store) AddMessage(ctx context.Context, conversationID, role, content string, metadata Metadata) (*Message, error) {
	meta, err := encodeMetadata(metadata)
	if err != nil {
		return nil, fmt.Errorf("add message: encode metadata: %w", err)
	}

	msg := &Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Timestamp:      s.now().UTC(),
		Metadata:       metadata,
	}
	if msg.Metadata == nil {
		msg.Metadata = Metadata{}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("add message: %w", classify(err))
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, role, content, timestamp, metadata) VALUES (?,?,?,?,?);`,
		msg.ConversationID, msg.Role, msg.Content, msg.Timestamp, meta)
	if err != nil {
		return nil, fmt.Errorf("add message: %w", classify(err))
	}
	msg.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("add message: %w", classify(err))
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?;`,
		msg.Timestamp, msg.ConversationID); err != nil {
		return nil, fmt.Errorf("add message: touch conversation: %w", classify(err))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("add message: %w", classify(err))
	}

	logger.L.Debug("appended message", "conversation_id", conversationID, "message_id", msg.ID, "role", role)
	return msg, nil
}

// Messages returns every message of a conversation in ascending id order.
// A conversation with no messages yields an empty slice, not an error;
// existence checks belong to the caller.
func (s *Store) Messages(ctx context.Context, conversationID string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, timestamp, metadata
		 FROM messages WHERE conversation_id = ? ORDER BY id ASC;`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", classify(err))
	}
	defer rows.Close()

	out := make([]*Message, 0)
	for rows.Next() {
		var msg Message
		var meta string
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.Timestamp, &meta); err != nil {
			return nil, fmt.Errorf("list messages: %w", classify(err))
		}
		m, err := decodeMetadata(meta)
		if err != nil {
			return nil, fmt.Errorf("list messages: decode metadata: %w", err)
		}
		msg.Metadata = m
		out = append(out, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", classify(err))
	}
	return out, nil
}
