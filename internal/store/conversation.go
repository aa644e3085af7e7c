package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scoutd/scout/internal/logger"
)

// DefaultTitle is used when a conversation is created without a title.
const DefaultTitle = "New Conversation"

// Conversation is a titled, timestamped container owning an ordered set of
// messages. MessageCount is computed at read time by Conversations; it is
// never stored.
type Conversation struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	Metadata     Metadata  `json:"metadata"`
}

// CreateConversation inserts a new conversation with a fresh UUID and
// created_at = updated_at = now. An empty title defaults to DefaultTitle.
func (s *Store) CreateConversation(ctx context.Context, title string, metadata Metadata) (*Conversation, error) {
	if title == "" {
		title = DefaultTitle
	}
	meta, err := encodeMetadata(metadata)
	if err != nil {
		return nil, fmt.Errorf("create conversation: encode metadata: %w", err)
	}

	conv := &Conversation{
		ID:       uuid.NewString(),
		Title:    title,
		Metadata: metadata,
	}
	if conv.Metadata == nil {
		conv.Metadata = Metadata{}
	}
	now := s.now().UTC()
	conv.CreatedAt = now
	conv.UpdatedAt = now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, title, created_at, updated_at, metadata) VALUES (?,?,?,?,?);`,
		conv.ID, conv.Title, conv.CreatedAt, conv.UpdatedAt, meta)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", classify(err))
	}

	logger.L.Debug("created conversation", "id", conv.ID, "title", conv.Title)
	return conv, nil
}

// Conversation returns a single conversation by id, or ErrNotFound.
func (s *Store) Conversation(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, created_at, updated_at, metadata FROM conversations WHERE id = ?;`, id)

	var conv Conversation
	var meta string
	if err := row.Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt, &meta); err != nil {
		return nil, fmt.Errorf("get conversation %s: %w", id, classify(err))
	}
	m, err := decodeMetadata(meta)
	if err != nil {
		return nil, fmt.Errorf("get conversation %s: decode metadata: %w", id, err)
	}
	conv.Metadata = m
	return &conv, nil
}

// Conversations lists all conversations ordered by updated_at descending
// (most recently active first), each carrying an exact message count
// computed by the query itself.
func (s *Store) Conversations(ctx context.Context) ([]*Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.title, c.created_at, c.updated_at, c.metadata, COUNT(m.id)
		FROM conversations c
		LEFT JOIN messages m ON c.id = m.conversation_id
		GROUP BY c.id
		ORDER BY c.updated_at DESC
		LIMIT ?;`, s.listLimit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", classify(err))
	}
	defer rows.Close()

	out := make([]*Conversation, 0)
	for rows.Next() {
		var conv Conversation
		var meta string
		if err := rows.Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt, &meta, &conv.MessageCount); err != nil {
			return nil, fmt.Errorf("list conversations: %w", classify(err))
		}
		m, err := decodeMetadata(meta)
		if err != nil {
			return nil, fmt.Errorf("list conversations: decode metadata: %w", err)
		}
		conv.Metadata = m
		out = append(out, &conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list conversations: %w", classify(err))
	}
	return out, nil
}

// Rename updates a conversation's title and bumps updated_at in the same
// statement. Returns ErrNotFound for an unknown id.
func (s *Store) Rename(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?;`,
		title, s.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("rename conversation %s: %w", id, classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rename conversation %s: %w", id, classify(err))
	}
	if n == 0 {
		return fmt.Errorf("rename conversation %s: %w", id, ErrNotFound)
	}
	logger.L.Debug("renamed conversation", "id", id, "title", title)
	return nil
}

// DeleteConversation removes a conversation and, through the cascade foreign
// key, every message it owns. The single DELETE makes the cascade atomic.
// Deleting an id that does not exist returns ErrNotFound, so a second delete
// of the same id is a surfaced no-op.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("delete conversation %s: %w", id, classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete conversation %s: %w", id, classify(err))
	}
	if n == 0 {
		return fmt.Errorf("delete conversation %s: %w", id, ErrNotFound)
	}
	logger.L.Debug("deleted conversation", "id", id)
	return nil
}
