// Package convo implements the Conversation Store: persistent chat
// threads, messages, and document attachments (spec §3 "Conversation",
// "Message", "Attachment"; spec §6 "Conversations: SQL tables
// conversations, messages, conversation_documents").
//
// Grounded on the teacher's internal/persistence/databases/chat_store_postgres.go
// pgx idiom (table-per-entity, ownership-scoped queries, ON CONFLICT
// upserts), generalized from the teacher's session/message shape to this
// spec's conversation/message/attachment shape.
package convo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vantage/internal/persistence"
)

// Role enumerates message speakers.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Conversation is one persistent chat thread, scoped to an owning user.
type Conversation struct {
	ID           string
	UserID       int64
	Title        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	MessageCount int
	IsPinned     bool
}

// Message is one turn within a Conversation. Query/Results/ThinkingSteps
// are optional and JSON-encoded at rest, matching spec §3's "Message"
// entity and §6's "messages store JSON-encoded results and
// thinking_steps".
type Message struct {
	ID             string
	ConversationID string
	Role           Role
	Content        string
	Query          string
	Results        json.RawMessage
	ThinkingSteps  json.RawMessage
	Timestamp      time.Time
}

// Attachment links a document to a conversation (spec §3 "Attachment").
type Attachment struct {
	ConversationID string
	DocumentID     string
	AttachedAt     time.Time
}

// Store is the Conversation Store, backed by Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// New builds a Store over an existing connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates the conversations/messages/conversation_documents tables
// if they do not already exist.
func (s *Store) Init(ctx context.Context) error {
	if s.pool == nil {
		return errors.New("convo: store requires a pool")
	}
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS conversations (
    id UUID PRIMARY KEY,
    user_id BIGINT NOT NULL,
    title TEXT NOT NULL DEFAULT 'New conversation',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    message_count INTEGER NOT NULL DEFAULT 0,
    is_pinned BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS conversations_user_updated_idx ON conversations(user_id, updated_at DESC);

CREATE TABLE IF NOT EXISTS messages (
    id UUID PRIMARY KEY,
    conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    query TEXT NOT NULL DEFAULT '',
    results JSONB,
    thinking_steps JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS messages_conversation_created_idx ON messages(conversation_id, created_at);

CREATE TABLE IF NOT EXISTS conversation_documents (
    conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    document_id TEXT NOT NULL,
    attached_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (conversation_id, document_id)
);
`)
	return err
}

func (s *Store) scanConversation(row pgx.Row) (Conversation, error) {
	var c Conversation
	if err := row.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt, &c.MessageCount, &c.IsPinned); err != nil {
		return Conversation{}, err
	}
	return c, nil
}

// CreateConversation starts a new conversation for userID.
func (s *Store) CreateConversation(ctx context.Context, userID int64, title string) (Conversation, error) {
	if strings.TrimSpace(title) == "" {
		title = "New conversation"
	}
	id := uuid.NewString()
	row := s.pool.QueryRow(ctx, `
INSERT INTO conversations (id, user_id, title)
VALUES ($1, $2, $3)
RETURNING id, user_id, title, created_at, updated_at, message_count, is_pinned`, id, userID, title)
	return s.scanConversation(row)
}

// ListConversations returns userID's conversations, pinned ones first, then
// most-recently-updated first.
func (s *Store) ListConversations(ctx context.Context, userID int64) ([]Conversation, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, user_id, title, created_at, updated_at, message_count, is_pinned
FROM conversations
WHERE user_id = $1
ORDER BY is_pinned DESC, updated_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Conversation, 0)
	for rows.Next() {
		c, err := s.scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetConversation fetches one conversation, scoped to its owner.
func (s *Store) GetConversation(ctx context.Context, userID int64, id string) (Conversation, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, user_id, title, created_at, updated_at, message_count, is_pinned
FROM conversations WHERE id = $1 AND user_id = $2`, id, userID)
	c, err := s.scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, persistence.ErrNotFound
	}
	return c, err
}

// RenameConversation updates a conversation's title.
func (s *Store) RenameConversation(ctx context.Context, userID int64, id, title string) error {
	cmd, err := s.pool.Exec(ctx, `
UPDATE conversations SET title = $3, updated_at = NOW() WHERE id = $1 AND user_id = $2`, id, userID, title)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// SetPinned toggles a conversation's pinned flag.
func (s *Store) SetPinned(ctx context.Context, userID int64, id string, pinned bool) error {
	cmd, err := s.pool.Exec(ctx, `
UPDATE conversations SET is_pinned = $3, updated_at = NOW() WHERE id = $1 AND user_id = $2`, id, userID, pinned)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// DeleteConversation removes a conversation and (via cascade) its
// messages and attachments.
func (s *Store) DeleteConversation(ctx context.Context, userID int64, id string) error {
	cmd, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// AppendMessage records one message and bumps the conversation's
// message_count/updated_at, verifying ownership first.
func (s *Store) AppendMessage(ctx context.Context, userID int64, msg Message) (Message, error) {
	if _, err := s.GetConversation(ctx, userID, msg.ConversationID); err != nil {
		return Message{}, err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Message{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
INSERT INTO messages (id, conversation_id, role, content, query, results, thinking_steps, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content, msg.Query,
		nullableJSON(msg.Results), nullableJSON(msg.ThinkingSteps), msg.Timestamp); err != nil {
		return Message{}, err
	}
	if _, err := tx.Exec(ctx, `
UPDATE conversations SET message_count = message_count + 1, updated_at = NOW() WHERE id = $1`, msg.ConversationID); err != nil {
		return Message{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// ListMessages returns a conversation's messages in chronological order,
// optionally capped to the most recent limit (0 means unbounded).
func (s *Store) ListMessages(ctx context.Context, userID int64, conversationID string, limit int) ([]Message, error) {
	if _, err := s.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	query := `
SELECT id, conversation_id, role, content, query, results, thinking_steps, created_at
FROM messages WHERE conversation_id = $1 ORDER BY created_at ASC, id ASC`
	args := []any{conversationID}
	if limit > 0 {
		query = `
SELECT id, conversation_id, role, content, query, results, thinking_steps, created_at FROM (
    SELECT id, conversation_id, role, content, query, results, thinking_steps, created_at
    FROM messages WHERE conversation_id = $1
    ORDER BY created_at DESC, id DESC LIMIT $2
) sub ORDER BY created_at ASC, id ASC`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Message, 0)
	for rows.Next() {
		var m Message
		var role string
		var results, thinking sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.Query, &results, &thinking, &m.Timestamp); err != nil {
			return nil, err
		}
		m.Role = Role(role)
		if results.Valid {
			m.Results = json.RawMessage(results.String)
		}
		if thinking.Valid {
			m.ThinkingSteps = json.RawMessage(thinking.String)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AttachDocument links a document to a conversation, idempotently.
func (s *Store) AttachDocument(ctx context.Context, userID int64, conversationID, documentID string) error {
	if _, err := s.GetConversation(ctx, userID, conversationID); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO conversation_documents (conversation_id, document_id)
VALUES ($1, $2) ON CONFLICT DO NOTHING`, conversationID, documentID)
	return err
}

// ListAttachments returns the documents attached to a conversation.
func (s *Store) ListAttachments(ctx context.Context, userID int64, conversationID string) ([]Attachment, error) {
	if _, err := s.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
SELECT conversation_id, document_id, attached_at
FROM conversation_documents WHERE conversation_id = $1 ORDER BY attached_at ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Attachment, 0)
	for rows.Next() {
		var a Attachment
		if err := rows.Scan(&a.ConversationID, &a.DocumentID, &a.AttachedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
