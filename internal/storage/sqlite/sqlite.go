// Package sqlite provides the SQLite-backed storage.Store implementation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/michaelbrown/recall/internal/llm"
	"github.com/michaelbrown/recall/internal/storage"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements storage.Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path and runs migrations.
// Use ":memory:" for an in-memory database (useful for testing).
func Open(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *storage.Conversation) error {
	now := time.Now().UTC()
	conv.CreatedAt = now
	conv.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, title, status, provider, model, persona, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.Title, conv.Status, conv.Provider, conv.Model, conv.Persona,
		conv.CreatedAt.Format(time.RFC3339), conv.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting conversation: %w", err)
	}

	// Initialize empty messages row
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversation_messages (conversation_id, messages) VALUES (?, '[]')`,
		conv.ID,
	)
	return err
}

func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*storage.Conversation, error) {
	// Try exact match first, then prefix match
	conv, err := s.getConversationExact(ctx, id)
	if err == nil {
		return conv, nil
	}

	// Prefix match
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, status, provider, model, persona, created_at, updated_at
		FROM conversations WHERE id LIKE ? || '%'`, id)
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	defer rows.Close()

	var matches []*storage.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, conv)
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("conversation not found: %s", id)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("ambiguous conversation prefix %q matches %d conversations", id, len(matches))
	}
}

func (s *SQLiteStore) getConversationExact(ctx context.Context, id string) (*storage.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, status, provider, model, persona, created_at, updated_at
		FROM conversations WHERE id = ?`, id)
	return scanConversationRow(row)
}

func (s *SQLiteStore) ListConversations(ctx context.Context, opts storage.ConversationListOptions) ([]storage.Conversation, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, title, status, provider, model, persona, created_at, updated_at FROM conversations`
	var args []any

	if opts.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(opts.Status))
	}

	query += ` ORDER BY updated_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var conversations []storage.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, *conv)
	}
	return conversations, rows.Err()
}

func (s *SQLiteStore) UpdateConversation(ctx context.Context, conv *storage.Conversation) error {
	conv.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET title = ?, status = ?, updated_at = ? WHERE id = ?`,
		conv.Title, conv.Status, conv.UpdatedAt.Format(time.RFC3339), conv.ID,
	)
	return err
}

func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	// Resolve prefix first
	conv, err := s.GetConversation(ctx, id)
	if err != nil {
		return err
	}

	// Delete messages first (foreign key), then conversation
	_, err = s.db.ExecContext(ctx, `DELETE FROM conversation_messages WHERE conversation_id = ?`, conv.ID)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, conv.ID)
	return err
}

func (s *SQLiteStore) SaveMessages(ctx context.Context, conversationID string, messages []llm.Message) error {
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshaling messages: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversation_messages (conversation_id, messages, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET messages = excluded.messages, updated_at = excluded.updated_at`,
		conversationID, string(data), now,
	)
	return err
}

func (s *SQLiteStore) LoadMessages(ctx context.Context, conversationID string) ([]llm.Message, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT messages FROM conversation_messages WHERE conversation_id = ?`, conversationID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}

	var messages []llm.Message
	if err := json.Unmarshal([]byte(data), &messages); err != nil {
		return nil, fmt.Errorf("unmarshaling messages: %w", err)
	}
	return messages, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Scanner interface to work with both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanConversationFromScanner(s scanner) (*storage.Conversation, error) {
	var conv storage.Conversation
	var createdAt, updatedAt string
	err := s.Scan(&conv.ID, &conv.Title, &conv.Status, &conv.Provider,
		&conv.Model, &conv.Persona, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	conv.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	conv.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &conv, nil
}

func scanConversation(rows *sql.Rows) (*storage.Conversation, error) {
	return scanConversationFromScanner(rows)
}

func scanConversationRow(row *sql.Row) (*storage.Conversation, error) {
	return scanConversationFromScanner(row)
}
