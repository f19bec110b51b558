// Package storage persists conversations and their message history.
package storage

import (
	"context"
	"time"

	"github.com/michaelbrown/recall/internal/llm"
)

// ConversationStatus represents the lifecycle state of a conversation.
type ConversationStatus string

const (
	StatusActive    ConversationStatus = "active"
	StatusRunning   ConversationStatus = "running"
	StatusCompleted ConversationStatus = "completed"
	StatusFailed    ConversationStatus = "failed"
)

// Conversation is the metadata for a saved conversation.
type Conversation struct {
	ID        string             `json:"id"`
	Title     string             `json:"title"`
	Status    ConversationStatus `json:"status"`
	Provider  string             `json:"provider"`
	Model     string             `json:"model"`
	Persona   string             `json:"persona"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// ConversationListOptions controls filtering and pagination for ListConversations.
type ConversationListOptions struct {
	Status ConversationStatus
	Limit  int
	Offset int
}

// Store is the persistence interface for conversations and messages.
type Store interface {
	// CreateConversation inserts a new conversation. The ID field must be set by the caller.
	CreateConversation(ctx context.Context, c *Conversation) error

	// GetConversation returns a conversation by ID or ID prefix.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// ListConversations returns conversations ordered by updated_at descending.
	ListConversations(ctx context.Context, opts ConversationListOptions) ([]Conversation, error)

	// UpdateConversation updates mutable fields (title, status, updated_at).
	UpdateConversation(ctx context.Context, c *Conversation) error

	// DeleteConversation removes a conversation and its messages.
	DeleteConversation(ctx context.Context, id string) error

	// SaveMessages overwrites the full message history for a conversation.
	SaveMessages(ctx context.Context, conversationID string, messages []llm.Message) error

	// LoadMessages returns the message history for a conversation.
	LoadMessages(ctx context.Context, conversationID string) ([]llm.Message, error)

	// Close releases resources.
	Close() error
}
