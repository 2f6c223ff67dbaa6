package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/kenchat/kenchat-backend/internal/models"
)

// Sort orders for message listing
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// ListOptions controls pagination and ordering for list queries
type ListOptions struct {
	Limit     int
	Offset    int
	SortOrder string // SortAsc or SortDesc by created_at
}

// ConversationRepository defines conversation storage operations
type ConversationRepository interface {
	Create(ctx context.Context, conversation *models.Conversation) error
	GetForUser(ctx context.Context, id, userID uuid.UUID) (*models.Conversation, error)
	ListByUser(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]*models.Conversation, error)
	UpdateTitle(ctx context.Context, id uuid.UUID, title string) error
	Touch(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id, userID uuid.UUID) error
}

// MessageRepository defines message storage operations
type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	ListByConversation(ctx context.Context, conversationID uuid.UUID, opts ListOptions) ([]models.Message, error)
	// ListRecent returns up to limit of the newest messages, newest first.
	ListRecent(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error)
	MarkSummarized(ctx context.Context, messageIDs []uuid.UUID) error
}

// ConfigRepository stores runtime-tunable settings as JSON documents
type ConfigRepository interface {
	// Get returns the stored document, or nil when the key is absent.
	Get(ctx context.Context, key string) (json.RawMessage, error)
	Set(ctx context.Context, key string, value interface{}) error
	Delete(ctx context.Context, key string) error
}

// SummaryRepository defines rolling summary storage operations
type SummaryRepository interface {
	// LatestActive returns the conversation's active summary, or nil when
	// the conversation has never been summarized.
	LatestActive(ctx context.Context, conversationID uuid.UUID) (*models.Summary, error)
	ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]models.Summary, error)
	// CommitRolling inserts the summary as the conversation's active one and
	// deactivates any previously active summary in the same transaction.
	CommitRolling(ctx context.Context, summary *models.Summary) error
}
