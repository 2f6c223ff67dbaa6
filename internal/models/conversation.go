package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversation represents a chat conversation owned by a user
type Conversation struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Title     string    `json:"title" db:"title"`
	Model     string    `json:"model" db:"model"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Message role constants
const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
	MessageRoleSystem    = "system"
)

// Message represents a single turn in a conversation
type Message struct {
	ID             uuid.UUID `json:"id" db:"id"`
	ConversationID uuid.UUID `json:"conversation_id" db:"conversation_id"`
	Role           string    `json:"role" db:"role"`
	Content        string    `json:"content" db:"content"`
	TokenCount     *int      `json:"token_count,omitempty" db:"token_count"`
	IsSummarized   bool      `json:"is_summarized" db:"is_summarized"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Summary represents a rolling summary of a span of conversation messages.
// At most one summary per conversation is active at a time; the active one
// is the current rolling summary and its range end marks the last message
// it covers.
type Summary struct {
	ID                uuid.UUID `json:"id" db:"id"`
	ConversationID    uuid.UUID `json:"conversation_id" db:"conversation_id"`
	Content           string    `json:"content" db:"content"`
	MessageRangeStart uuid.UUID `json:"message_range_start" db:"message_range_start"`
	MessageRangeEnd   uuid.UUID `json:"message_range_end" db:"message_range_end"`
	TokenCount        int       `json:"token_count" db:"token_count"`
	IsActive          bool      `json:"is_active" db:"is_active"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}
