package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/kenchat/kenchat-backend/internal/models"
	"github.com/kenchat/kenchat-backend/internal/repository"
)

// MessageRepository implements repository.MessageRepository using PostgreSQL
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository creates a new PostgreSQL message repository
func NewMessageRepository(db *sqlx.DB) repository.MessageRepository {
	return &MessageRepository{db: db}
}

// Create creates a new message
func (r *MessageRepository) Create(ctx context.Context, message *models.Message) error {
	if message.ID == uuid.Nil {
		message.ID = uuid.New()
	}
	message.CreatedAt = time.Now()

	query := `
		INSERT INTO messages (id, conversation_id, role, content, token_count, is_summarized, created_at)
		VALUES (:id, :conversation_id, :role, :content, :token_count, :is_summarized, :created_at)
	`

	_, err := r.db.NamedExecContext(ctx, query, message)
	return err
}

// ListByConversation retrieves messages for a conversation
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID, opts repository.ListOptions) ([]models.Message, error) {
	order := "ASC"
	if opts.SortOrder == repository.SortDesc {
		order = "DESC"
	}

	query := `
		SELECT id, conversation_id, role, content, token_count, is_summarized, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ` + order

	args := []interface{}{conversationID}
	if opts.Limit > 0 {
		query += ` LIMIT $2 OFFSET $3`
		args = append(args, opts.Limit, opts.Offset)
	}

	var messages []models.Message
	err := r.db.SelectContext(ctx, &messages, query, args...)
	if err != nil {
		return nil, err
	}

	return messages, nil
}

// ListRecent retrieves up to limit of the newest messages, newest first
func (r *MessageRepository) ListRecent(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error) {
	var messages []models.Message
	query := `
		SELECT id, conversation_id, role, content, token_count, is_summarized, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	err := r.db.SelectContext(ctx, &messages, query, conversationID, limit)
	if err != nil {
		return nil, err
	}

	return messages, nil
}

// MarkSummarized flags the given messages as covered by a summary
func (r *MessageRepository) MarkSummarized(ctx context.Context, messageIDs []uuid.UUID) error {
	if len(messageIDs) == 0 {
		return nil
	}

	ids := make([]string, len(messageIDs))
	for i, id := range messageIDs {
		ids[i] = id.String()
	}

	query := `UPDATE messages SET is_summarized = TRUE WHERE id = ANY($1)`
	_, err := r.db.ExecContext(ctx, query, pq.Array(ids))
	return err
}
