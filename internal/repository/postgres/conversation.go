package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kenchat/kenchat-backend/internal/models"
	"github.com/kenchat/kenchat-backend/internal/repository"
)

// ConversationRepository implements repository.ConversationRepository using PostgreSQL
type ConversationRepository struct {
	db *sqlx.DB
}

// NewConversationRepository creates a new PostgreSQL conversation repository
func NewConversationRepository(db *sqlx.DB) repository.ConversationRepository {
	return &ConversationRepository{db: db}
}

// Create creates a new conversation
func (r *ConversationRepository) Create(ctx context.Context, conversation *models.Conversation) error {
	if conversation.ID == uuid.Nil {
		conversation.ID = uuid.New()
	}
	conversation.CreatedAt = time.Now()
	conversation.UpdatedAt = conversation.CreatedAt

	query := `
		INSERT INTO conversations (id, user_id, title, model, created_at, updated_at)
		VALUES (:id, :user_id, :title, :model, :created_at, :updated_at)
	`

	_, err := r.db.NamedExecContext(ctx, query, conversation)
	return err
}

// GetForUser retrieves a conversation by ID scoped to its owner
func (r *ConversationRepository) GetForUser(ctx context.Context, id, userID uuid.UUID) (*models.Conversation, error) {
	var conversation models.Conversation
	query := `
		SELECT id, user_id, title, model, created_at, updated_at
		FROM conversations
		WHERE id = $1 AND user_id = $2
	`

	err := r.db.GetContext(ctx, &conversation, query, id, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return &conversation, nil
}

// ListByUser retrieves a user's conversations, most recently updated first
func (r *ConversationRepository) ListByUser(ctx context.Context, userID uuid.UUID, opts repository.ListOptions) ([]*models.Conversation, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	var conversations []*models.Conversation
	query := `
		SELECT id, user_id, title, model, created_at, updated_at
		FROM conversations
		WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3
	`

	err := r.db.SelectContext(ctx, &conversations, query, userID, limit, opts.Offset)
	if err != nil {
		return nil, err
	}

	return conversations, nil
}

// UpdateTitle updates a conversation's title
func (r *ConversationRepository) UpdateTitle(ctx context.Context, id uuid.UUID, title string) error {
	query := `UPDATE conversations SET title = $2, updated_at = $3 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, title, time.Now())
	return err
}

// Touch bumps a conversation's updated_at timestamp
func (r *ConversationRepository) Touch(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE conversations SET updated_at = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, time.Now())
	return err
}

// Delete deletes a conversation and its messages via cascade
func (r *ConversationRepository) Delete(ctx context.Context, id, userID uuid.UUID) error {
	query := `DELETE FROM conversations WHERE id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}

	return nil
}
