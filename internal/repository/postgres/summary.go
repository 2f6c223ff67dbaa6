package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kenchat/kenchat-backend/internal/models"
	"github.com/kenchat/kenchat-backend/internal/repository"
)

// SummaryRepository implements repository.SummaryRepository using PostgreSQL
type SummaryRepository struct {
	db *sqlx.DB
}

// NewSummaryRepository creates a new PostgreSQL summary repository
func NewSummaryRepository(db *sqlx.DB) repository.SummaryRepository {
	return &SummaryRepository{db: db}
}

// LatestActive retrieves the conversation's active summary, nil when none exists
func (r *SummaryRepository) LatestActive(ctx context.Context, conversationID uuid.UUID) (*models.Summary, error) {
	var summary models.Summary
	query := `
		SELECT id, conversation_id, content, message_range_start, message_range_end, token_count, is_active, created_at
		FROM summaries
		WHERE conversation_id = $1 AND is_active = TRUE
		ORDER BY created_at DESC
		LIMIT 1
	`

	err := r.db.GetContext(ctx, &summary, query, conversationID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return &summary, nil
}

// ListByConversation retrieves all summaries for a conversation, newest first
func (r *SummaryRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]models.Summary, error) {
	var summaries []models.Summary
	query := `
		SELECT id, conversation_id, content, message_range_start, message_range_end, token_count, is_active, created_at
		FROM summaries
		WHERE conversation_id = $1
		ORDER BY created_at DESC
	`

	err := r.db.SelectContext(ctx, &summaries, query, conversationID)
	if err != nil {
		return nil, err
	}

	return summaries, nil
}

// CommitRolling inserts the summary as the conversation's active one and
// deactivates any previously active summary. Both writes happen in one
// transaction so concurrent readers never observe zero or two active
// summaries for the conversation.
func (r *SummaryRepository) CommitRolling(ctx context.Context, summary *models.Summary) error {
	if summary.ID == uuid.Nil {
		summary.ID = uuid.New()
	}
	summary.IsActive = true
	summary.CreatedAt = time.Now()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	deactivate := `
		UPDATE summaries
		SET is_active = FALSE
		WHERE conversation_id = $1 AND is_active = TRUE
	`
	if _, err := tx.ExecContext(ctx, deactivate, summary.ConversationID); err != nil {
		return fmt.Errorf("failed to deactivate previous summary: %w", err)
	}

	insert := `
		INSERT INTO summaries (id, conversation_id, content, message_range_start, message_range_end, token_count, is_active, created_at)
		VALUES (:id, :conversation_id, :content, :message_range_start, :message_range_end, :token_count, :is_active, :created_at)
	`
	if _, err := tx.NamedExecContext(ctx, insert, summary); err != nil {
		return fmt.Errorf("failed to insert summary: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit summary: %w", err)
	}

	return nil
}
