package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kenchat/kenchat-backend/internal/models"
	"github.com/kenchat/kenchat-backend/internal/repository"
)

// ErrConversationNotFound is returned when a conversation does not exist or
// belongs to another user
var ErrConversationNotFound = errors.New("conversation not found")

// ConversationService manages conversations and their history
type ConversationService struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	summaries     repository.SummaryRepository
	logger        *logrus.Logger
}

// NewConversationService creates a new conversation service
func NewConversationService(
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	summaries repository.SummaryRepository,
	logger *logrus.Logger,
) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		messages:      messages,
		summaries:     summaries,
		logger:        logger,
	}
}

// Create creates a conversation for a user
func (s *ConversationService) Create(ctx context.Context, userID uuid.UUID, title, model string) (*models.Conversation, error) {
	conversation := &models.Conversation{
		UserID: userID,
		Title:  strings.TrimSpace(title),
		Model:  model,
	}

	if err := s.conversations.Create(ctx, conversation); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"conversation_id": conversation.ID,
		"user_id":         userID,
	}).Info("conversation created")

	return conversation, nil
}

// Get retrieves a conversation owned by the user
func (s *ConversationService) Get(ctx context.Context, userID, id uuid.UUID) (*models.Conversation, error) {
	conversation, err := s.conversations.GetForUser(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if conversation == nil {
		return nil, ErrConversationNotFound
	}
	return conversation, nil
}

// List retrieves the user's conversations, most recently updated first
func (s *ConversationService) List(ctx context.Context, userID uuid.UUID, opts repository.ListOptions) ([]*models.Conversation, error) {
	conversations, err := s.conversations.ListByUser(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return conversations, nil
}

// Rename updates a conversation's title
func (s *ConversationService) Rename(ctx context.Context, userID, id uuid.UUID, title string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	if err := s.conversations.UpdateTitle(ctx, id, strings.TrimSpace(title)); err != nil {
		return fmt.Errorf("failed to rename conversation: %w", err)
	}
	return nil
}

// Delete removes a conversation and, via cascade, its messages and summaries
func (s *ConversationService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	err := s.conversations.Delete(ctx, id, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrConversationNotFound
		}
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

// Messages lists a conversation's messages for its owner
func (s *ConversationService) Messages(ctx context.Context, userID, id uuid.UUID, opts repository.ListOptions) ([]models.Message, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	messages, err := s.messages.ListByConversation(ctx, id, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// Summaries lists a conversation's summaries for its owner, newest first
func (s *ConversationService) Summaries(ctx context.Context, userID, id uuid.UUID) ([]models.Summary, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	summaries, err := s.summaries.ListByConversation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list summaries: %w", err)
	}
	return summaries, nil
}
