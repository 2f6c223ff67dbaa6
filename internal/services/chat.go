package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kenchat/kenchat-backend/internal/llm"
	"github.com/kenchat/kenchat-backend/internal/models"
	"github.com/kenchat/kenchat-backend/internal/repository"
	"github.com/kenchat/kenchat-backend/internal/summarizer"
)

// ErrEmptyMessage is returned when a chat request carries no content
var ErrEmptyMessage = errors.New("message content is empty")

// Background summarization gets its own deadline, detached from the request.
const summarizeTimeout = 2 * time.Minute

const maxTitleLength = 60

// SummarizationEngine is the chat flow's view of the summarizer
type SummarizationEngine interface {
	ShouldSummarize(ctx context.Context, conversationID uuid.UUID) bool
	SummarizeConversation(ctx context.Context, conversationID uuid.UUID) (*models.Summary, error)
	GetConversationContext(ctx context.Context, conversationID uuid.UUID) (*summarizer.ConversationContext, error)
}

// ChatSettings carries the generation defaults for the chat flow
type ChatSettings struct {
	DefaultModel string
	SystemPrompt string
	Temperature  float32
	MaxTokens    int
}

// ChatService runs the chat generation flow: persist the user turn, build
// the summary-aware context, call the completion provider, persist the
// reply, and kick off summarization when the conversation has outgrown its
// token budget.
type ChatService struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	client        llm.Client
	engine        SummarizationEngine
	settings      ChatSettings
	logger        *logrus.Logger
}

// NewChatService creates a new chat service
func NewChatService(
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	client llm.Client,
	engine SummarizationEngine,
	settings ChatSettings,
	logger *logrus.Logger,
) *ChatService {
	return &ChatService{
		conversations: conversations,
		messages:      messages,
		client:        client,
		engine:        engine,
		settings:      settings,
		logger:        logger,
	}
}

// SendMessage handles one non-streaming chat turn and returns the persisted
// assistant reply.
func (s *ChatService) SendMessage(ctx context.Context, userID, conversationID uuid.UUID, content string) (*models.Message, error) {
	conversation, providerMessages, err := s.prepareTurn(ctx, userID, conversationID, content)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Complete(ctx, llm.CompletionRequest{
		Model:       s.modelFor(conversation),
		Messages:    providerMessages,
		Temperature: s.settings.Temperature,
		MaxTokens:   s.settings.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("completion failed: %w", err)
	}

	return s.finishTurn(ctx, conversationID, resp.Content, resp.Usage.CompletionTokens)
}

// StreamMessage handles one streaming chat turn. Every chunk is handed to
// onChunk as it arrives; the assembled reply is persisted once the stream
// finishes and returned.
func (s *ChatService) StreamMessage(ctx context.Context, userID, conversationID uuid.UUID, content string, onChunk func(llm.StreamChunk) error) (*models.Message, error) {
	conversation, providerMessages, err := s.prepareTurn(ctx, userID, conversationID, content)
	if err != nil {
		return nil, err
	}

	// The stream gets its own cancelable context so that returning early,
	// on a broken delivery for instance, releases the producer instead of
	// leaving it blocked on an unread channel.
	streamCtx, cancelStream := context.WithCancel(ctx)
	defer cancelStream()

	stream, err := s.client.StreamComplete(streamCtx, llm.CompletionRequest{
		Model:       s.modelFor(conversation),
		Messages:    providerMessages,
		Temperature: s.settings.Temperature,
		MaxTokens:   s.settings.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("completion stream failed: %w", err)
	}

	var reply strings.Builder
	for chunk := range stream {
		if chunk.Err != nil {
			return nil, fmt.Errorf("completion stream failed: %w", chunk.Err)
		}
		reply.WriteString(chunk.Delta)
		if err := onChunk(chunk); err != nil {
			return nil, fmt.Errorf("failed to deliver chunk: %w", err)
		}
	}

	return s.finishTurn(ctx, conversationID, reply.String(), 0)
}

// prepareTurn validates ownership, persists the user message, and builds
// the provider message list from the assembled conversation context.
func (s *ChatService) prepareTurn(ctx context.Context, userID, conversationID uuid.UUID, content string) (*models.Conversation, []llm.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil, ErrEmptyMessage
	}

	conversation, err := s.conversations.GetForUser(ctx, conversationID, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if conversation == nil {
		return nil, nil, ErrConversationNotFound
	}

	tokenCount := summarizer.EstimateTokens(content)
	userMessage := &models.Message{
		ConversationID: conversationID,
		Role:           models.MessageRoleUser,
		Content:        content,
		TokenCount:     &tokenCount,
	}
	if err := s.messages.Create(ctx, userMessage); err != nil {
		return nil, nil, fmt.Errorf("failed to save message: %w", err)
	}

	// The first message names the conversation.
	if conversation.Title == "" {
		if err := s.conversations.UpdateTitle(ctx, conversationID, deriveTitle(content)); err != nil {
			s.logger.WithError(err).WithField("conversation_id", conversationID).
				Warn("failed to set conversation title")
		}
	}

	assembled, err := s.engine.GetConversationContext(ctx, conversationID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to assemble context: %w", err)
	}

	return conversation, s.buildProviderMessages(assembled), nil
}

// finishTurn persists the assistant reply and schedules a summarization
// check. completionTokens of zero means the provider reported no usage and
// the count is estimated instead.
func (s *ChatService) finishTurn(ctx context.Context, conversationID uuid.UUID, content string, completionTokens int) (*models.Message, error) {
	if completionTokens == 0 {
		completionTokens = summarizer.EstimateTokens(content)
	}

	assistantMessage := &models.Message{
		ConversationID: conversationID,
		Role:           models.MessageRoleAssistant,
		Content:        content,
		TokenCount:     &completionTokens,
	}
	if err := s.messages.Create(ctx, assistantMessage); err != nil {
		return nil, fmt.Errorf("failed to save assistant message: %w", err)
	}

	if err := s.conversations.Touch(ctx, conversationID); err != nil {
		s.logger.WithError(err).WithField("conversation_id", conversationID).
			Warn("failed to touch conversation")
	}

	s.triggerSummarization(conversationID)

	return assistantMessage, nil
}

// buildProviderMessages turns the assembled context into the provider's
// message list: system prompt, the rolling summary as system context, then
// the preserved recent turns including the one just written.
func (s *ChatService) buildProviderMessages(assembled *summarizer.ConversationContext) []llm.Message {
	providerMessages := make([]llm.Message, 0, len(assembled.RecentMessages)+2)

	if s.settings.SystemPrompt != "" {
		providerMessages = append(providerMessages, llm.Message{
			Role:    models.MessageRoleSystem,
			Content: s.settings.SystemPrompt,
		})
	}
	if assembled.Summary != nil {
		providerMessages = append(providerMessages, llm.Message{
			Role:    models.MessageRoleSystem,
			Content: "Summary of the conversation so far: " + assembled.Summary.Content,
		})
	}
	for _, msg := range assembled.RecentMessages {
		providerMessages = append(providerMessages, llm.Message{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	return providerMessages
}

// triggerSummarization checks the token budget off the request path and
// rolls the summary forward when needed. Failures only get logged: a missed
// round just runs on the next turn.
func (s *ChatService) triggerSummarization(conversationID uuid.UUID) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), summarizeTimeout)
		defer cancel()

		if !s.engine.ShouldSummarize(ctx, conversationID) {
			return
		}
		if _, err := s.engine.SummarizeConversation(ctx, conversationID); err != nil {
			if errors.Is(err, summarizer.ErrNothingToSummarize) {
				return
			}
			s.logger.WithError(err).WithField("conversation_id", conversationID).
				Warn("background summarization failed")
		}
	}()
}

func (s *ChatService) modelFor(conversation *models.Conversation) string {
	if conversation.Model != "" {
		return conversation.Model
	}
	return s.settings.DefaultModel
}

func deriveTitle(content string) string {
	title := strings.Join(strings.Fields(content), " ")
	runes := []rune(title)
	if len(runes) <= maxTitleLength {
		return title
	}
	return strings.TrimSpace(string(runes[:maxTitleLength-3])) + "..."
}
