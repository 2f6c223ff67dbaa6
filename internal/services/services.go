package services

import (
	"github.com/sirupsen/logrus"

	"github.com/kenchat/kenchat-backend/internal/llm"
	"github.com/kenchat/kenchat-backend/internal/repository"
	"github.com/kenchat/kenchat-backend/internal/summarizer"
)

// Services holds all service instances
type Services struct {
	Conversations *ConversationService
	Chat          *ChatService
	Settings      *SettingsService

	// Engine is exposed for the handlers that read or preview
	// summarization state directly.
	Engine *summarizer.Engine
}

// NewServices creates all service instances
func NewServices(
	conversationRepo repository.ConversationRepository,
	messageRepo repository.MessageRepository,
	summaryRepo repository.SummaryRepository,
	configRepo repository.ConfigRepository,
	engine *summarizer.Engine,
	client llm.Client,
	chatSettings ChatSettings,
	logger *logrus.Logger,
) *Services {
	return &Services{
		Conversations: NewConversationService(conversationRepo, messageRepo, summaryRepo, logger),
		Chat:          NewChatService(conversationRepo, messageRepo, client, engine, chatSettings, logger),
		Settings:      NewSettingsService(engine, configRepo, logger),
		Engine:        engine,
	}
}
