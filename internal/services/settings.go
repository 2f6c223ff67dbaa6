package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/kenchat/kenchat-backend/internal/repository"
	"github.com/kenchat/kenchat-backend/internal/summarizer"
)

// Stored under a single key so a reload sees one consistent document.
const settingsKeySummarization = "summarization.config"

// ErrInvalidConfig is returned when a settings update fails validation
var ErrInvalidConfig = errors.New("invalid summarization config")

// EngineConfigurator is the settings service's view of the engine
type EngineConfigurator interface {
	Config() summarizer.Config
	UpdateConfig(cfg summarizer.Config)
}

// SummarizationConfigUpdate carries a partial config change. Nil fields
// keep their current value.
type SummarizationConfigUpdate struct {
	MaxTokensBeforeSummarization *int    `json:"max_tokens_before_summarization"`
	SummaryModel                 *string `json:"summary_model"`
	PreserveRecentMessages       *int    `json:"preserve_recent_messages"`
	MaxSummaryTokens             *int    `json:"max_summary_tokens"`
}

// PromptTemplates groups the two summarization templates for the admin API
type PromptTemplates struct {
	SummaryPromptTemplate        string `json:"summary_prompt_template"`
	RollingSummaryPromptTemplate string `json:"rolling_summary_prompt_template"`
}

// PromptTemplatesUpdate carries a partial template change
type PromptTemplatesUpdate struct {
	SummaryPromptTemplate        *string `json:"summary_prompt_template"`
	RollingSummaryPromptTemplate *string `json:"rolling_summary_prompt_template"`
}

// SettingsService applies admin-tuned summarization settings to the engine
// and persists them so they survive restarts.
type SettingsService struct {
	engine  EngineConfigurator
	configs repository.ConfigRepository
	logger  *logrus.Logger
}

// NewSettingsService creates a new settings service
func NewSettingsService(engine EngineConfigurator, configs repository.ConfigRepository, logger *logrus.Logger) *SettingsService {
	return &SettingsService{
		engine:  engine,
		configs: configs,
		logger:  logger,
	}
}

// LoadStored applies persisted settings over the engine's file-seeded
// defaults. Called once at startup; a corrupt document is logged and
// skipped rather than blocking boot.
func (s *SettingsService) LoadStored(ctx context.Context) error {
	raw, err := s.configs.Get(ctx, settingsKeySummarization)
	if err != nil {
		return err
	}
	if raw == nil {
		return nil
	}

	var cfg summarizer.Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		s.logger.WithError(err).Warn("ignoring unreadable stored summarization config")
		return nil
	}
	if err := validateConfig(cfg); err != nil {
		s.logger.WithError(err).Warn("ignoring invalid stored summarization config")
		return nil
	}

	s.engine.UpdateConfig(cfg)
	s.logger.Info("loaded stored summarization config")
	return nil
}

// SummarizationConfig returns the engine's effective configuration
func (s *SettingsService) SummarizationConfig() summarizer.Config {
	return s.engine.Config()
}

// UpdateSummarizationConfig merges the update into the current config,
// applies it to the engine, and persists the result.
func (s *SettingsService) UpdateSummarizationConfig(ctx context.Context, update SummarizationConfigUpdate) (summarizer.Config, error) {
	cfg := s.engine.Config()

	if update.MaxTokensBeforeSummarization != nil {
		cfg.MaxTokensBeforeSummarization = *update.MaxTokensBeforeSummarization
	}
	if update.SummaryModel != nil {
		cfg.SummaryModel = *update.SummaryModel
	}
	if update.PreserveRecentMessages != nil {
		cfg.PreserveRecentMessages = *update.PreserveRecentMessages
	}
	if update.MaxSummaryTokens != nil {
		cfg.MaxSummaryTokens = *update.MaxSummaryTokens
	}

	if err := validateConfig(cfg); err != nil {
		return summarizer.Config{}, err
	}

	s.engine.UpdateConfig(cfg)
	if err := s.persist(ctx, cfg); err != nil {
		return summarizer.Config{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"max_tokens_before_summarization": cfg.MaxTokensBeforeSummarization,
		"preserve_recent_messages":        cfg.PreserveRecentMessages,
		"summary_model":                   cfg.SummaryModel,
	}).Info("summarization config updated")

	return cfg, nil
}

// Templates returns the engine's effective prompt templates
func (s *SettingsService) Templates() PromptTemplates {
	cfg := s.engine.Config()
	return PromptTemplates{
		SummaryPromptTemplate:        cfg.SummaryPromptTemplate,
		RollingSummaryPromptTemplate: cfg.RollingSummaryPromptTemplate,
	}
}

// UpdateTemplates merges the update into the current templates, applies
// them to the engine, and persists the result.
func (s *SettingsService) UpdateTemplates(ctx context.Context, update PromptTemplatesUpdate) (PromptTemplates, error) {
	cfg := s.engine.Config()

	if update.SummaryPromptTemplate != nil {
		cfg.SummaryPromptTemplate = *update.SummaryPromptTemplate
	}
	if update.RollingSummaryPromptTemplate != nil {
		cfg.RollingSummaryPromptTemplate = *update.RollingSummaryPromptTemplate
	}

	if err := validateConfig(cfg); err != nil {
		return PromptTemplates{}, err
	}

	s.engine.UpdateConfig(cfg)
	if err := s.persist(ctx, cfg); err != nil {
		return PromptTemplates{}, err
	}

	s.logger.Info("summarization templates updated")

	return PromptTemplates{
		SummaryPromptTemplate:        cfg.SummaryPromptTemplate,
		RollingSummaryPromptTemplate: cfg.RollingSummaryPromptTemplate,
	}, nil
}

func (s *SettingsService) persist(ctx context.Context, cfg summarizer.Config) error {
	if err := s.configs.Set(ctx, settingsKeySummarization, cfg); err != nil {
		return fmt.Errorf("failed to persist summarization config: %w", err)
	}
	return nil
}

func validateConfig(cfg summarizer.Config) error {
	if cfg.MaxTokensBeforeSummarization <= 0 {
		return fmt.Errorf("%w: max_tokens_before_summarization must be positive", ErrInvalidConfig)
	}
	if cfg.PreserveRecentMessages < 1 {
		return fmt.Errorf("%w: preserve_recent_messages must be at least 1", ErrInvalidConfig)
	}
	if cfg.MaxSummaryTokens <= 0 {
		return fmt.Errorf("%w: max_summary_tokens must be positive", ErrInvalidConfig)
	}
	if cfg.SummaryModel == "" {
		return fmt.Errorf("%w: summary_model is required", ErrInvalidConfig)
	}
	if cfg.SummaryPromptTemplate == "" || cfg.RollingSummaryPromptTemplate == "" {
		return fmt.Errorf("%w: prompt templates must not be empty", ErrInvalidConfig)
	}
	return nil
}
