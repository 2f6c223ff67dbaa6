package services

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kenchat/kenchat-backend/internal/summarizer"
)

type fakeConfigurator struct {
	config  summarizer.Config
	updates int
}

func (c *fakeConfigurator) Config() summarizer.Config { return c.config }

func (c *fakeConfigurator) UpdateConfig(cfg summarizer.Config) {
	c.config = cfg
	c.updates++
}

type fakeConfigRepo struct {
	docs   map[string]json.RawMessage
	getErr error
	setErr error
}

func newFakeConfigRepo() *fakeConfigRepo {
	return &fakeConfigRepo{docs: make(map[string]json.RawMessage)}
}

func (r *fakeConfigRepo) Get(ctx context.Context, key string) (json.RawMessage, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.docs[key], nil
}

func (r *fakeConfigRepo) Set(ctx context.Context, key string, value interface{}) error {
	if r.setErr != nil {
		return r.setErr
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	r.docs[key] = raw
	return nil
}

func (r *fakeConfigRepo) Delete(ctx context.Context, key string) error {
	delete(r.docs, key)
	return nil
}

func newTestSettings() (*SettingsService, *fakeConfigurator, *fakeConfigRepo) {
	engine := &fakeConfigurator{config: summarizer.DefaultConfig()}
	configs := newFakeConfigRepo()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewSettingsService(engine, configs, logger), engine, configs
}

func intPointer(v int) *int { return &v }

func strPointer(v string) *string { return &v }

func TestSettingsService_UpdateSummarizationConfig(t *testing.T) {
	t.Run("merges only the provided fields and persists", func(t *testing.T) {
		service, engine, configs := newTestSettings()
		before := engine.Config()

		updated, err := service.UpdateSummarizationConfig(context.Background(), SummarizationConfigUpdate{
			MaxTokensBeforeSummarization: intPointer(12000),
		})
		require.NoError(t, err)

		assert.Equal(t, 12000, updated.MaxTokensBeforeSummarization)
		assert.Equal(t, before.SummaryModel, updated.SummaryModel)
		assert.Equal(t, before.PreserveRecentMessages, updated.PreserveRecentMessages)
		assert.Equal(t, updated, engine.Config())

		var stored summarizer.Config
		require.NoError(t, json.Unmarshal(configs.docs[settingsKeySummarization], &stored))
		assert.Equal(t, updated, stored)
	})

	t.Run("rejects a non-positive threshold without touching the engine", func(t *testing.T) {
		service, engine, configs := newTestSettings()

		_, err := service.UpdateSummarizationConfig(context.Background(), SummarizationConfigUpdate{
			MaxTokensBeforeSummarization: intPointer(0),
		})
		assert.ErrorIs(t, err, ErrInvalidConfig)
		assert.Zero(t, engine.updates)
		assert.Empty(t, configs.docs)
	})

	t.Run("rejects a zero preserve count", func(t *testing.T) {
		service, _, _ := newTestSettings()

		_, err := service.UpdateSummarizationConfig(context.Background(), SummarizationConfigUpdate{
			PreserveRecentMessages: intPointer(0),
		})
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("rejects an empty model", func(t *testing.T) {
		service, _, _ := newTestSettings()

		_, err := service.UpdateSummarizationConfig(context.Background(), SummarizationConfigUpdate{
			SummaryModel: strPointer(""),
		})
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestSettingsService_UpdateTemplates(t *testing.T) {
	t.Run("updates one template and keeps the other", func(t *testing.T) {
		service, engine, _ := newTestSettings()
		before := service.Templates()

		updated, err := service.UpdateTemplates(context.Background(), PromptTemplatesUpdate{
			SummaryPromptTemplate: strPointer("Summarize: {{CONVERSATION}}"),
		})
		require.NoError(t, err)

		assert.Equal(t, "Summarize: {{CONVERSATION}}", updated.SummaryPromptTemplate)
		assert.Equal(t, before.RollingSummaryPromptTemplate, updated.RollingSummaryPromptTemplate)
		assert.Equal(t, "Summarize: {{CONVERSATION}}", engine.Config().SummaryPromptTemplate)
	})

	t.Run("rejects an empty template", func(t *testing.T) {
		service, _, _ := newTestSettings()

		_, err := service.UpdateTemplates(context.Background(), PromptTemplatesUpdate{
			RollingSummaryPromptTemplate: strPointer(""),
		})
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestSettingsService_LoadStored(t *testing.T) {
	t.Run("applies a stored document", func(t *testing.T) {
		service, engine, configs := newTestSettings()
		stored := summarizer.DefaultConfig()
		stored.MaxTokensBeforeSummarization = 9000
		raw, err := json.Marshal(stored)
		require.NoError(t, err)
		configs.docs[settingsKeySummarization] = raw

		require.NoError(t, service.LoadStored(context.Background()))
		assert.Equal(t, 9000, engine.Config().MaxTokensBeforeSummarization)
	})

	t.Run("does nothing when no document is stored", func(t *testing.T) {
		service, engine, _ := newTestSettings()

		require.NoError(t, service.LoadStored(context.Background()))
		assert.Zero(t, engine.updates)
	})

	t.Run("skips an unreadable document", func(t *testing.T) {
		service, engine, configs := newTestSettings()
		configs.docs[settingsKeySummarization] = json.RawMessage(`{not json`)

		require.NoError(t, service.LoadStored(context.Background()))
		assert.Zero(t, engine.updates)
	})

	t.Run("skips a stored document that fails validation", func(t *testing.T) {
		service, engine, configs := newTestSettings()
		stored := summarizer.DefaultConfig()
		stored.PreserveRecentMessages = 0
		raw, err := json.Marshal(stored)
		require.NoError(t, err)
		configs.docs[settingsKeySummarization] = raw

		require.NoError(t, service.LoadStored(context.Background()))
		assert.Zero(t, engine.updates)
	})
}
