package summarizer

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kenchat/kenchat-backend/internal/llm"
	"github.com/kenchat/kenchat-backend/internal/models"
)

// fakeMessageStore keeps messages in chronological order and serves them
// newest first, the way the real repository does.
type fakeMessageStore struct {
	messages []models.Message
	listErr  error
	markErr  error
	marked   [][]uuid.UUID
}

func (s *fakeMessageStore) ListRecent(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []models.Message
	for i := len(s.messages) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.messages[i])
	}
	return out, nil
}

func (s *fakeMessageStore) MarkSummarized(ctx context.Context, messageIDs []uuid.UUID) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.marked = append(s.marked, messageIDs)
	flagged := make(map[uuid.UUID]bool, len(messageIDs))
	for _, id := range messageIDs {
		flagged[id] = true
	}
	for i := range s.messages {
		if flagged[s.messages[i].ID] {
			s.messages[i].IsSummarized = true
		}
	}
	return nil
}

func (s *fakeMessageStore) add(role, content string, tokenCount *int) models.Message {
	msg := models.Message{
		ID:         uuid.New(),
		Role:       role,
		Content:    content,
		TokenCount: tokenCount,
		CreatedAt:  time.Now(),
	}
	s.messages = append(s.messages, msg)
	return msg
}

type fakeSummaryStore struct {
	summaries []*models.Summary
	latestErr error
	commitErr error
}

func (s *fakeSummaryStore) LatestActive(ctx context.Context, conversationID uuid.UUID) (*models.Summary, error) {
	if s.latestErr != nil {
		return nil, s.latestErr
	}
	for i := len(s.summaries) - 1; i >= 0; i-- {
		if s.summaries[i].IsActive {
			return s.summaries[i], nil
		}
	}
	return nil, nil
}

func (s *fakeSummaryStore) CommitRolling(ctx context.Context, summary *models.Summary) error {
	if s.commitErr != nil {
		return s.commitErr
	}
	for _, existing := range s.summaries {
		existing.IsActive = false
	}
	summary.ID = uuid.New()
	summary.IsActive = true
	summary.CreatedAt = time.Now()
	s.summaries = append(s.summaries, summary)
	return nil
}

func (s *fakeSummaryStore) activeCount() int {
	count := 0
	for _, summary := range s.summaries {
		if summary.IsActive {
			count++
		}
	}
	return count
}

type fakeCompletionClient struct {
	response string
	err      error
	requests []llm.CompletionRequest
}

func (c *fakeCompletionClient) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	c.requests = append(c.requests, req)
	if c.err != nil {
		return nil, c.err
	}
	response := c.response
	if response == "" {
		response = "a summary"
	}
	return &llm.CompletionResponse{Content: response}, nil
}

// gatedCompletionClient blocks inside Complete until released, so a test
// can hold one summarization round in flight while starting another.
type gatedCompletionClient struct {
	fakeCompletionClient
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (c *gatedCompletionClient) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	c.once.Do(func() { close(c.entered) })
	<-c.release
	return c.fakeCompletionClient.Complete(ctx, req)
}

func newTestEngine(messages *fakeMessageStore, summaries *fakeSummaryStore, client CompletionClient, cfg Config) *Engine {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewEngine(messages, summaries, client, logger, WithConfig(cfg))
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PreserveRecentMessages = 3
	cfg.MaxTokensBeforeSummarization = 8000
	return cfg
}

func TestEngine_ShouldSummarize(t *testing.T) {
	conversationID := uuid.New()

	t.Run("four messages stay below the floor regardless of size", func(t *testing.T) {
		store := &fakeMessageStore{}
		for i := 0; i < 4; i++ {
			store.add(models.MessageRoleUser, strings.Repeat("a", 2000), nil)
		}
		cfg := testConfig()
		cfg.MaxTokensBeforeSummarization = 1
		engine := newTestEngine(store, &fakeSummaryStore{}, &fakeCompletionClient{}, cfg)

		assert.False(t, engine.ShouldSummarize(context.Background(), conversationID))
	})

	t.Run("twenty large messages exceed an 8000 token threshold", func(t *testing.T) {
		store := &fakeMessageStore{}
		for i := 0; i < 20; i++ {
			store.add(models.MessageRoleUser, strings.Repeat("a", 2000), nil)
		}
		engine := newTestEngine(store, &fakeSummaryStore{}, &fakeCompletionClient{}, testConfig())

		assert.True(t, engine.ShouldSummarize(context.Background(), conversationID))
	})

	t.Run("small conversation stays under the threshold", func(t *testing.T) {
		store := &fakeMessageStore{}
		for i := 0; i < 6; i++ {
			store.add(models.MessageRoleUser, "short", nil)
		}
		engine := newTestEngine(store, &fakeSummaryStore{}, &fakeCompletionClient{}, testConfig())

		assert.False(t, engine.ShouldSummarize(context.Background(), conversationID))
	})

	t.Run("stored token counts beat the estimate", func(t *testing.T) {
		store := &fakeMessageStore{}
		big := 3000
		for i := 0; i < 5; i++ {
			store.add(models.MessageRoleUser, "x", &big)
		}
		engine := newTestEngine(store, &fakeSummaryStore{}, &fakeCompletionClient{}, testConfig())

		assert.True(t, engine.ShouldSummarize(context.Background(), conversationID))
	})

	t.Run("store failure fails safe to false", func(t *testing.T) {
		store := &fakeMessageStore{listErr: errors.New("connection refused")}
		engine := newTestEngine(store, &fakeSummaryStore{}, &fakeCompletionClient{}, testConfig())

		assert.False(t, engine.ShouldSummarize(context.Background(), conversationID))
	})
}

func TestEngine_SummarizeConversation_Initial(t *testing.T) {
	conversationID := uuid.New()
	store := &fakeMessageStore{}
	for i := 0; i < 10; i++ {
		store.add(models.MessageRoleUser, "message body", nil)
	}
	summaries := &fakeSummaryStore{}
	client := &fakeCompletionClient{response: "the first summary"}
	engine := newTestEngine(store, summaries, client, testConfig())

	summary, err := engine.SummarizeConversation(context.Background(), conversationID)
	require.NoError(t, err)

	// First seven messages fold, last three stay verbatim.
	assert.Equal(t, store.messages[0].ID, summary.MessageRangeStart)
	assert.Equal(t, store.messages[6].ID, summary.MessageRangeEnd)
	assert.Equal(t, "the first summary", summary.Content)
	assert.Equal(t, EstimateTokens("the first summary"), summary.TokenCount)
	assert.True(t, summary.IsActive)
	assert.Equal(t, 1, summaries.activeCount())

	// Covered messages were flagged best-effort.
	require.Len(t, store.marked, 1)
	assert.Len(t, store.marked[0], 7)
	for _, msg := range store.messages[:7] {
		assert.True(t, msg.IsSummarized)
	}
	for _, msg := range store.messages[7:] {
		assert.False(t, msg.IsSummarized)
	}

	// One completion call with the summary model and pinned sampling.
	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Equal(t, testConfig().SummaryModel, req.Model)
	assert.Equal(t, float32(summaryTemperature), req.Temperature)
	assert.Equal(t, testConfig().MaxSummaryTokens, req.MaxTokens)
	require.Len(t, req.Messages, 1)
	assert.Contains(t, req.Messages[0].Content, "USER: message body")
	assert.Contains(t, req.Messages[0].Content, "7 messages")
}

func TestEngine_SummarizeConversation_RollingMonotonicity(t *testing.T) {
	conversationID := uuid.New()
	store := &fakeMessageStore{}
	for i := 0; i < 10; i++ {
		store.add(models.MessageRoleUser, "early message", nil)
	}
	summaries := &fakeSummaryStore{}
	client := &fakeCompletionClient{response: "summary one"}
	engine := newTestEngine(store, summaries, client, testConfig())

	first, err := engine.SummarizeConversation(context.Background(), conversationID)
	require.NoError(t, err)

	// The conversation grows, then a rolling update runs.
	for i := 0; i < 5; i++ {
		store.add(models.MessageRoleUser, "later message", nil)
	}
	client.response = "summary two"

	second, err := engine.UpdateRollingSummary(context.Background(), conversationID)
	require.NoError(t, err)

	firstEnd := indexOfMessage(store.messages, first.MessageRangeEnd)
	secondEnd := indexOfMessage(store.messages, second.MessageRangeEnd)
	require.GreaterOrEqual(t, firstEnd, 0)
	assert.GreaterOrEqual(t, secondEnd, firstEnd)

	// The rolling summary keeps the original start and retires its predecessor.
	assert.Equal(t, first.MessageRangeStart, second.MessageRangeStart)
	assert.Equal(t, 1, summaries.activeCount())
	assert.False(t, first.IsActive)
	assert.True(t, second.IsActive)

	// The rolling prompt references the retiring summary's content.
	require.Len(t, client.requests, 2)
	assert.Contains(t, client.requests[1].Messages[0].Content, "summary one")
	assert.NotContains(t, client.requests[0].Messages[0].Content, "no existing summary")
}

func TestEngine_SummarizeConversation_EmptySelection(t *testing.T) {
	conversationID := uuid.New()
	store := &fakeMessageStore{}
	for i := 0; i < 3; i++ {
		store.add(models.MessageRoleUser, "kept verbatim", nil)
	}
	summaries := &fakeSummaryStore{}
	client := &fakeCompletionClient{}
	engine := newTestEngine(store, summaries, client, testConfig())

	_, err := engine.SummarizeConversation(context.Background(), conversationID)

	assert.ErrorIs(t, err, ErrNothingToSummarize)
	assert.Empty(t, client.requests)
	assert.Empty(t, summaries.summaries)
	assert.Empty(t, store.marked)
}

func TestEngine_SummarizeConversation_NoMessages(t *testing.T) {
	engine := newTestEngine(&fakeMessageStore{}, &fakeSummaryStore{}, &fakeCompletionClient{}, testConfig())

	_, err := engine.SummarizeConversation(context.Background(), uuid.New())

	assert.ErrorIs(t, err, ErrNoMessages)
}

func TestEngine_SummarizeConversation_ProviderFault(t *testing.T) {
	conversationID := uuid.New()
	store := &fakeMessageStore{}
	for i := 0; i < 8; i++ {
		store.add(models.MessageRoleUser, "text", nil)
	}
	summaries := &fakeSummaryStore{}
	cause := errors.New("rate limited")
	client := &fakeCompletionClient{err: cause}
	engine := newTestEngine(store, summaries, client, testConfig())

	_, err := engine.SummarizeConversation(context.Background(), conversationID)

	var aiErr *AIServiceError
	require.ErrorAs(t, err, &aiErr)
	assert.ErrorIs(t, err, cause)

	// A failed generation must leave no trace in the stores.
	assert.Empty(t, summaries.summaries)
	assert.Empty(t, store.marked)
}

func TestEngine_SummarizeConversation_MarkFailureIsSwallowed(t *testing.T) {
	conversationID := uuid.New()
	store := &fakeMessageStore{markErr: errors.New("deadlock detected")}
	for i := 0; i < 8; i++ {
		store.add(models.MessageRoleUser, "text", nil)
	}
	summaries := &fakeSummaryStore{}
	engine := newTestEngine(store, summaries, &fakeCompletionClient{}, testConfig())

	summary, err := engine.SummarizeConversation(context.Background(), conversationID)

	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, 1, summaries.activeCount())
}

func TestEngine_UpdateRollingSummary_RequiresActiveSummary(t *testing.T) {
	store := &fakeMessageStore{}
	for i := 0; i < 8; i++ {
		store.add(models.MessageRoleUser, "text", nil)
	}
	engine := newTestEngine(store, &fakeSummaryStore{}, &fakeCompletionClient{}, testConfig())

	_, err := engine.UpdateRollingSummary(context.Background(), uuid.New())

	assert.ErrorIs(t, err, ErrNoActiveSummary)
}

func TestEngine_SummarizeConversation_LostBoundaryFallsBack(t *testing.T) {
	conversationID := uuid.New()
	store := &fakeMessageStore{}
	for i := 0; i < 8; i++ {
		store.add(models.MessageRoleUser, "text", nil)
	}
	summaries := &fakeSummaryStore{}
	summaries.summaries = append(summaries.summaries, &models.Summary{
		ID:                uuid.New(),
		ConversationID:    conversationID,
		Content:           "orphaned summary",
		MessageRangeStart: uuid.New(),
		MessageRangeEnd:   uuid.New(), // matches nothing in the store
		IsActive:          true,
	})
	client := &fakeCompletionClient{}
	engine := newTestEngine(store, summaries, client, testConfig())

	summary, err := engine.SummarizeConversation(context.Background(), conversationID)
	require.NoError(t, err)

	// Coverage restarts from the oldest message instead of the stale range.
	assert.Equal(t, store.messages[0].ID, summary.MessageRangeStart)
	assert.Equal(t, store.messages[4].ID, summary.MessageRangeEnd)
	assert.Equal(t, 1, summaries.activeCount())
}

func TestEngine_SummarizeConversation_ConcurrentRoundsCommitOnce(t *testing.T) {
	conversationID := uuid.New()
	store := &fakeMessageStore{}
	for i := 0; i < 10; i++ {
		store.add(models.MessageRoleUser, "message body", nil)
	}
	summaries := &fakeSummaryStore{}
	client := &gatedCompletionClient{
		fakeCompletionClient: fakeCompletionClient{response: "the only summary"},
		entered:              make(chan struct{}),
		release:              make(chan struct{}),
	}
	engine := newTestEngine(store, summaries, client, testConfig())

	firstErr := make(chan error, 1)
	go func() {
		_, err := engine.SummarizeConversation(context.Background(), conversationID)
		firstErr <- err
	}()

	// Hold the first round inside the provider call, then race a second
	// round against the same conversation.
	select {
	case <-client.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first round never reached the provider")
	}

	secondErr := make(chan error, 1)
	go func() {
		_, err := engine.SummarizeConversation(context.Background(), conversationID)
		secondErr <- err
	}()
	close(client.release)

	waitErr := func(results chan error) error {
		select {
		case err := <-results:
			return err
		case <-time.After(2 * time.Second):
			t.Fatal("summarization round did not finish")
			return nil
		}
	}

	// The round holding the conversation wins; the rival waits it out,
	// re-reads, and finds everything already covered.
	require.NoError(t, waitErr(firstErr))
	assert.ErrorIs(t, waitErr(secondErr), ErrNothingToSummarize)

	assert.Len(t, client.requests, 1)
	require.Len(t, summaries.summaries, 1)
	assert.Equal(t, 1, summaries.activeCount())
	require.Len(t, store.marked, 1)
}

func TestEngine_GetConversationContext_TokenAccounting(t *testing.T) {
	conversationID := uuid.New()
	store := &fakeMessageStore{}
	ten := 10

	// Two older, already summarized messages followed by three live ones.
	store.add(models.MessageRoleUser, "old", &ten)
	older2 := store.add(models.MessageRoleAssistant, "old", &ten)
	store.messages[0].IsSummarized = true
	store.messages[1].IsSummarized = true

	kept1 := store.add(models.MessageRoleUser, "recent one", &ten)
	kept2 := store.add(models.MessageRoleAssistant, "recent two", &ten)
	kept3 := store.add(models.MessageRoleUser, "recent three", &ten)

	summaries := &fakeSummaryStore{}
	summaries.summaries = append(summaries.summaries, &models.Summary{
		ID:              uuid.New(),
		ConversationID:  conversationID,
		Content:         "what happened before",
		MessageRangeEnd: older2.ID,
		TokenCount:      50,
		IsActive:        true,
	})
	engine := newTestEngine(store, summaries, &fakeCompletionClient{}, testConfig())

	result, err := engine.GetConversationContext(context.Background(), conversationID)
	require.NoError(t, err)

	require.NotNil(t, result.Summary)
	assert.Equal(t, "what happened before", result.Summary.Content)
	assert.Equal(t, 80, result.TotalTokens)

	// Summarized messages are filtered out and order is chronological.
	require.Len(t, result.RecentMessages, 3)
	assert.Equal(t, []uuid.UUID{kept1.ID, kept2.ID, kept3.ID}, []uuid.UUID{
		result.RecentMessages[0].ID, result.RecentMessages[1].ID, result.RecentMessages[2].ID,
	})
}

func TestEngine_GetConversationContext_NoSummary(t *testing.T) {
	conversationID := uuid.New()
	store := &fakeMessageStore{}
	five := 5
	store.add(models.MessageRoleUser, "hello", &five)

	engine := newTestEngine(store, &fakeSummaryStore{}, &fakeCompletionClient{}, testConfig())

	result, err := engine.GetConversationContext(context.Background(), conversationID)
	require.NoError(t, err)

	assert.Nil(t, result.Summary)
	assert.Len(t, result.RecentMessages, 1)
	assert.Equal(t, 5, result.TotalTokens)
}

func TestEngine_GetConversationContext_StoreFaultIsHard(t *testing.T) {
	engine := newTestEngine(
		&fakeMessageStore{},
		&fakeSummaryStore{latestErr: errors.New("connection reset")},
		&fakeCompletionClient{},
		testConfig(),
	)

	_, err := engine.GetConversationContext(context.Background(), uuid.New())

	assert.Error(t, err)
}

func TestEngine_PreviewSummary_RestoresTemplateOnFailure(t *testing.T) {
	conversationID := uuid.New()
	store := &fakeMessageStore{}
	for i := 0; i < 8; i++ {
		store.add(models.MessageRoleUser, "text", nil)
	}
	client := &fakeCompletionClient{err: errors.New("provider down")}
	engine := newTestEngine(store, &fakeSummaryStore{}, client, testConfig())

	original := engine.SummaryPromptTemplate()

	_, err := engine.PreviewSummary(context.Background(), conversationID, "trial {{CONVERSATION}}")

	var aiErr *AIServiceError
	assert.ErrorAs(t, err, &aiErr)
	assert.Equal(t, original, engine.SummaryPromptTemplate())
}

func TestEngine_PreviewSummary_DoesNotPersist(t *testing.T) {
	conversationID := uuid.New()
	store := &fakeMessageStore{}
	for i := 0; i < 8; i++ {
		store.add(models.MessageRoleUser, "text", nil)
	}
	summaries := &fakeSummaryStore{}
	client := &fakeCompletionClient{response: "previewed"}
	engine := newTestEngine(store, summaries, client, testConfig())

	original := engine.SummaryPromptTemplate()

	preview, err := engine.PreviewSummary(context.Background(), conversationID, "TRIAL TEMPLATE {{CONVERSATION}}")
	require.NoError(t, err)

	assert.Equal(t, "previewed", preview)
	assert.Empty(t, summaries.summaries)
	assert.Empty(t, store.marked)
	assert.Equal(t, original, engine.SummaryPromptTemplate())

	// The trial template really drove the generation.
	require.Len(t, client.requests, 1)
	assert.Contains(t, client.requests[0].Messages[0].Content, "TRIAL TEMPLATE")
}

func TestEngine_ConfigIsolationBetweenInstances(t *testing.T) {
	first := newTestEngine(&fakeMessageStore{}, &fakeSummaryStore{}, &fakeCompletionClient{}, DefaultConfig())
	second := newTestEngine(&fakeMessageStore{}, &fakeSummaryStore{}, &fakeCompletionClient{}, DefaultConfig())

	cfg := first.Config()
	cfg.MaxTokensBeforeSummarization = 123
	cfg.SummaryModel = "different-model"
	first.UpdateConfig(cfg)

	assert.Equal(t, 123, first.Config().MaxTokensBeforeSummarization)
	assert.Equal(t, DefaultConfig().MaxTokensBeforeSummarization, second.Config().MaxTokensBeforeSummarization)

	first.UpdateRollingSummaryPromptTemplate("changed")
	assert.Equal(t, "changed", first.RollingSummaryPromptTemplate())
	assert.Equal(t, DefaultRollingSummaryPromptTemplate, second.RollingSummaryPromptTemplate())
}
