// Package summarizer keeps long conversations inside the completion
// provider's context budget. It periodically folds older messages into a
// single rolling summary per conversation and assembles the
// summary-plus-recent-messages context used on every generation request.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kenchat/kenchat-backend/internal/llm"
	"github.com/kenchat/kenchat-backend/internal/models"
)

const (
	// maxScanMessages caps how much history a single run loads.
	maxScanMessages = 1000
	// minMessagesForSummary is the floor below which summarization never triggers.
	minMessagesForSummary = 5
	// summaryTemperature keeps summary generation close to deterministic.
	summaryTemperature = 0.3
)

// MessageStore is the engine's view of message persistence.
type MessageStore interface {
	// ListRecent returns up to limit of the newest messages, newest first.
	ListRecent(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error)
	MarkSummarized(ctx context.Context, messageIDs []uuid.UUID) error
}

// SummaryStore is the engine's view of summary persistence.
type SummaryStore interface {
	// LatestActive returns the conversation's active summary, nil when none exists.
	LatestActive(ctx context.Context, conversationID uuid.UUID) (*models.Summary, error)
	// CommitRolling atomically activates summary and deactivates its predecessor.
	CommitRolling(ctx context.Context, summary *models.Summary) error
}

// CompletionClient is the slice of the provider client the engine needs.
type CompletionClient interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// ConversationContext is the assembled generation-time context: the active
// summary, the preserved recent messages in chronological order, and their
// combined token estimate.
type ConversationContext struct {
	Summary        *models.Summary  `json:"summary,omitempty"`
	RecentMessages []models.Message `json:"recent_messages"`
	TotalTokens    int              `json:"total_tokens"`
}

// Engine implements rolling conversation summarization. Each public
// operation is a single sequential pipeline of store reads, at most one
// completion call, and store writes. Operations on different conversations
// may run concurrently; summarization within one conversation is
// serialized by a per-conversation lock.
type Engine struct {
	messages  MessageStore
	summaries SummaryStore
	client    CompletionClient
	extractor ContextExtractor
	counter   TokenCounter
	logger    *logrus.Logger
	metrics   *Metrics

	mu     sync.RWMutex // guards config
	config Config

	locks conversationLocks
}

// Option configures an Engine
type Option func(*Engine)

// WithConfig overrides the default configuration
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.config = cfg }
}

// WithTokenCounter overrides the default length-based counter
func WithTokenCounter(counter TokenCounter) Option {
	return func(e *Engine) { e.counter = counter }
}

// WithExtractor overrides the default keyword extractor
func WithExtractor(extractor ContextExtractor) Option {
	return func(e *Engine) { e.extractor = extractor }
}

// WithMetrics attaches Prometheus instrumentation
func WithMetrics(metrics *Metrics) Option {
	return func(e *Engine) { e.metrics = metrics }
}

// NewEngine creates an engine over the given stores and completion client.
func NewEngine(messages MessageStore, summaries SummaryStore, client CompletionClient, logger *logrus.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = logrus.New()
	}

	e := &Engine{
		messages:  messages,
		summaries: summaries,
		client:    client,
		extractor: KeywordExtractor{},
		counter:   HeuristicCounter{},
		logger:    logger,
		config:    DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns a snapshot of the current configuration
func (e *Engine) Config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.config
}

// UpdateConfig replaces the configuration wholesale
func (e *Engine) UpdateConfig(cfg Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.config = cfg
}

// SummaryPromptTemplate returns the initial-summary template
func (e *Engine) SummaryPromptTemplate() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.config.SummaryPromptTemplate
}

// UpdateSummaryPromptTemplate replaces the initial-summary template
func (e *Engine) UpdateSummaryPromptTemplate(template string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.config.SummaryPromptTemplate = template
}

// RollingSummaryPromptTemplate returns the rolling-update template
func (e *Engine) RollingSummaryPromptTemplate() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.config.RollingSummaryPromptTemplate
}

// UpdateRollingSummaryPromptTemplate replaces the rolling-update template
func (e *Engine) UpdateRollingSummaryPromptTemplate(template string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.config.RollingSummaryPromptTemplate = template
}

// ShouldSummarize reports whether the conversation's estimated token total
// has outgrown the configured threshold. It is a scheduling heuristic, so
// any read failure means "not now" rather than an error: skipping one
// summarization round is harmless, failing a caller over it is not.
func (e *Engine) ShouldSummarize(ctx context.Context, conversationID uuid.UUID) bool {
	messages, err := e.messages.ListRecent(ctx, conversationID, maxScanMessages)
	if err != nil {
		e.logger.WithError(err).WithField("conversation_id", conversationID).
			Warn("summarization check failed to load messages")
		return false
	}
	if len(messages) < minMessagesForSummary {
		return false
	}

	total := 0
	for i := range messages {
		total += e.messageTokens(&messages[i])
	}
	return total > e.Config().MaxTokensBeforeSummarization
}

// SummarizeConversation runs one summarization round: select the span to
// fold, extract user context, build the prompt, generate the summary text,
// and commit it as the conversation's active summary. The first round uses
// the initial template; later rounds roll the previous summary forward.
func (e *Engine) SummarizeConversation(ctx context.Context, conversationID uuid.UUID) (*models.Summary, error) {
	return e.summarize(ctx, conversationID, false)
}

// UpdateRollingSummary is the explicit rolling entry point: it behaves like
// SummarizeConversation but fails with ErrNoActiveSummary when the
// conversation has never been summarized.
func (e *Engine) UpdateRollingSummary(ctx context.Context, conversationID uuid.UUID) (*models.Summary, error) {
	return e.summarize(ctx, conversationID, true)
}

func (e *Engine) summarize(ctx context.Context, conversationID uuid.UUID, requireActive bool) (*models.Summary, error) {
	unlock := e.locks.lock(conversationID)
	defer unlock()

	started := time.Now()

	draft, err := e.draftSummary(ctx, conversationID, requireActive)
	if err != nil {
		e.recordFailure(err)
		return nil, err
	}

	if err := e.summaries.CommitRolling(ctx, draft.summary); err != nil {
		e.recordFailure(err)
		return nil, fmt.Errorf("failed to commit summary: %w", err)
	}

	// The summary is durable at this point. Flagging covered messages only
	// speeds up the context filter, so a failure here is logged and the
	// operation still succeeds.
	ids := make([]uuid.UUID, len(draft.covered))
	for i := range draft.covered {
		ids[i] = draft.covered[i].ID
	}
	if err := e.messages.MarkSummarized(ctx, ids); err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"conversation_id": conversationID,
			"summary_id":      draft.summary.ID,
			"messages":        len(ids),
		}).Warn("failed to mark messages as summarized")
	}

	if e.metrics != nil {
		kind := kindInitial
		if draft.rolling {
			kind = kindRolling
		}
		e.metrics.SummariesCreated.WithLabelValues(kind).Inc()
		e.metrics.TokensSummarized.Add(float64(draft.coveredTokens))
		e.metrics.SummaryDuration.Observe(time.Since(started).Seconds())
	}

	e.logger.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"summary_id":      draft.summary.ID,
		"messages":        len(draft.covered),
		"summary_tokens":  draft.summary.TokenCount,
	}).Info("conversation summarized")

	return draft.summary, nil
}

// summaryDraft is a generated but not yet persisted summary.
type summaryDraft struct {
	summary       *models.Summary
	covered       []models.Message
	coveredTokens int
	rolling       bool
}

// draftSummary runs the read and generate stages of the pipeline without
// writing anything.
func (e *Engine) draftSummary(ctx context.Context, conversationID uuid.UUID, requireActive bool) (*summaryDraft, error) {
	cfg := e.Config()

	messages, err := e.messages.ListRecent(ctx, conversationID, maxScanMessages)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	if len(messages) == 0 {
		return nil, ErrNoMessages
	}
	reverseMessages(messages) // newest-first to chronological

	active, err := e.summaries.LatestActive(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active summary: %w", err)
	}
	if requireActive && active == nil {
		return nil, ErrNoActiveSummary
	}

	sel := selectMessages(messages, active, cfg.PreserveRecentMessages)
	if sel.boundaryMissed {
		e.logger.WithFields(logrus.Fields{
			"conversation_id": conversationID,
			"summary_id":      active.ID,
			"range_end":       active.MessageRangeEnd,
		}).Warn("active summary boundary not found in history, re-summarizing from the start")
	}
	if len(sel.toSummarize) == 0 {
		return nil, ErrNothingToSummarize
	}

	userContext := e.extractor.Extract(sel.toSummarize)

	template := cfg.SummaryPromptTemplate
	if active != nil {
		template = cfg.RollingSummaryPromptTemplate
	}
	prompt := buildPrompt(template, sel.toSummarize, userContext, active)

	content, err := e.generate(ctx, prompt, cfg)
	if err != nil {
		return nil, err
	}

	// A rolling summary supersedes and incorporates its predecessor, so its
	// range keeps the predecessor's start. When the boundary was lost the
	// selection already restarted coverage from the oldest loaded message.
	rangeStart := sel.toSummarize[0].ID
	if active != nil && !sel.boundaryMissed {
		rangeStart = active.MessageRangeStart
	}

	coveredTokens := 0
	for i := range sel.toSummarize {
		coveredTokens += e.messageTokens(&sel.toSummarize[i])
	}

	return &summaryDraft{
		summary: &models.Summary{
			ConversationID:    conversationID,
			Content:           content,
			MessageRangeStart: rangeStart,
			MessageRangeEnd:   sel.toSummarize[len(sel.toSummarize)-1].ID,
			TokenCount:        e.counter.Count(content),
		},
		covered:       sel.toSummarize,
		coveredTokens: coveredTokens,
		rolling:       active != nil,
	}, nil
}

// generate issues the single completion call of a summarization round.
func (e *Engine) generate(ctx context.Context, prompt string, cfg Config) (string, error) {
	resp, err := e.client.Complete(ctx, llm.CompletionRequest{
		Model: cfg.SummaryModel,
		Messages: []llm.Message{
			{Role: models.MessageRoleUser, Content: prompt},
		},
		Temperature: summaryTemperature,
		MaxTokens:   cfg.MaxSummaryTokens,
	})
	if err != nil {
		return "", &AIServiceError{Err: err}
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return "", &AIServiceError{Err: errors.New("empty completion")}
	}
	return content, nil
}

// GetConversationContext assembles the context for a generation request:
// the active summary plus the newest unsummarized messages, restored to
// chronological order, with their combined token estimate. Unlike
// ShouldSummarize this path fails loudly: generating against a wrong or
// partial context is worse than failing the request.
func (e *Engine) GetConversationContext(ctx context.Context, conversationID uuid.UUID) (*ConversationContext, error) {
	cfg := e.Config()

	summary, err := e.summaries.LatestActive(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active summary: %w", err)
	}

	recent, err := e.messages.ListRecent(ctx, conversationID, 2*cfg.PreserveRecentMessages)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent messages: %w", err)
	}

	kept := make([]models.Message, 0, cfg.PreserveRecentMessages)
	for _, msg := range recent {
		if msg.IsSummarized {
			continue
		}
		kept = append(kept, msg)
		if len(kept) == cfg.PreserveRecentMessages {
			break
		}
	}
	reverseMessages(kept)

	total := 0
	if summary != nil {
		tokens := summary.TokenCount
		if tokens == 0 {
			tokens = e.counter.Count(summary.Content)
		}
		total += tokens
	}
	for i := range kept {
		total += e.messageTokens(&kept[i])
	}

	if e.metrics != nil {
		e.metrics.ContextTokens.Observe(float64(total))
	}

	return &ConversationContext{
		Summary:        summary,
		RecentMessages: kept,
		TotalTokens:    total,
	}, nil
}

// PreviewSummary runs a single summarization with template in place of the
// configured prompt and returns the generated text without persisting
// anything. The engine picks the same template slot a real run would use
// (initial or rolling) and restores it afterwards, including when
// generation fails.
func (e *Engine) PreviewSummary(ctx context.Context, conversationID uuid.UUID, template string) (string, error) {
	active, err := e.summaries.LatestActive(ctx, conversationID)
	if err != nil {
		return "", fmt.Errorf("failed to load active summary: %w", err)
	}

	if active == nil {
		original := e.SummaryPromptTemplate()
		e.UpdateSummaryPromptTemplate(template)
		defer e.UpdateSummaryPromptTemplate(original)
	} else {
		original := e.RollingSummaryPromptTemplate()
		e.UpdateRollingSummaryPromptTemplate(template)
		defer e.UpdateRollingSummaryPromptTemplate(original)
	}

	draft, err := e.draftSummary(ctx, conversationID, false)
	if err != nil {
		return "", err
	}
	return draft.summary.Content, nil
}

// messageTokens returns the message's stored token count when present,
// otherwise an estimate from its content.
func (e *Engine) messageTokens(msg *models.Message) int {
	if msg.TokenCount != nil {
		return *msg.TokenCount
	}
	return e.counter.Count(msg.Content)
}

func (e *Engine) recordFailure(err error) {
	if e.metrics == nil {
		return
	}

	var aiErr *AIServiceError
	switch {
	case errors.Is(err, ErrNoMessages), errors.Is(err, ErrNothingToSummarize), errors.Is(err, ErrNoActiveSummary):
		e.metrics.SummaryFailures.WithLabelValues(reasonValidation).Inc()
	case errors.As(err, &aiErr):
		e.metrics.SummaryFailures.WithLabelValues(reasonProvider).Inc()
	default:
		e.metrics.SummaryFailures.WithLabelValues(reasonStore).Inc()
	}
}

func reverseMessages(messages []models.Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}

// conversationLocks serializes summarization per conversation. Entries are
// reference counted and removed once the last holder releases, so the map
// does not grow with conversation count.
type conversationLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*conversationLock
}

type conversationLock struct {
	mu   sync.Mutex
	refs int
}

func (l *conversationLocks) lock(id uuid.UUID) (unlock func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[uuid.UUID]*conversationLock)
	}
	entry := l.locks[id]
	if entry == nil {
		entry = &conversationLock{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
