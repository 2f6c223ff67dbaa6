package summarizer

// Config holds the engine's runtime-tunable parameters. A copy lives inside
// each Engine instance and is mutated only through the engine's accessors,
// so independent engines never share state.
type Config struct {
	// MaxTokensBeforeSummarization is the estimated token total above which
	// a conversation is flagged as needing summarization.
	MaxTokensBeforeSummarization int `json:"max_tokens_before_summarization"`
	// SummaryModel is the completion model used for summarization only;
	// chat generation picks its model elsewhere.
	SummaryModel string `json:"summary_model"`
	// PreserveRecentMessages is how many of the newest messages are always
	// kept verbatim and excluded from summarization.
	PreserveRecentMessages int `json:"preserve_recent_messages"`
	// MaxSummaryTokens caps the generated summary length.
	MaxSummaryTokens int `json:"max_summary_tokens"`

	SummaryPromptTemplate        string `json:"summary_prompt_template"`
	RollingSummaryPromptTemplate string `json:"rolling_summary_prompt_template"`
}

// DefaultConfig returns the defaults applied at engine construction.
func DefaultConfig() Config {
	return Config{
		MaxTokensBeforeSummarization: 8000,
		SummaryModel:                 "gpt-4o-mini",
		PreserveRecentMessages:       10,
		MaxSummaryTokens:             500,
		SummaryPromptTemplate:        DefaultSummaryPromptTemplate,
		RollingSummaryPromptTemplate: DefaultRollingSummaryPromptTemplate,
	}
}
