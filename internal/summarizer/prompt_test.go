package summarizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kenchat/kenchat-backend/internal/models"
)

func TestBuildPrompt_SubstitutesAllPlaceholders(t *testing.T) {
	template := "count={{MESSAGE_COUNT}}\nprior={{EXISTING_SUMMARY}}\ncontext={{USER_CONTEXT}}\n---\n{{CONVERSATION}}"
	messages := []models.Message{
		{Role: models.MessageRoleUser, Content: "hello"},
		{Role: models.MessageRoleAssistant, Content: "hi, how can I help"},
	}
	existing := &models.Summary{Content: "they greeted each other"}

	prompt := buildPrompt(template, messages, ExtractedUserContext{Tone: ToneNeutral}, existing)

	assert.Contains(t, prompt, "count=2")
	assert.Contains(t, prompt, "prior=they greeted each other")
	assert.Contains(t, prompt, "context=no specific context detected")
	assert.Contains(t, prompt, "USER: hello\n\nASSISTANT: hi, how can I help")
	assert.NotContains(t, prompt, "{{")
}

func TestBuildPrompt_NoExistingSummaryFallback(t *testing.T) {
	prompt := buildPrompt("prior={{EXISTING_SUMMARY}}", nil, ExtractedUserContext{}, nil)

	assert.Equal(t, "prior=no existing summary", prompt)
}

func TestFormatUserContext(t *testing.T) {
	tests := []struct {
		name     string
		context  ExtractedUserContext
		expected string
	}{
		{
			name:     "everything empty",
			context:  ExtractedUserContext{Tone: ToneNeutral},
			expected: "no specific context detected",
		},
		{
			name:     "neutral tone alone is omitted",
			context:  ExtractedUserContext{Tone: ToneNeutral, Goals: []string{"I want to travel"}},
			expected: "User goals:\n- I want to travel",
		},
		{
			name:    "non-neutral tone surfaces",
			context: ExtractedUserContext{Tone: ToneFrustrated},
			expected: "User tone: frustrated",
		},
		{
			name: "full context block",
			context: ExtractedUserContext{
				Tone:             ToneExcited,
				Goals:            []string{"I need to pack", "I plan to leave early"},
				ImportantPhrases: []string{"red suitcase"},
			},
			expected: "User tone: excited\nUser goals:\n- I need to pack\n- I plan to leave early\nImportant phrases: \"red suitcase\"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatUserContext(tt.context))
		})
	}
}

func TestDefaultTemplates_CarryTheirPlaceholders(t *testing.T) {
	for _, placeholder := range []string{placeholderConversation, placeholderUserContext, placeholderMessageCount} {
		assert.Contains(t, DefaultSummaryPromptTemplate, placeholder)
		assert.Contains(t, DefaultRollingSummaryPromptTemplate, placeholder)
	}
	assert.Contains(t, DefaultRollingSummaryPromptTemplate, placeholderExistingSummary)
	assert.NotContains(t, DefaultSummaryPromptTemplate, placeholderExistingSummary)
}

func TestFormatTranscript_BlankLineSeparated(t *testing.T) {
	transcript := formatTranscript([]models.Message{
		{Role: models.MessageRoleUser, Content: "first"},
		{Role: models.MessageRoleSystem, Content: "second"},
	})

	assert.Equal(t, "USER: first\n\nSYSTEM: second", transcript)
	assert.Equal(t, 2, len(strings.Split(transcript, "\n\n")))
}
