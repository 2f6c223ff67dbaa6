package summarizer

import (
	"strconv"
	"strings"

	"github.com/kenchat/kenchat-backend/internal/models"
)

// Placeholders recognized by the prompt builder. Templates are plain data;
// substitution is literal string replacement, nothing is executed.
const (
	placeholderConversation    = "{{CONVERSATION}}"
	placeholderUserContext     = "{{USER_CONTEXT}}"
	placeholderExistingSummary = "{{EXISTING_SUMMARY}}"
	placeholderMessageCount    = "{{MESSAGE_COUNT}}"
)

// Literal fallbacks substituted when there is nothing to report.
const (
	noContextDetected = "no specific context detected"
	noExistingSummary = "no existing summary"
)

// DefaultSummaryPromptTemplate produces a conversation's first summary.
const DefaultSummaryPromptTemplate = `You are summarizing a conversation between a user and their personal assistant.

Conversation so far ({{MESSAGE_COUNT}} messages):

{{CONVERSATION}}

Detected user context:
{{USER_CONTEXT}}

Write a concise summary of the conversation. Capture key facts, decisions, requests, and unresolved threads. Keep names, dates, and numbers exact. Write in the third person.`

// DefaultRollingSummaryPromptTemplate folds newer messages into the
// previous summary.
const DefaultRollingSummaryPromptTemplate = `You are maintaining the running summary of a conversation between a user and their personal assistant.

Current summary:
{{EXISTING_SUMMARY}}

New messages since that summary ({{MESSAGE_COUNT}} messages):

{{CONVERSATION}}

Detected user context:
{{USER_CONTEXT}}

Rewrite the summary so it also covers the new messages. Stay concise, keep names, dates, and numbers exact, and drop nothing that is still relevant. Write in the third person.`

// buildPrompt renders a summarization prompt from a template. The four
// placeholders are each replaced exactly: the transcript of the messages
// being summarized, the extracted user context block, the existing
// summary's content, and the message count.
func buildPrompt(template string, messages []models.Message, userContext ExtractedUserContext, existing *models.Summary) string {
	existingContent := noExistingSummary
	if existing != nil {
		existingContent = existing.Content
	}

	prompt := strings.ReplaceAll(template, placeholderConversation, formatTranscript(messages))
	prompt = strings.ReplaceAll(prompt, placeholderUserContext, formatUserContext(userContext))
	prompt = strings.ReplaceAll(prompt, placeholderExistingSummary, existingContent)
	prompt = strings.ReplaceAll(prompt, placeholderMessageCount, strconv.Itoa(len(messages)))
	return prompt
}

// formatTranscript renders messages as "ROLE: content" lines separated by
// blank lines.
func formatTranscript(messages []models.Message) string {
	lines := make([]string, len(messages))
	for i, msg := range messages {
		lines[i] = strings.ToUpper(msg.Role) + ": " + msg.Content
	}
	return strings.Join(lines, "\n\n")
}

// formatUserContext renders the extracted context as a readable block. A
// neutral tone is omitted; when nothing at all was detected the literal
// fallback sentence is used.
func formatUserContext(userContext ExtractedUserContext) string {
	var parts []string

	if userContext.Tone != "" && userContext.Tone != ToneNeutral {
		parts = append(parts, "User tone: "+userContext.Tone)
	}
	if len(userContext.Goals) > 0 {
		parts = append(parts, "User goals:\n- "+strings.Join(userContext.Goals, "\n- "))
	}
	if len(userContext.ImportantPhrases) > 0 {
		quoted := make([]string, len(userContext.ImportantPhrases))
		for i, phrase := range userContext.ImportantPhrases {
			quoted[i] = `"` + phrase + `"`
		}
		parts = append(parts, "Important phrases: "+strings.Join(quoted, ", "))
	}

	if len(parts) == 0 {
		return noContextDetected
	}
	return strings.Join(parts, "\n")
}
