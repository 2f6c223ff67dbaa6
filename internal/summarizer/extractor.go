package summarizer

import (
	"regexp"
	"strings"

	"github.com/kenchat/kenchat-backend/internal/models"
)

// Tone labels produced by the extractor
const (
	ToneNeutral    = "neutral"
	ToneFrustrated = "frustrated"
	ToneExcited    = "excited"
	ToneUncertain  = "uncertain"
)

// ExtractedUserContext carries the tone, goals, and notable phrases pulled
// from the user side of a message batch. It is recomputed on every
// summarization and never persisted.
type ExtractedUserContext struct {
	Tone             string
	Goals            []string
	ImportantPhrases []string
}

// ContextExtractor derives user context from a batch of messages. The
// keyword heuristic below is the default; a model-based classifier can be
// swapped in without touching the rest of the pipeline.
type ContextExtractor interface {
	Extract(messages []models.Message) ExtractedUserContext
}

// Tone and goal markers, checked against lower-cased user text. Tone sets
// are checked in priority order and the first matching set wins.
var (
	frustrationMarkers = []string{"frustrated", "annoyed", "!"}
	excitementMarkers  = []string{"excited", "great", "awesome"}
	uncertaintyMarkers = []string{"confused", "not sure", "?"}
	goalMarkers        = []string{"want to", "need to", "trying to", "goal is", "objective", "plan to"}
)

// Matches "quoted" and *emphasized* spans in order of appearance.
var phrasePattern = regexp.MustCompile(`"([^"]+)"|\*([^*]+)\*`)

// KeywordExtractor is a deterministic, side-effect-free keyword heuristic.
// It only looks at messages with the user role.
type KeywordExtractor struct{}

// Extract implements ContextExtractor
func (KeywordExtractor) Extract(messages []models.Message) ExtractedUserContext {
	result := ExtractedUserContext{Tone: ToneNeutral}

	var userTexts []string
	for _, msg := range messages {
		if msg.Role == models.MessageRoleUser {
			userTexts = append(userTexts, msg.Content)
		}
	}
	if len(userTexts) == 0 {
		return result
	}

	combined := strings.ToLower(strings.Join(userTexts, " "))
	switch {
	case containsAny(combined, frustrationMarkers):
		result.Tone = ToneFrustrated
	case containsAny(combined, excitementMarkers):
		result.Tone = ToneExcited
	case containsAny(combined, uncertaintyMarkers):
		result.Tone = ToneUncertain
	}

	for _, text := range userTexts {
		for _, sentence := range splitSentences(text) {
			lower := strings.ToLower(sentence)
			for _, marker := range goalMarkers {
				if strings.Contains(lower, marker) {
					result.Goals = append(result.Goals, strings.TrimSpace(sentence))
					break
				}
			}
		}
	}

	for _, text := range userTexts {
		for _, match := range phrasePattern.FindAllStringSubmatch(text, -1) {
			if match[1] != "" {
				result.ImportantPhrases = append(result.ImportantPhrases, match[1])
			} else if match[2] != "" {
				result.ImportantPhrases = append(result.ImportantPhrases, match[2])
			}
		}
	}

	return result
}

func containsAny(text string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

func splitSentences(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
}
