package summarizer

import "errors"

var (
	// ErrNoMessages is returned when a conversation has no messages to work with
	ErrNoMessages = errors.New("conversation has no messages")
	// ErrNothingToSummarize is returned when selection leaves no messages to fold
	ErrNothingToSummarize = errors.New("nothing to summarize")
	// ErrNoActiveSummary is returned when a rolling update is requested for a
	// conversation that has never been summarized
	ErrNoActiveSummary = errors.New("conversation has no active summary")
)

// AIServiceError classifies a completion provider failure. The underlying
// provider error stays reachable through errors.Unwrap.
type AIServiceError struct {
	Err error
}

func (e *AIServiceError) Error() string {
	return "completion provider: " + e.Err.Error()
}

func (e *AIServiceError) Unwrap() error {
	return e.Err
}
