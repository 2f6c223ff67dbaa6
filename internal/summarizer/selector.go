package summarizer

import (
	"github.com/google/uuid"

	"github.com/kenchat/kenchat-backend/internal/models"
)

// selection is the result of partitioning a conversation's history into the
// span to fold into a summary and the recent span to keep verbatim.
type selection struct {
	toSummarize []models.Message
	toPreserve  []models.Message
	// boundaryMissed is set when an active summary exists but its range end
	// no longer matches any message in the history, which forces the
	// partition back to the no-summary rule.
	boundaryMissed bool
}

// selectMessages partitions messages, which must be in chronological order.
//
// The last preserveCount messages are always preserved. When an active
// summary exists and its range end is found at index i, the messages after
// i and before the preserved tail are the ones to summarize; everything at
// or before i is already covered. Without a summary, or when the boundary
// cannot be located, everything before the preserved tail is summarized.
func selectMessages(messages []models.Message, active *models.Summary, preserveCount int) selection {
	if preserveCount < 0 {
		preserveCount = 0
	}

	preserveFrom := len(messages) - preserveCount
	if preserveFrom < 0 {
		preserveFrom = 0
	}

	sel := selection{toPreserve: messages[preserveFrom:]}

	start := 0
	if active != nil {
		if i := indexOfMessage(messages, active.MessageRangeEnd); i >= 0 {
			start = i + 1
		} else {
			sel.boundaryMissed = true
		}
	}

	if start < preserveFrom {
		sel.toSummarize = messages[start:preserveFrom]
	}

	return sel
}

func indexOfMessage(messages []models.Message, id uuid.UUID) int {
	for i := range messages {
		if messages[i].ID == id {
			return i
		}
	}
	return -1
}
