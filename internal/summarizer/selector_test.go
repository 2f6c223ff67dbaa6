package summarizer

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kenchat/kenchat-backend/internal/models"
)

func sequentialMessages(n int) []models.Message {
	messages := make([]models.Message, n)
	for i := range messages {
		messages[i] = models.Message{ID: uuid.New(), Role: models.MessageRoleUser, Content: "m"}
	}
	return messages
}

func TestSelectMessages_NoSummaryPartition(t *testing.T) {
	messages := sequentialMessages(10)

	sel := selectMessages(messages, nil, 3)

	require.Len(t, sel.toSummarize, 7)
	require.Len(t, sel.toPreserve, 3)
	assert.False(t, sel.boundaryMissed)

	// The two spans concatenated reproduce the original sequence exactly.
	combined := append(append([]models.Message{}, sel.toSummarize...), sel.toPreserve...)
	assert.Equal(t, messages, combined)
}

func TestSelectMessages_PreserveExceedsHistory(t *testing.T) {
	messages := sequentialMessages(2)

	sel := selectMessages(messages, nil, 5)

	assert.Empty(t, sel.toSummarize)
	assert.Equal(t, messages, sel.toPreserve)
}

func TestSelectMessages_BoundaryAnchor(t *testing.T) {
	messages := sequentialMessages(12)
	active := &models.Summary{MessageRangeEnd: messages[4].ID}

	sel := selectMessages(messages, active, 3)

	// Messages after the covered boundary and before the preserved tail.
	assert.Equal(t, messages[5:9], sel.toSummarize)
	assert.Equal(t, messages[9:], sel.toPreserve)
	assert.False(t, sel.boundaryMissed)
}

func TestSelectMessages_BoundaryInsidePreservedTail(t *testing.T) {
	messages := sequentialMessages(6)
	active := &models.Summary{MessageRangeEnd: messages[4].ID}

	sel := selectMessages(messages, active, 3)

	// Everything past the boundary is already preserved; nothing to fold.
	assert.Empty(t, sel.toSummarize)
	assert.Len(t, sel.toPreserve, 3)
}

func TestSelectMessages_BoundaryMissingFallsBack(t *testing.T) {
	messages := sequentialMessages(8)
	active := &models.Summary{MessageRangeEnd: uuid.New()}

	sel := selectMessages(messages, active, 2)

	assert.True(t, sel.boundaryMissed)
	assert.Equal(t, messages[:6], sel.toSummarize)
	assert.Equal(t, messages[6:], sel.toPreserve)
}

func TestSelectMessages_ZeroAndNegativePreserve(t *testing.T) {
	messages := sequentialMessages(4)

	sel := selectMessages(messages, nil, 0)
	assert.Equal(t, messages, sel.toSummarize)
	assert.Empty(t, sel.toPreserve)

	sel = selectMessages(messages, nil, -1)
	assert.Equal(t, messages, sel.toSummarize)
	assert.Empty(t, sel.toPreserve)
}
