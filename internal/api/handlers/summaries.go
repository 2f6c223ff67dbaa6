package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/kenchat/kenchat-backend/internal/api/middleware"
	"github.com/kenchat/kenchat-backend/internal/services"
	"github.com/kenchat/kenchat-backend/internal/summarizer"
)

// ForceSummarize triggers summarization for POST /conversations/:id/summaries
func ForceSummarize(conversations *services.ConversationService, engine *summarizer.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := middleware.GetUserID(c)
		if err != nil {
			return err
		}
		id, err := conversationIDParam(c)
		if err != nil {
			return err
		}

		// Ownership check before touching the engine
		if _, err := conversations.Get(c.Context(), userID, id); err != nil {
			if errors.Is(err, services.ErrConversationNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "Conversation not found",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to get conversation",
			})
		}

		summary, err := engine.SummarizeConversation(c.Context(), id)
		if err != nil {
			var aiErr *summarizer.AIServiceError
			switch {
			case errors.Is(err, summarizer.ErrNothingToSummarize), errors.Is(err, summarizer.ErrNoMessages):
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{
					"error": "No unsummarized messages to summarize",
				})
			case errors.As(err, &aiErr):
				return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
					"error": "Summarization provider failed",
				})
			default:
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "Failed to summarize conversation",
				})
			}
		}

		return c.Status(fiber.StatusCreated).JSON(summary)
	}
}

// ListSummaries returns a conversation's summary history
func ListSummaries(conversations *services.ConversationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := middleware.GetUserID(c)
		if err != nil {
			return err
		}
		id, err := conversationIDParam(c)
		if err != nil {
			return err
		}

		summaries, err := conversations.Summaries(c.Context(), userID, id)
		if err != nil {
			if errors.Is(err, services.ErrConversationNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "Conversation not found",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to list summaries",
			})
		}

		return c.JSON(fiber.Map{
			"summaries": summaries,
		})
	}
}

// GetConversationContext returns the assembled context window for a
// conversation, the same view the chat flow hands to the provider
func GetConversationContext(conversations *services.ConversationService, engine *summarizer.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := middleware.GetUserID(c)
		if err != nil {
			return err
		}
		id, err := conversationIDParam(c)
		if err != nil {
			return err
		}

		if _, err := conversations.Get(c.Context(), userID, id); err != nil {
			if errors.Is(err, services.ErrConversationNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "Conversation not found",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to get conversation",
			})
		}

		assembled, err := engine.GetConversationContext(c.Context(), id)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to assemble context",
			})
		}

		return c.JSON(assembled)
	}
}

// PreviewSummaryRequest carries a candidate prompt template
type PreviewSummaryRequest struct {
	Template string `json:"template"`
}

// PreviewSummary runs a one-off summarization with a candidate template
// without committing anything. Admin only.
func PreviewSummary(conversations *services.ConversationService, engine *summarizer.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := middleware.GetUserID(c)
		if err != nil {
			return err
		}
		id, err := conversationIDParam(c)
		if err != nil {
			return err
		}

		var req PreviewSummaryRequest
		if err := c.BodyParser(&req); err != nil || req.Template == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Template is required",
			})
		}

		if _, err := conversations.Get(c.Context(), userID, id); err != nil {
			if errors.Is(err, services.ErrConversationNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "Conversation not found",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to get conversation",
			})
		}

		preview, err := engine.PreviewSummary(c.Context(), id, req.Template)
		if err != nil {
			var aiErr *summarizer.AIServiceError
			switch {
			case errors.Is(err, summarizer.ErrNothingToSummarize), errors.Is(err, summarizer.ErrNoMessages):
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{
					"error": "No unsummarized messages to summarize",
				})
			case errors.As(err, &aiErr):
				return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
					"error": "Summarization provider failed",
				})
			default:
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "Failed to preview summary",
				})
			}
		}

		return c.JSON(fiber.Map{
			"summary": preview,
		})
	}
}
