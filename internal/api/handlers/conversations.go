package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/kenchat/kenchat-backend/internal/api/middleware"
	"github.com/kenchat/kenchat-backend/internal/repository"
	"github.com/kenchat/kenchat-backend/internal/services"
)

func conversationIDParam(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "Invalid conversation id")
	}
	return id, nil
}

func listOptionsFromQuery(c *fiber.Ctx) repository.ListOptions {
	opts := repository.ListOptions{SortOrder: repository.SortAsc}
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil && limit > 0 {
		opts.Limit = limit
	}
	if offset, err := strconv.Atoi(c.Query("offset")); err == nil && offset > 0 {
		opts.Offset = offset
	}
	if c.Query("sort") == repository.SortDesc {
		opts.SortOrder = repository.SortDesc
	}
	return opts
}

// CreateConversation creates a new conversation
func CreateConversation(conversations *services.ConversationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := middleware.GetUserID(c)
		if err != nil {
			return err
		}

		var req struct {
			Title string `json:"title"`
			Model string `json:"model"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		conversation, err := conversations.Create(c.Context(), userID, req.Title, req.Model)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to create conversation",
			})
		}

		return c.Status(fiber.StatusCreated).JSON(conversation)
	}
}

// ListConversations returns the user's conversations, most recent first
func ListConversations(conversations *services.ConversationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := middleware.GetUserID(c)
		if err != nil {
			return err
		}

		list, err := conversations.List(c.Context(), userID, listOptionsFromQuery(c))
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to list conversations",
			})
		}

		return c.JSON(fiber.Map{
			"conversations": list,
		})
	}
}

// GetConversation returns a specific conversation
func GetConversation(conversations *services.ConversationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := middleware.GetUserID(c)
		if err != nil {
			return err
		}
		id, err := conversationIDParam(c)
		if err != nil {
			return err
		}

		conversation, err := conversations.Get(c.Context(), userID, id)
		if err != nil {
			if errors.Is(err, services.ErrConversationNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "Conversation not found",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to get conversation",
			})
		}

		return c.JSON(conversation)
	}
}

// RenameConversation updates a conversation's title
func RenameConversation(conversations *services.ConversationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := middleware.GetUserID(c)
		if err != nil {
			return err
		}
		id, err := conversationIDParam(c)
		if err != nil {
			return err
		}

		var req struct {
			Title string `json:"title"`
		}
		if err := c.BodyParser(&req); err != nil || req.Title == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Title is required",
			})
		}

		if err := conversations.Rename(c.Context(), userID, id, req.Title); err != nil {
			if errors.Is(err, services.ErrConversationNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "Conversation not found",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to rename conversation",
			})
		}

		return c.JSON(fiber.Map{
			"message": "Conversation renamed",
		})
	}
}

// DeleteConversation deletes a conversation and its messages
func DeleteConversation(conversations *services.ConversationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := middleware.GetUserID(c)
		if err != nil {
			return err
		}
		id, err := conversationIDParam(c)
		if err != nil {
			return err
		}

		if err := conversations.Delete(c.Context(), userID, id); err != nil {
			if errors.Is(err, services.ErrConversationNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "Conversation not found",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to delete conversation",
			})
		}

		return c.JSON(fiber.Map{
			"message": "Conversation deleted successfully",
		})
	}
}

// GetConversationMessages returns messages for a conversation
func GetConversationMessages(conversations *services.ConversationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := middleware.GetUserID(c)
		if err != nil {
			return err
		}
		id, err := conversationIDParam(c)
		if err != nil {
			return err
		}

		messages, err := conversations.Messages(c.Context(), userID, id, listOptionsFromQuery(c))
		if err != nil {
			if errors.Is(err, services.ErrConversationNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "Conversation not found",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to list messages",
			})
		}

		return c.JSON(fiber.Map{
			"messages": messages,
		})
	}
}
