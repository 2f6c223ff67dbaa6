package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kenchat/kenchat-backend/internal/api/middleware"
	"github.com/kenchat/kenchat-backend/internal/llm"
	"github.com/kenchat/kenchat-backend/internal/services"
)

// ChatRequest is a single user turn
type ChatRequest struct {
	Message string `json:"message"`
}

// SendChatMessage generates an assistant reply for POST /conversations/:id/chat
func SendChatMessage(chat *services.ChatService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := middleware.GetUserID(c)
		if err != nil {
			return err
		}
		conversationID, err := conversationIDParam(c)
		if err != nil {
			return err
		}

		var req ChatRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		reply, err := chat.SendMessage(c.Context(), userID, conversationID, req.Message)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrEmptyMessage):
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Message must not be empty",
				})
			case errors.Is(err, services.ErrConversationNotFound):
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "Conversation not found",
				})
			default:
				return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
					"error": "Failed to generate a reply",
				})
			}
		}

		return c.JSON(reply)
	}
}

// wsChatRequest is one user turn sent over the chat WebSocket
type wsChatRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

// wsChatEvent is a server-to-client frame on the chat WebSocket.
// Type is "chunk" while streaming, then "done" with the persisted
// assistant message, or "error".
type wsChatEvent struct {
	Type    string      `json:"type"`
	Delta   string      `json:"delta,omitempty"`
	Message interface{} `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// StreamChatWS handles WebSocket /ws/chat. The connection stays open
// across turns: each request JSON produces a stream of chunk events
// followed by a done event.
func StreamChatWS(chat *services.ChatService, logger *logrus.Logger) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		// Turns run under a context bound to the connection, so any
		// in-flight provider stream is canceled once the socket is gone.
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		rawUserID, _ := c.Locals("user_id").(string)
		userID, err := uuid.Parse(rawUserID)
		if err != nil {
			c.WriteJSON(wsChatEvent{Type: "error", Error: "Authentication required"})
			return
		}

		for {
			var req wsChatRequest
			if err := c.ReadJSON(&req); err != nil {
				// Client disconnected
				return
			}

			conversationID, err := uuid.Parse(req.ConversationID)
			if err != nil {
				if err := c.WriteJSON(wsChatEvent{Type: "error", Error: "Invalid conversation id"}); err != nil {
					return
				}
				continue
			}

			reply, err := chat.StreamMessage(ctx, userID, conversationID, req.Message, func(chunk llm.StreamChunk) error {
				if chunk.Delta == "" {
					return nil
				}
				return c.WriteJSON(wsChatEvent{Type: "chunk", Delta: chunk.Delta})
			})
			if err != nil {
				logger.WithError(err).WithField("conversation_id", conversationID).Warn("websocket chat turn failed")
				if err := c.WriteJSON(wsChatEvent{Type: "error", Error: wsErrorMessage(err)}); err != nil {
					return
				}
				continue
			}

			if err := c.WriteJSON(wsChatEvent{Type: "done", Message: reply}); err != nil {
				return
			}
		}
	}
}

func wsErrorMessage(err error) string {
	switch {
	case errors.Is(err, services.ErrEmptyMessage):
		return "Message must not be empty"
	case errors.Is(err, services.ErrConversationNotFound):
		return "Conversation not found"
	default:
		return "Failed to generate a reply"
	}
}
