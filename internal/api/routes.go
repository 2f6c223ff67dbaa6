package api

import (
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/kenchat/kenchat-backend/internal/api/handlers"
	"github.com/kenchat/kenchat-backend/internal/api/middleware"
	"github.com/kenchat/kenchat-backend/internal/auth"
	"github.com/kenchat/kenchat-backend/internal/models"
	"github.com/kenchat/kenchat-backend/internal/services"
)

// SetupRoutes configures all API routes. A nil registry disables the
// /metrics endpoint.
func SetupRoutes(app *fiber.App, svc *services.Services, authService *auth.Service, registry *prometheus.Registry, logger *logrus.Logger) {
	// API routes
	api := app.Group("/api/v1")

	// ========================================
	// Public routes (no authentication needed)
	// ========================================

	// Health check
	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "kenchat-backend",
		})
	})

	// Authentication endpoints
	authGroup := api.Group("/auth")
	authGroup.Post("/login", middleware.AuthRateLimit(), handlers.Login(authService))
	authGroup.Post("/signup", middleware.AuthRateLimit(), handlers.Signup(authService))
	authGroup.Post("/refresh", handlers.RefreshToken(authService))
	authGroup.Post("/logout", middleware.AuthRequired(authService), handlers.Logout(authService, logger))
	authGroup.Post("/logout-all", middleware.AuthRequired(authService), handlers.LogoutAll(authService))

	// ========================================
	// Protected routes (authentication required)
	// ========================================

	protected := api.Group("", middleware.AuthRequired(authService), middleware.DefaultRateLimit())

	// User profile endpoints
	protected.Get("/auth/me", handlers.GetCurrentUser(authService))
	protected.Put("/auth/profile", handlers.UpdateProfile(authService))
	protected.Put("/auth/password", handlers.ChangePassword(authService))

	// Conversation management
	protected.Post("/conversations", handlers.CreateConversation(svc.Conversations))
	protected.Get("/conversations", handlers.ListConversations(svc.Conversations))
	protected.Get("/conversations/:id", handlers.GetConversation(svc.Conversations))
	protected.Put("/conversations/:id", handlers.RenameConversation(svc.Conversations))
	protected.Delete("/conversations/:id", handlers.DeleteConversation(svc.Conversations))
	protected.Get("/conversations/:id/messages", handlers.GetConversationMessages(svc.Conversations))

	// Chat generation
	protected.Post("/conversations/:id/chat", middleware.ChatRateLimit(), handlers.SendChatMessage(svc.Chat))

	// Summarization surface
	protected.Post("/conversations/:id/summaries", handlers.ForceSummarize(svc.Conversations, svc.Engine))
	protected.Get("/conversations/:id/summaries", handlers.ListSummaries(svc.Conversations))
	protected.Get("/conversations/:id/context", handlers.GetConversationContext(svc.Conversations, svc.Engine))

	// Admin endpoints
	admin := protected.Group("", middleware.RequireRole(authService, models.RoleAdmin))
	admin.Post("/conversations/:id/summaries/preview", handlers.PreviewSummary(svc.Conversations, svc.Engine))
	admin.Get("/admin/summarization/config", handlers.GetSummarizationConfig(svc.Settings))
	admin.Put("/admin/summarization/config", handlers.UpdateSummarizationConfig(svc.Settings))
	admin.Get("/admin/summarization/templates", handlers.GetPromptTemplates(svc.Settings))
	admin.Put("/admin/summarization/templates", handlers.UpdatePromptTemplates(svc.Settings))

	// Prometheus metrics
	if registry != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	// ========================================
	// WebSocket routes (with auth)
	// ========================================

	app.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	}, middleware.AuthRequired(authService))

	app.Get("/ws/chat", websocket.New(handlers.StreamChatWS(svc.Chat, logger)))
}
