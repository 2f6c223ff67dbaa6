package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/kenchat/kenchat-backend/internal/auth"
	"github.com/kenchat/kenchat-backend/internal/models"
)

// AuthConfig holds the auth middleware configuration
type AuthConfig struct {
	AuthService *auth.Service
	RequireRole string // If set, requires specific role
}

// AuthRequired creates a middleware that requires authentication
func AuthRequired(authService *auth.Service) fiber.Handler {
	return AuthMiddleware(AuthConfig{AuthService: authService})
}

// RequireRole creates a middleware that requires a specific role
func RequireRole(authService *auth.Service, role string) fiber.Handler {
	return AuthMiddleware(AuthConfig{
		AuthService: authService,
		RequireRole: role,
	})
}

// tokenFromRequest finds the access token. API clients send a bearer
// header, browsers a cookie, and websocket clients a query parameter
// because they cannot set headers.
func tokenFromRequest(c *fiber.Ctx) string {
	if token := auth.ExtractTokenFromBearer(c.Get("Authorization")); token != "" {
		return token
	}
	if token := c.Cookies("access_token"); token != "" {
		return token
	}
	return c.Query("token")
}

// AuthMiddleware is the main authentication middleware
func AuthMiddleware(config AuthConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := tokenFromRequest(c)
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}

		user, claims, err := config.AuthService.ValidateAccessToken(c.Context(), token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		if config.RequireRole != "" && user.Role != config.RequireRole {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Insufficient permissions",
			})
		}

		storeUserContext(c, user)
		c.Locals("session_id", claims.SessionID)

		return c.Next()
	}
}

// storeUserContext stores user information in the fiber context
func storeUserContext(c *fiber.Ctx, user *models.User) {
	c.Locals("user_id", user.ID.String())
	c.Locals("user_role", user.Role)
	c.Locals("user_context", &models.UserContext{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
		Role:     user.Role,
	})
}

// GetUserContext retrieves the user context from the fiber context. Nil
// when the request never passed the auth middleware.
func GetUserContext(c *fiber.Ctx) *models.UserContext {
	userContext, _ := c.Locals("user_context").(*models.UserContext)
	return userContext
}

// GetUserID retrieves the user ID from the fiber context
func GetUserID(c *fiber.Ctx) (uuid.UUID, error) {
	id, ok := c.Locals("user_id").(string)
	if !ok {
		return uuid.Nil, fiber.NewError(fiber.StatusUnauthorized, "User not authenticated")
	}
	return uuid.Parse(id)
}
