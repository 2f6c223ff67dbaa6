package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/kenchat/kenchat-backend/internal/api/middleware"
	"github.com/kenchat/kenchat-backend/internal/auth"
	"github.com/kenchat/kenchat-backend/internal/models"
)

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	User         *UserResponse `json:"user"`
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresIn    int           `json:"expires_in"`
}

// SignupRequest represents a signup request
type SignupRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

// RefreshRequest represents a token refresh request
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshResponse represents a token refresh response
type RefreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// UserResponse represents a user in API responses
type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func newUserResponse(user *models.User) *UserResponse {
	return &UserResponse{
		ID:        user.ID.String(),
		Email:     user.Email,
		Username:  user.Username,
		FullName:  user.FullName,
		Role:      user.Role,
		CreatedAt: user.CreatedAt,
	}
}

func setAuthCookies(c *fiber.Ctx, authService *auth.Service, accessToken, refreshToken string) {
	c.Cookie(&fiber.Cookie{
		Name:     "access_token",
		Value:    accessToken,
		Expires:  time.Now().Add(authService.AccessTokenTTL()),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Strict",
	})
	c.Cookie(&fiber.Cookie{
		Name:     "refresh_token",
		Value:    refreshToken,
		Expires:  time.Now().Add(authService.RefreshTokenTTL()),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Strict",
	})
}

func clearAuthCookies(c *fiber.Ctx) {
	for _, name := range []string{"access_token", "refresh_token"} {
		c.Cookie(&fiber.Cookie{
			Name:     name,
			Value:    "",
			Expires:  time.Now().Add(-time.Hour),
			HTTPOnly: true,
			Secure:   true,
			SameSite: "Strict",
		})
	}
}

// generateRandomSuffix generates a random 4-character suffix for username
// collisions
func generateRandomSuffix() string {
	b := make([]byte, 2)
	if _, err := rand.Read(b); err != nil {
		return "0000"
	}
	return hex.EncodeToString(b)
}

// Login handles user login
func Login(authService *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req LoginRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		if req.Email == "" || req.Password == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Email and password are required",
			})
		}

		user, accessToken, refreshToken, err := authService.Login(
			c.Context(),
			req.Email,
			req.Password,
			c.IP(),
			c.Get("User-Agent"),
		)
		if err != nil {
			// Don't reveal specific error to prevent user enumeration
			if errors.Is(err, auth.ErrInvalidCredentials) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Invalid email or password",
				})
			}
			if errors.Is(err, auth.ErrUserInactive) {
				return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
					"error": "Account is inactive",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Login failed",
			})
		}

		setAuthCookies(c, authService, accessToken, refreshToken)

		return c.JSON(LoginResponse{
			User:         newUserResponse(user),
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			ExpiresIn:    int(authService.AccessTokenTTL().Seconds()),
		})
	}
}

// Signup handles user registration
func Signup(authService *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req SignupRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		if req.Email == "" || req.Password == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Email and password are required",
			})
		}

		if err := auth.ValidatePassword(req.Password); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		// Derive a username from the email when none was given
		username := req.Username
		if username == "" {
			username = req.Email
			if atIndex := strings.Index(req.Email, "@"); atIndex > 0 {
				username = req.Email[:atIndex]
			}
		}

		user, err := authService.SignUp(c.Context(), req.Email, username, req.Password, req.FullName)
		if err != nil && errors.Is(err, auth.ErrUsernameAlreadyExists) && req.Username == "" {
			// Only retry collisions on derived usernames
			username = username + "_" + generateRandomSuffix()
			user, err = authService.SignUp(c.Context(), req.Email, username, req.Password, req.FullName)
		}
		if err != nil {
			if errors.Is(err, auth.ErrEmailAlreadyExists) {
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{
					"error": "Email already registered",
				})
			}
			if errors.Is(err, auth.ErrUsernameAlreadyExists) {
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{
					"error": "Username already taken",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Registration failed",
			})
		}

		// Auto-login after signup
		_, accessToken, refreshToken, err := authService.Login(
			c.Context(), req.Email, req.Password, c.IP(), c.Get("User-Agent"))
		if err != nil {
			// User created but login failed, they can login manually
			return c.Status(fiber.StatusCreated).JSON(fiber.Map{
				"user":    newUserResponse(user),
				"message": "Registration successful. Please login.",
			})
		}

		setAuthCookies(c, authService, accessToken, refreshToken)

		return c.Status(fiber.StatusCreated).JSON(LoginResponse{
			User:         newUserResponse(user),
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			ExpiresIn:    int(authService.AccessTokenTTL().Seconds()),
		})
	}
}

// RefreshToken handles token refresh
func RefreshToken(authService *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req RefreshRequest
		_ = c.BodyParser(&req)

		refreshToken := req.RefreshToken
		if refreshToken == "" {
			refreshToken = auth.ExtractTokenFromBearer(c.Get("Authorization"))
		}
		if refreshToken == "" {
			refreshToken = c.Cookies("refresh_token")
		}

		if refreshToken == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Refresh token required",
			})
		}

		newAccessToken, newRefreshToken, err := authService.RefreshToken(c.Context(), refreshToken)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) ||
				errors.Is(err, auth.ErrExpiredToken) ||
				errors.Is(err, auth.ErrSessionNotFound) ||
				errors.Is(err, auth.ErrSessionExpired) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Invalid or expired refresh token",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Token refresh failed",
			})
		}

		setAuthCookies(c, authService, newAccessToken, newRefreshToken)

		return c.JSON(RefreshResponse{
			AccessToken:  newAccessToken,
			RefreshToken: newRefreshToken,
			ExpiresIn:    int(authService.AccessTokenTTL().Seconds()),
		})
	}
}

// Logout handles user logout
func Logout(authService *auth.Service, logger *logrus.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if sessionID, ok := c.Locals("session_id").(string); ok {
			// Revocation failure must not block logout, the cookies are
			// cleared either way
			if err := authService.Logout(c.Context(), sessionID); err != nil {
				logger.WithError(err).WithField("session_id", sessionID).
					Warn("failed to revoke session on logout")
			}
		}

		clearAuthCookies(c)

		return c.JSON(fiber.Map{
			"message": "Logged out successfully",
		})
	}
}

// LogoutAll revokes every session belonging to the current user
func LogoutAll(authService *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		if err := authService.LogoutAll(c.Context(), userContext.UserID); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to log out sessions",
			})
		}

		clearAuthCookies(c)

		return c.JSON(fiber.Map{
			"message": "Logged out of all sessions",
		})
	}
}

// GetCurrentUser returns the current authenticated user
func GetCurrentUser(authService *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		user, err := authService.GetUser(c.Context(), userContext.UserID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to get user data",
			})
		}

		return c.JSON(newUserResponse(user))
	}
}

// UpdateProfile updates the current user's profile
func UpdateProfile(authService *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		var req struct {
			FullName string `json:"full_name"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		user, err := authService.UpdateProfile(c.Context(), userContext.UserID, req.FullName)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to update profile",
			})
		}

		return c.JSON(newUserResponse(user))
	}
}

// ChangePassword changes the current user's password
func ChangePassword(authService *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		var req struct {
			CurrentPassword string `json:"current_password"`
			NewPassword     string `json:"new_password"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		if err := auth.ValidatePassword(req.NewPassword); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		if err := authService.ChangePassword(
			c.Context(), userContext.UserID, req.CurrentPassword, req.NewPassword,
		); err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Current password is incorrect",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to change password",
			})
		}

		return c.JSON(fiber.Map{
			"message": "Password changed successfully",
		})
	}
}
