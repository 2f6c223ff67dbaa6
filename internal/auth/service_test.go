package auth

import (
	"context"
	"database/sql"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kenchat/kenchat-backend/internal/models"
)

// In-memory repos that honor the sql.ErrNoRows contract of the postgres
// implementations.
type memoryUserRepo struct {
	users map[uuid.UUID]*models.User
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{users: make(map[uuid.UUID]*models.User)}
}

func (r *memoryUserRepo) Create(ctx context.Context, user *models.User) error {
	r.users[user.ID] = user
	return nil
}

func (r *memoryUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (r *memoryUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *memoryUserRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	for _, user := range r.users {
		if user.Username == username {
			return user, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *memoryUserRepo) Update(ctx context.Context, user *models.User) error {
	r.users[user.ID] = user
	return nil
}

func (r *memoryUserRepo) UpdateLastLogin(ctx context.Context, userID uuid.UUID) error {
	return nil
}

func (r *memoryUserRepo) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	if user, ok := r.users[userID]; ok {
		user.PasswordHash = passwordHash
	}
	return nil
}

type memorySessionRepo struct {
	sessions map[uuid.UUID]*models.UserSession
}

func newMemorySessionRepo() *memorySessionRepo {
	return &memorySessionRepo{sessions: make(map[uuid.UUID]*models.UserSession)}
}

func (r *memorySessionRepo) Create(ctx context.Context, session *models.UserSession) error {
	r.sessions[session.ID] = session
	return nil
}

func (r *memorySessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.UserSession, error) {
	session, ok := r.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return session, nil
}

func (r *memorySessionRepo) Update(ctx context.Context, session *models.UserSession) error {
	r.sessions[session.ID] = session
	return nil
}

func (r *memorySessionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	delete(r.sessions, id)
	return nil
}

func (r *memorySessionRepo) DeleteExpired(ctx context.Context) error {
	for id, session := range r.sessions {
		if session.RefreshExpiresAt.Before(time.Now()) || session.RevokedAt != nil {
			delete(r.sessions, id)
		}
	}
	return nil
}

func (r *memorySessionRepo) DeleteUserSessions(ctx context.Context, userID uuid.UUID) error {
	for id, session := range r.sessions {
		if session.UserID == userID {
			delete(r.sessions, id)
		}
	}
	return nil
}

func newTestService() (*Service, *memoryUserRepo, *memorySessionRepo) {
	users := newMemoryUserRepo()
	sessions := newMemorySessionRepo()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	jwt := NewJWTService("test-secret", "kenchat-test", 0, 0)
	return NewService(users, sessions, jwt, logger), users, sessions
}

const testPassword = "Str0ng-password"

func signUpTestUser(t *testing.T, service *Service) *models.User {
	t.Helper()
	user, err := service.SignUp(context.Background(), "ken@example.com", "ken", testPassword, "Ken")
	require.NoError(t, err)
	return user
}

func TestService_SignUp(t *testing.T) {
	t.Run("creates an active user with hashed password", func(t *testing.T) {
		service, _, _ := newTestService()

		user := signUpTestUser(t, service)
		assert.Equal(t, "ken@example.com", user.Email)
		assert.Equal(t, models.RoleUser, user.Role)
		assert.True(t, user.IsActive)
		assert.NotEqual(t, testPassword, user.PasswordHash)
		assert.True(t, CheckPassword(testPassword, user.PasswordHash))
	})

	t.Run("rejects duplicate email", func(t *testing.T) {
		service, _, _ := newTestService()
		signUpTestUser(t, service)

		_, err := service.SignUp(context.Background(), "ken@example.com", "other", testPassword, "")
		assert.ErrorIs(t, err, ErrEmailAlreadyExists)
	})

	t.Run("rejects duplicate username", func(t *testing.T) {
		service, _, _ := newTestService()
		signUpTestUser(t, service)

		_, err := service.SignUp(context.Background(), "other@example.com", "ken", testPassword, "")
		assert.ErrorIs(t, err, ErrUsernameAlreadyExists)
	})

	t.Run("rejects a weak password", func(t *testing.T) {
		service, _, _ := newTestService()

		_, err := service.SignUp(context.Background(), "ken@example.com", "ken", "alllowercase", "")
		assert.ErrorIs(t, err, ErrPasswordTooWeak)
	})
}

func TestService_Login(t *testing.T) {
	t.Run("returns tokens and stores only hashes", func(t *testing.T) {
		service, _, sessions := newTestService()
		signUpTestUser(t, service)

		user, access, refresh, err := service.Login(context.Background(), "ken@example.com", testPassword, "127.0.0.1", "go-test")
		require.NoError(t, err)
		require.NotEmpty(t, access)
		require.NotEmpty(t, refresh)
		assert.Equal(t, "ken@example.com", user.Email)

		require.Len(t, sessions.sessions, 1)
		for _, session := range sessions.sessions {
			assert.Equal(t, HashToken(access), session.TokenHash)
			assert.Equal(t, HashToken(refresh), session.RefreshTokenHash)
			assert.NotEqual(t, access, session.TokenHash)
		}
	})

	t.Run("rejects a wrong password", func(t *testing.T) {
		service, _, _ := newTestService()
		signUpTestUser(t, service)

		_, _, _, err := service.Login(context.Background(), "ken@example.com", "WrongPass1", "", "")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("rejects an unknown email with the same error", func(t *testing.T) {
		service, _, _ := newTestService()

		_, _, _, err := service.Login(context.Background(), "nobody@example.com", testPassword, "", "")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("rejects an inactive user", func(t *testing.T) {
		service, users, _ := newTestService()
		user := signUpTestUser(t, service)
		users.users[user.ID].IsActive = false

		_, _, _, err := service.Login(context.Background(), "ken@example.com", testPassword, "", "")
		assert.ErrorIs(t, err, ErrUserInactive)
	})
}

func TestService_ValidateAccessToken(t *testing.T) {
	t.Run("accepts a freshly issued token", func(t *testing.T) {
		service, _, _ := newTestService()
		signUpTestUser(t, service)
		user, access, _, err := service.Login(context.Background(), "ken@example.com", testPassword, "", "")
		require.NoError(t, err)

		validated, claims, err := service.ValidateAccessToken(context.Background(), access)
		require.NoError(t, err)
		assert.Equal(t, user.ID, validated.ID)
		assert.Equal(t, "access", claims.TokenType)
	})

	t.Run("rejects a refresh token on the access path", func(t *testing.T) {
		service, _, _ := newTestService()
		signUpTestUser(t, service)
		_, _, refresh, err := service.Login(context.Background(), "ken@example.com", testPassword, "", "")
		require.NoError(t, err)

		_, _, err = service.ValidateAccessToken(context.Background(), refresh)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("rejects a revoked session", func(t *testing.T) {
		service, _, _ := newTestService()
		signUpTestUser(t, service)
		_, access, _, err := service.Login(context.Background(), "ken@example.com", testPassword, "", "")
		require.NoError(t, err)

		claims, err := service.jwt.ValidateAccessToken(access)
		require.NoError(t, err)
		require.NoError(t, service.Logout(context.Background(), claims.SessionID))

		_, _, err = service.ValidateAccessToken(context.Background(), access)
		assert.ErrorIs(t, err, ErrSessionExpired)
	})

	t.Run("rejects an expired token", func(t *testing.T) {
		service, _, _ := newTestService()
		// force immediate expiry
		service.jwt = NewJWTService("test-secret", "kenchat-test", time.Nanosecond, time.Nanosecond)
		signUpTestUser(t, service)
		_, access, _, err := service.Login(context.Background(), "ken@example.com", testPassword, "", "")
		require.NoError(t, err)

		time.Sleep(10 * time.Millisecond)
		_, _, err = service.ValidateAccessToken(context.Background(), access)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})
}

func TestService_RefreshToken(t *testing.T) {
	t.Run("rotates both tokens", func(t *testing.T) {
		service, _, sessions := newTestService()
		signUpTestUser(t, service)
		_, access, refresh, err := service.Login(context.Background(), "ken@example.com", testPassword, "", "")
		require.NoError(t, err)

		newAccess, newRefresh, err := service.RefreshToken(context.Background(), refresh)
		require.NoError(t, err)
		assert.NotEqual(t, access, newAccess)
		assert.NotEqual(t, refresh, newRefresh)

		for _, session := range sessions.sessions {
			assert.Equal(t, HashToken(newRefresh), session.RefreshTokenHash)
		}
	})

	t.Run("rejects a rotated-out refresh token", func(t *testing.T) {
		service, _, _ := newTestService()
		signUpTestUser(t, service)
		_, _, refresh, err := service.Login(context.Background(), "ken@example.com", testPassword, "", "")
		require.NoError(t, err)

		_, _, err = service.RefreshToken(context.Background(), refresh)
		require.NoError(t, err)

		_, _, err = service.RefreshToken(context.Background(), refresh)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("rejects an access token on the refresh path", func(t *testing.T) {
		service, _, _ := newTestService()
		signUpTestUser(t, service)
		_, access, _, err := service.Login(context.Background(), "ken@example.com", testPassword, "", "")
		require.NoError(t, err)

		_, _, err = service.RefreshToken(context.Background(), access)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestService_ChangePassword(t *testing.T) {
	service, _, _ := newTestService()
	user := signUpTestUser(t, service)

	t.Run("requires the current password", func(t *testing.T) {
		err := service.ChangePassword(context.Background(), user.ID, "WrongPass1", "NewStr0ng-pass")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("stores the new hash", func(t *testing.T) {
		require.NoError(t, service.ChangePassword(context.Background(), user.ID, testPassword, "NewStr0ng-pass"))
		_, _, _, err := service.Login(context.Background(), "ken@example.com", "NewStr0ng-pass", "", "")
		assert.NoError(t, err)
	})
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		expected error
	}{
		{name: "too short", password: "Ab1", expected: ErrPasswordTooShort},
		{name: "only two character classes", password: "lowercase1234", expected: ErrPasswordTooWeak},
		{name: "three classes pass", password: "Lowercase1234", expected: nil},
		{name: "symbols count as a class", password: "lower-case!234", expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if tt.expected == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.expected)
			}
		})
	}
}

func TestExtractTokenFromBearer(t *testing.T) {
	assert.Equal(t, "abc123", ExtractTokenFromBearer("Bearer abc123"))
	assert.Equal(t, "", ExtractTokenFromBearer("abc123"))
	assert.Equal(t, "", ExtractTokenFromBearer(""))
	assert.Equal(t, "", ExtractTokenFromBearer("Bearer "))
}
