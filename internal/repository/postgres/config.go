package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/kenchat/kenchat-backend/internal/repository"
)

// ConfigRepository implements repository.ConfigRepository using PostgreSQL
type ConfigRepository struct {
	db *sqlx.DB
}

// NewConfigRepository creates a new PostgreSQL config repository
func NewConfigRepository(db *sqlx.DB) repository.ConfigRepository {
	return &ConfigRepository{db: db}
}

// Get retrieves a stored document, nil when the key is absent
func (r *ConfigRepository) Get(ctx context.Context, key string) (json.RawMessage, error) {
	var value json.RawMessage
	query := `SELECT value FROM configs WHERE key = $1`

	err := r.db.GetContext(ctx, &value, query, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get config %q: %w", key, err)
	}
	return value, nil
}

// Set stores a document under the key, replacing any previous value
func (r *ConfigRepository) Set(ctx context.Context, key string, value interface{}) error {
	jsonValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal config %q: %w", key, err)
	}

	query := `
		INSERT INTO configs (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value
	`

	if _, err := r.db.ExecContext(ctx, query, key, jsonValue); err != nil {
		return fmt.Errorf("failed to set config %q: %w", key, err)
	}
	return nil
}

// Delete removes a stored document
func (r *ConfigRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM configs WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete config %q: %w", key, err)
	}
	return nil
}
