package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/pre-enrollment-api/internal/models"
)

// ConfigRepository stores admin-editable key/value settings.
type ConfigRepository struct {
	db *sqlx.DB
}

// NewConfigRepository constructs the repository.
func NewConfigRepository(db *sqlx.DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

// List returns all settings.
func (r *ConfigRepository) List(ctx context.Context) ([]models.SystemConfig, error) {
	const query = `SELECT id, key, value, updated_at FROM system_configs ORDER BY key ASC`
	var configs []models.SystemConfig
	if err := r.db.SelectContext(ctx, &configs, query); err != nil {
		return nil, fmt.Errorf("list system configs: %w", err)
	}
	return configs, nil
}

// Upsert stores a setting, replacing any previous value for the key.
func (r *ConfigRepository) Upsert(ctx context.Context, key, value string) error {
	const query = `INSERT INTO system_configs (id, key, value, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query, uuid.NewString(), key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert system config %s: %w", key, err)
	}
	return nil
}
