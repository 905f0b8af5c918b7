package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/pre-enrollment-api/internal/models"
)

// ResetAttemptRepository tracks password-reset attempts per token.
type ResetAttemptRepository struct {
	db *sqlx.DB
}

// NewResetAttemptRepository constructs the repository.
func NewResetAttemptRepository(db *sqlx.DB) *ResetAttemptRepository {
	return &ResetAttemptRepository{db: db}
}

// GetOrCreate returns the attempt record for a token, creating it with zero
// attempts on first use.
func (r *ResetAttemptRepository) GetOrCreate(ctx context.Context, token string) (*models.PasswordResetAttempt, error) {
	const find = `SELECT id, token, attempts, last_attempt, created_at, updated_at FROM password_reset_attempts WHERE token = $1`
	var attempt models.PasswordResetAttempt
	err := r.db.GetContext(ctx, &attempt, find, token)
	if err == nil {
		return &attempt, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("find reset attempt: %w", err)
	}

	now := time.Now().UTC()
	attempt = models.PasswordResetAttempt{
		ID:          uuid.NewString(),
		Token:       token,
		Attempts:    0,
		LastAttempt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	const insert = `INSERT INTO password_reset_attempts (id, token, attempts, last_attempt, created_at, updated_at)
		VALUES (:id, :token, :attempts, :last_attempt, :created_at, :updated_at)
		ON CONFLICT (token) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, insert, &attempt); err != nil {
		return nil, fmt.Errorf("create reset attempt: %w", err)
	}
	// Re-read in case a concurrent request created the row first.
	if err := r.db.GetContext(ctx, &attempt, find, token); err != nil {
		return nil, fmt.Errorf("reload reset attempt: %w", err)
	}
	return &attempt, nil
}

// Increment bumps the attempt counter and stamps the attempt time.
func (r *ResetAttemptRepository) Increment(ctx context.Context, token string, ts time.Time) error {
	const query = `UPDATE password_reset_attempts SET attempts = attempts + 1, last_attempt = $2, updated_at = $2 WHERE token = $1`
	if _, err := r.db.ExecContext(ctx, query, token, ts); err != nil {
		return fmt.Errorf("increment reset attempt: %w", err)
	}
	return nil
}

// List returns all attempt records, most recently touched first.
func (r *ResetAttemptRepository) List(ctx context.Context) ([]models.PasswordResetAttempt, error) {
	const query = `SELECT id, token, attempts, last_attempt, created_at, updated_at FROM password_reset_attempts ORDER BY updated_at DESC`
	var attempts []models.PasswordResetAttempt
	if err := r.db.SelectContext(ctx, &attempts, query); err != nil {
		return nil, fmt.Errorf("list reset attempts: %w", err)
	}
	return attempts, nil
}
