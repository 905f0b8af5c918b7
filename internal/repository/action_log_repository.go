package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/pre-enrollment-api/internal/models"
)

// ActionLogRepository appends and reads the audit trail. Rows are never
// updated or deleted.
type ActionLogRepository struct {
	db *sqlx.DB
}

// NewActionLogRepository constructs the repository.
func NewActionLogRepository(db *sqlx.DB) *ActionLogRepository {
	return &ActionLogRepository{db: db}
}

// Create appends one audit entry.
func (r *ActionLogRepository) Create(ctx context.Context, log *models.ActionLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO action_logs (id, action, user_id, token, details, ip_address, user_agent, created_at)
		VALUES (:id, :action, :user_id, :token, :details, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create action log: %w", err)
	}
	return nil
}

// List returns the most recent audit entries, optionally filtered by action.
func (r *ActionLogRepository) List(ctx context.Context, filter models.ActionLogFilter) ([]models.ActionLogDetail, error) {
	base := `SELECT l.*, u.full_name AS user_name, u.email AS user_email
	FROM action_logs l
	LEFT JOIN users u ON u.id = l.user_id`
	var conditions []string
	var args []interface{}

	if filter.Action != "" {
		conditions = append(conditions, fmt.Sprintf("l.action = $%d", len(args)+1))
		args = append(args, filter.Action)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	query := fmt.Sprintf("%s%s ORDER BY l.created_at DESC LIMIT %d", base, clause, limit)
	var logs []models.ActionLogDetail
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, fmt.Errorf("list action logs: %w", err)
	}
	return logs, nil
}

// CountByToken returns how many audit entries reference a token with the
// given action kind.
func (r *ActionLogRepository) CountByToken(ctx context.Context, action, token string) (int, error) {
	const query = `SELECT COUNT(*) FROM action_logs WHERE action = $1 AND token = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, action, token); err != nil {
		return 0, fmt.Errorf("count action logs: %w", err)
	}
	return count, nil
}
