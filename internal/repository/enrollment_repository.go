package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/pre-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/pre-enrollment-api/pkg/errors"
)

const enrollmentColumns = `id, token, user_id, class_id, status, full_name, email, age, phone, whatsapp,
	instagram, current_school, current_grade, study_objectives, writing_level, has_taken_enem, enem_score,
	father_name, father_phone, mother_name, mother_phone, plan_id, payment_method, confirmation_date,
	confirmation_shift, confirmation_notes, internal_notes, created_at, updated_at`

// EnrollmentRepository handles persistence of pre-enrollments and the token
// namespace they share.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// MaxTokenNumber scans every issued token and returns the highest numeric
// suffix. Malformed tokens are skipped rather than failing the scan, so a
// stray row cannot wedge allocation. Returns 0 when no tokens exist.
func (r *EnrollmentRepository) MaxTokenNumber(ctx context.Context) (int, error) {
	const query = `SELECT token FROM pre_enrollments`
	var tokens []string
	if err := r.db.SelectContext(ctx, &tokens, query); err != nil {
		return 0, fmt.Errorf("scan tokens: %w", err)
	}
	max := 0
	for _, token := range tokens {
		if !models.TokenPattern.MatchString(token) {
			continue
		}
		n, err := strconv.Atoi(token[1:])
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max, nil
}

// TokenExists reports whether a token is already issued.
func (r *EnrollmentRepository) TokenExists(ctx context.Context, token string) (bool, error) {
	const query = `SELECT 1 FROM pre_enrollments WHERE token = $1 LIMIT 1`
	var one int
	if err := r.db.GetContext(ctx, &one, query, token); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check token: %w", err)
	}
	return true, nil
}

// HasPending reports whether the user already owns a PENDING pre-enrollment.
func (r *EnrollmentRepository) HasPending(ctx context.Context, userID string) (bool, error) {
	const query = `SELECT 1 FROM pre_enrollments WHERE user_id = $1 AND status = $2 LIMIT 1`
	var one int
	if err := r.db.GetContext(ctx, &one, query, userID, models.StatusPending); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check pending enrollment: %w", err)
	}
	return true, nil
}

// CreateBatch persists all rows of one submission atomically. The owning user
// row is locked for the duration of the transaction so two submissions from
// the same user serialize, closing the check-then-act gap on the
// one-pending-enrollment rule. A token uniqueness violation aborts the whole
// batch and surfaces as ErrTokenConflict so the caller can re-allocate.
func (r *EnrollmentRepository) CreateBatch(ctx context.Context, userID string, rows []*models.PreEnrollment) error {
	if len(rows) == 0 {
		return fmt.Errorf("create batch: no rows")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enrollment batch: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var lockedID string
	if err := tx.GetContext(ctx, &lockedID, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return fmt.Errorf("lock user: %w", err)
	}

	var one int
	err = tx.GetContext(ctx, &one, `SELECT 1 FROM pre_enrollments WHERE user_id = $1 AND status = $2 LIMIT 1`, userID, models.StatusPending)
	if err == nil {
		return appErrors.ErrDuplicatePending
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("check pending enrollment: %w", err)
	}

	const insert = `INSERT INTO pre_enrollments (` + enrollmentColumns + `) VALUES (
		:id, :token, :user_id, :class_id, :status, :full_name, :email, :age, :phone, :whatsapp,
		:instagram, :current_school, :current_grade, :study_objectives, :writing_level, :has_taken_enem, :enem_score,
		:father_name, :father_phone, :mother_name, :mother_phone, :plan_id, :payment_method, :confirmation_date,
		:confirmation_shift, :confirmation_notes, :internal_notes, :created_at, :updated_at)`

	now := time.Now().UTC()
	for _, row := range rows {
		if row.ID == "" {
			row.ID = uuid.NewString()
		}
		if row.CreatedAt.IsZero() {
			row.CreatedAt = now
		}
		row.UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, insert, row); err != nil {
			if isUniqueViolation(err, "token") {
				return appErrors.ErrTokenConflict
			}
			return fmt.Errorf("create pre-enrollment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit enrollment batch: %w", err)
	}
	return nil
}

// FindByID returns a pre-enrollment by its surrogate ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.PreEnrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM pre_enrollments WHERE id = $1`
	var enrollment models.PreEnrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindByToken returns a pre-enrollment by its human-facing token.
func (r *EnrollmentRepository) FindByToken(ctx context.Context, token string) (*models.PreEnrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM pre_enrollments WHERE token = $1`
	var enrollment models.PreEnrollment
	if err := r.db.GetContext(ctx, &enrollment, query, token); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ListByUser returns all pre-enrollments owned by a user, newest first.
func (r *EnrollmentRepository) ListByUser(ctx context.Context, userID string) ([]models.PreEnrollmentDetail, error) {
	query := detailSelect + ` WHERE e.user_id = $1 ORDER BY e.created_at DESC`
	var enrollments []models.PreEnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, userID); err != nil {
		return nil, fmt.Errorf("list user enrollments: %w", err)
	}
	return enrollments, nil
}

// ListByClass returns pre-enrollments referencing a class, for roster export.
func (r *EnrollmentRepository) ListByClass(ctx context.Context, classID string) ([]models.PreEnrollmentDetail, error) {
	query := detailSelect + ` WHERE e.class_id = $1 ORDER BY e.token ASC`
	var enrollments []models.PreEnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, classID); err != nil {
		return nil, fmt.Errorf("list class enrollments: %w", err)
	}
	return enrollments, nil
}

const detailSelect = `SELECT e.*, c.code AS class_code, c.name AS class_name, s.name AS subject_name,
	p.name AS plan_name, u.full_name AS owner_name, u.email AS owner_email
	FROM pre_enrollments e
	LEFT JOIN classes c ON c.id = e.class_id
	LEFT JOIN subjects s ON s.id = c.subject_id
	LEFT JOIN plans p ON p.id = e.plan_id
	LEFT JOIN users u ON u.id = e.user_id`

// List returns pre-enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.PreEnrollmentDetail, int, error) {
	base := `FROM pre_enrollments e
	LEFT JOIN classes c ON c.id = e.class_id
	LEFT JOIN subjects s ON s.id = c.subject_id
	LEFT JOIN plans p ON p.id = e.plan_id
	LEFT JOIN users u ON u.id = e.user_id`
	var conditions []string
	var args []interface{}

	if filter.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("e.user_id = $%d", len(args)+1))
		args = append(args, filter.UserID)
	}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("e.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(e.full_name) LIKE $%d OR LOWER(e.email) LIKE $%d OR e.token = $%d)",
			len(args)+1, len(args)+1, len(args)+2))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%", strings.ToUpper(filter.Search))
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at": "e.created_at",
		"token":      "e.token",
		"full_name":  "e.full_name",
		"status":     "e.status",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "e.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT e.*, c.code AS class_code, c.name AS class_name, s.name AS subject_name,
	p.name AS plan_name, u.full_name AS owner_name, u.email AS owner_email
	%s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.PreEnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list pre-enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count pre-enrollments: %w", err)
	}
	return enrollments, total, nil
}

// UpdateStatus persists a status change together with optional staff notes.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, internalNotes *string) error {
	const query = `UPDATE pre_enrollments SET status = $2, internal_notes = $3, updated_at = $4 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, internalNotes, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateBasicData applies a partial applicant-profile update to one row.
func (r *EnrollmentRepository) UpdateBasicData(ctx context.Context, id string, update models.BasicDataUpdate) error {
	sets := []string{}
	args := []interface{}{id}

	add := func(column string, value interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)+1))
		args = append(args, value)
	}

	if update.FullName != nil {
		add("full_name", *update.FullName)
	}
	if update.Email != nil {
		add("email", *update.Email)
	}
	if update.Age != nil {
		add("age", *update.Age)
	}
	if update.Phone != nil {
		add("phone", *update.Phone)
	}
	if update.Whatsapp != nil {
		add("whatsapp", *update.Whatsapp)
	}
	if update.Instagram != nil {
		add("instagram", *update.Instagram)
	}
	if update.CurrentSchool != nil {
		add("current_school", *update.CurrentSchool)
	}
	if update.CurrentGrade != nil {
		add("current_grade", *update.CurrentGrade)
	}
	if len(sets) == 0 {
		return nil
	}
	add("updated_at", time.Now().UTC())

	query := fmt.Sprintf("UPDATE pre_enrollments SET %s WHERE id = $1", strings.Join(sets, ", "))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update basic data: %w", err)
	}
	return nil
}

// CountSeatHolders returns the number of enrollments occupying a seat in the
// class. The count is derived on every read; no stored counter exists.
func (r *EnrollmentRepository) CountSeatHolders(ctx context.Context, classID string) (int, error) {
	const query = `SELECT COUNT(*) FROM pre_enrollments WHERE class_id = $1 AND status = ANY($2)`
	var count int
	if err := r.db.GetContext(ctx, &count, query, classID, statusArray(models.SeatHoldingStatuses)); err != nil {
		return 0, fmt.Errorf("count seat holders: %w", err)
	}
	return count, nil
}

// Stats aggregates dashboard counts in one round of queries.
func (r *EnrollmentRepository) Stats(ctx context.Context, todayStart, weekStart time.Time) (*models.DashboardStats, error) {
	const query = `SELECT
		COUNT(*) FILTER (WHERE created_at >= $1) AS today,
		COUNT(*) FILTER (WHERE created_at >= $2) AS week,
		COUNT(*) AS total,
		COUNT(*) FILTER (WHERE status = 'PENDING') AS pending,
		COUNT(*) FILTER (WHERE status = 'IN_ANALYSIS') AS in_analysis,
		COUNT(*) FILTER (WHERE status = 'CONFIRMED') AS confirmed,
		COUNT(*) FILTER (WHERE status = 'WAITLIST') AS waitlist,
		COUNT(*) FILTER (WHERE status = 'REJECTED') AS rejected
		FROM pre_enrollments`
	row := r.db.QueryRowxContext(ctx, query, todayStart, weekStart)

	var stats models.DashboardStats
	if err := row.Scan(&stats.Today, &stats.Week, &stats.Total, &stats.Pending,
		&stats.InAnalysis, &stats.Confirmed, &stats.Waitlist, &stats.Rejected); err != nil {
		return nil, fmt.Errorf("aggregate stats: %w", err)
	}
	if stats.Total > 0 {
		stats.Conversion = int(float64(stats.Confirmed) / float64(stats.Total) * 100)
	}
	return &stats, nil
}

func statusArray(statuses []models.EnrollmentStatus) pq.StringArray {
	arr := make(pq.StringArray, len(statuses))
	for i, s := range statuses {
		arr[i] = string(s)
	}
	return arr
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation on a constraint mentioning the given column.
func isUniqueViolation(err error, column string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if pqErr.Code != "23505" {
		return false
	}
	return column == "" || strings.Contains(pqErr.Constraint, column)
}
