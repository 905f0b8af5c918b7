package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/pre-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/pre-enrollment-api/pkg/errors"
)

const classColumns = `id, code, name, subject_id, education_level, day_of_week, start_time, end_time,
	max_capacity, shift, teacher, location, description, created_at, updated_at`

// seatHolderCount is the correlated subquery deriving live occupancy. It is
// built from models.SeatHoldingStatuses so the seat-occupancy rule stays in
// one place.
var seatHolderCount = fmt.Sprintf(`(SELECT COUNT(*) FROM pre_enrollments e
	WHERE e.class_id = c.id AND e.status IN (%s))`, statusInList(models.SeatHoldingStatuses))

func statusInList(statuses []models.EnrollmentStatus) string {
	quoted := make([]string, len(statuses))
	for i, s := range statuses {
		quoted[i] = "'" + string(s) + "'"
	}
	return strings.Join(quoted, ", ")
}

// ClassRepository handles persistence of classes.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs the repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// FindByID returns a class by identifier.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	query := `SELECT ` + classColumns + ` FROM classes WHERE id = $1`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// FindByCode returns a class by its human code.
func (r *ClassRepository) FindByCode(ctx context.Context, code string) (*models.Class, error) {
	query := `SELECT ` + classColumns + ` FROM classes WHERE code = $1`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, code); err != nil {
		return nil, err
	}
	return &class, nil
}

// ListByLevel returns classes for one education level with derived occupancy,
// ordered by code as the wizard displays them.
func (r *ClassRepository) ListByLevel(ctx context.Context, level models.EducationLevel) ([]models.ClassDetail, error) {
	query := `SELECT c.*, s.name AS subject_name, s.type AS subject_type, ` + seatHolderCount + ` AS occupied
	FROM classes c
	LEFT JOIN subjects s ON s.id = c.subject_id
	WHERE c.education_level = $1
	ORDER BY c.code ASC`
	var classes []models.ClassDetail
	if err := r.db.SelectContext(ctx, &classes, query, level); err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	return classes, nil
}

// ListAll returns every class with derived occupancy.
func (r *ClassRepository) ListAll(ctx context.Context) ([]models.ClassDetail, error) {
	query := `SELECT c.*, s.name AS subject_name, s.type AS subject_type, ` + seatHolderCount + ` AS occupied
	FROM classes c
	LEFT JOIN subjects s ON s.id = c.subject_id
	ORDER BY c.code ASC`
	var classes []models.ClassDetail
	if err := r.db.SelectContext(ctx, &classes, query); err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	return classes, nil
}

// Create inserts a new class. Duplicate codes surface as a conflict error.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	class.CreatedAt = now
	class.UpdatedAt = now

	const query = `INSERT INTO classes (` + classColumns + `) VALUES (
		:id, :code, :name, :subject_id, :education_level, :day_of_week, :start_time, :end_time,
		:max_capacity, :shift, :teacher, :location, :description, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		if isUniqueViolation(err, "code") {
			return appErrors.Clone(appErrors.ErrConflict, "class code already exists")
		}
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// Update replaces the editable fields of a class.
func (r *ClassRepository) Update(ctx context.Context, class *models.Class) error {
	class.UpdatedAt = time.Now().UTC()
	const query = `UPDATE classes SET code = :code, name = :name, subject_id = :subject_id,
		education_level = :education_level, day_of_week = :day_of_week, start_time = :start_time,
		end_time = :end_time, max_capacity = :max_capacity, shift = :shift, teacher = :teacher,
		location = :location, description = :description, updated_at = :updated_at
		WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, class)
	if err != nil {
		if isUniqueViolation(err, "code") {
			return appErrors.Clone(appErrors.ErrConflict, "class code already exists")
		}
		return fmt.Errorf("update class: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a class. Classes with enrollments are protected by the
// foreign key and surface as a conflict.
func (r *ClassRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM classes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete class: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
