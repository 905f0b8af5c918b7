package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/pre-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/pre-enrollment-api/pkg/errors"
)

type classRepository interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
	ListByLevel(ctx context.Context, level models.EducationLevel) ([]models.ClassDetail, error)
	ListAll(ctx context.Context) ([]models.ClassDetail, error)
	Create(ctx context.Context, class *models.Class) error
	Update(ctx context.Context, class *models.Class) error
	Delete(ctx context.Context, id string) error
}

type seatCounter interface {
	CountSeatHolders(ctx context.Context, classID string) (int, error)
}

type subjectReader interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
}

// ClassRequest creates or replaces a class.
type ClassRequest struct {
	Code           string `json:"code" validate:"required"`
	Name           string `json:"name" validate:"required"`
	SubjectID      string `json:"subject_id" validate:"required"`
	EducationLevel string `json:"education_level" validate:"required,oneof=MIDDLE_SCHOOL HIGH_SCHOOL"`
	DayOfWeek      string `json:"day_of_week" validate:"required"`
	StartTime      string `json:"start_time" validate:"required"`
	EndTime        string `json:"end_time" validate:"required"`
	MaxCapacity    int    `json:"max_capacity" validate:"required,min=1"`
	Shift          string `json:"shift" validate:"required,oneof=MORNING AFTERNOON NIGHT"`
	Teacher        *string `json:"teacher,omitempty"`
	Location       *string `json:"location,omitempty"`
	Description    *string `json:"description,omitempty"`
}

// GroupedClasses splits the catalog by education level for the wizard.
type GroupedClasses struct {
	HighSchool   []models.ClassDetail `json:"high_school"`
	MiddleSchool []models.ClassDetail `json:"middle_school"`
}

// ClassService manages the class catalog and the derived seat accounting.
// Occupancy is always computed from live enrollment counts: there is no
// stored counter to drift.
type ClassService struct {
	repo      classRepository
	seats     seatCounter
	subjects  subjectReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService constructs ClassService.
func NewClassService(repo classRepository, seats seatCounter, subjects subjectReader, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{repo: repo, seats: seats, subjects: subjects, validator: validate, logger: logger}
}

// ListGrouped returns the catalog split by education level, each class
// carrying its availability label.
func (s *ClassService) ListGrouped(ctx context.Context) (*GroupedClasses, error) {
	high, err := s.repo.ListByLevel(ctx, models.LevelHighSchool)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	middle, err := s.repo.ListByLevel(ctx, models.LevelMiddleSchool)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	labelAll(high)
	labelAll(middle)
	return &GroupedClasses{HighSchool: high, MiddleSchool: middle}, nil
}

// ListAll returns every class with availability, for the staff panel.
func (s *ClassService) ListAll(ctx context.Context) ([]models.ClassDetail, error) {
	classes, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	labelAll(classes)
	return classes, nil
}

func labelAll(classes []models.ClassDetail) {
	for i := range classes {
		occ := models.Occupancy{ClassID: classes[i].ID, Current: classes[i].Occupied, Max: classes[i].MaxCapacity}
		classes[i].Availability = occ.Label()
	}
}

// Occupancy returns the derived seat usage for one class.
func (s *ClassService) Occupancy(ctx context.Context, classID string) (*models.Occupancy, error) {
	class, err := s.repo.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	current, err := s.seats.CountSeatHolders(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count seats")
	}
	return &models.Occupancy{ClassID: classID, Current: current, Max: class.MaxCapacity}, nil
}

// AvailabilityLabel classifies one class as OPEN, LOW or FULL. Display only:
// a FULL class still accepts submissions (waitlist-style overbooking).
func (s *ClassService) AvailabilityLabel(ctx context.Context, classID string) (models.AvailabilityLabel, error) {
	occ, err := s.Occupancy(ctx, classID)
	if err != nil {
		return "", err
	}
	return occ.Label(), nil
}

// Create adds a class after validating its subject reference.
func (s *ClassService) Create(ctx context.Context, req ClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	if _, err := s.subjects.FindByID(ctx, req.SubjectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}

	class := s.fromRequest(req)
	if err := s.repo.Create(ctx, class); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}
	return class, nil
}

// Update replaces the editable fields of a class.
func (s *ClassService) Update(ctx context.Context, id string, req ClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	class := s.fromRequest(req)
	class.ID = id
	if err := s.repo.Update(ctx, class); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class")
	}
	return class, nil
}

// Delete removes a class.
func (s *ClassService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete class")
	}
	return nil
}

func (s *ClassService) fromRequest(req ClassRequest) *models.Class {
	return &models.Class{
		Code:           req.Code,
		Name:           req.Name,
		SubjectID:      req.SubjectID,
		EducationLevel: models.EducationLevel(req.EducationLevel),
		DayOfWeek:      req.DayOfWeek,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		MaxCapacity:    req.MaxCapacity,
		Shift:          models.ClassShift(req.Shift),
		Teacher:        req.Teacher,
		Location:       req.Location,
		Description:    req.Description,
	}
}
