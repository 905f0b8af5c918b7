package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/pre-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/pre-enrollment-api/pkg/errors"
)

type enrollmentRepository interface {
	CreateBatch(ctx context.Context, userID string, rows []*models.PreEnrollment) error
	HasPending(ctx context.Context, userID string) (bool, error)
	FindByID(ctx context.Context, id string) (*models.PreEnrollment, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.PreEnrollmentDetail, int, error)
	ListByUser(ctx context.Context, userID string) ([]models.PreEnrollmentDetail, error)
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, internalNotes *string) error
	UpdateBasicData(ctx context.Context, id string, update models.BasicDataUpdate) error
}

type batchAllocator interface {
	AllocateBatch(ctx context.Context, n int) ([]string, error)
	MaxAttempts() int
	Backoff(ctx context.Context, attempt int) error
}

type classReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type actionLogger interface {
	Create(ctx context.Context, log *models.ActionLog) error
}

// ApplicantPayload carries the personal-data step of the wizard.
type ApplicantPayload struct {
	FullName      string   `json:"full_name" validate:"required"`
	Email         string   `json:"email" validate:"required,email"`
	Age           *int     `json:"age,omitempty"`
	Phone         *string  `json:"phone,omitempty"`
	Whatsapp      *string  `json:"whatsapp,omitempty"`
	Instagram     *string  `json:"instagram,omitempty"`
	CurrentSchool *string  `json:"current_school,omitempty"`
	CurrentGrade  *string  `json:"current_grade,omitempty"`
	Objectives    []string `json:"study_objectives,omitempty"`
	WritingLevel  string   `json:"writing_level,omitempty"`
	HasTakenENEM  bool     `json:"has_taken_enem"`
	ENEMScore     *float64 `json:"enem_score,omitempty"`
}

// GuardiansPayload carries the guardian step. Skipped fields default to the
// "not informed" sentinel rather than null.
type GuardiansPayload struct {
	FatherName  string `json:"father_name,omitempty"`
	FatherPhone string `json:"father_phone,omitempty"`
	MotherName  string `json:"mother_name,omitempty"`
	MotherPhone string `json:"mother_phone,omitempty"`
}

// PlanSelection carries the plan/payment step.
type PlanSelection struct {
	PlanID        string `json:"plan_id,omitempty"`
	PaymentMethod string `json:"payment_method,omitempty"`
}

// ConfirmationPayload carries the in-person confirmation scheduling step.
type ConfirmationPayload struct {
	Date  *time.Time `json:"date,omitempty"`
	Shift string     `json:"shift,omitempty"`
	Notes string     `json:"notes,omitempty"`
}

// SubmitEnrollmentRequest is one wizard submission: shared applicant data
// plus the selected class per subject.
type SubmitEnrollmentRequest struct {
	Applicant        ApplicantPayload     `json:"applicant"`
	Guardians        GuardiansPayload     `json:"guardians"`
	SelectedClassIDs map[string]string    `json:"selected_class_ids"`
	Plan             *PlanSelection       `json:"plan,omitempty"`
	Confirmation     *ConfirmationPayload `json:"confirmation,omitempty"`
}

// SubmitEnrollmentResponse reports the issued tokens. Token is the primary
// one shown on the success screen.
type SubmitEnrollmentResponse struct {
	Success bool     `json:"success"`
	Token   string   `json:"token"`
	Tokens  []string `json:"tokens"`
	Count   int      `json:"count"`
}

// UpdateStatusRequest is the staff review payload.
type UpdateStatusRequest struct {
	Status        string `json:"status" validate:"required"`
	InternalNotes string `json:"internal_notes,omitempty"`
}

// UpdateBasicDataRequest is the owner's self-service profile edit.
type UpdateBasicDataRequest struct {
	FullName      *string `json:"full_name,omitempty"`
	Email         *string `json:"email,omitempty" validate:"omitempty,email"`
	Age           *int    `json:"age,omitempty"`
	Phone         *string `json:"phone,omitempty"`
	Whatsapp      *string `json:"whatsapp,omitempty"`
	Instagram     *string `json:"instagram,omitempty"`
	CurrentSchool *string `json:"current_school,omitempty"`
	CurrentGrade  *string `json:"current_grade,omitempty"`
}

// LatestEnrollmentResponse returns the newest submission with its siblings.
type LatestEnrollmentResponse struct {
	Primary     models.PreEnrollmentDetail   `json:"primary"`
	Enrollments []models.PreEnrollmentDetail `json:"enrollments"`
}

// EnrollmentService orchestrates the pre-enrollment write path: submission,
// self-service edits and staff status reviews.
type EnrollmentService struct {
	repo      enrollmentRepository
	classes   classReader
	allocator batchAllocator
	logs      actionLogger
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService. metrics may be nil.
func NewEnrollmentService(repo enrollmentRepository, classes classReader, allocator batchAllocator, logs actionLogger, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, classes: classes, allocator: allocator, logs: logs, metrics: metrics, validator: validate, logger: logger}
}

// Submit creates one pre-enrollment row per selected class, all sharing the
// applicant payload, each with its own allocated token. The batch is
// all-or-nothing: a failure on any row leaves no rows behind. Token
// collisions with concurrent submissions are retried with backoff up to the
// allocator's bound.
func (s *EnrollmentService) Submit(ctx context.Context, ownerID string, req SubmitEnrollmentRequest) (*SubmitEnrollmentResponse, error) {
	if err := s.validator.Struct(req.Applicant); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "incomplete personal data")
	}

	classIDs := make([]string, 0, len(req.SelectedClassIDs))
	for _, id := range req.SelectedClassIDs {
		if id != "" {
			classIDs = append(classIDs, id)
		}
	}
	if len(classIDs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no class selected")
	}

	for _, classID := range classIDs {
		if _, err := s.classes.FindByID(ctx, classID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("class %s not found", classID))
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
		}
	}

	// Friendly fast path; the authoritative check runs inside the insert
	// transaction.
	pending, err := s.repo.HasPending(ctx, ownerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate submission")
	}
	if pending {
		return nil, appErrors.Clone(appErrors.ErrDuplicatePending, "you already have a pending pre-enrollment, wait for review or contact us")
	}

	template := s.buildTemplate(ownerID, req)

	for attempt := 1; attempt <= s.allocator.MaxAttempts(); attempt++ {
		tokens, err := s.allocator.AllocateBatch(ctx, len(classIDs))
		if err != nil {
			return nil, err
		}

		rows := make([]*models.PreEnrollment, len(classIDs))
		for i, classID := range classIDs {
			row := template
			row.ID = ""
			row.Token = tokens[i]
			row.ClassID = classID
			rows[i] = &row
		}

		err = s.repo.CreateBatch(ctx, ownerID, rows)
		if err == nil {
			return &SubmitEnrollmentResponse{
				Success: true,
				Token:   tokens[0],
				Tokens:  tokens,
				Count:   len(tokens),
			}, nil
		}
		if errors.Is(err, appErrors.ErrDuplicatePending) {
			return nil, appErrors.Clone(appErrors.ErrDuplicatePending, "you already have a pending pre-enrollment, wait for review or contact us")
		}
		if errors.Is(err, appErrors.ErrTokenConflict) {
			s.metrics.RecordTokenConflict()
			s.logger.Warn("token collision, retrying submission",
				zap.Int("attempt", attempt),
				zap.Strings("tokens", tokens))
			if err := s.allocator.Backoff(ctx, attempt); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "submission cancelled")
			}
			continue
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create pre-enrollment")
	}

	return nil, appErrors.ErrAllocatorExhausted
}

func (s *EnrollmentService) buildTemplate(ownerID string, req SubmitEnrollmentRequest) models.PreEnrollment {
	row := models.PreEnrollment{
		UserID:        ownerID,
		Status:        models.StatusPending,
		FullName:      req.Applicant.FullName,
		Email:         req.Applicant.Email,
		Age:           req.Applicant.Age,
		Phone:         req.Applicant.Phone,
		Whatsapp:      req.Applicant.Whatsapp,
		Instagram:     req.Applicant.Instagram,
		CurrentSchool: req.Applicant.CurrentSchool,
		CurrentGrade:  req.Applicant.CurrentGrade,
		HasTakenENEM:  req.Applicant.HasTakenENEM,
		ENEMScore:     req.Applicant.ENEMScore,
		FatherName:    orNotInformed(req.Guardians.FatherName),
		FatherPhone:   orNotInformed(req.Guardians.FatherPhone),
		MotherName:    orNotInformed(req.Guardians.MotherName),
		MotherPhone:   orNotInformed(req.Guardians.MotherPhone),
	}

	row.Objectives = normalizeObjectives(req.Applicant.Objectives)
	if level := models.WritingLevel(req.Applicant.WritingLevel); level == models.WritingBeginner ||
		level == models.WritingIntermediate || level == models.WritingAdvanced {
		row.WritingLevel = &level
	}

	if req.Plan != nil {
		if req.Plan.PlanID != "" {
			planID := req.Plan.PlanID
			row.PlanID = &planID
		}
		if method := models.PaymentMethod(req.Plan.PaymentMethod); method == models.PaymentCreditCard ||
			method == models.PaymentPix || method == models.PaymentCash {
			row.PaymentMethod = &method
		}
	}

	if req.Confirmation != nil {
		row.ConfirmationDate = req.Confirmation.Date
		if shift := models.ClassShift(req.Confirmation.Shift); shift == models.ShiftMorning ||
			shift == models.ShiftAfternoon || shift == models.ShiftNight {
			row.ConfirmationShift = &shift
		}
		if notes := strings.TrimSpace(req.Confirmation.Notes); notes != "" {
			row.ConfirmationNotes = &notes
		}
	}

	return row
}

func orNotInformed(value string) string {
	if strings.TrimSpace(value) == "" {
		return models.GuardianNotInformed
	}
	return value
}

func normalizeObjectives(raw []string) []string {
	known := map[string]models.StudyObjective{
		"ENEM":                 models.ObjectiveENEM,
		"MEDICINA":             models.ObjectiveUFGVestibular,
		"UFG_VESTIBULAR":       models.ObjectiveUFGVestibular,
		"REFORCO":              models.ObjectiveReinforcement,
		"SCHOOL_REINFORCEMENT": models.ObjectiveReinforcement,
		"CONCURSOS":            models.ObjectiveCompetitions,
		"PUBLIC_COMPETITIONS":  models.ObjectiveCompetitions,
	}
	var objectives []string
	seen := map[models.StudyObjective]bool{}
	for _, value := range raw {
		objective, ok := known[strings.ToUpper(strings.TrimSpace(value))]
		if !ok || seen[objective] {
			continue
		}
		seen[objective] = true
		objectives = append(objectives, string(objective))
	}
	return objectives
}

// Latest returns the user's newest submission together with its siblings.
func (s *EnrollmentService) Latest(ctx context.Context, userID string) (*LatestEnrollmentResponse, error) {
	enrollments, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pre-enrollments")
	}
	if len(enrollments) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "pre-enrollment not found")
	}
	return &LatestEnrollmentResponse{Primary: enrollments[0], Enrollments: enrollments}, nil
}

// List returns submissions for the staff panel.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.PreEnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pre-enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// SetStatus applies a staff review decision and records exactly one audit
// entry for the transition.
func (s *EnrollmentService) SetStatus(ctx context.Context, id string, req UpdateStatusRequest, actor *models.JWTClaims) (*models.PreEnrollment, error) {
	newStatus := models.EnrollmentStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if !models.ValidStatus(newStatus) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid status")
	}

	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "pre-enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pre-enrollment")
	}

	if !models.CanTransition(enrollment.Status, newStatus) {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("cannot change status from %s to %s", enrollment.Status, newStatus))
	}

	var notes *string
	if trimmed := strings.TrimSpace(req.InternalNotes); trimmed != "" {
		notes = &trimmed
	} else {
		notes = enrollment.InternalNotes
	}

	if err := s.repo.UpdateStatus(ctx, id, newStatus, notes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "pre-enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update status")
	}

	details := fmt.Sprintf("status changed from %s to %s", enrollment.Status, newStatus)
	if notes != nil && (enrollment.InternalNotes == nil || *notes != *enrollment.InternalNotes) {
		details += ". notes: " + *notes
	}
	var actorID *string
	if actor != nil {
		actorID = &actor.UserID
	}
	token := enrollment.Token
	if err := s.logs.Create(ctx, &models.ActionLog{
		Action:  models.ActionStatusUpdate,
		UserID:  actorID,
		Token:   &token,
		Details: details,
	}); err != nil {
		s.logger.Warn("failed to record status audit entry", zap.Error(err), zap.String("token", token))
	}

	enrollment.Status = newStatus
	enrollment.InternalNotes = notes
	return enrollment, nil
}

// UpdateBasicData applies the owner's self-service edit to one of their
// enrollments and records an audit entry.
func (s *EnrollmentService) UpdateBasicData(ctx context.Context, id, userID string, req UpdateBasicDataRequest) (*models.PreEnrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update payload")
	}

	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "pre-enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pre-enrollment")
	}
	if enrollment.UserID != userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "pre-enrollment does not belong to you")
	}

	update := models.BasicDataUpdate{
		FullName:      req.FullName,
		Email:         req.Email,
		Age:           req.Age,
		Phone:         req.Phone,
		Whatsapp:      req.Whatsapp,
		Instagram:     req.Instagram,
		CurrentSchool: req.CurrentSchool,
		CurrentGrade:  req.CurrentGrade,
	}
	if err := s.repo.UpdateBasicData(ctx, id, update); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update basic data")
	}

	token := enrollment.Token
	if err := s.logs.Create(ctx, &models.ActionLog{
		Action:  models.ActionStudentDataUpdate,
		UserID:  &userID,
		Token:   &token,
		Details: "student updated their basic data",
	}); err != nil {
		s.logger.Warn("failed to record data-update audit entry", zap.Error(err), zap.String("token", token))
	}

	updated, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload pre-enrollment")
	}
	return updated, nil
}
