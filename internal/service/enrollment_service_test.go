package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/pre-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/pre-enrollment-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	rows        map[string]models.PreEnrollment
	pending     bool
	created     [][]*models.PreEnrollment
	failCreates int
	status      map[string]models.EnrollmentStatus
	basicData   map[string]models.BasicDataUpdate
}

func (m *mockEnrollmentRepo) CreateBatch(ctx context.Context, userID string, rows []*models.PreEnrollment) error {
	if m.failCreates > 0 {
		m.failCreates--
		return appErrors.ErrTokenConflict
	}
	if m.pending {
		return appErrors.ErrDuplicatePending
	}
	m.created = append(m.created, rows)
	if m.rows == nil {
		m.rows = map[string]models.PreEnrollment{}
	}
	for i, row := range rows {
		if row.ID == "" {
			row.ID = row.Token
		}
		m.rows[row.ID] = *rows[i]
	}
	return nil
}

func (m *mockEnrollmentRepo) HasPending(ctx context.Context, userID string) (bool, error) {
	return m.pending, nil
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.PreEnrollment, error) {
	if e, ok := m.rows[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.PreEnrollmentDetail, int, error) {
	var list []models.PreEnrollmentDetail
	for _, e := range m.rows {
		list = append(list, models.PreEnrollmentDetail{PreEnrollment: e})
	}
	return list, len(list), nil
}

func (m *mockEnrollmentRepo) ListByUser(ctx context.Context, userID string) ([]models.PreEnrollmentDetail, error) {
	var list []models.PreEnrollmentDetail
	for _, e := range m.rows {
		if e.UserID == userID {
			list = append(list, models.PreEnrollmentDetail{PreEnrollment: e})
		}
	}
	return list, nil
}

func (m *mockEnrollmentRepo) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, internalNotes *string) error {
	e, ok := m.rows[id]
	if !ok {
		return sql.ErrNoRows
	}
	if m.status == nil {
		m.status = map[string]models.EnrollmentStatus{}
	}
	m.status[id] = status
	e.Status = status
	e.InternalNotes = internalNotes
	m.rows[id] = e
	return nil
}

func (m *mockEnrollmentRepo) UpdateBasicData(ctx context.Context, id string, update models.BasicDataUpdate) error {
	if m.basicData == nil {
		m.basicData = map[string]models.BasicDataUpdate{}
	}
	m.basicData[id] = update
	e := m.rows[id]
	if update.FullName != nil {
		e.FullName = *update.FullName
	}
	m.rows[id] = e
	return nil
}

type mockAllocator struct {
	next        int
	maxAttempts int
	backoffs    int
}

func (m *mockAllocator) AllocateBatch(ctx context.Context, n int) ([]string, error) {
	tokens := make([]string, n)
	for i := range tokens {
		m.next++
		tokens[i] = FormatToken(m.next)
	}
	return tokens, nil
}

func (m *mockAllocator) MaxAttempts() int {
	if m.maxAttempts > 0 {
		return m.maxAttempts
	}
	return 3
}

func (m *mockAllocator) Backoff(ctx context.Context, attempt int) error {
	m.backoffs++
	return nil
}

type mockClassReader struct{ missing map[string]bool }

func (m *mockClassReader) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if m.missing[id] {
		return nil, sql.ErrNoRows
	}
	return &models.Class{ID: id, MaxCapacity: 30}, nil
}

type mockActionLogs struct {
	entries []models.ActionLog
}

func (m *mockActionLogs) Create(ctx context.Context, log *models.ActionLog) error {
	m.entries = append(m.entries, *log)
	return nil
}

func submitRequest() SubmitEnrollmentRequest {
	return SubmitEnrollmentRequest{
		Applicant: ApplicantPayload{
			FullName:   "Ana Silva",
			Email:      "ana@example.com",
			Objectives: []string{"ENEM", "MEDICINA"},
		},
		SelectedClassIDs: map[string]string{
			"redacao":    "class-red",
			"matematica": "class-mat",
		},
	}
}

func newEnrollmentService(repo *mockEnrollmentRepo, alloc *mockAllocator, logs *mockActionLogs) *EnrollmentService {
	return NewEnrollmentService(repo, &mockClassReader{}, alloc, logs, nil, validator.New(), zap.NewNop())
}

func TestSubmitCreatesOneRowPerClass(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	svc := newEnrollmentService(repo, &mockAllocator{}, &mockActionLogs{})

	resp, err := svc.Submit(context.Background(), "user-1", submitRequest())
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.Count)
	assert.Len(t, resp.Tokens, 2)
	assert.Equal(t, resp.Tokens[0], resp.Token)

	require.Len(t, repo.created, 1)
	rows := repo.created[0]
	require.Len(t, rows, 2)
	assert.NotEqual(t, rows[0].Token, rows[1].Token)
	for _, row := range rows {
		assert.Equal(t, "user-1", row.UserID)
		assert.Equal(t, models.StatusPending, row.Status)
		assert.Equal(t, "Ana Silva", row.FullName)
		assert.Regexp(t, `^R\d{5}$`, row.Token)
	}
}

func TestSubmitFillsGuardianSentinel(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	svc := newEnrollmentService(repo, &mockAllocator{}, &mockActionLogs{})

	req := submitRequest()
	req.Guardians = GuardiansPayload{FatherName: "José Silva"}
	_, err := svc.Submit(context.Background(), "user-1", req)
	require.NoError(t, err)

	row := repo.created[0][0]
	assert.Equal(t, "José Silva", row.FatherName)
	assert.Equal(t, models.GuardianNotInformed, row.FatherPhone)
	assert.Equal(t, models.GuardianNotInformed, row.MotherName)
	assert.Equal(t, models.GuardianNotInformed, row.MotherPhone)
}

func TestSubmitNormalizesObjectives(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	svc := newEnrollmentService(repo, &mockAllocator{}, &mockActionLogs{})

	req := submitRequest()
	req.Applicant.Objectives = []string{"enem", "MEDICINA", "UFG_VESTIBULAR", "bogus"}
	_, err := svc.Submit(context.Background(), "user-1", req)
	require.NoError(t, err)

	row := repo.created[0][0]
	assert.Equal(t, []string{"ENEM", "UFG_VESTIBULAR"}, []string(row.Objectives))
}

func TestSubmitRejectsEmptySelection(t *testing.T) {
	svc := newEnrollmentService(&mockEnrollmentRepo{}, &mockAllocator{}, &mockActionLogs{})

	req := submitRequest()
	req.SelectedClassIDs = map[string]string{}
	_, err := svc.Submit(context.Background(), "user-1", req)
	require.Error(t, err)
	assert.ErrorContains(t, err, "no class selected")
}

func TestSubmitRejectsUnknownClass(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	classes := &mockClassReader{missing: map[string]bool{"class-mat": true}}
	svc := NewEnrollmentService(repo, classes, &mockAllocator{}, &mockActionLogs{}, nil, validator.New(), zap.NewNop())

	_, err := svc.Submit(context.Background(), "user-1", submitRequest())
	require.Error(t, err)
	assert.ErrorContains(t, err, "not found")
	assert.Empty(t, repo.created)
}

func TestSubmitRejectsDuplicatePending(t *testing.T) {
	repo := &mockEnrollmentRepo{pending: true}
	svc := newEnrollmentService(repo, &mockAllocator{}, &mockActionLogs{})

	_, err := svc.Submit(context.Background(), "user-1", submitRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrDuplicatePending)
	assert.Empty(t, repo.created)
}

func TestSubmitRetriesOnTokenConflict(t *testing.T) {
	repo := &mockEnrollmentRepo{failCreates: 2}
	alloc := &mockAllocator{}
	metrics := NewMetricsService()
	svc := NewEnrollmentService(repo, &mockClassReader{}, alloc, &mockActionLogs{}, metrics, validator.New(), zap.NewNop())

	resp, err := svc.Submit(context.Background(), "user-1", submitRequest())
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, 2, alloc.backoffs)
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.tokenConflicts))
	// Conflicted tokens are abandoned; the surviving batch carries fresh ones.
	require.Len(t, repo.created, 1)
}

func TestSubmitGivesUpAfterMaxAttempts(t *testing.T) {
	repo := &mockEnrollmentRepo{failCreates: 99}
	alloc := &mockAllocator{maxAttempts: 3}
	svc := newEnrollmentService(repo, alloc, &mockActionLogs{})

	_, err := svc.Submit(context.Background(), "user-1", submitRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrAllocatorExhausted)
	assert.Empty(t, repo.created)
}

func TestLatestReturnsNewestWithSiblings(t *testing.T) {
	repo := &mockEnrollmentRepo{rows: map[string]models.PreEnrollment{
		"a": {ID: "a", UserID: "user-1", Token: "R00001"},
		"b": {ID: "b", UserID: "user-1", Token: "R00002"},
		"c": {ID: "c", UserID: "other", Token: "R00003"},
	}}
	svc := newEnrollmentService(repo, &mockAllocator{}, &mockActionLogs{})

	resp, err := svc.Latest(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, resp.Enrollments, 2)
}

func TestLatestNotFound(t *testing.T) {
	svc := newEnrollmentService(&mockEnrollmentRepo{}, &mockAllocator{}, &mockActionLogs{})
	_, err := svc.Latest(context.Background(), "user-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestSetStatusAllowsValidTransition(t *testing.T) {
	repo := &mockEnrollmentRepo{rows: map[string]models.PreEnrollment{
		"e1": {ID: "e1", Token: "R00001", Status: models.StatusPending},
	}}
	logs := &mockActionLogs{}
	svc := newEnrollmentService(repo, &mockAllocator{}, logs)
	actor := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}

	updated, err := svc.SetStatus(context.Background(), "e1", UpdateStatusRequest{Status: "in_analysis"}, actor)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInAnalysis, updated.Status)

	require.Len(t, logs.entries, 1)
	entry := logs.entries[0]
	assert.Equal(t, models.ActionStatusUpdate, entry.Action)
	assert.Equal(t, "admin-1", *entry.UserID)
	assert.Equal(t, "R00001", *entry.Token)
	assert.Contains(t, entry.Details, "PENDING")
	assert.Contains(t, entry.Details, "IN_ANALYSIS")
}

func TestSetStatusRejectsTerminalTransition(t *testing.T) {
	repo := &mockEnrollmentRepo{rows: map[string]models.PreEnrollment{
		"e1": {ID: "e1", Token: "R00001", Status: models.StatusRejected},
	}}
	logs := &mockActionLogs{}
	svc := newEnrollmentService(repo, &mockAllocator{}, logs)

	_, err := svc.SetStatus(context.Background(), "e1", UpdateStatusRequest{Status: "CONFIRMED"}, nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "cannot change status")
	assert.Empty(t, logs.entries)
}

func TestSetStatusRejectsUnknownStatus(t *testing.T) {
	svc := newEnrollmentService(&mockEnrollmentRepo{}, &mockAllocator{}, &mockActionLogs{})
	_, err := svc.SetStatus(context.Background(), "e1", UpdateStatusRequest{Status: "APPROVED"}, nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "invalid status")
}

func TestUpdateBasicDataEnforcesOwnership(t *testing.T) {
	repo := &mockEnrollmentRepo{rows: map[string]models.PreEnrollment{
		"e1": {ID: "e1", Token: "R00001", UserID: "owner"},
	}}
	svc := newEnrollmentService(repo, &mockAllocator{}, &mockActionLogs{})

	name := "New Name"
	_, err := svc.UpdateBasicData(context.Background(), "e1", "intruder", UpdateBasicDataRequest{FullName: &name})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestUpdateBasicDataAppliesAndAudits(t *testing.T) {
	repo := &mockEnrollmentRepo{rows: map[string]models.PreEnrollment{
		"e1": {ID: "e1", Token: "R00001", UserID: "owner", FullName: "Old"},
	}}
	logs := &mockActionLogs{}
	svc := newEnrollmentService(repo, &mockAllocator{}, logs)

	name := "New Name"
	updated, err := svc.UpdateBasicData(context.Background(), "e1", "owner", UpdateBasicDataRequest{FullName: &name})
	require.NoError(t, err)
	assert.Equal(t, "New Name", updated.FullName)
	require.Len(t, logs.entries, 1)
	assert.Equal(t, models.ActionStudentDataUpdate, logs.entries[0].Action)
}
