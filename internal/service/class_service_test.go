package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/pre-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/pre-enrollment-api/pkg/errors"
)

type mockClassRepo struct {
	classes map[string]models.Class
	byLevel map[models.EducationLevel][]models.ClassDetail
	deleted []string
}

func (m *mockClassRepo) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if c, ok := m.classes[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockClassRepo) ListByLevel(ctx context.Context, level models.EducationLevel) ([]models.ClassDetail, error) {
	return m.byLevel[level], nil
}

func (m *mockClassRepo) ListAll(ctx context.Context) ([]models.ClassDetail, error) {
	var all []models.ClassDetail
	for _, list := range m.byLevel {
		all = append(all, list...)
	}
	return all, nil
}

func (m *mockClassRepo) Create(ctx context.Context, class *models.Class) error {
	if m.classes == nil {
		m.classes = map[string]models.Class{}
	}
	class.ID = "class-" + class.Code
	m.classes[class.ID] = *class
	return nil
}

func (m *mockClassRepo) Update(ctx context.Context, class *models.Class) error {
	if _, ok := m.classes[class.ID]; !ok {
		return sql.ErrNoRows
	}
	m.classes[class.ID] = *class
	return nil
}

func (m *mockClassRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.classes[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.classes, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type mockSeatCounter struct {
	counts map[string]int
}

func (m *mockSeatCounter) CountSeatHolders(ctx context.Context, classID string) (int, error) {
	return m.counts[classID], nil
}

type mockSubjectReader struct{ missing bool }

func (m *mockSubjectReader) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	if m.missing {
		return nil, sql.ErrNoRows
	}
	return &models.Subject{ID: id, Name: "Redação"}, nil
}

func classRequest() ClassRequest {
	return ClassRequest{
		Code:           "RED-NOITE",
		Name:           "Redação Noturno",
		SubjectID:      "subject-red",
		EducationLevel: "HIGH_SCHOOL",
		DayOfWeek:      "TUESDAY",
		StartTime:      "19:00",
		EndTime:        "21:00",
		MaxCapacity:    30,
		Shift:          "NIGHT",
	}
}

func TestOccupancyLabelBoundaries(t *testing.T) {
	cases := []struct {
		name     string
		current  int
		max      int
		expected models.AvailabilityLabel
	}{
		{"empty class", 0, 30, models.AvailabilityOpen},
		{"just above threshold", 24, 30, models.AvailabilityOpen},
		{"at threshold", 25, 30, models.AvailabilityLow},
		{"one seat left", 29, 30, models.AvailabilityLow},
		{"full", 30, 30, models.AvailabilityFull},
		{"overbooked", 31, 30, models.AvailabilityFull},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			occ := models.Occupancy{Current: tc.current, Max: tc.max}
			assert.Equal(t, tc.expected, occ.Label())
		})
	}
}

func TestOccupancyComputedFromLiveCount(t *testing.T) {
	repo := &mockClassRepo{classes: map[string]models.Class{
		"class-1": {ID: "class-1", MaxCapacity: 30},
	}}
	seats := &mockSeatCounter{counts: map[string]int{"class-1": 12}}
	svc := NewClassService(repo, seats, &mockSubjectReader{}, nil, zap.NewNop())

	occ, err := svc.Occupancy(context.Background(), "class-1")
	require.NoError(t, err)
	assert.Equal(t, 12, occ.Current)
	assert.Equal(t, 30, occ.Max)
	assert.Equal(t, models.AvailabilityOpen, occ.Label())

	// A freed seat (rejected enrollment) shows up on the next read with no
	// counter to reconcile.
	seats.counts["class-1"] = 11
	occ, err = svc.Occupancy(context.Background(), "class-1")
	require.NoError(t, err)
	assert.Equal(t, 11, occ.Current)
}

func TestOccupancyUnknownClass(t *testing.T) {
	svc := NewClassService(&mockClassRepo{}, &mockSeatCounter{}, &mockSubjectReader{}, nil, zap.NewNop())
	_, err := svc.Occupancy(context.Background(), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestListGroupedLabelsEveryClass(t *testing.T) {
	repo := &mockClassRepo{byLevel: map[models.EducationLevel][]models.ClassDetail{
		models.LevelHighSchool: {
			{Class: models.Class{ID: "h1", MaxCapacity: 30}, Occupied: 5},
			{Class: models.Class{ID: "h2", MaxCapacity: 30}, Occupied: 30},
		},
		models.LevelMiddleSchool: {
			{Class: models.Class{ID: "m1", MaxCapacity: 20}, Occupied: 16},
		},
	}}
	svc := NewClassService(repo, &mockSeatCounter{}, &mockSubjectReader{}, nil, zap.NewNop())

	grouped, err := svc.ListGrouped(context.Background())
	require.NoError(t, err)
	require.Len(t, grouped.HighSchool, 2)
	require.Len(t, grouped.MiddleSchool, 1)
	assert.Equal(t, models.AvailabilityOpen, grouped.HighSchool[0].Availability)
	assert.Equal(t, models.AvailabilityFull, grouped.HighSchool[1].Availability)
	assert.Equal(t, models.AvailabilityLow, grouped.MiddleSchool[0].Availability)
}

func TestCreateClassRejectsUnknownSubject(t *testing.T) {
	svc := NewClassService(&mockClassRepo{}, &mockSeatCounter{}, &mockSubjectReader{missing: true}, nil, zap.NewNop())
	_, err := svc.Create(context.Background(), classRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestCreateClassRejectsInvalidPayload(t *testing.T) {
	svc := NewClassService(&mockClassRepo{}, &mockSeatCounter{}, &mockSubjectReader{}, nil, zap.NewNop())

	req := classRequest()
	req.Shift = "DAWN"
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestCreateClass(t *testing.T) {
	repo := &mockClassRepo{}
	svc := NewClassService(repo, &mockSeatCounter{}, &mockSubjectReader{}, nil, zap.NewNop())

	class, err := svc.Create(context.Background(), classRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, class.ID)
	assert.Equal(t, models.LevelHighSchool, class.EducationLevel)
	assert.Equal(t, models.ShiftNight, class.Shift)
}

func TestUpdateClassNotFound(t *testing.T) {
	svc := NewClassService(&mockClassRepo{}, &mockSeatCounter{}, &mockSubjectReader{}, nil, zap.NewNop())
	_, err := svc.Update(context.Background(), "missing", classRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestDeleteClassNotFound(t *testing.T) {
	svc := NewClassService(&mockClassRepo{}, &mockSeatCounter{}, &mockSubjectReader{}, nil, zap.NewNop())
	err := svc.Delete(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}
