package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/pre-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/pre-enrollment-api/pkg/errors"
)

type mockExportSource struct {
	rows  []models.PreEnrollmentDetail
	pages []int
}

// List slices by page the way the real listing query does, including the
// page-size clamp, so export callers cannot rely on one oversized page.
func (m *mockExportSource) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.PreEnrollmentDetail, int, error) {
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	m.pages = append(m.pages, page)
	start := (page - 1) * size
	if start > len(m.rows) {
		start = len(m.rows)
	}
	end := start + size
	if end > len(m.rows) {
		end = len(m.rows)
	}
	return m.rows[start:end], len(m.rows), nil
}

func (m *mockExportSource) ListByClass(ctx context.Context, classID string) ([]models.PreEnrollmentDetail, error) {
	return m.rows, nil
}

func exportRow(token string) models.PreEnrollmentDetail {
	return models.PreEnrollmentDetail{
		PreEnrollment: models.PreEnrollment{
			Token:     token,
			FullName:  "Ana Silva",
			Email:     "ana@example.com",
			Status:    models.StatusPending,
			CreatedAt: time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC),
		},
		ClassCode: "RED-NOITE",
		ClassName: "Redação Noturno",
	}
}

func TestExportEnrollmentsCSV(t *testing.T) {
	source := &mockExportSource{rows: []models.PreEnrollmentDetail{exportRow("R00001"), exportRow("R00002")}}
	svc := NewExportService(source, &mockClassRepo{}, zap.NewNop())

	file, err := svc.Enrollments(context.Background(), models.EnrollmentFilter{}, "csv")
	require.NoError(t, err)
	assert.Equal(t, "pre-enrollments.csv", file.FileName)
	assert.Equal(t, "text/csv", file.ContentType)

	content := string(file.Data)
	lines := strings.Split(strings.TrimSpace(content), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "Token")
	assert.Contains(t, content, "R00001")
	assert.Contains(t, content, "Redação Noturno (RED-NOITE)")
	assert.Contains(t, content, "2026-03-10 14:30")
}

func TestExportEnrollmentsCollectsEveryPage(t *testing.T) {
	rows := make([]models.PreEnrollmentDetail, 250)
	for i := range rows {
		rows[i] = exportRow(FormatToken(i + 1))
	}
	source := &mockExportSource{rows: rows}
	svc := NewExportService(source, &mockClassRepo{}, zap.NewNop())

	file, err := svc.Enrollments(context.Background(), models.EnrollmentFilter{}, "csv")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(file.Data)), "\n")
	require.Len(t, lines, 251)
	assert.Contains(t, string(file.Data), "R00250")
	assert.Equal(t, []int{1, 2, 3}, source.pages)
}

func TestExportDefaultsToCSV(t *testing.T) {
	source := &mockExportSource{}
	svc := NewExportService(source, &mockClassRepo{}, zap.NewNop())

	file, err := svc.Enrollments(context.Background(), models.EnrollmentFilter{}, "")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", file.ContentType)
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	svc := NewExportService(&mockExportSource{}, &mockClassRepo{}, zap.NewNop())

	_, err := svc.Enrollments(context.Background(), models.EnrollmentFilter{}, "xlsx")
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestExportClassRosterPDF(t *testing.T) {
	source := &mockExportSource{rows: []models.PreEnrollmentDetail{exportRow("R00001")}}
	classes := &mockClassRepo{classes: map[string]models.Class{
		"class-1": {ID: "class-1", Code: "RED-NOITE"},
	}}
	svc := NewExportService(source, classes, zap.NewNop())

	file, err := svc.ClassRoster(context.Background(), "class-1", "pdf")
	require.NoError(t, err)
	assert.Equal(t, "roster-red-noite.pdf", file.FileName)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, strings.HasPrefix(string(file.Data), "%PDF"))
}

func TestExportClassRosterUnknownClass(t *testing.T) {
	svc := NewExportService(&mockExportSource{}, &mockClassRepo{}, zap.NewNop())

	_, err := svc.ClassRoster(context.Background(), "missing", "csv")
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}
