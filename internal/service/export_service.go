package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/pre-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/pre-enrollment-api/pkg/errors"
	"github.com/noah-isme/pre-enrollment-api/pkg/export"
)

// Export output formats.
const (
	FormatCSV = "csv"
	FormatPDF = "pdf"
)

type exportEnrollmentSource interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.PreEnrollmentDetail, int, error)
	ListByClass(ctx context.Context, classID string) ([]models.PreEnrollmentDetail, error)
}

type exportClassSource interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

// ExportFile is a rendered download.
type ExportFile struct {
	FileName    string
	ContentType string
	Data        []byte
}

// ExportService renders enrollment listings and class rosters as CSV or PDF
// downloads for the secretary.
type ExportService struct {
	enrollments exportEnrollmentSource
	classes     exportClassSource
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	logger      *zap.Logger
}

// NewExportService constructs ExportService.
func NewExportService(enrollments exportEnrollmentSource, classes exportClassSource, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		enrollments: enrollments,
		classes:     classes,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		logger:      logger,
	}
}

// exportPageSize is the largest page the listing query serves; anything
// above it gets clamped, so exports walk the listing page by page.
const exportPageSize = 100

// Enrollments exports the filtered staff listing. The listing query is
// paginated, so the full result set is collected page by page until the
// reported total is exhausted.
func (s *ExportService) Enrollments(ctx context.Context, filter models.EnrollmentFilter, format string) (*ExportFile, error) {
	filter.Page = 1
	filter.PageSize = exportPageSize
	var rows []models.PreEnrollmentDetail
	for {
		page, total, err := s.enrollments.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments for export")
		}
		rows = append(rows, page...)
		if len(page) == 0 || len(rows) >= total {
			break
		}
		filter.Page++
	}
	dataset := enrollmentDataset(rows)
	return s.render(dataset, "pre-enrollments", "Pre-Enrollments", format)
}

// ClassRoster exports every applicant of one class.
func (s *ExportService) ClassRoster(ctx context.Context, classID, format string) (*ExportFile, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	rows, err := s.enrollments.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class roster")
	}
	dataset := enrollmentDataset(rows)
	name := fmt.Sprintf("roster-%s", strings.ToLower(class.Code))
	title := fmt.Sprintf("Class Roster %s", class.Code)
	return s.render(dataset, name, title, format)
}

func (s *ExportService) render(dataset export.Dataset, name, title, format string) (*ExportFile, error) {
	switch strings.ToLower(format) {
	case FormatCSV, "":
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportFile{FileName: name + ".csv", ContentType: "text/csv", Data: data}, nil
	case FormatPDF:
		data, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportFile{FileName: name + ".pdf", ContentType: "application/pdf", Data: data}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}

func enrollmentDataset(rows []models.PreEnrollmentDetail) export.Dataset {
	headers := []string{"Token", "Name", "Email", "Class", "Subject", "Status", "Plan", "Submitted At"}
	dataset := export.Dataset{Headers: headers}
	for _, row := range rows {
		plan := ""
		if row.PlanName != nil {
			plan = *row.PlanName
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Token":        row.Token,
			"Name":         row.FullName,
			"Email":        row.Email,
			"Class":        fmt.Sprintf("%s (%s)", row.ClassName, row.ClassCode),
			"Subject":      row.SubjectName,
			"Status":       string(row.Status),
			"Plan":         plan,
			"Submitted At": row.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	return dataset
}
