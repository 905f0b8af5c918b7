package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/pre-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/pre-enrollment-api/pkg/errors"
)

type actionLogReader interface {
	List(ctx context.Context, filter models.ActionLogFilter) ([]models.ActionLogDetail, error)
}

// ActionLogService exposes the audit trail to staff.
type ActionLogService struct {
	repo   actionLogReader
	logger *zap.Logger
}

// NewActionLogService constructs ActionLogService.
func NewActionLogService(repo actionLogReader, logger *zap.Logger) *ActionLogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActionLogService{repo: repo, logger: logger}
}

// List returns the most recent audit entries, optionally filtered by action
// kind.
func (s *ActionLogService) List(ctx context.Context, filter models.ActionLogFilter) ([]models.ActionLogDetail, error) {
	logs, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list action logs")
	}
	return logs, nil
}
