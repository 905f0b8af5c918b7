package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/pre-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/pre-enrollment-api/pkg/errors"
)

type configStore interface {
	List(ctx context.Context) ([]models.SystemConfig, error)
	Upsert(ctx context.Context, key, value string) error
}

var knownConfigKeys = map[string]struct{}{
	models.ConfigSuccessMessage:      {},
	models.ConfigWhatsappMessage:     {},
	models.ConfigSchedulingStartDate: {},
	models.ConfigSchedulingEndDate:   {},
}

// ConfigService manages the admin-editable portal settings.
type ConfigService struct {
	store  configStore
	audit  actionLogger
	logger *zap.Logger
}

// NewConfigService constructs ConfigService.
func NewConfigService(store configStore, audit actionLogger, logger *zap.Logger) *ConfigService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfigService{store: store, audit: audit, logger: logger}
}

// List returns the settings as a key/value map.
func (s *ConfigService) List(ctx context.Context) (map[string]string, error) {
	configs, err := s.store.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list settings")
	}
	out := make(map[string]string, len(configs))
	for _, cfg := range configs {
		out[cfg.Key] = cfg.Value
	}
	return out, nil
}

// Update stores one or more settings. Unknown keys are rejected so a typo
// does not silently create a dead setting.
func (s *ConfigService) Update(ctx context.Context, actorID string, values map[string]string) error {
	if len(values) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "no settings provided")
	}
	for key := range values {
		if _, ok := knownConfigKeys[key]; !ok {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown setting key %q", key))
		}
	}
	for key, value := range values {
		if err := s.store.Upsert(ctx, key, value); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store setting")
		}
	}

	if s.audit != nil {
		keys := make([]string, 0, len(values))
		for key := range values {
			keys = append(keys, key)
		}
		entry := &models.ActionLog{
			Action:  models.ActionConfigUpdate,
			UserID:  &actorID,
			Details: fmt.Sprintf("settings updated: %s", strings.Join(keys, ", ")),
		}
		if err := s.audit.Create(ctx, entry); err != nil {
			s.logger.Warn("failed to record config update audit", zap.Error(err))
		}
	}
	return nil
}
