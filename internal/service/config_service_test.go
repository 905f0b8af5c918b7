package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/pre-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/pre-enrollment-api/pkg/errors"
)

type mockConfigStore struct {
	values map[string]string
}

func (m *mockConfigStore) List(ctx context.Context) ([]models.SystemConfig, error) {
	var out []models.SystemConfig
	for k, v := range m.values {
		out = append(out, models.SystemConfig{Key: k, Value: v})
	}
	return out, nil
}

func (m *mockConfigStore) Upsert(ctx context.Context, key, value string) error {
	if m.values == nil {
		m.values = map[string]string{}
	}
	m.values[key] = value
	return nil
}

func TestConfigUpdateStoresAndAudits(t *testing.T) {
	store := &mockConfigStore{}
	logs := &mockActionLogs{}
	svc := NewConfigService(store, logs, zap.NewNop())

	err := svc.Update(context.Background(), "admin-1", map[string]string{
		models.ConfigSuccessMessage: "See you at the confirmation!",
	})
	require.NoError(t, err)
	assert.Equal(t, "See you at the confirmation!", store.values[models.ConfigSuccessMessage])

	require.Len(t, logs.entries, 1)
	assert.Equal(t, models.ActionConfigUpdate, logs.entries[0].Action)
	assert.Contains(t, logs.entries[0].Details, models.ConfigSuccessMessage)
}

func TestConfigUpdateRejectsUnknownKey(t *testing.T) {
	store := &mockConfigStore{}
	svc := NewConfigService(store, &mockActionLogs{}, zap.NewNop())

	err := svc.Update(context.Background(), "admin-1", map[string]string{"banner_color": "red"})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.ErrorContains(t, err, "banner_color")
	assert.Empty(t, store.values)
}

func TestConfigUpdateRejectsEmptyPayload(t *testing.T) {
	svc := NewConfigService(&mockConfigStore{}, nil, zap.NewNop())
	err := svc.Update(context.Background(), "admin-1", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestConfigList(t *testing.T) {
	store := &mockConfigStore{values: map[string]string{
		models.ConfigWhatsappMessage: "Hi! I just pre-enrolled.",
	}}
	svc := NewConfigService(store, nil, zap.NewNop())

	values, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Hi! I just pre-enrolled.", values[models.ConfigWhatsappMessage])
}
