package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/pre-enrollment-api/internal/models"
	"github.com/noah-isme/pre-enrollment-api/pkg/config"
	appErrors "github.com/noah-isme/pre-enrollment-api/pkg/errors"
)

const statsCacheKey = "stats:dashboard"

type statsProvider interface {
	Stats(ctx context.Context, todayStart, weekStart time.Time) (*models.DashboardStats, error)
}

type cacheStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// StatsService serves the admin dashboard counters with a short Redis cache
// in front of the aggregate query.
type StatsService struct {
	repo   statsProvider
	cache  cacheStore
	logger *zap.Logger
	ttl    time.Duration
}

// NewStatsService constructs StatsService.
func NewStatsService(repo statsProvider, cache cacheStore, logger *zap.Logger, cfg config.StatsConfig) *StatsService {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsService{repo: repo, cache: cache, logger: logger, ttl: ttl}
}

// Dashboard returns the aggregated counters, and whether they came from cache.
func (s *StatsService) Dashboard(ctx context.Context) (*models.DashboardStats, bool, error) {
	if s.cache != nil {
		var cached models.DashboardStats
		err := s.cache.Get(ctx, statsCacheKey, &cached)
		if err == nil {
			return &cached, true, nil
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("stats cache read failed", zap.Error(err))
		}
	}

	now := time.Now().UTC()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	weekStart := todayStart.AddDate(0, 0, -7)

	stats, err := s.repo.Stats(ctx, todayStart, weekStart)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate stats")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, statsCacheKey, stats, s.ttl); err != nil {
			s.logger.Warn("stats cache write failed", zap.Error(err))
		}
	}
	return stats, false, nil
}

// Invalidate drops the cached counters. Called after writes that change them.
func (s *StatsService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, statsCacheKey); err != nil {
		s.logger.Warn("stats cache invalidation failed", zap.Error(err))
	}
}
