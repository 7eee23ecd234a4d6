package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-timetable-api/internal/models"
	"github.com/noah-isme/course-timetable-api/pkg/cache"
	appErrors "github.com/noah-isme/course-timetable-api/pkg/errors"
)

// Cache lookup results reported to metrics.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// ScheduleCache keeps read copies of schedules with their entries. It is best effort: failures
// are logged and reads fall through to the database. A nil *ScheduleCache is a disabled cache.
type ScheduleCache struct {
	repo    CacheRepository
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
}

// NewScheduleCache constructs a schedule cache.
func NewScheduleCache(repo CacheRepository, metrics *MetricsService, ttl time.Duration, logger *zap.Logger) *ScheduleCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleCache{repo: repo, metrics: metrics, ttl: ttl, logger: logger}
}

func scheduleCacheKey(id string) string {
	return cache.Key("schedules", id)
}

func (c *ScheduleCache) enabled() bool {
	return c != nil && c.repo != nil
}

// Get returns the cached schedule and whether it was found.
func (c *ScheduleCache) Get(ctx context.Context, id string) (*models.Schedule, bool) {
	if !c.enabled() {
		return nil, false
	}
	var schedule models.Schedule
	if err := c.repo.Get(ctx, scheduleCacheKey(id), &schedule); err != nil {
		if errors.Is(err, appErrors.ErrCacheMiss) {
			c.metrics.RecordCacheLookup(CacheMiss)
			return nil, false
		}
		c.metrics.RecordCacheLookup(CacheError)
		c.logger.Warn("schedule cache get failed", zap.String("schedule_id", id), zap.Error(err))
		return nil, false
	}
	c.metrics.RecordCacheLookup(CacheHit)
	return &schedule, true
}

// Put stores schedule under its id.
func (c *ScheduleCache) Put(ctx context.Context, schedule *models.Schedule) {
	if !c.enabled() || schedule == nil {
		return
	}
	if err := c.repo.Set(ctx, scheduleCacheKey(schedule.ID), schedule, c.ttl); err != nil {
		c.logger.Warn("schedule cache set failed", zap.String("schedule_id", schedule.ID), zap.Error(err))
	}
}

// Invalidate drops the cached copy of a schedule.
func (c *ScheduleCache) Invalidate(ctx context.Context, id string) {
	if !c.enabled() {
		return
	}
	if err := c.repo.Delete(ctx, scheduleCacheKey(id)); err != nil {
		c.logger.Warn("schedule cache invalidate failed", zap.String("schedule_id", id), zap.Error(err))
	}
}
