package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/course-timetable-api/internal/models"
	"github.com/noah-isme/course-timetable-api/pkg/cache"
)

// ProgressMirrorRepository copies job progress snapshots into Redis so any replica can answer a
// poll for a job it did not run.
type ProgressMirrorRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewProgressMirrorRepository constructs the mirror. A nil client disables it.
func NewProgressMirrorRepository(client *redis.Client, ttl time.Duration) *ProgressMirrorRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ProgressMirrorRepository{client: client, ttl: ttl}
}

func progressKey(jobKey string) string {
	return cache.Key("jobs", jobKey)
}

// Save stores the snapshot under timetable:jobs:<key>.
func (r *ProgressMirrorRepository) Save(ctx context.Context, progress models.JobProgress) error {
	if r.client == nil {
		return nil
	}
	payload, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("marshal job progress %s: %w", progress.JobKey, err)
	}
	key := progressKey(progress.JobKey)
	if err := r.client.Set(ctx, key, payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Load returns the mirrored snapshot, or nil when Redis has none.
func (r *ProgressMirrorRepository) Load(ctx context.Context, jobKey string) (*models.JobProgress, error) {
	if r.client == nil {
		return nil, nil
	}
	key := progressKey(jobKey)
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	var progress models.JobProgress
	if err := json.Unmarshal(raw, &progress); err != nil {
		return nil, fmt.Errorf("unmarshal job progress %s: %w", key, err)
	}
	return &progress, nil
}
