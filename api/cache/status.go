package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mediaDownloader/api/database"
	"mediaDownloader/api/models"
)

const (
	statusKeyPrefix = "download:status:"
	statusTTL       = 10 * time.Minute
)

// ErrMiss is returned by Get when no snapshot is cached for the job.
var ErrMiss = database.ErrCacheMiss

// SnapshotCache holds the latest status snapshot of each job.
type SnapshotCache interface {
	Get(ctx context.Context, jobID string) (*models.StatusSnapshot, error)
	Set(ctx context.Context, snapshot *models.StatusSnapshot) error
	Delete(ctx context.Context, jobID string) error
}

type StatusCache struct {
	cache *database.Cache
}

func NewStatusCache(cache *database.Cache) *StatusCache {
	return &StatusCache{cache: cache}
}

func statusKey(jobID string) string {
	return fmt.Sprintf("%s%s", statusKeyPrefix, jobID)
}

func (sc *StatusCache) Get(ctx context.Context, jobID string) (*models.StatusSnapshot, error) {
	data, err := sc.cache.Get(ctx, statusKey(jobID))
	if err != nil {
		return nil, err
	}

	var snapshot models.StatusSnapshot
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", jobID, err)
	}

	return &snapshot, nil
}

func (sc *StatusCache) Set(ctx context.Context, snapshot *models.StatusSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}

	return sc.cache.Set(ctx, statusKey(snapshot.JobID), data, statusTTL)
}

func (sc *StatusCache) Delete(ctx context.Context, jobID string) error {
	return sc.cache.Del(ctx, statusKey(jobID))
}

// NopStatusCache is used when Redis is not configured. Every Get misses.
type NopStatusCache struct{}

func (NopStatusCache) Get(context.Context, string) (*models.StatusSnapshot, error) {
	return nil, ErrMiss
}

func (NopStatusCache) Set(context.Context, *models.StatusSnapshot) error { return nil }
func (NopStatusCache) Delete(context.Context, string) error              { return nil }
