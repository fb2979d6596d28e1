// Package cache keeps terminal job snapshots in Redis so repeated status
// polls for finished jobs skip the database. The cache is strictly
// best-effort: every method is a no-op when Redis is not configured, and
// read or write failures fall through to the repository.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"server/internal/domain"
)

const keyPrefix = "job:terminal:"

// StatusCache stores jobs that reached a terminal status.
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewStatusCache wraps the client; a nil client disables the cache.
func NewStatusCache(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *StatusCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &StatusCache{client: client, ttl: ttl, logger: logger}
}

// Enabled reports whether a Redis client is wired in.
func (c *StatusCache) Enabled() bool {
	return c != nil && c.client != nil
}

// Get returns the cached job, or nil on miss, disabled cache, or error.
func (c *StatusCache) Get(ctx context.Context, jobID string) *domain.Job {
	if !c.Enabled() {
		return nil
	}
	raw, err := c.client.Get(ctx, keyPrefix+jobID).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug().Err(err).Str("job_id", jobID).Msg("status cache read failed")
		}
		return nil
	}
	var job domain.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		c.logger.Debug().Err(err).Str("job_id", jobID).Msg("status cache entry corrupt")
		return nil
	}
	return &job
}

// Put stores a terminal job. Non-terminal jobs are ignored; their status is
// still moving and must come from the repository.
func (c *StatusCache) Put(ctx context.Context, job *domain.Job) {
	if !c.Enabled() || job == nil || !job.Status.Terminal() {
		return
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, keyPrefix+job.ID, raw, c.ttl).Err(); err != nil {
		c.logger.Debug().Err(err).Str("job_id", job.ID).Msg("status cache write failed")
	}
}
