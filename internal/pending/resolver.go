// Package pending re-attaches sessions to jobs that outlived them. A page
// reload or navigation loses the in-memory poller; on the next pending
// check the resolver finds the active job in the store and resumes
// tracking it, so a job in flight is never lost client-side.
package pending

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/poll"
)

// Resolver discovers active jobs on session attachment.
type Resolver struct {
	jobs    domain.JobRepository
	pollers *poll.Manager
	logger  zerolog.Logger
}

func NewResolver(jobs domain.JobRepository, pollers *poll.Manager, logger zerolog.Logger) *Resolver {
	return &Resolver{jobs: jobs, pollers: pollers, logger: logger}
}

// ResolveActive returns the job holding the (user, tool) lock, re-attaching
// a poller to it, or nil when the tool is free for a new submission.
// Calling it repeatedly is safe: attach is idempotent.
func (r *Resolver) ResolveActive(ctx context.Context, userID string, tool domain.Tool) (*domain.Job, error) {
	job, err := r.jobs.GetActive(ctx, userID, tool)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if r.pollers != nil && r.pollers.Attach(job) {
		r.logger.Info().
			Str("job_id", job.ID).
			Str("user_id", userID).
			Str("tool", string(tool)).
			Msg("re-attached poller to pending job")
	}
	return job, nil
}
