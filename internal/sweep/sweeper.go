// Package sweep force-resolves jobs whose deadline elapsed without a
// terminal state. In-process pollers already enforce the deadline for jobs
// they watch; the sweep covers jobs orphaned by an API restart, where no
// poller survived to fire the timeout.
package sweep

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"server/internal/credit"
	"server/internal/domain"
	"server/internal/poll"
)

// Config tunes the sweep.
type Config struct {
	Batch           int
	RefundOnTimeout bool
	// DeadlineFor overrides the per-tool deadlines when set (tests).
	DeadlineFor func(domain.Tool) time.Duration
}

// Sweeper scans for stale active jobs and times them out.
type Sweeper struct {
	jobs   domain.JobRepository
	gate   *credit.Gate
	cfg    Config
	logger zerolog.Logger
}

func New(jobs domain.JobRepository, gate *credit.Gate, cfg Config, logger zerolog.Logger) *Sweeper {
	if cfg.Batch <= 0 {
		cfg.Batch = 100
	}
	if cfg.DeadlineFor == nil {
		cfg.DeadlineFor = poll.DeadlineFor
	}
	return &Sweeper{jobs: jobs, gate: gate, cfg: cfg, logger: logger}
}

// Run sweeps on the given cadence until the context ends.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := s.Sweep(ctx); n > 0 {
				s.logger.Info().Int("expired", n).Msg("sweep pass complete")
			}
		}
	}
}

// Sweep runs one pass over every tool and returns how many jobs it expired.
func (s *Sweeper) Sweep(ctx context.Context) int {
	expired := 0
	for _, tool := range domain.Tools {
		cutoff := time.Now().Add(-s.cfg.DeadlineFor(tool))
		stale, err := s.jobs.ListStale(ctx, tool, cutoff, s.cfg.Batch)
		if err != nil {
			s.logger.Error().Err(err).Str("tool", string(tool)).Msg("listing stale jobs failed")
			continue
		}
		for i := range stale {
			if s.expire(ctx, &stale[i]) {
				expired++
			}
		}
	}
	return expired
}

func (s *Sweeper) expire(ctx context.Context, job *domain.Job) bool {
	err := s.jobs.Transition(ctx, job.ID, domain.JobStatusTimedOut, domain.TransitionFields{})
	if err != nil {
		// A live poller may have resolved the job between the scan and
		// the transition; that race is benign.
		if !errors.Is(err, domain.ErrInvalidTransition) {
			s.logger.Error().Err(err).Str("job_id", job.ID).Msg("timeout transition failed")
		}
		return false
	}
	if s.cfg.RefundOnTimeout {
		s.gate.Refund(ctx, job.UserID, job.Tool, job.CreditsReserved, "timeout")
	}
	s.logger.Info().
		Str("job_id", job.ID).
		Str("tool", string(job.Tool)).
		Time("created_at", job.CreatedAt).
		Msg("stale job timed out")
	return true
}
