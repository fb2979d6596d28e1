// Package dispatch implements the submission path: validate, reserve
// credits, take the single-flight lock, forward to the provider. The
// ordering is deliberate — reserving before the single-flight check trades
// a distributed check-then-reserve for a simple compensating refund on the
// rare conflict.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"server/internal/credit"
	"server/internal/domain"
	"server/internal/poll"
	"server/internal/provider"
)

// ConflictError reports a submission refused because a job is already in
// flight for the (user, tool) pair. It carries the existing job so callers
// can attach to it instead of retrying blindly.
type ConflictError struct {
	Existing *domain.Job
}

func (e *ConflictError) Error() string {
	if e.Existing != nil {
		return fmt.Sprintf("active job %s already in flight", e.Existing.ID)
	}
	return "active job already in flight"
}

func (e *ConflictError) Unwrap() error {
	return domain.ErrActiveJobExists
}

// Dispatcher coordinates job submission end to end.
type Dispatcher struct {
	jobs     domain.JobRepository
	gate     *credit.Gate
	provider provider.Client
	pollers  *poll.Manager
	logger   zerolog.Logger
}

func New(jobs domain.JobRepository, gate *credit.Gate, prov provider.Client, pollers *poll.Manager, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		jobs:     jobs,
		gate:     gate,
		provider: prov,
		pollers:  pollers,
		logger:   logger,
	}
}

// Submit runs the full submission protocol and returns the created job with
// its poller already attached. Error identities:
//
//	domain.ErrInvalidPayload      — structural validation failed, no side effects
//	domain.ErrInsufficientCredits — balance short, no side effects
//	*ConflictError                — single-flight conflict, reservation refunded
//	domain.ErrProviderRejected    — provider refused synchronously, refunded, no job kept
func (d *Dispatcher) Submit(ctx context.Context, userID string, tool domain.Tool, cost int, payload []byte) (*domain.Job, error) {
	if !tool.Valid() {
		return nil, fmt.Errorf("%w: unknown tool %q", domain.ErrInvalidPayload, tool)
	}
	if err := domain.ValidatePayload(tool, payload); err != nil {
		return nil, err
	}

	if _, err := d.gate.Reserve(ctx, userID, tool, cost); err != nil {
		return nil, err
	}

	job := &domain.Job{
		ID:              uuid.NewString(),
		UserID:          userID,
		Tool:            tool,
		Status:          domain.JobStatusQueued,
		PayloadJSON:     payload,
		CreditsReserved: cost,
		CreatedAt:       time.Now(),
	}
	if err := d.jobs.Create(ctx, job); err != nil {
		if errors.Is(err, domain.ErrActiveJobExists) {
			// Compensate: the reservation preceded the single-flight
			// check and must not leak on the conflict path.
			d.gate.Refund(ctx, userID, tool, cost, "duplicate_submission")
			existing, getErr := d.jobs.GetActive(ctx, userID, tool)
			if getErr != nil {
				existing = nil
			}
			return nil, &ConflictError{Existing: existing}
		}
		d.gate.Refund(ctx, userID, tool, cost, "store_failure")
		return nil, fmt.Errorf("create job: %w", err)
	}

	ref, err := d.provider.Submit(ctx, tool, payload)
	if err != nil {
		// The provider never accepted the task: refund and drop the
		// record so the lock releases immediately.
		d.gate.Refund(ctx, userID, tool, cost, "provider_rejection")
		if discardErr := d.jobs.Discard(ctx, job.ID); discardErr != nil {
			d.logger.Error().Err(discardErr).Str("job_id", job.ID).Msg("discard after provider rejection failed")
		}
		if errors.Is(err, domain.ErrProviderRejected) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderRejected, err)
	}

	if err := d.jobs.SetProviderRef(ctx, job.ID, ref); err != nil {
		// The task is already running provider-side; keep the job and
		// let the sweeper resolve it if the ref never lands.
		d.logger.Error().Err(err).Str("job_id", job.ID).Str("provider_ref", ref).Msg("persisting provider ref failed")
	}
	job.ProviderRef = ref

	d.logger.Info().
		Str("job_id", job.ID).
		Str("user_id", userID).
		Str("tool", string(tool)).
		Int("cost", cost).
		Msg("job dispatched")

	if d.pollers != nil {
		d.pollers.Attach(job)
	}
	return job, nil
}
