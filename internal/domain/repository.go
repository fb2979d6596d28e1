package domain

import (
	"context"
	"time"
)

// JobRepository is the durable job store. It is the enforcement point of the
// single-flight invariant (Create) and of status monotonicity (Transition).
type JobRepository interface {
	// Create inserts a new job. Returns ErrActiveJobExists when the
	// (user, tool) pair already has a job in queued/processing; the check
	// and the insert are one atomic operation.
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	// GetActive returns the job holding the single-flight lock for
	// (user, tool), or ErrNotFound when none is active.
	GetActive(ctx context.Context, userID string, tool Tool) (*Job, error)
	SetProviderRef(ctx context.Context, jobID, providerRef string) error
	// Transition moves the job into status, applying fields. Backward
	// transitions and transitions out of a terminal state return
	// ErrInvalidTransition; a terminal transition therefore lands at most
	// once even under concurrent attempts.
	Transition(ctx context.Context, jobID string, status JobStatus, fields TransitionFields) error
	// Discard removes a queued job that never materialized because the
	// provider rejected the submission synchronously. Jobs that reached
	// the provider are never deleted.
	Discard(ctx context.Context, jobID string) error
	// ListStale returns active jobs for the tool created before cutoff,
	// for the timeout sweep.
	ListStale(ctx context.Context, tool Tool, cutoff time.Time, limit int) ([]Job, error)
}

// CreditLedger is the check/decrement contract over the external credit
// balance. Reserve must be atomic with respect to concurrent reservations
// for the same user.
type CreditLedger interface {
	// Reserve decrements the balance by amount and returns the new
	// balance, or ErrInsufficientCredits without mutation.
	Reserve(ctx context.Context, userID string, amount int, reason string) (int, error)
	// Refund credits amount back and returns the new balance.
	Refund(ctx context.Context, userID string, amount int, reason string) (int, error)
	Balance(ctx context.Context, userID string) (int, error)
}

// UsageEvent records the outcome of one submit call for analytics.
type UsageEvent struct {
	ID        string
	UserID    string
	Tool      Tool
	Success   bool
	ErrorCode string
	LatencyMS int
	Country   string
	CreatedAt time.Time
}

// UsageSummaryRow aggregates submit outcomes per tool.
type UsageSummaryRow struct {
	Tool      Tool
	Total     int
	Succeeded int
}

// UsageRepository persists usage events and serves dashboard aggregates.
type UsageRepository interface {
	Insert(ctx context.Context, ev *UsageEvent) error
	Summary(ctx context.Context, since time.Time) ([]UsageSummaryRow, error)
}
