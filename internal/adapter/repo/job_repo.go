package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/sqlinline"
)

const uniqueViolation = "23505"

// JobRepositoryPG implements domain.JobRepository backed by PostgreSQL. The
// single-flight invariant is enforced by a partial unique index over
// (user_id, tool) restricted to active statuses, so the conflict check and
// the insert are one atomic statement.
type JobRepositoryPG struct {
	db infra.SQLExecutor
}

// NewJobRepository creates a job repository over the given executor.
func NewJobRepository(db infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{db: db}
}

// Create inserts a new job record. A partial-unique-index violation maps to
// domain.ErrActiveJobExists.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	_, err := r.db.Exec(ctx, sqlinline.QInsertJob,
		job.ID,
		job.UserID,
		job.Tool,
		job.Status,
		job.PayloadJSON,
		job.CreditsReserved,
		job.ProviderRef,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrActiveJobExists
		}
		return err
	}
	return nil
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	return scanJob(r.db.QueryRow(ctx, sqlinline.QSelectJobByID, jobID))
}

// GetActive returns the job currently holding the (user, tool) lock.
func (r *JobRepositoryPG) GetActive(ctx context.Context, userID string, tool domain.Tool) (*domain.Job, error) {
	return scanJob(r.db.QueryRow(ctx, sqlinline.QSelectActiveJob, userID, tool))
}

// SetProviderRef stores the provider correlation token after submission.
func (r *JobRepositoryPG) SetProviderRef(ctx context.Context, jobID, providerRef string) error {
	tag, err := r.db.Exec(ctx, sqlinline.QSetJobProviderRef, jobID, providerRef)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Transition moves the job forward. The guarded UPDATE only matches rows
// whose current status is a legal source for the target, so backward and
// duplicate-terminal transitions affect zero rows.
func (r *JobRepositoryPG) Transition(ctx context.Context, jobID string, status domain.JobStatus, fields domain.TransitionFields) error {
	sources := domain.TransitionSources(status)
	if len(sources) == 0 {
		return domain.ErrInvalidTransition
	}
	allowed := make([]string, len(sources))
	for i, s := range sources {
		allowed[i] = string(s)
	}
	tag, err := r.db.Exec(ctx, sqlinline.QTransitionJob,
		jobID,
		status,
		fields.ResultURI,
		fields.ErrorMessage,
		allowed,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var current string
	if err := r.db.QueryRow(ctx, sqlinline.QSelectJobStatus, jobID).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return err
	}
	return domain.ErrInvalidTransition
}

// Discard deletes a job that never reached the provider. Only queued rows
// qualify; anything further along is history and stays.
func (r *JobRepositoryPG) Discard(ctx context.Context, jobID string) error {
	_, err := r.db.Exec(ctx, sqlinline.QDiscardJob, jobID)
	return err
}

// ListStale returns active jobs for the tool created before cutoff.
func (r *JobRepositoryPG) ListStale(ctx context.Context, tool domain.Tool, cutoff time.Time, limit int) ([]domain.Job, error) {
	rows, err := r.db.Query(ctx, sqlinline.QSelectStaleJobs, tool, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJobRow(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	job, err := scanJobRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

func scanJobRow(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.Tool,
		&job.Status,
		&job.PayloadJSON,
		&job.CreditsReserved,
		&job.ResultURI,
		&job.ErrorMessage,
		&job.ProviderRef,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &job, nil
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
