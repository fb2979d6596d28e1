// Package memrepo provides in-memory implementations of the domain
// repositories. The API falls back to them when DATABASE_URL is unset so
// the suite stays fully operational in local and CI environments; tests use
// them as behavioral doubles. Invariants match the PostgreSQL adapters:
// atomic single-flight on create, monotonic transitions, atomic credit
// reservation.
package memrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"server/internal/domain"
)

// JobStore is an in-memory domain.JobRepository.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*domain.Job)}
}

func (s *JobStore) Create(ctx context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.jobs {
		if existing.UserID == job.UserID && existing.Tool == job.Tool && existing.Active() {
			return domain.ErrActiveJobExists
		}
	}
	now := time.Now()
	stored := *job
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	stored.PayloadJSON = append([]byte(nil), job.PayloadJSON...)
	s.jobs[stored.ID] = &stored
	job.CreatedAt = stored.CreatedAt
	job.UpdatedAt = stored.UpdatedAt
	return nil
}

func (s *JobStore) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *JobStore) GetActive(ctx context.Context, userID string, tool domain.Tool) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.UserID == userID && job.Tool == tool && job.Active() {
			cp := *job
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *JobStore) SetProviderRef(ctx context.Context, jobID, providerRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	job.ProviderRef = providerRef
	job.UpdatedAt = time.Now()
	return nil
}

func (s *JobStore) Transition(ctx context.Context, jobID string, status domain.JobStatus, fields domain.TransitionFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if !domain.CanTransition(job.Status, status) {
		return domain.ErrInvalidTransition
	}
	job.Status = status
	if fields.ResultURI != "" {
		job.ResultURI = fields.ResultURI
	}
	if fields.ErrorMessage != "" {
		job.ErrorMessage = fields.ErrorMessage
	}
	job.UpdatedAt = time.Now()
	return nil
}

func (s *JobStore) Discard(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if ok && job.Status == domain.JobStatusQueued {
		delete(s.jobs, jobID)
	}
	return nil
}

func (s *JobStore) ListStale(ctx context.Context, tool domain.Tool, cutoff time.Time, limit int) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Job
	for _, job := range s.jobs {
		if job.Tool == tool && job.Active() && job.CreatedAt.Before(cutoff) {
			out = append(out, *job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Ledger is an in-memory domain.CreditLedger.
type Ledger struct {
	mu       sync.Mutex
	balances map[string]int
}

// NewLedger seeds the ledger with the given balances.
func NewLedger(balances map[string]int) *Ledger {
	seeded := make(map[string]int, len(balances))
	for userID, credits := range balances {
		seeded[userID] = credits
	}
	return &Ledger{balances: seeded}
}

// Grant sets a user's balance, creating the account when missing.
func (l *Ledger) Grant(userID string, credits int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] = credits
}

func (l *Ledger) Reserve(ctx context.Context, userID string, amount int, reason string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, ok := l.balances[userID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if balance < amount {
		return balance, domain.ErrInsufficientCredits
	}
	l.balances[userID] = balance - amount
	return balance - amount, nil
}

func (l *Ledger) Refund(ctx context.Context, userID string, amount int, reason string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, ok := l.balances[userID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	l.balances[userID] = balance + amount
	return balance + amount, nil
}

func (l *Ledger) Balance(ctx context.Context, userID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, ok := l.balances[userID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return balance, nil
}

// UsageLog is an in-memory domain.UsageRepository.
type UsageLog struct {
	mu     sync.Mutex
	events []domain.UsageEvent
}

func NewUsageLog() *UsageLog {
	return &UsageLog{}
}

func (u *UsageLog) Insert(ctx context.Context, ev *domain.UsageEvent) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	stored := *ev
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	u.events = append(u.events, stored)
	return nil
}

func (u *UsageLog) Summary(ctx context.Context, since time.Time) ([]domain.UsageSummaryRow, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	byTool := make(map[domain.Tool]*domain.UsageSummaryRow)
	for _, ev := range u.events {
		if ev.CreatedAt.Before(since) {
			continue
		}
		row, ok := byTool[ev.Tool]
		if !ok {
			row = &domain.UsageSummaryRow{Tool: ev.Tool}
			byTool[ev.Tool] = row
		}
		row.Total++
		if ev.Success {
			row.Succeeded++
		}
	}
	out := make([]domain.UsageSummaryRow, 0, len(byTool))
	for _, row := range byTool {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tool < out[j].Tool })
	return out, nil
}

var (
	_ domain.JobRepository   = (*JobStore)(nil)
	_ domain.CreditLedger    = (*Ledger)(nil)
	_ domain.UsageRepository = (*UsageLog)(nil)
)
