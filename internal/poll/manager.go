// Package poll drives job status convergence: one cancellable polling
// session per active job, querying the provider at a fixed per-tool
// interval under a wall-clock deadline, and writing observed state changes
// through the job store's guarded transitions.
package poll

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"server/internal/credit"
	"server/internal/domain"
	"server/internal/provider"
)

// Update is one observed status change, fanned out to subscribers.
type Update struct {
	JobID        string           `json:"job_id"`
	Status       domain.JobStatus `json:"status"`
	ResultURI    string           `json:"result_uri,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

// Config tunes the polling loops.
type Config struct {
	RefundOnFailure bool
	RefundOnTimeout bool
	// Interval and Deadline override the per-tool defaults when non-zero
	// (used by tests; production keeps the defaults).
	Interval time.Duration
	Deadline time.Duration
}

// IntervalFor returns the status-query cadence for a tool. Video synthesis
// is slow; polling it faster than this only burns provider quota.
func IntervalFor(tool domain.Tool) time.Duration {
	switch tool {
	case domain.ToolBabyImage:
		return 3 * time.Second
	case domain.ToolBabyPodcast, domain.ToolLipSync, domain.ToolEarthZoom:
		return 10 * time.Second
	default:
		return 15 * time.Second
	}
}

// DeadlineFor returns the wall-clock budget from job creation after which
// an unresolved job is declared timed out locally. The provider may still
// finish server-side; timed_out reports liveness, not provider failure.
func DeadlineFor(tool domain.Tool) time.Duration {
	switch tool {
	case domain.ToolBabyImage:
		return 5 * time.Minute
	case domain.ToolTextToVideo, domain.ToolImageToVideo:
		return 10 * time.Minute
	default:
		return 8 * time.Minute
	}
}

type session struct {
	cancel  context.CancelFunc
	done    chan struct{}
	subs    map[int]chan Update
	nextSub int
}

// Manager owns at most one polling session per job. Attach is idempotent,
// so a resumed page or a second resolver call never spawns a duplicate
// poller.
type Manager struct {
	jobs     domain.JobRepository
	provider provider.Client
	gate     *credit.Gate
	cfg      Config
	logger   zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
}

func NewManager(jobs domain.JobRepository, prov provider.Client, gate *credit.Gate, cfg Config, logger zerolog.Logger) *Manager {
	return &Manager{
		jobs:     jobs,
		provider: prov,
		gate:     gate,
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]*session),
	}
}

// Attach starts a polling session for the job unless one already exists or
// the job is already terminal. Reports whether a new session was started.
func (m *Manager) Attach(job *domain.Job) bool {
	if job == nil || job.Status.Terminal() {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	if _, ok := m.sessions[job.ID]; ok {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		cancel: cancel,
		done:   make(chan struct{}),
		subs:   make(map[int]chan Update),
	}
	m.sessions[job.ID] = s
	go m.run(ctx, *job, s)
	return true
}

// Watching reports whether a session exists for the job.
func (m *Manager) Watching(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[jobID]
	return ok
}

// Cancel releases the session's timers without touching the store; the job
// stays active server-side and the resolver can re-attach later.
func (m *Manager) Cancel(jobID string) {
	m.mu.Lock()
	s, ok := m.sessions[jobID]
	m.mu.Unlock()
	if ok {
		s.cancel()
		<-s.done
	}
}

// Close cancels every session and waits for them to drain.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()
	for _, s := range sessions {
		s.cancel()
		<-s.done
	}
}

// Subscribe registers for updates on the job's session. The returned stop
// function detaches the subscriber; the channel closes when the session
// ends. ok is false when no session is running.
func (m *Manager) Subscribe(jobID string) (updates <-chan Update, stop func(), ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, found := m.sessions[jobID]
	if !found {
		return nil, nil, false
	}
	ch := make(chan Update, 8)
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	stop = func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if cur, still := m.sessions[jobID]; still && cur == s {
			if _, live := s.subs[id]; live {
				delete(s.subs, id)
				close(ch)
			}
		}
	}
	return ch, stop, true
}

func (m *Manager) run(ctx context.Context, job domain.Job, s *session) {
	defer close(s.done)
	defer m.remove(job.ID, s)

	interval := m.cfg.Interval
	if interval <= 0 {
		interval = IntervalFor(job.Tool)
	}
	budget := m.cfg.Deadline
	if budget <= 0 {
		budget = DeadlineFor(job.Tool)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.NewTimer(time.Until(job.CreatedAt.Add(budget)))
	defer deadline.Stop()

	status := job.Status
	for {
		select {
		case <-ctx.Done():
			// Local cancellation only: no store mutation.
			return
		case <-deadline.C:
			m.expire(&job)
			return
		case <-ticker.C:
			res, err := m.provider.Status(ctx, job.ProviderRef)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				m.logger.Warn().Err(err).Str("job_id", job.ID).Msg("status query failed, will retry")
				continue
			}
			switch res.State {
			case provider.StatePending:
				// Still queued provider-side; nothing to record.
			case provider.StateProcessing:
				if status != domain.JobStatusQueued {
					continue
				}
				err := m.jobs.Transition(context.Background(), job.ID, domain.JobStatusProcessing, domain.TransitionFields{})
				switch {
				case err == nil:
					status = domain.JobStatusProcessing
					m.publish(job.ID, Update{JobID: job.ID, Status: status})
				case errors.Is(err, domain.ErrInvalidTransition):
					// The sweeper beat us to a terminal state.
					m.logger.Warn().Str("job_id", job.ID).Msg("job resolved elsewhere, stopping poller")
					return
				default:
					m.logger.Error().Err(err).Str("job_id", job.ID).Msg("processing transition failed")
				}
			case provider.StateCompleted:
				m.resolve(&job, domain.JobStatusCompleted, domain.TransitionFields{ResultURI: res.ResultURI})
				return
			case provider.StateFailed:
				msg := res.Message
				if msg == "" {
					msg = "provider reported failure"
				}
				m.resolve(&job, domain.JobStatusFailed, domain.TransitionFields{ErrorMessage: msg})
				return
			}
		}
	}
}

// resolve lands a provider-reported terminal state.
func (m *Manager) resolve(job *domain.Job, status domain.JobStatus, fields domain.TransitionFields) {
	ctx := context.Background()
	err := m.jobs.Transition(ctx, job.ID, status, fields)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			m.logger.Warn().Str("job_id", job.ID).Str("status", string(status)).Msg("terminal transition lost race")
		} else {
			m.logger.Error().Err(err).Str("job_id", job.ID).Str("status", string(status)).Msg("terminal transition failed")
		}
		return
	}
	if status == domain.JobStatusFailed && m.cfg.RefundOnFailure {
		m.gate.Refund(ctx, job.UserID, job.Tool, job.CreditsReserved, "provider_failure")
	}
	m.logger.Info().
		Str("job_id", job.ID).
		Str("tool", string(job.Tool)).
		Str("status", string(status)).
		Msg("job resolved")
	m.publish(job.ID, Update{JobID: job.ID, Status: status, ResultURI: fields.ResultURI, ErrorMessage: fields.ErrorMessage})
}

// expire declares the job timed out locally. The guarded transition makes
// this land at most once even if a sweeper fires concurrently.
func (m *Manager) expire(job *domain.Job) {
	ctx := context.Background()
	err := m.jobs.Transition(ctx, job.ID, domain.JobStatusTimedOut, domain.TransitionFields{})
	if err != nil {
		if !errors.Is(err, domain.ErrInvalidTransition) {
			m.logger.Error().Err(err).Str("job_id", job.ID).Msg("timeout transition failed")
		}
		return
	}
	if m.cfg.RefundOnTimeout {
		m.gate.Refund(ctx, job.UserID, job.Tool, job.CreditsReserved, "timeout")
	}
	m.logger.Info().Str("job_id", job.ID).Str("tool", string(job.Tool)).Msg("job timed out")
	m.publish(job.ID, Update{JobID: job.ID, Status: domain.JobStatusTimedOut})
}

func (m *Manager) publish(jobID string, update Update) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[jobID]
	if !ok {
		return
	}
	for _, ch := range s.subs {
		select {
		case ch <- update:
		default:
			// Slow subscriber; drop rather than stall the poller.
		}
	}
}

func (m *Manager) remove(jobID string, s *session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sessions[jobID]; ok && cur == s {
		for id, ch := range s.subs {
			delete(s.subs, id)
			close(ch)
		}
		delete(m.sessions, jobID)
	}
}
