package sweep

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"server/internal/adapter/memrepo"
	"server/internal/credit"
	"server/internal/domain"
)

func seedJob(t *testing.T, jobs *memrepo.JobStore, id, userID string, tool domain.Tool, status domain.JobStatus, age time.Duration) {
	t.Helper()
	job := &domain.Job{
		ID:              id,
		UserID:          userID,
		Tool:            tool,
		Status:          domain.JobStatusQueued,
		CreditsReserved: 5,
		CreatedAt:       time.Now().Add(-age),
	}
	if err := jobs.Create(context.Background(), job); err != nil {
		t.Fatalf("seed job %s: %v", id, err)
	}
	if status != domain.JobStatusQueued {
		if err := jobs.Transition(context.Background(), id, status, domain.TransitionFields{}); err != nil {
			t.Fatalf("seed transition %s: %v", id, err)
		}
	}
}

func TestSweepExpiresStaleJobs(t *testing.T) {
	jobs := memrepo.NewJobStore()
	ledger := memrepo.NewLedger(map[string]int{"u1": 0, "u2": 0})
	gate := credit.NewGate(ledger, zerolog.Nop())

	seedJob(t, jobs, "stale-queued", "u1", domain.ToolTextToVideo, domain.JobStatusQueued, time.Hour)
	seedJob(t, jobs, "stale-processing", "u2", domain.ToolBabyImage, domain.JobStatusProcessing, time.Hour)
	seedJob(t, jobs, "fresh", "u1", domain.ToolBabyImage, domain.JobStatusQueued, time.Second)

	s := New(jobs, gate, Config{Batch: 10}, zerolog.Nop())
	if got := s.Sweep(context.Background()); got != 2 {
		t.Fatalf("expired = %d, want 2", got)
	}

	for _, id := range []string{"stale-queued", "stale-processing"} {
		job, err := jobs.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if job.Status != domain.JobStatusTimedOut {
			t.Fatalf("%s status = %s, want timed_out", id, job.Status)
		}
	}
	fresh, err := jobs.GetByID(context.Background(), "fresh")
	if err != nil {
		t.Fatalf("get fresh: %v", err)
	}
	if fresh.Status != domain.JobStatusQueued {
		t.Fatalf("fresh status = %s, want queued", fresh.Status)
	}

	// Timeouts do not refund by default.
	if balance, _ := ledger.Balance(context.Background(), "u1"); balance != 0 {
		t.Fatalf("u1 balance = %d, want 0", balance)
	}

	// Second pass is a no-op.
	if got := s.Sweep(context.Background()); got != 0 {
		t.Fatalf("second sweep expired = %d, want 0", got)
	}
}

func TestSweepRefundsWhenConfigured(t *testing.T) {
	jobs := memrepo.NewJobStore()
	ledger := memrepo.NewLedger(map[string]int{"u1": 0})
	gate := credit.NewGate(ledger, zerolog.Nop())

	seedJob(t, jobs, "stale", "u1", domain.ToolLipSync, domain.JobStatusProcessing, time.Hour)

	s := New(jobs, gate, Config{Batch: 10, RefundOnTimeout: true}, zerolog.Nop())
	if got := s.Sweep(context.Background()); got != 1 {
		t.Fatalf("expired = %d, want 1", got)
	}
	if balance, _ := ledger.Balance(context.Background(), "u1"); balance != 5 {
		t.Fatalf("balance = %d, want 5", balance)
	}
}

func TestSweepHonorsPerToolDeadline(t *testing.T) {
	jobs := memrepo.NewJobStore()
	ledger := memrepo.NewLedger(map[string]int{"u1": 0, "u2": 0})
	gate := credit.NewGate(ledger, zerolog.Nop())

	// Both jobs are 7 minutes old; only the tool with the 5 minute
	// deadline is past its cutoff.
	seedJob(t, jobs, "image", "u1", domain.ToolBabyImage, domain.JobStatusProcessing, 7*time.Minute)
	seedJob(t, jobs, "video", "u2", domain.ToolTextToVideo, domain.JobStatusProcessing, 7*time.Minute)

	deadlines := func(tool domain.Tool) time.Duration {
		if tool == domain.ToolBabyImage {
			return 5 * time.Minute
		}
		return 10 * time.Minute
	}
	s := New(jobs, gate, Config{Batch: 10, DeadlineFor: deadlines}, zerolog.Nop())
	if got := s.Sweep(context.Background()); got != 1 {
		t.Fatalf("expired = %d, want 1", got)
	}

	image, _ := jobs.GetByID(context.Background(), "image")
	if image.Status != domain.JobStatusTimedOut {
		t.Fatalf("image status = %s, want timed_out", image.Status)
	}
	video, _ := jobs.GetByID(context.Background(), "video")
	if video.Status != domain.JobStatusProcessing {
		t.Fatalf("video status = %s, want processing", video.Status)
	}
}
