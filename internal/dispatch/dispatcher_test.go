package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"server/internal/adapter/memrepo"
	"server/internal/credit"
	"server/internal/domain"
	"server/internal/provider"
)

type fakeProvider struct {
	mu      sync.Mutex
	submits int
	err     error
}

func (p *fakeProvider) Submit(ctx context.Context, tool domain.Tool, payload json.RawMessage) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submits++
	if p.err != nil {
		return "", p.err
	}
	return fmt.Sprintf("task-%d", p.submits), nil
}

func (p *fakeProvider) Status(ctx context.Context, ref string) (provider.StatusResult, error) {
	return provider.StatusResult{State: provider.StateProcessing}, nil
}

func (p *fakeProvider) submitCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.submits
}

const validPayload = `{"prompt":"a calm ocean at sunset"}`

func newDispatcher(store *memrepo.JobStore, ledger *memrepo.Ledger, prov provider.Client) *Dispatcher {
	gate := credit.NewGate(ledger, zerolog.Nop())
	return New(store, gate, prov, nil, zerolog.Nop())
}

func TestSubmitSuccess(t *testing.T) {
	ctx := context.Background()
	store := memrepo.NewJobStore()
	ledger := memrepo.NewLedger(map[string]int{"user-1": 5})
	d := newDispatcher(store, ledger, &fakeProvider{})

	job, err := d.Submit(ctx, "user-1", domain.ToolTextToVideo, 3, []byte(validPayload))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if job.Status != domain.JobStatusQueued {
		t.Fatalf("status = %s, want queued", job.Status)
	}
	if job.ProviderRef == "" {
		t.Fatal("provider ref not set")
	}
	if job.CreditsReserved != 3 {
		t.Fatalf("credits reserved = %d", job.CreditsReserved)
	}
	if balance, _ := ledger.Balance(ctx, "user-1"); balance != 2 {
		t.Fatalf("balance = %d, want 2", balance)
	}
	stored, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("job not persisted: %v", err)
	}
	if stored.ProviderRef != job.ProviderRef {
		t.Fatalf("stored ref = %q, want %q", stored.ProviderRef, job.ProviderRef)
	}
}

func TestSubmitInsufficientCredits(t *testing.T) {
	ctx := context.Background()
	store := memrepo.NewJobStore()
	ledger := memrepo.NewLedger(map[string]int{"user-1": 0})
	prov := &fakeProvider{}
	d := newDispatcher(store, ledger, prov)

	_, err := d.Submit(ctx, "user-1", domain.ToolTextToVideo, 1, []byte(validPayload))
	if !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	if prov.submitCount() != 0 {
		t.Fatal("provider must not be contacted without credits")
	}
	if _, err := store.GetActive(ctx, "user-1", domain.ToolTextToVideo); !errors.Is(err, domain.ErrNotFound) {
		t.Fatal("no job record should exist")
	}
}

func TestSubmitConflictRefunds(t *testing.T) {
	ctx := context.Background()
	store := memrepo.NewJobStore()
	ledger := memrepo.NewLedger(map[string]int{"user-1": 10})
	d := newDispatcher(store, ledger, &fakeProvider{})

	first, err := d.Submit(ctx, "user-1", domain.ToolTextToVideo, 3, []byte(validPayload))
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}

	_, err = d.Submit(ctx, "user-1", domain.ToolTextToVideo, 3, []byte(validPayload))
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if !errors.Is(err, domain.ErrActiveJobExists) {
		t.Fatal("ConflictError must unwrap to ErrActiveJobExists")
	}
	if conflict.Existing == nil || conflict.Existing.ID != first.ID {
		t.Fatalf("conflict should carry existing job %s", first.ID)
	}
	// Balance returns to the post-first-submit level (credit conservation).
	if balance, _ := ledger.Balance(ctx, "user-1"); balance != 7 {
		t.Fatalf("balance = %d, want 7", balance)
	}

	// A different tool is an independent lock.
	if _, err := d.Submit(ctx, "user-1", domain.ToolBabyImage, 1, []byte(`{"father_image_url":"https://x/d.png","mother_image_url":"https://x/m.png"}`)); err != nil {
		t.Fatalf("other tool should be accepted: %v", err)
	}
}

func TestSubmitProviderRejectionRefundsAndDiscards(t *testing.T) {
	ctx := context.Background()
	store := memrepo.NewJobStore()
	ledger := memrepo.NewLedger(map[string]int{"user-1": 5})
	prov := &fakeProvider{err: fmt.Errorf("%w: unsupported input", domain.ErrProviderRejected)}
	d := newDispatcher(store, ledger, prov)

	_, err := d.Submit(ctx, "user-1", domain.ToolTextToVideo, 3, []byte(validPayload))
	if !errors.Is(err, domain.ErrProviderRejected) {
		t.Fatalf("expected ErrProviderRejected, got %v", err)
	}
	if balance, _ := ledger.Balance(ctx, "user-1"); balance != 5 {
		t.Fatalf("balance = %d, want 5 (refunded)", balance)
	}
	// The lock is free again: a corrected submit succeeds.
	prov.err = nil
	if _, err := d.Submit(ctx, "user-1", domain.ToolTextToVideo, 3, []byte(validPayload)); err != nil {
		t.Fatalf("resubmit after rejection: %v", err)
	}
}

func TestSubmitValidationRejectsBeforeSideEffects(t *testing.T) {
	ctx := context.Background()
	store := memrepo.NewJobStore()
	ledger := memrepo.NewLedger(map[string]int{"user-1": 5})
	prov := &fakeProvider{}
	d := newDispatcher(store, ledger, prov)

	_, err := d.Submit(ctx, "user-1", domain.ToolTextToVideo, 3, []byte(`{"prompt":""}`))
	if !errors.Is(err, domain.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
	if balance, _ := ledger.Balance(ctx, "user-1"); balance != 5 {
		t.Fatalf("balance = %d, want 5", balance)
	}
	if prov.submitCount() != 0 {
		t.Fatal("provider must not be contacted for invalid payloads")
	}
}

func TestSubmitSingleFlightUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	store := memrepo.NewJobStore()
	ledger := memrepo.NewLedger(map[string]int{"user-1": 100})
	d := newDispatcher(store, ledger, &fakeProvider{})

	const attempts = 10
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Submit(ctx, "user-1", domain.ToolLipSync, 3, []byte(`{"video_url":"https://x/v.mp4","audio_url":"https://x/a.mp3"}`))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var created, conflicts int
	for err := range results {
		switch {
		case err == nil:
			created++
		case errors.Is(err, domain.ErrActiveJobExists):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if created != 1 {
		t.Fatalf("created = %d, want exactly 1 (single-flight)", created)
	}
	if conflicts != attempts-1 {
		t.Fatalf("conflicts = %d, want %d", conflicts, attempts-1)
	}
	// All refunds landed: only one reservation survives.
	if balance, _ := ledger.Balance(ctx, "user-1"); balance != 97 {
		t.Fatalf("balance = %d, want 97", balance)
	}
}
