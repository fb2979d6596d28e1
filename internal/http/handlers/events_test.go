package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"server/internal/adapter/memrepo"
	"server/internal/credit"
	"server/internal/domain"
	"server/internal/middleware"
	"server/internal/pending"
	"server/internal/poll"
	"server/internal/provider"
)

type completingProvider struct{}

func (completingProvider) Submit(ctx context.Context, tool domain.Tool, payload json.RawMessage) (string, error) {
	return "task-1", nil
}

func (completingProvider) Status(ctx context.Context, ref string) (provider.StatusResult, error) {
	return provider.StatusResult{State: provider.StateCompleted, ResultURI: "https://cdn.example.com/out.mp4"}, nil
}

func TestJobEventsStreamsTerminalUpdate(t *testing.T) {
	jobs := memrepo.NewJobStore()
	ledger := memrepo.NewLedger(map[string]int{"u1": 50})
	gate := credit.NewGate(ledger, zerolog.Nop())
	pollers := poll.NewManager(jobs, completingProvider{}, gate, poll.Config{Interval: 10 * time.Millisecond, Deadline: time.Minute}, zerolog.Nop())
	defer pollers.Close()

	app := &App{
		Resolver: pending.NewResolver(jobs, pollers, zerolog.Nop()),
		Pollers:  pollers,
		Jobs:     jobs,
		Ledger:   ledger,
		Usage:    memrepo.NewUsageLog(),
		Logger:   zerolog.Nop(),
	}

	job := &domain.Job{ID: "j1", UserID: "u1", Tool: domain.ToolEarthZoom, Status: domain.JobStatusQueued, ProviderRef: "task-1"}
	if err := jobs.Create(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	if !pollers.Attach(job) {
		t.Fatal("attach refused")
	}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(middleware.ContextWithUserID(req.Context(), "u1")))
		})
	})
	r.Get("/v1/jobs/{job_id}/events", app.JobEvents)

	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/jobs/j1/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var snapshot poll.Update
	if err := conn.ReadJSON(&snapshot); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snapshot.JobID != "j1" {
		t.Fatalf("snapshot job = %q", snapshot.JobID)
	}
	if snapshot.Status.Terminal() {
		// The poller won the race; the snapshot itself is the final state.
		if snapshot.Status != domain.JobStatusCompleted {
			t.Fatalf("terminal snapshot = %+v", snapshot)
		}
		return
	}

	// Read until the terminal update; intermediate frames are fine.
	for {
		var update poll.Update
		if err := conn.ReadJSON(&update); err != nil {
			t.Fatalf("read update: %v", err)
		}
		if update.Status.Terminal() {
			if update.Status != domain.JobStatusCompleted || update.ResultURI == "" {
				t.Fatalf("terminal update = %+v", update)
			}
			return
		}
	}
}
