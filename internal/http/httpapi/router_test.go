package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"server/internal/adapter/memrepo"
	"server/internal/credit"
	"server/internal/domain"
	"server/internal/http/handlers"
	"server/internal/middleware"
	"server/internal/pending"
	"server/internal/poll"
	"server/internal/provider"
)

type slowProvider struct{}

func (slowProvider) Submit(ctx context.Context, tool domain.Tool, payload json.RawMessage) (string, error) {
	return "task-1", nil
}

func (slowProvider) Status(ctx context.Context, ref string) (provider.StatusResult, error) {
	return provider.StatusResult{State: provider.StateProcessing}, nil
}

func newTestRouter(t *testing.T, secret string) (http.Handler, *memrepo.JobStore, *poll.Manager) {
	t.Helper()
	jobs := memrepo.NewJobStore()
	ledger := memrepo.NewLedger(map[string]int{"u1": 50})
	gate := credit.NewGate(ledger, zerolog.Nop())
	pollers := poll.NewManager(jobs, slowProvider{}, gate, poll.Config{Interval: time.Hour, Deadline: time.Hour}, zerolog.Nop())
	t.Cleanup(pollers.Close)

	app := &handlers.App{
		Resolver: pending.NewResolver(jobs, pollers, zerolog.Nop()),
		Pollers:  pollers,
		Jobs:     jobs,
		Ledger:   ledger,
		Usage:    memrepo.NewUsageLog(),
		Logger:   zerolog.Nop(),
	}
	router := NewRouter(app, Options{
		JWTSecret:       secret,
		RateLimitPerMin: 100,
		AllowedOrigins:  []string{"*"},
		Logger:          zerolog.Nop(),
	})
	return router, jobs, pollers
}

// The events endpoint hijacks the connection through the full middleware
// chain, so this dial exercises every wrapper the production router
// installs in front of the upgrade.
func TestRouterJobEventsUpgrade(t *testing.T) {
	const secret = "test-secret"
	router, jobs, pollers := newTestRouter(t, secret)

	job := &domain.Job{ID: "j1", UserID: "u1", Tool: domain.ToolTextToVideo, Status: domain.JobStatusProcessing, ProviderRef: "task-1"}
	if err := jobs.Create(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	if !pollers.Attach(job) {
		t.Fatal("attach refused")
	}

	token, err := middleware.SignToken(secret, "u1", time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	srv := httptest.NewServer(router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/jobs/j1/events"
	header := http.Header{"Authorization": {"Bearer " + token}}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial through router failed: %v (status %d)", err, status)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var snapshot poll.Update
	if err := conn.ReadJSON(&snapshot); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snapshot.JobID != "j1" || snapshot.Status != domain.JobStatusProcessing {
		t.Fatalf("snapshot = %+v", snapshot)
	}
}

func TestRouterRejectsMissingToken(t *testing.T) {
	router, _, _ := newTestRouter(t, "test-secret")

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/j1/events", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
