package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/infra"
)

// Options controls how the HTTP provider client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// HTTPClient implements Client against the synthesis service's task API:
// POST {base}/tasks to submit, GET {base}/tasks/{id} to poll.
type HTTPClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

type submitRequest struct {
	Tool  string          `json:"tool"`
	Input json.RawMessage `json:"input"`
}

type submitResponse struct {
	TaskID string `json:"task_id"`
}

type statusResponse struct {
	State     string `json:"state"`
	ResultURL string `json:"result_url,omitempty"`
	Error     string `json:"error,omitempty"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// NewHTTPClient constructs a provider client with sane defaults. A nil HTTP
// client gets a reusable one with a sensible timeout.
func NewHTTPClient(opts Options) (*HTTPClient, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("provider: base url is required")
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &HTTPClient{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		httpClient: client,
		logger:     logger,
	}, nil
}

// Submit forwards the payload and returns the provider task id.
func (c *HTTPClient) Submit(ctx context.Context, tool domain.Tool, payload json.RawMessage) (string, error) {
	body, err := json.Marshal(submitRequest{Tool: string(tool), Input: payload})
	if err != nil {
		return "", fmt.Errorf("provider: encode submit: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tasks", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("provider: build submit request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("provider: submit: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("provider: read submit response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// A 4xx at submission is a synchronous rejection: the provider
		// never accepted the task.
		return "", fmt.Errorf("%w: %s", domain.ErrProviderRejected, apiErrorMessage(raw, resp.StatusCode))
	default:
		return "", fmt.Errorf("provider: submit status %d: %s", resp.StatusCode, apiErrorMessage(raw, resp.StatusCode))
	}

	var out submitResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("provider: decode submit response: %w", err)
	}
	if out.TaskID == "" {
		return "", fmt.Errorf("provider: submit response missing task_id")
	}
	c.logger.Debug().Str("tool", string(tool)).Str("task_id", out.TaskID).Msg("provider task submitted")
	return out.TaskID, nil
}

// Status queries a task by its correlation token.
func (c *HTTPClient) Status(ctx context.Context, ref string) (StatusResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tasks/"+ref, nil)
	if err != nil {
		return StatusResult{}, fmt.Errorf("provider: build status request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return StatusResult{}, fmt.Errorf("provider: status: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return StatusResult{}, fmt.Errorf("provider: read status response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return StatusResult{}, fmt.Errorf("provider: status %d for task %s: %s", resp.StatusCode, ref, apiErrorMessage(raw, resp.StatusCode))
	}

	var out statusResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return StatusResult{}, fmt.Errorf("provider: decode status response: %w", err)
	}

	switch State(out.State) {
	case StatePending, StateProcessing, StateCompleted, StateFailed:
	default:
		return StatusResult{}, fmt.Errorf("provider: unknown task state %q", out.State)
	}
	return StatusResult{
		State:     State(out.State),
		ResultURI: out.ResultURL,
		Message:   out.Error,
	}, nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func apiErrorMessage(raw []byte, status int) string {
	var parsed errorResponse
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return fmt.Sprintf("http %d", status)
}

var _ Client = (*HTTPClient)(nil)
