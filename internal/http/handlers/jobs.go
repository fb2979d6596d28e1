package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"server/internal/credit"
	"server/internal/dispatch"
	"server/internal/domain"
	"server/internal/middleware"
)

type submitJobRequest struct {
	Tool    string          `json:"tool"`
	Payload json.RawMessage `json:"payload"`
	Options credit.Options  `json:"options"`
}

type jobResponse struct {
	JobID           string          `json:"job_id"`
	Tool            string          `json:"tool"`
	ToolLabel       string          `json:"tool_label"`
	Status          string          `json:"status"`
	CreditsReserved int             `json:"credits_reserved"`
	ResultURI       string          `json:"result_uri,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func toJobResponse(job *domain.Job) jobResponse {
	return jobResponse{
		JobID:           job.ID,
		Tool:            string(job.Tool),
		ToolLabel:       job.Tool.Label(),
		Status:          string(job.Status),
		CreditsReserved: job.CreditsReserved,
		ResultURI:       job.ResultURI,
		ErrorMessage:    job.ErrorMessage,
		Payload:         json.RawMessage(job.PayloadJSON),
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
	}
}

// SubmitJob validates, prices, reserves credits, and dispatches one
// generation job. Accepted jobs come back 202 with status queued.
func (a *App) SubmitJob(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing user context")
		return
	}

	var req submitJobRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, domain.MaxPayloadBytes)).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}
	tool := domain.Tool(req.Tool)
	if !tool.Valid() {
		a.error(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown tool")
		return
	}
	cost, err := credit.Cost(tool, req.Options)
	if err != nil {
		a.error(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error())
		return
	}

	start := time.Now()
	job, err := a.Dispatcher.Submit(r.Context(), userID, tool, cost, req.Payload)
	a.recordUsage(r, userID, tool, err, time.Since(start))
	if err != nil {
		a.submitError(w, err)
		return
	}
	a.json(w, http.StatusAccepted, toJobResponse(job))
}

func (a *App) submitError(w http.ResponseWriter, err error) {
	var conflict *dispatch.ConflictError
	switch {
	case errors.As(err, &conflict):
		body := map[string]any{
			"error": errorBody{Code: "ACTIVE_PROJECT_EXISTS", Message: "an active job already exists for this tool"},
		}
		if conflict.Existing != nil {
			body["existing_job"] = toJobResponse(conflict.Existing)
		}
		a.json(w, http.StatusConflict, body)
	case errors.Is(err, domain.ErrActiveJobExists):
		a.error(w, http.StatusConflict, "ACTIVE_PROJECT_EXISTS", "an active job already exists for this tool")
	case errors.Is(err, domain.ErrInvalidPayload):
		a.error(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, domain.ErrInsufficientCredits):
		a.error(w, http.StatusPaymentRequired, "INSUFFICIENT_CREDITS", "not enough credits for this generation")
	case errors.Is(err, domain.ErrProviderRejected):
		a.error(w, http.StatusBadGateway, "PROVIDER_REJECTED", "the generation provider rejected the request")
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "NOT_FOUND", "account not found")
	default:
		a.error(w, http.StatusInternalServerError, "INTERNAL", "failed to submit job")
	}
}

func (a *App) recordUsage(r *http.Request, userID string, tool domain.Tool, submitErr error, elapsed time.Duration) {
	ev := &domain.UsageEvent{
		UserID:    userID,
		Tool:      tool,
		Success:   submitErr == nil,
		ErrorCode: usageErrorCode(submitErr),
		LatencyMS: int(elapsed.Milliseconds()),
		Country:   middleware.CountryFromContext(r.Context()),
	}
	if err := a.Usage.Insert(r.Context(), ev); err != nil {
		a.Logger.Warn().Err(err).Str("tool", string(tool)).Msg("usage event insert failed")
	}
}

func usageErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrActiveJobExists):
		return "ACTIVE_PROJECT_EXISTS"
	case errors.Is(err, domain.ErrInvalidPayload):
		return "VALIDATION_ERROR"
	case errors.Is(err, domain.ErrInsufficientCredits):
		return "INSUFFICIENT_CREDITS"
	case errors.Is(err, domain.ErrProviderRejected):
		return "PROVIDER_REJECTED"
	default:
		return "INTERNAL"
	}
}

// JobStatus returns the caller's view of one job. Terminal jobs are served
// from the status cache when possible.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "VALIDATION_ERROR", "job_id required")
		return
	}

	if cached := a.Cache.Get(r.Context(), jobID); cached != nil {
		if cached.UserID != userID {
			a.error(w, http.StatusNotFound, "NOT_FOUND", "job not found")
			return
		}
		a.json(w, http.StatusOK, toJobResponse(cached))
		return
	}

	job, err := a.Jobs.GetByID(r.Context(), jobID)
	if err != nil || job.UserID != userID {
		a.error(w, http.StatusNotFound, "NOT_FOUND", "job not found")
		return
	}
	a.Cache.Put(r.Context(), job)
	a.json(w, http.StatusOK, toJobResponse(job))
}

type pendingResponse struct {
	HasPendingTask bool         `json:"has_pending_task"`
	PendingTask    *jobResponse `json:"pending_task,omitempty"`
}

// PendingJob re-attaches the caller to their active job for a tool, if any.
func (a *App) PendingJob(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing user context")
		return
	}
	tool := domain.Tool(r.URL.Query().Get("tool"))
	if !tool.Valid() {
		a.error(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown tool")
		return
	}

	job, err := a.Resolver.ResolveActive(r.Context(), userID, tool)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "INTERNAL", "failed to resolve pending job")
		return
	}
	if job == nil {
		a.json(w, http.StatusOK, pendingResponse{HasPendingTask: false})
		return
	}
	resp := toJobResponse(job)
	a.json(w, http.StatusOK, pendingResponse{HasPendingTask: true, PendingTask: &resp})
}
