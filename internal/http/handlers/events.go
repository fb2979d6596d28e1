package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"server/internal/middleware"
	"server/internal/poll"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients connect cross-origin from the suite frontends; the
	// bearer token, not the Origin header, is the access control here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const writeWait = 10 * time.Second

// JobEvents streams status updates for one watched job over a websocket.
// The stream ends after the terminal update, or immediately with a final
// snapshot when the job already finished.
func (a *App) JobEvents(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "job_id")
	job, err := a.Jobs.GetByID(r.Context(), jobID)
	if err != nil || job.UserID != userID {
		a.error(w, http.StatusNotFound, "NOT_FOUND", "job not found")
		return
	}

	updates, stop, watching := a.Pollers.Subscribe(jobID)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if watching {
			stop()
		}
		return
	}
	defer conn.Close()

	write := func(u poll.Update) error {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(u)
	}

	// Current state first, so clients never render from a blank slate.
	snapshot := poll.Update{
		JobID:        job.ID,
		Status:       job.Status,
		ResultURI:    job.ResultURI,
		ErrorMessage: job.ErrorMessage,
	}
	if err := write(snapshot); err != nil {
		if watching {
			stop()
		}
		return
	}
	if !watching || job.Status.Terminal() {
		if watching {
			stop()
		}
		return
	}
	defer stop()

	// Drain client frames so close and ping control messages are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := write(update); err != nil {
				return
			}
			if update.Status.Terminal() {
				return
			}
		}
	}
}
