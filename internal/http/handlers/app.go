// Package handlers implements the HTTP surface of the generation suite.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"server/internal/cache"
	"server/internal/dispatch"
	"server/internal/domain"
	"server/internal/pending"
	"server/internal/poll"
)

// App bundles the services the handlers depend on.
type App struct {
	Dispatcher *dispatch.Dispatcher
	Resolver   *pending.Resolver
	Pollers    *poll.Manager
	Jobs       domain.JobRepository
	Ledger     domain.CreditLedger
	Usage      domain.UsageRepository
	Cache      *cache.StatusCache
	Logger     zerolog.Logger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]errorBody{"error": {Code: code, Message: message}})
}
