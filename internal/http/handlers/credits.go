package handlers

import (
	"errors"
	"net/http"

	"server/internal/credit"
	"server/internal/domain"
	"server/internal/middleware"
)

// Credits returns the caller's balance alongside the per-tool price list.
func (a *App) Credits(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing user context")
		return
	}
	balance, err := a.Ledger.Balance(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "NOT_FOUND", "account not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "INTERNAL", "failed to load balance")
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"balance": balance,
		"pricing": credit.Pricing(),
	})
}
