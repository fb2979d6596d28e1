package handlers

import (
	"net/http"
	"strconv"
	"time"
)

// MetricsSummary aggregates submit outcomes per tool over a trailing
// window (?hours=, default 24, max 720).
func (a *App) MetricsSummary(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 720 {
			a.error(w, http.StatusBadRequest, "VALIDATION_ERROR", "hours must be between 1 and 720")
			return
		}
		hours = parsed
	}
	since := time.Now().Add(-time.Duration(hours) * time.Hour)

	rows, err := a.Usage.Summary(r.Context(), since)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "INTERNAL", "failed to load usage summary")
		return
	}

	tools := make([]map[string]any, 0, len(rows))
	var total, succeeded int
	for _, row := range rows {
		tools = append(tools, map[string]any{
			"tool":      row.Tool,
			"total":     row.Total,
			"succeeded": row.Succeeded,
			"failed":    row.Total - row.Succeeded,
		})
		total += row.Total
		succeeded += row.Succeeded
	}
	a.json(w, http.StatusOK, map[string]any{
		"window_hours": hours,
		"total":        total,
		"succeeded":    succeeded,
		"tools":        tools,
	})
}
