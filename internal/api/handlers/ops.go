package handlers

import (
	"net/http"
	"strconv"

	"github.com/romashka-ai/integration-hub/internal/monitor"
)

// OpsRequestsHandler exposes recent request logs and counters for operators.
func OpsRequestsHandler(m *monitor.Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		sinceMinutes, _ := strconv.Atoi(r.URL.Query().Get("since_minutes"))

		writeJSON(w, http.StatusOK, map[string]any{
			"stats": m.GetStats(),
			"logs":  m.GetLogs(limit, sinceMinutes),
		})
	}
}
