package handlers

import (
	"net/http"
	"time"

	"github.com/romashka-ai/integration-hub/internal/syncer"
)

type syncRequest struct {
	IntegrationID string `json:"integrationId"`
	UserID        string `json:"userId"`
}

type syncResponse struct {
	Contacts    int       `json:"contacts"`
	Deals       int       `json:"deals"`
	TotalSynced int       `json:"total_synced"`
	LastSyncAt  time.Time `json:"last_sync_at"`
}

// SyncHandler mirrors the connection's contacts and deals into the local
// snapshot tables. A token failure fails the call; per-resource fetch
// failures do not.
func SyncHandler(worker *syncer.Worker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req syncRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.IntegrationID == "" || req.UserID == "" {
			writeInvalidRequest(w, "integrationId and userId are required")
			return
		}

		summary, err := worker.SyncAll(r.Context(), req.UserID, req.IntegrationID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, syncResponse{
			Contacts:    summary.Contacts,
			Deals:       summary.Deals,
			TotalSynced: summary.Total(),
			LastSyncAt:  summary.SyncedAt.UTC(),
		})
	}
}
