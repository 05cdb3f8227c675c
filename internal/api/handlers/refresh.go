package handlers

import (
	"net/http"

	"github.com/romashka-ai/integration-hub/internal/auth/token"
)

type refreshRequest struct {
	IntegrationID string `json:"integrationId"`
	UserID        string `json:"userId"`
}

type refreshResponse struct {
	AccessToken string `json:"accessToken"`
	Refreshed   bool   `json:"refreshed"`
}

// RefreshTokenHandler ensures a connection's token is valid, refreshing it
// when it is inside the buffer window.
func RefreshTokenHandler(refresher *token.Refresher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.IntegrationID == "" || req.UserID == "" {
			writeInvalidRequest(w, "integrationId and userId are required")
			return
		}

		res, err := refresher.EnsureValid(r.Context(), req.UserID, req.IntegrationID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, refreshResponse{
			AccessToken: res.AccessToken,
			Refreshed:   res.Refreshed,
		})
	}
}
