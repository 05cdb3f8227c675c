// Package handlers implements the JSON integration API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/romashka-ai/integration-hub/internal/auth/token"
	"github.com/romashka-ai/integration-hub/internal/providers"
	"github.com/romashka-ai/integration-hub/internal/webhooks"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto HTTP statuses: caller errors 400,
// missing connections 404, token problems 400 with details, provider outages
// 502, anything else 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	errType := "storage_error"

	var refreshErr *providers.RefreshError
	var apiErr *providers.APIError
	switch {
	case errors.Is(err, webhooks.ErrInvalidRequest), errors.Is(err, providers.ErrUnsupportedProvider):
		status = http.StatusBadRequest
		errType = "invalid_request"
	case errors.Is(err, token.ErrTokenNotFound):
		status = http.StatusNotFound
		errType = "not_found"
	case errors.Is(err, token.ErrRefreshTokenMissing), errors.As(err, &refreshErr):
		status = http.StatusBadRequest
		errType = "token_error"
	case errors.As(err, &apiErr):
		status = http.StatusBadGateway
		errType = "provider_unavailable"
	}

	writeJSON(w, status, errorBody{Error: errorDetail{Message: err.Error(), Type: errType}})
}

func writeInvalidRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{Message: message, Type: "invalid_request"}})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeInvalidRequest(w, "Invalid JSON body: "+err.Error())
		return false
	}
	return true
}
