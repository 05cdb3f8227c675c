package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/romashka-ai/integration-hub/internal/api/middleware"
	"github.com/romashka-ai/integration-hub/internal/db/models"
	"github.com/romashka-ai/integration-hub/internal/webhooks"
)

type registerWebhookRequest struct {
	Provider      string   `json:"provider"`
	Events        []string `json:"events"`
	WebhookURL    string   `json:"webhook_url"`
	Secret        string   `json:"secret"`
	RateLimit     int      `json:"rate_limit"`
	TimeoutMs     int      `json:"timeout_ms"`
	RetryAttempts int      `json:"retry_attempts"`
	IPWhitelist   []string `json:"ip_whitelist"`
}

// webhookConfigView is the API shape of a config row. The secret is included:
// the caller owns it and needs it to verify signatures.
type webhookConfigView struct {
	ID                 string    `json:"id"`
	Provider           string    `json:"provider"`
	Events             []string  `json:"events"`
	URL                string    `json:"url"`
	Secret             string    `json:"secret"`
	RateLimit          int       `json:"rate_limit"`
	TimeoutMs          int       `json:"timeout_ms"`
	RetryAttempts      int       `json:"retry_attempts"`
	IPWhitelist        []string  `json:"ip_whitelist"`
	IsActive           bool      `json:"is_active"`
	ExternalID         string    `json:"external_id,omitempty"`
	RegistrationStatus string    `json:"registration_status"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type registerWebhookResponse struct {
	Webhook            webhookConfigView `json:"webhook"`
	RegistrationDetail string            `json:"registration_detail,omitempty"`
	RegistrationError  string            `json:"registration_error,omitempty"`
}

// RegisterWebhookHandler persists the webhook config and best-effort
// registers it with the provider. Requires bearer auth.
func RegisterWebhookHandler(registrar *webhooks.Registrar) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserID(r.Context())

		var req registerWebhookRequest
		if !decodeBody(w, r, &req) {
			return
		}

		result, err := registrar.Register(r.Context(), userID, webhooks.RegisterRequest{
			Provider:      req.Provider,
			Events:        req.Events,
			URL:           req.WebhookURL,
			Secret:        req.Secret,
			RateLimit:     req.RateLimit,
			TimeoutMs:     req.TimeoutMs,
			RetryAttempts: req.RetryAttempts,
			IPWhitelist:   req.IPWhitelist,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		resp := registerWebhookResponse{
			Webhook:           configView(result.Config),
			RegistrationError: result.RegistrationError,
		}
		if result.Registration != nil {
			resp.RegistrationDetail = result.Registration.Detail
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// WebhookStatusHandler reports per-webhook and overall health over the
// requested time window. Requires bearer auth.
func WebhookStatusHandler(aggregator *webhooks.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserID(r.Context())
		provider := r.URL.Query().Get("provider")
		timeRange := r.URL.Query().Get("time_range")

		report, err := aggregator.Status(userID, provider, timeRange)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func configView(cfg *models.WebhookConfig) webhookConfigView {
	view := webhookConfigView{
		ID:                 cfg.ID,
		Provider:           cfg.Provider,
		URL:                cfg.URL,
		Secret:             cfg.Secret,
		RateLimit:          cfg.RateLimit,
		TimeoutMs:          cfg.TimeoutMs,
		RetryAttempts:      cfg.RetryAttempts,
		IsActive:           cfg.IsActive,
		ExternalID:         cfg.ExternalID,
		RegistrationStatus: cfg.RegistrationStatus,
		CreatedAt:          cfg.CreatedAt,
		UpdatedAt:          cfg.UpdatedAt,
	}
	if cfg.Events != "" {
		_ = json.Unmarshal([]byte(cfg.Events), &view.Events)
	}
	if cfg.IPWhitelist != "" {
		_ = json.Unmarshal([]byte(cfg.IPWhitelist), &view.IPWhitelist)
	}
	return view
}
