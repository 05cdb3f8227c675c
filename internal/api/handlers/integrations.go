package handlers

import (
	"net/http"
	"time"

	"github.com/romashka-ai/integration-hub/internal/api/middleware"
	"github.com/romashka-ai/integration-hub/internal/db/models"
	"gorm.io/gorm"
)

type integrationView struct {
	Provider    string    `json:"provider"`
	StoreID     string    `json:"store_id,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
	ConnectedAt time.Time `json:"connected_at"`
}

// ListIntegrationsHandler returns the authenticated user's connected
// providers for the dashboard. The user comes from the bearer credential,
// never from the request, so one tenant cannot enumerate another's
// connections. Token values themselves are never exposed.
func ListIntegrationsHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserID(r.Context())
		if userID == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: errorDetail{
				Message: "Invalid API key",
				Type:    "unauthorized",
			}})
			return
		}

		var tokens []models.OAuthToken
		if err := database.Where("user_id = ?", userID).Order("provider").Find(&tokens).Error; err != nil {
			writeError(w, err)
			return
		}

		views := make([]integrationView, 0, len(tokens))
		for _, tok := range tokens {
			views = append(views, integrationView{
				Provider:    tok.Provider,
				StoreID:     tok.StoreID,
				ExpiresAt:   tok.ExpiresAt.UTC(),
				ConnectedAt: tok.CreatedAt.UTC(),
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"integrations": views})
	}
}
