package oauthflow

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/romashka-ai/integration-hub/internal/auth/token"
	"github.com/romashka-ai/integration-hub/internal/db"
	"github.com/romashka-ai/integration-hub/internal/db/models"
	"github.com/romashka-ai/integration-hub/internal/providers"
	"github.com/romashka-ai/integration-hub/internal/providers/catalog"
	"gorm.io/gorm"
)

// nonExpiringWindow stands in for "never" on tokens without an expiry
// (Shopify offline tokens).
const nonExpiringWindow = 10 * 365 * 24 * time.Hour

// sessionExpiresIn covers providers that grant a refresh token but omit
// expires_in (Salesforce).
const sessionExpiresIn = time.Hour

// HandleCallback processes the provider redirect after user consent: it
// exchanges the code, persists the token, makes sure the user has an API key
// for the protected endpoints, and hands the browser back to the dashboard.
// HubSpot connects from a popup, so its callback answers with a postMessage
// page instead of a redirect.
func HandleCallback(database *gorm.DB, store *token.Store, resolver providers.Resolver, frontendURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider := chi.URLParam(r, "provider")
		query := r.URL.Query()

		if !catalog.IsSupported(provider) {
			http.Error(w, fmt.Sprintf("Unknown provider: %s", provider), http.StatusNotFound)
			return
		}

		if errCode := query.Get("error"); errCode != "" {
			reason := errCode
			if desc := query.Get("error_description"); desc != "" {
				reason = desc
			}
			log.Printf("⚠️ OAuth callback error from %s: %s", provider, reason)
			finishFailure(w, r, provider, frontendURL, "access_denied")
			return
		}

		userID := query.Get("state")
		if userID == "" {
			finishFailure(w, r, provider, frontendURL, "missing_state")
			return
		}
		code := query.Get("code")
		if code == "" {
			finishFailure(w, r, provider, frontendURL, "missing_code")
			return
		}

		adapter, err := resolver.ForName(provider)
		if err != nil {
			finishFailure(w, r, provider, frontendURL, "unknown_provider")
			return
		}

		grant, err := adapter.ExchangeCode(r.Context(), code, callbackURL(r, provider), query)
		if err != nil {
			log.Printf("❌ Code exchange with %s failed: %v", provider, err)
			finishFailure(w, r, provider, frontendURL, "exchange_failed")
			return
		}

		if err := store.Put(&models.OAuthToken{
			UserID:       userID,
			Provider:     provider,
			AccessToken:  grant.AccessToken,
			RefreshToken: grant.RefreshToken,
			TokenType:    tokenType(grant),
			ExpiresAt:    expiryFor(grant),
			StoreID:      grant.StoreID,
			Scopes:       scopesJSON(provider),
		}); err != nil {
			log.Printf("❌ Failed to save %s token: %v", provider, err)
			finishFailure(w, r, provider, frontendURL, "storage_failed")
			return
		}

		// First connection also mints the user's API key so the protected
		// endpoints are usable right away.
		if _, err := db.EnsureAPIKey(database, userID); err != nil {
			log.Printf("⚠️ Failed to ensure API key for user %s: %v", userID, err)
		}

		log.Printf("✅ Connected %s for user %s", provider, userID)
		finishSuccess(w, r, provider, frontendURL)
	}
}

func expiryFor(grant *providers.Grant) time.Time {
	switch {
	case grant.ExpiresIn > 0:
		return time.Now().Add(time.Duration(grant.ExpiresIn) * time.Second)
	case grant.RefreshToken != "":
		return time.Now().Add(sessionExpiresIn)
	default:
		return time.Now().Add(nonExpiringWindow)
	}
}

func tokenType(grant *providers.Grant) string {
	if grant.TokenType != "" {
		return grant.TokenType
	}
	return "Bearer"
}

func scopesJSON(provider string) string {
	info, ok := catalog.GetProvider(provider)
	if !ok {
		return "[]"
	}
	data, _ := json.Marshal(info.Scopes)
	return string(data)
}

// finishSuccess completes the flow per provider: HubSpot posts a message to
// the opener popup and closes itself, everything else redirects back to the
// dashboard.
func finishSuccess(w http.ResponseWriter, r *http.Request, provider, frontendURL string) {
	if provider == catalog.ProviderHubSpot {
		writePostMessagePage(w, "HUBSPOT_OAUTH_SUCCESS", "")
		return
	}
	target := fmt.Sprintf("%s?success=connected&provider=%s", frontendURL, url.QueryEscape(provider))
	http.Redirect(w, r, target, http.StatusFound)
}

func finishFailure(w http.ResponseWriter, r *http.Request, provider, frontendURL, reason string) {
	if provider == catalog.ProviderHubSpot {
		writePostMessagePage(w, "HUBSPOT_OAUTH_ERROR", reason)
		return
	}
	target := fmt.Sprintf("%s?error=%s&provider=%s", frontendURL, url.QueryEscape(reason), url.QueryEscape(provider))
	http.Redirect(w, r, target, http.StatusFound)
}

// writePostMessagePage notifies the opener window and self-closes.
func writePostMessagePage(w http.ResponseWriter, messageType, reason string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="UTF-8">
	<title>HubSpot Connection</title>
	<style>
		body { font-family: -apple-system, BlinkMacSystemFont, sans-serif; max-width: 600px; margin: 50px auto; padding: 20px; text-align: center; }
	</style>
</head>
<body>
	<p>Completing HubSpot connection...</p>
	<script>
		if (window.opener) {
			window.opener.postMessage({ type: %q, reason: %q }, "*");
		}
		window.close();
	</script>
</body>
</html>`, messageType, reason)
}
