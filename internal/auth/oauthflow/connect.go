// Package oauthflow implements the browser-facing OAuth connect and callback
// handlers for all providers.
package oauthflow

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/romashka-ai/integration-hub/internal/providers/catalog"
	"golang.org/x/oauth2"
)

// HandleConnect redirects the browser to the provider's consent page.
// The state parameter carries the user id so the callback can attribute the
// connection. Shopify additionally requires a shop query parameter naming
// the store domain.
func HandleConnect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider := chi.URLParam(r, "provider")
		info, ok := catalog.GetProvider(provider)
		if !ok || !info.Enabled {
			http.Error(w, fmt.Sprintf("Unknown provider: %s", provider), http.StatusNotFound)
			return
		}

		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			http.Error(w, "Missing user_id", http.StatusBadRequest)
			return
		}

		authURL := info.AuthURL
		if strings.Contains(authURL, "{shop}") {
			shop := strings.TrimSpace(r.URL.Query().Get("shop"))
			if shop == "" {
				http.Error(w, "Missing shop parameter", http.StatusBadRequest)
				return
			}
			authURL = strings.ReplaceAll(authURL, "{shop}", shop)
		}

		config := &oauth2.Config{
			ClientID:     info.ClientID,
			ClientSecret: info.ClientSecret,
			RedirectURL:  callbackURL(r, provider),
			Scopes:       info.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  authURL,
				TokenURL: info.TokenURL,
			},
		}

		opts := []oauth2.AuthCodeOption{oauth2.AccessTypeOffline}
		http.Redirect(w, r, config.AuthCodeURL(userID, opts...), http.StatusTemporaryRedirect)
	}
}

// callbackURL reconstructs this service's callback URL from the request.
func callbackURL(r *http.Request, provider string) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/auth/%s/callback", scheme, r.Host, provider)
}
