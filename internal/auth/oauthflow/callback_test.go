package oauthflow

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-chi/chi/v5"
	"github.com/romashka-ai/integration-hub/internal/auth/token"
	"github.com/romashka-ai/integration-hub/internal/db/models"
	"github.com/romashka-ai/integration-hub/internal/providers/catalog"
	"github.com/romashka-ai/integration-hub/internal/providers/hubspot"
	"github.com/romashka-ai/integration-hub/internal/providers/registry"
	"github.com/romashka-ai/integration-hub/internal/providers/shopify"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testFrontendURL = "http://dashboard.test"

func newFlowTestDB(t *testing.T) (*gorm.DB, *token.Store) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := database.AutoMigrate(&models.OAuthToken{}, &models.APIKey{}); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return database, token.NewStore(database)
}

// newHubSpotProviderServer serves the token exchange and the hub id lookup.
func newHubSpotProviderServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("Failed to parse token form: %v", err)
		}
		if got := r.FormValue("grant_type"); got != "authorization_code" {
			t.Errorf("Expected authorization_code grant, got %q", got)
		}
		if got := r.FormValue("code"); got != "auth-code-1" {
			t.Errorf("Unexpected code %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "hs-access",
			"refresh_token": "hs-refresh",
			"token_type":    "bearer",
			"expires_in":    1800,
		})
	})
	mux.HandleFunc("/oauth/v1/access-tokens/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"hub_id": 424242})
	})
	return httptest.NewServer(mux)
}

func newFlowRouter(database *gorm.DB, store *token.Store, reg *registry.Registry) http.Handler {
	r := chi.NewRouter()
	r.Get("/auth/{provider}/callback", HandleCallback(database, store, reg, testFrontendURL))
	return r
}

func TestCallbackHubSpotSuccess(t *testing.T) {
	database, store := newFlowTestDB(t)
	srv := newHubSpotProviderServer(t)
	defer srv.Close()

	info, _ := catalog.GetProvider(catalog.ProviderHubSpot)
	info.TokenURL = srv.URL + "/oauth/v1/token"
	info.APIBaseURL = srv.URL
	router := newFlowRouter(database, store, registry.NewWith(hubspot.New(info, srv.Client())))

	req := httptest.NewRequest("GET", "/auth/hubspot/callback?code=auth-code-1&state=user-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "HUBSPOT_OAUTH_SUCCESS") {
		t.Error("Expected postMessage success page")
	}

	tok, err := store.Get("user-1", "hubspot")
	if err != nil {
		t.Fatalf("Expected stored token: %v", err)
	}
	if tok.AccessToken != "hs-access" || tok.RefreshToken != "hs-refresh" {
		t.Errorf("Unexpected stored credentials: %+v", tok)
	}
	if tok.StoreID != "424242" {
		t.Errorf("Expected hub id 424242, got %q", tok.StoreID)
	}
	wantExpiry := time.Now().Add(1800 * time.Second)
	if tok.ExpiresAt.Before(wantExpiry.Add(-time.Minute)) || tok.ExpiresAt.After(wantExpiry.Add(time.Minute)) {
		t.Errorf("Expiry should track expires_in, got %v", tok.ExpiresAt)
	}

	// Connecting mints the user's API key for the protected endpoints.
	var key models.APIKey
	if err := database.Where("user_id = ?", "user-1").First(&key).Error; err != nil {
		t.Fatalf("Expected API key minted on connect: %v", err)
	}
	if !strings.HasPrefix(key.Key, "rk-") {
		t.Errorf("Unexpected API key format: %q", key.Key)
	}
}

func TestCallbackShopifySuccessRedirect(t *testing.T) {
	database, store := newFlowTestDB(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/admin/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("Failed to decode exchange payload: %v", err)
		}
		if payload["code"] != "shop-code-1" {
			t.Errorf("Unexpected code %q", payload["code"])
		}
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "shpat-token",
			"scope":        "read_customers,read_orders",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	info, _ := catalog.GetProvider(catalog.ProviderShopify)
	info.TokenURL = srv.URL + "/admin/oauth/access_token"
	router := newFlowRouter(database, store, registry.NewWith(shopify.New(info, srv.Client())))

	target := "/auth/shopify/callback?code=shop-code-1&state=user-1&shop=teashop.myshopify.com"
	req := httptest.NewRequest("GET", target, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("Expected 302, got %d: %s", rec.Code, rec.Body.String())
	}
	location := rec.Header().Get("Location")
	if location != testFrontendURL+"?success=connected&provider=shopify" {
		t.Errorf("Unexpected redirect target %q", location)
	}

	tok, err := store.Get("user-1", "shopify")
	if err != nil {
		t.Fatalf("Expected stored token: %v", err)
	}
	if tok.AccessToken != "shpat-token" {
		t.Errorf("Unexpected access token %q", tok.AccessToken)
	}
	if tok.StoreID != "teashop.myshopify.com" {
		t.Errorf("Expected shop domain as store id, got %q", tok.StoreID)
	}

	var key models.APIKey
	if err := database.Where("user_id = ?", "user-1").First(&key).Error; err != nil {
		t.Fatalf("Expected API key minted on connect: %v", err)
	}
}

func TestCallbackHubSpotConsentDenied(t *testing.T) {
	database, store := newFlowTestDB(t)
	router := newFlowRouter(database, store, registry.NewWith())

	req := httptest.NewRequest("GET", "/auth/hubspot/callback?error=access_denied&state=user-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 popup page, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "HUBSPOT_OAUTH_ERROR") {
		t.Error("Expected postMessage error page")
	}
	if _, err := store.Get("user-1", "hubspot"); err != token.ErrTokenNotFound {
		t.Errorf("Expected no stored token, got err=%v", err)
	}
}

func TestCallbackRedirectsFailureToDashboard(t *testing.T) {
	database, store := newFlowTestDB(t)
	router := newFlowRouter(database, store, registry.NewWith())

	req := httptest.NewRequest("GET", "/auth/shopify/callback?state=user-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("Expected 302, got %d", rec.Code)
	}
	location := rec.Header().Get("Location")
	if !strings.HasPrefix(location, testFrontendURL) {
		t.Errorf("Expected redirect to dashboard, got %q", location)
	}
	if !strings.Contains(location, "error=missing_code") || !strings.Contains(location, "provider=shopify") {
		t.Errorf("Unexpected redirect target %q", location)
	}
}

func TestCallbackUnknownProvider(t *testing.T) {
	database, store := newFlowTestDB(t)
	router := newFlowRouter(database, store, registry.NewWith())

	req := httptest.NewRequest("GET", "/auth/jira/callback?code=x&state=user-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rec.Code)
	}
}
