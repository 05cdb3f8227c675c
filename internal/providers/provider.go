// Package providers defines the adapter interface the sync worker, token
// refresher and webhook registry use to talk to CRM/e-commerce providers.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/romashka-ai/integration-hub/internal/db/models"
)

// DefaultTimeout bounds every outbound provider call.
const DefaultTimeout = 30 * time.Second

// Record is one normalized provider record (contact or deal).
type Record struct {
	ExternalID string
	Name       string
	Fields     map[string]any
}

// Page is one page of records plus the continuation cursor.
// An empty cursor means the collection is exhausted.
type Page struct {
	Records []Record
	Cursor  string
}

// Grant is the outcome of an authorization-code or refresh exchange.
type Grant struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64  // seconds; 0 means the token does not expire
	StoreID      string // shop domain, hub id or instance URL when the provider reports one
}

// Token carries what an adapter needs to call the provider on behalf of a
// connection.
type Token struct {
	AccessToken string
	StoreID     string
}

// WebhookRegistration is the provider-side outcome of a registration attempt.
type WebhookRegistration struct {
	ExternalID string
	Detail     string
}

// Adapter is implemented once per provider.
type Adapter interface {
	Name() string
	// ExchangeCode trades an authorization code for tokens. params carries
	// extra callback query values some providers require (Shopify's shop).
	ExchangeCode(ctx context.Context, code, redirectURL string, params url.Values) (*Grant, error)
	// Refresh exchanges a refresh token for a new grant. Returns a
	// *RefreshError when the provider rejects the exchange.
	Refresh(ctx context.Context, refreshToken, storeID string) (*Grant, error)
	FetchContacts(ctx context.Context, tok Token, cursor string) (*Page, error)
	FetchDeals(ctx context.Context, tok Token, cursor string) (*Page, error)
	RegisterWebhook(ctx context.Context, tok Token, cfg *models.WebhookConfig) (*WebhookRegistration, error)
}

// Resolver maps provider names to adapters. Implemented by the registry
// package; stubbed in tests.
type Resolver interface {
	ForName(name string) (Adapter, error)
}

// ErrUnsupportedProvider is returned for provider names outside the catalog.
var ErrUnsupportedProvider = fmt.Errorf("unsupported provider")

// RefreshError reports a non-success HTTP response from a token endpoint.
// It is not retried automatically; the caller decides whether to prompt the
// user to reconnect.
type RefreshError struct {
	Status int
	Body   string
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("token refresh rejected: status=%d body=%s", e.Status, truncate(e.Body, 200))
}

// APIError reports a non-success HTTP response from a provider resource or
// webhook endpoint.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider API error: status=%d body=%s", e.Status, truncate(e.Body, 200))
}

// tokenResponse is the superset of fields the three providers return from
// their token endpoints.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	InstanceURL  string `json:"instance_url"` // Salesforce
	HubID        int64  `json:"hub_id"`       // HubSpot
	Scope        string `json:"scope"`
}

// RefreshGrant performs a standard grant_type=refresh_token exchange.
// Shared by the HubSpot and Salesforce adapters; Shopify tokens never expire.
func RefreshGrant(ctx context.Context, client *http.Client, tokenURL, clientID, clientSecret, refreshToken string) (*Grant, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", clientID)
	form.Set("client_secret", clientSecret)
	form.Set("refresh_token", refreshToken)

	grant, err := postTokenForm(ctx, client, tokenURL, form)
	if err != nil {
		return nil, err
	}
	return grant, nil
}

// ExchangeGrant performs a standard grant_type=authorization_code exchange.
func ExchangeGrant(ctx context.Context, client *http.Client, tokenURL, clientID, clientSecret, code, redirectURL string) (*Grant, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", clientID)
	form.Set("client_secret", clientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", redirectURL)

	return postTokenForm(ctx, client, tokenURL, form)
}

func postTokenForm(ctx context.Context, client *http.Client, tokenURL string, form url.Values) (*Grant, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RefreshError{Status: resp.StatusCode, Body: string(body)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("parse token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}

	grant := &Grant{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tr.TokenType,
		ExpiresIn:    tr.ExpiresIn,
	}
	if tr.InstanceURL != "" {
		grant.StoreID = tr.InstanceURL
	} else if tr.HubID != 0 {
		grant.StoreID = fmt.Sprintf("%d", tr.HubID)
	}
	return grant, nil
}

// GetJSON issues an authenticated GET and decodes the JSON response into out.
func GetJSON(ctx context.Context, client *http.Client, rawURL, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return json.Unmarshal(body, out)
}

// PostJSON issues an authenticated POST with a JSON payload and decodes the
// response into out (out may be nil).
func PostJSON(ctx context.Context, client *http.Client, rawURL, accessToken string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(string(data)))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
