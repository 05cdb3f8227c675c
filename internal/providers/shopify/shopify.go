// Package shopify implements the provider adapter for Shopify stores.
//
// Shopify is shop-scoped: every URL template in the catalog contains a
// "{shop}" placeholder replaced with the connection's shop domain, and API
// calls authenticate with the X-Shopify-Access-Token header rather than a
// bearer token.
package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/romashka-ai/integration-hub/internal/db/models"
	"github.com/romashka-ai/integration-hub/internal/providers"
	"github.com/romashka-ai/integration-hub/internal/providers/catalog"
)

var linkNextRegexp = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// Adapter talks to the Shopify Admin REST API.
type Adapter struct {
	info   catalog.ProviderInfo
	client *http.Client
}

func New(info catalog.ProviderInfo, client *http.Client) *Adapter {
	if client == nil {
		client = &http.Client{Timeout: providers.DefaultTimeout}
	}
	return &Adapter{info: info, client: client}
}

func (a *Adapter) Name() string { return catalog.ProviderShopify }

// ExchangeCode trades the callback code for a permanent access token.
// The shop domain arrives as a callback query parameter and becomes the
// connection's store id. Shopify offline tokens do not expire.
func (a *Adapter) ExchangeCode(ctx context.Context, code, _ string, params url.Values) (*providers.Grant, error) {
	shop := strings.TrimSpace(params.Get("shop"))
	if shop == "" {
		return nil, fmt.Errorf("shopify callback missing shop parameter")
	}

	payload := map[string]string{
		"client_id":     a.info.ClientID,
		"client_secret": a.info.ClientSecret,
		"code":          code,
	}
	data, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.resolveURL(a.info.TokenURL, shop), strings.NewReader(string(data)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &providers.RefreshError{Status: resp.StatusCode, Body: string(body)}
	}

	var tr struct {
		AccessToken string `json:"access_token"`
		Scope       string `json:"scope"`
	}
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("parse access token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("access token response missing access_token")
	}

	return &providers.Grant{
		AccessToken: tr.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   0, // non-expiring
		StoreID:     shop,
	}, nil
}

// Refresh is unsupported: Shopify offline tokens never expire, so the
// refresher's buffer-window check never reaches this path in practice.
func (a *Adapter) Refresh(_ context.Context, _, _ string) (*providers.Grant, error) {
	return nil, fmt.Errorf("shopify access tokens are non-expiring and cannot be refreshed")
}

func (a *Adapter) FetchContacts(ctx context.Context, tok providers.Token, cursor string) (*providers.Page, error) {
	endpoint := a.listURL(tok.StoreID, "customers.json", a.info.ContactsPageSize, cursor)
	var list struct {
		Customers []map[string]any `json:"customers"`
	}
	next, err := a.getJSON(ctx, endpoint, tok.AccessToken, &list)
	if err != nil {
		return nil, err
	}

	page := &providers.Page{Cursor: next}
	for _, c := range list.Customers {
		name := strings.TrimSpace(str(c["first_name"]) + " " + str(c["last_name"]))
		if name == "" {
			name = str(c["email"])
		}
		page.Records = append(page.Records, providers.Record{
			ExternalID: str(c["id"]),
			Name:       name,
			Fields:     c,
		})
	}
	return page, nil
}

// FetchDeals maps Shopify orders onto the deal kind.
func (a *Adapter) FetchDeals(ctx context.Context, tok providers.Token, cursor string) (*providers.Page, error) {
	endpoint := a.listURL(tok.StoreID, "orders.json", a.info.DealsPageSize, cursor)
	var list struct {
		Orders []map[string]any `json:"orders"`
	}
	next, err := a.getJSON(ctx, endpoint, tok.AccessToken, &list)
	if err != nil {
		return nil, err
	}

	page := &providers.Page{Cursor: next}
	for _, o := range list.Orders {
		name := str(o["name"])
		if name == "" {
			name = str(o["id"])
		}
		page.Records = append(page.Records, providers.Record{
			ExternalID: str(o["id"]),
			Name:       name,
			Fields:     o,
		})
	}
	return page, nil
}

// RegisterWebhook creates one webhook per requested event topic and
// accumulates the created ids.
func (a *Adapter) RegisterWebhook(ctx context.Context, tok providers.Token, cfg *models.WebhookConfig) (*providers.WebhookRegistration, error) {
	var events []string
	if err := json.Unmarshal([]byte(cfg.Events), &events); err != nil {
		return nil, fmt.Errorf("parse webhook events: %w", err)
	}

	endpoint := a.resolveURL(a.info.APIBaseURL, tok.StoreID) + "/webhooks.json"
	var ids []string
	for _, topic := range events {
		payload := map[string]any{
			"webhook": map[string]any{
				"topic":   topic,
				"address": cfg.URL,
				"format":  "json",
			},
		}
		var created struct {
			Webhook struct {
				ID json.Number `json:"id"`
			} `json:"webhook"`
		}
		if err := a.postJSON(ctx, endpoint, tok.AccessToken, payload, &created); err != nil {
			return nil, fmt.Errorf("webhook for topic %s: %w", topic, err)
		}
		ids = append(ids, created.Webhook.ID.String())
	}

	encoded, _ := json.Marshal(ids)
	return &providers.WebhookRegistration{
		ExternalID: string(encoded),
		Detail:     fmt.Sprintf("created %d topic webhooks", len(ids)),
	}, nil
}

func (a *Adapter) listURL(shop, resource string, limit int, cursor string) string {
	endpoint := fmt.Sprintf("%s/%s?limit=%d", a.resolveURL(a.info.APIBaseURL, shop), resource, limit)
	if cursor != "" {
		endpoint += "&page_info=" + url.QueryEscape(cursor)
	}
	return endpoint
}

// getJSON issues a shop-authenticated GET and returns the next-page cursor
// parsed from the Link header.
func (a *Adapter) getJSON(ctx context.Context, rawURL, accessToken string, out any) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("X-Shopify-Access-Token", accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &providers.APIError{Status: resp.StatusCode, Body: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return "", err
	}
	return nextPageInfo(resp.Header.Get("Link")), nil
}

func (a *Adapter) postJSON(ctx context.Context, rawURL, accessToken string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(string(data)))
	if err != nil {
		return err
	}
	req.Header.Set("X-Shopify-Access-Token", accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &providers.APIError{Status: resp.StatusCode, Body: string(body)}
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

func (a *Adapter) resolveURL(template, shop string) string {
	return strings.ReplaceAll(template, "{shop}", shop)
}

// nextPageInfo extracts the page_info cursor from a Link header rel="next".
func nextPageInfo(link string) string {
	m := linkNextRegexp.FindStringSubmatch(link)
	if m == nil {
		return ""
	}
	u, err := url.Parse(m[1])
	if err != nil {
		return ""
	}
	return u.Query().Get("page_info")
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strings.TrimSuffix(fmt.Sprintf("%.0f", t), ".")
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
