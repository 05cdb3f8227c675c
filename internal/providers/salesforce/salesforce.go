// Package salesforce implements the provider adapter for Salesforce CRM.
package salesforce

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/romashka-ai/integration-hub/internal/db/models"
	"github.com/romashka-ai/integration-hub/internal/providers"
	"github.com/romashka-ai/integration-hub/internal/providers/catalog"
)

const apiVersion = "v58.0"

// Adapter talks to the Salesforce REST API. The instance URL returned by the
// token exchange is the connection's store id and the base for all API calls.
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

func (a *Adapter) Name() string { return catalog.ProviderSalesforce }

func (a *Adapter) ExchangeCode(ctx context.Context, code, redirectURL string, _ url.Values) (*providers.Grant, error) {
	return providers.ExchangeGrant(ctx, a.client, a.info.TokenURL, a.info.ClientID, a.info.ClientSecret, code, redirectURL)
}

func (a *Adapter) Refresh(ctx context.Context, refreshToken, _ string) (*providers.Grant, error) {
	return providers.RefreshGrant(ctx, a.client, a.info.TokenURL, a.info.ClientID, a.info.ClientSecret, refreshToken)
}

type queryResponse struct {
	TotalSize      int              `json:"totalSize"`
	Done           bool             `json:"done"`
	NextRecordsURL string           `json:"nextRecordsUrl"`
	Records        []map[string]any `json:"records"`
}

func (a *Adapter) FetchContacts(ctx context.Context, tok providers.Token, cursor string) (*providers.Page, error) {
	soql := fmt.Sprintf("SELECT Id, Name, Email, Phone FROM Contact LIMIT %d", a.info.ContactsPageSize)
	return a.query(ctx, tok, soql, cursor)
}

func (a *Adapter) FetchDeals(ctx context.Context, tok providers.Token, cursor string) (*providers.Page, error) {
	soql := fmt.Sprintf("SELECT Id, Name, Amount, StageName, CloseDate FROM Opportunity LIMIT %d", a.info.DealsPageSize)
	return a.query(ctx, tok, soql, cursor)
}

// query runs a SOQL query, or follows a nextRecordsUrl cursor when one is set.
func (a *Adapter) query(ctx context.Context, tok providers.Token, soql, cursor string) (*providers.Page, error) {
	base := a.instanceURL(tok)
	var endpoint string
	if cursor != "" {
		endpoint = base + cursor
	} else {
		endpoint = fmt.Sprintf("%s/services/data/%s/query?q=%s", base, apiVersion, url.QueryEscape(soql))
	}

	var qr queryResponse
	if err := providers.GetJSON(ctx, a.client, endpoint, tok.AccessToken, &qr); err != nil {
		return nil, err
	}

	page := &providers.Page{}
	if !qr.Done {
		page.Cursor = qr.NextRecordsURL
	}
	for _, rec := range qr.Records {
		delete(rec, "attributes")
		page.Records = append(page.Records, providers.Record{
			ExternalID: str(rec["Id"]),
			Name:       str(rec["Name"]),
			Fields:     rec,
		})
	}
	return page, nil
}

// RegisterWebhook creates a RemoteSiteSetting pointing at the webhook URL.
// This is an acknowledged stub: a full integration would configure Platform
// Events, which is out of scope here. The remote site at least allows the
// org to call back out to the webhook endpoint.
func (a *Adapter) RegisterWebhook(ctx context.Context, tok providers.Token, cfg *models.WebhookConfig) (*providers.WebhookRegistration, error) {
	endpoint := fmt.Sprintf("%s/services/data/%s/tooling/sobjects/RemoteSiteSetting", a.instanceURL(tok), apiVersion)
	payload := map[string]any{
		"FullName": "ROMASHKA_Webhook",
		"Metadata": map[string]any{
			"url":                     cfg.URL,
			"isActive":                true,
			"disableProtocolSecurity": false,
			"description":             "ROMASHKA integration webhook endpoint",
		},
	}

	var created struct {
		ID      string `json:"id"`
		Success bool   `json:"success"`
	}
	if err := providers.PostJSON(ctx, a.client, endpoint, tok.AccessToken, payload, &created); err != nil {
		return nil, err
	}
	return &providers.WebhookRegistration{
		ExternalID: created.ID,
		Detail:     "remote site setting created (platform events not configured)",
	}, nil
}

func (a *Adapter) instanceURL(tok providers.Token) string {
	base := strings.TrimRight(tok.StoreID, "/")
	if base == "" {
		base = strings.TrimRight(a.info.APIBaseURL, "/")
	}
	return base
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
