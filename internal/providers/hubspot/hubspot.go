// Package hubspot implements the provider adapter for HubSpot CRM.
package hubspot

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/romashka-ai/integration-hub/internal/db/models"
	"github.com/romashka-ai/integration-hub/internal/providers"
	"github.com/romashka-ai/integration-hub/internal/providers/catalog"
)

// Contact properties subscribed to on webhook registration, one subscription
// call each (HubSpot's webhook API is property-scoped for propertyChange).
var subscriptionProperties = []string{"email", "firstname", "lastname"}

// Adapter talks to the HubSpot CRM v3 API.
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

func (a *Adapter) Name() string { return catalog.ProviderHubSpot }

// ExchangeCode trades the callback code for tokens, then resolves the hub id
// from the token introspection endpoint (best effort).
func (a *Adapter) ExchangeCode(ctx context.Context, code, redirectURL string, _ url.Values) (*providers.Grant, error) {
	grant, err := providers.ExchangeGrant(ctx, a.client, a.info.TokenURL, a.info.ClientID, a.info.ClientSecret, code, redirectURL)
	if err != nil {
		return nil, err
	}
	if grant.StoreID == "" {
		grant.StoreID = a.fetchHubID(ctx, grant.AccessToken)
	}
	return grant, nil
}

func (a *Adapter) Refresh(ctx context.Context, refreshToken, _ string) (*providers.Grant, error) {
	return providers.RefreshGrant(ctx, a.client, a.info.TokenURL, a.info.ClientID, a.info.ClientSecret, refreshToken)
}

type crmListResponse struct {
	Results []struct {
		ID         string            `json:"id"`
		Properties map[string]string `json:"properties"`
	} `json:"results"`
	Paging struct {
		Next struct {
			After string `json:"after"`
		} `json:"next"`
	} `json:"paging"`
}

func (a *Adapter) FetchContacts(ctx context.Context, tok providers.Token, cursor string) (*providers.Page, error) {
	return a.fetchObjects(ctx, tok, "contacts", a.info.ContactsPageSize, cursor, func(props map[string]string) string {
		name := strings.TrimSpace(props["firstname"] + " " + props["lastname"])
		if name == "" {
			name = props["email"]
		}
		return name
	})
}

func (a *Adapter) FetchDeals(ctx context.Context, tok providers.Token, cursor string) (*providers.Page, error) {
	return a.fetchObjects(ctx, tok, "deals", a.info.DealsPageSize, cursor, func(props map[string]string) string {
		return props["dealname"]
	})
}

func (a *Adapter) fetchObjects(ctx context.Context, tok providers.Token, object string, limit int, cursor string, nameOf func(map[string]string) string) (*providers.Page, error) {
	endpoint := fmt.Sprintf("%s/crm/v3/objects/%s?limit=%d", a.info.APIBaseURL, object, limit)
	if object == "deals" {
		endpoint += "&properties=dealname,amount,dealstage,closedate"
	}
	if cursor != "" {
		endpoint += "&after=" + url.QueryEscape(cursor)
	}

	var list crmListResponse
	if err := providers.GetJSON(ctx, a.client, endpoint, tok.AccessToken, &list); err != nil {
		return nil, err
	}

	page := &providers.Page{Cursor: list.Paging.Next.After}
	for _, item := range list.Results {
		fields := make(map[string]any, len(item.Properties))
		for k, v := range item.Properties {
			fields[k] = v
		}
		page.Records = append(page.Records, providers.Record{
			ExternalID: item.ID,
			Name:       nameOf(item.Properties),
			Fields:     fields,
		})
	}
	return page, nil
}

// RegisterWebhook creates one propertyChange subscription per fixed contact
// property under the developer app. Requires HUBSPOT_APP_ID.
func (a *Adapter) RegisterWebhook(ctx context.Context, tok providers.Token, cfg *models.WebhookConfig) (*providers.WebhookRegistration, error) {
	if a.info.AppID == "" {
		return nil, fmt.Errorf("hubspot webhook registration requires HUBSPOT_APP_ID")
	}

	endpoint := fmt.Sprintf("%s/webhooks/v3/%s/subscriptions", a.info.APIBaseURL, a.info.AppID)
	var ids []string
	for _, prop := range subscriptionProperties {
		payload := map[string]any{
			"eventType":    "contact.propertyChange",
			"propertyName": prop,
			"active":       true,
		}
		var created struct {
			ID json.Number `json:"id"`
		}
		if err := providers.PostJSON(ctx, a.client, endpoint, tok.AccessToken, payload, &created); err != nil {
			return nil, fmt.Errorf("subscription for %s: %w", prop, err)
		}
		ids = append(ids, created.ID.String())
	}

	encoded, _ := json.Marshal(ids)
	return &providers.WebhookRegistration{
		ExternalID: string(encoded),
		Detail:     fmt.Sprintf("created %d property subscriptions", len(ids)),
	}, nil
}

// fetchHubID resolves the portal (hub) id for an access token. Failure is
// tolerated; the connection still works without a store id.
func (a *Adapter) fetchHubID(ctx context.Context, accessToken string) string {
	endpoint := fmt.Sprintf("%s/oauth/v1/access-tokens/%s", a.info.APIBaseURL, url.PathEscape(accessToken))
	var info struct {
		HubID int64 `json:"hub_id"`
	}
	if err := providers.GetJSON(ctx, a.client, endpoint, accessToken, &info); err != nil {
		log.Printf("⚠️ hubspot: failed to resolve hub id: %v", err)
		return ""
	}
	if info.HubID == 0 {
		return ""
	}
	return fmt.Sprintf("%d", info.HubID)
}
