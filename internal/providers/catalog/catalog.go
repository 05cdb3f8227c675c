// Package catalog holds per-provider integration settings: OAuth endpoints,
// API base URLs, scopes, credentials and page sizes. Defaults are built in;
// a yaml file (HUB_PROVIDERS_CONFIG) and environment variables override them.
package catalog

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Supported provider IDs.
const (
	ProviderHubSpot    = "hubspot"
	ProviderShopify    = "shopify"
	ProviderSalesforce = "salesforce"
)

var providerIDRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

type fileConfig struct {
	Providers []ProviderConfig `yaml:"providers"`
}

// ProviderConfig is the yaml shape for one provider override.
type ProviderConfig struct {
	ID               string   `yaml:"id"`
	Enabled          *bool    `yaml:"enabled"`
	AuthURL          string   `yaml:"auth_url"`
	TokenURL         string   `yaml:"token_url"`
	APIBaseURL       string   `yaml:"api_base_url"`
	Scopes           []string `yaml:"scopes"`
	AppID            string   `yaml:"app_id"`
	ContactsPageSize int      `yaml:"contacts_page_size"`
	DealsPageSize    int      `yaml:"deals_page_size"`
}

// ProviderInfo is the resolved runtime view of one provider.
// Shopify URLs contain a "{shop}" placeholder substituted per connection.
type ProviderInfo struct {
	ID               string   `json:"id"`
	Enabled          bool     `json:"enabled"`
	AuthURL          string   `json:"auth_url"`
	TokenURL         string   `json:"token_url"`
	APIBaseURL       string   `json:"api_base_url"`
	Scopes           []string `json:"scopes"`
	AppID            string   `json:"-"` // HubSpot developer app id, used for webhook subscriptions
	ContactsPageSize int      `json:"contacts_page_size"`
	DealsPageSize    int      `json:"deals_page_size"`
	ClientID         string   `json:"-"`
	ClientSecret     string   `json:"-"`
}

var (
	stateMu      sync.RWMutex
	initialized  bool
	providerByID map[string]ProviderInfo
	providerList []string
)

func defaults() []ProviderInfo {
	return []ProviderInfo{
		{
			ID:         ProviderHubSpot,
			Enabled:    true,
			AuthURL:    "https://app.hubspot.com/oauth/authorize",
			TokenURL:   "https://api.hubapi.com/oauth/v1/token",
			APIBaseURL: "https://api.hubapi.com",
			Scopes: []string{
				"crm.objects.contacts.read",
				"crm.objects.deals.read",
				"oauth",
			},
			ContactsPageSize: 100,
			DealsPageSize:    100,
		},
		{
			ID:         ProviderShopify,
			Enabled:    true,
			AuthURL:    "https://{shop}/admin/oauth/authorize",
			TokenURL:   "https://{shop}/admin/oauth/access_token",
			APIBaseURL: "https://{shop}/admin/api/2024-01",
			Scopes: []string{
				"read_customers",
				"read_orders",
			},
			ContactsPageSize: 50,
			DealsPageSize:    50,
		},
		{
			ID:         ProviderSalesforce,
			Enabled:    true,
			AuthURL:    "https://login.salesforce.com/services/oauth2/authorize",
			TokenURL:   "https://login.salesforce.com/services/oauth2/token",
			APIBaseURL: "", // per-connection instance URL
			Scopes: []string{
				"api",
				"refresh_token",
			},
			ContactsPageSize: 20,
			DealsPageSize:    20,
		},
	}
}

// InitFromEnvAndConfig loads the catalog: built-in defaults, then the yaml
// file named by HUB_PROVIDERS_CONFIG, then <PROVIDER>_CLIENT_ID/SECRET env vars.
func InitFromEnvAndConfig() error {
	providers, err := loadProviders()

	stateMu.Lock()
	defer stateMu.Unlock()

	providerByID = make(map[string]ProviderInfo)
	providerList = providerList[:0]
	for _, p := range providers {
		providerByID[p.ID] = p
		providerList = append(providerList, p.ID)
	}
	initialized = true
	return err
}

func ensureInitialized() {
	stateMu.RLock()
	ok := initialized
	stateMu.RUnlock()
	if ok {
		return
	}
	_ = InitFromEnvAndConfig()
}

// ResetForTest resets in-memory state so tests can force reload.
func ResetForTest() {
	stateMu.Lock()
	defer stateMu.Unlock()
	initialized = false
	providerByID = nil
	providerList = nil
}

// GetProvider returns provider settings by ID.
func GetProvider(id string) (ProviderInfo, bool) {
	ensureInitialized()

	stateMu.RLock()
	defer stateMu.RUnlock()

	info, ok := providerByID[normalizeProviderID(id)]
	if !ok {
		return ProviderInfo{}, false
	}
	info.Scopes = append([]string(nil), info.Scopes...)
	return info, true
}

// IsSupported returns whether a provider is declared and enabled.
func IsSupported(id string) bool {
	info, ok := GetProvider(id)
	return ok && info.Enabled
}

// ProviderIDs returns the enabled provider IDs in declaration order.
func ProviderIDs() []string {
	ensureInitialized()

	stateMu.RLock()
	defer stateMu.RUnlock()

	ids := make([]string, 0, len(providerList))
	for _, id := range providerList {
		if info, ok := providerByID[id]; ok && info.Enabled {
			ids = append(ids, id)
		}
	}
	return ids
}

func loadProviders() ([]ProviderInfo, error) {
	byID := make(map[string]ProviderInfo)
	order := []string{}
	for _, p := range defaults() {
		byID[p.ID] = p
		order = append(order, p.ID)
	}

	var loadErr error
	if path := strings.TrimSpace(os.Getenv("HUB_PROVIDERS_CONFIG")); path != "" {
		overrides, err := loadFile(path)
		if err != nil {
			loadErr = err
		}
		for _, o := range overrides {
			id := normalizeProviderID(o.ID)
			if !providerIDRegexp.MatchString(id) {
				if loadErr == nil {
					loadErr = fmt.Errorf("invalid provider id %q in %s", o.ID, path)
				}
				continue
			}
			base, known := byID[id]
			if !known {
				base = ProviderInfo{ID: id, Enabled: true}
				order = append(order, id)
			}
			applyOverride(&base, o)
			byID[id] = base
		}
	}

	result := make([]ProviderInfo, 0, len(order))
	for _, id := range order {
		info := byID[id]
		applyEnvCredentials(&info)
		result = append(result, info)
	}
	return result, loadErr
}

func applyOverride(info *ProviderInfo, o ProviderConfig) {
	if o.Enabled != nil {
		info.Enabled = *o.Enabled
	}
	if o.AuthURL != "" {
		info.AuthURL = o.AuthURL
	}
	if o.TokenURL != "" {
		info.TokenURL = o.TokenURL
	}
	if o.APIBaseURL != "" {
		info.APIBaseURL = o.APIBaseURL
	}
	if len(o.Scopes) > 0 {
		info.Scopes = append([]string(nil), o.Scopes...)
	}
	if o.AppID != "" {
		info.AppID = o.AppID
	}
	if o.ContactsPageSize > 0 {
		info.ContactsPageSize = o.ContactsPageSize
	}
	if o.DealsPageSize > 0 {
		info.DealsPageSize = o.DealsPageSize
	}
}

// applyEnvCredentials resolves <PROVIDER>_CLIENT_ID / <PROVIDER>_CLIENT_SECRET.
func applyEnvCredentials(info *ProviderInfo) {
	prefix := strings.ToUpper(strings.ReplaceAll(info.ID, "-", "_"))
	if v := strings.TrimSpace(os.Getenv(prefix + "_CLIENT_ID")); v != "" {
		info.ClientID = v
	}
	if v := strings.TrimSpace(os.Getenv(prefix + "_CLIENT_SECRET")); v != "" {
		info.ClientSecret = v
	}
	if v := strings.TrimSpace(os.Getenv(prefix + "_APP_ID")); v != "" {
		info.AppID = v
	}
}

func loadFile(path string) ([]ProviderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read providers config: %w", err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse providers config %s: %w", path, err)
	}
	return cfg.Providers, nil
}

func normalizeProviderID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
