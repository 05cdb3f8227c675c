// Package registry wires catalog-configured provider adapters together.
package registry

import (
	"fmt"
	"net/http"

	"github.com/romashka-ai/integration-hub/internal/providers"
	"github.com/romashka-ai/integration-hub/internal/providers/catalog"
	"github.com/romashka-ai/integration-hub/internal/providers/hubspot"
	"github.com/romashka-ai/integration-hub/internal/providers/salesforce"
	"github.com/romashka-ai/integration-hub/internal/providers/shopify"
)

// Registry resolves provider names to adapters. Built once at startup and
// shared across requests.
type Registry struct {
	byName map[string]providers.Adapter
}

// New builds adapters for every enabled catalog provider.
func New(client *http.Client) *Registry {
	if client == nil {
		client = &http.Client{Timeout: providers.DefaultTimeout}
	}

	r := &Registry{byName: make(map[string]providers.Adapter)}
	if info, ok := catalog.GetProvider(catalog.ProviderHubSpot); ok && info.Enabled {
		r.byName[info.ID] = hubspot.New(info, client)
	}
	if info, ok := catalog.GetProvider(catalog.ProviderShopify); ok && info.Enabled {
		r.byName[info.ID] = shopify.New(info, client)
	}
	if info, ok := catalog.GetProvider(catalog.ProviderSalesforce); ok && info.Enabled {
		r.byName[info.ID] = salesforce.New(info, client)
	}
	return r
}

// NewWith builds a registry from explicit adapters (tests).
func NewWith(adapters ...providers.Adapter) *Registry {
	r := &Registry{byName: make(map[string]providers.Adapter, len(adapters))}
	for _, a := range adapters {
		r.byName[a.Name()] = a
	}
	return r
}

// ForName returns the adapter for a provider name.
func (r *Registry) ForName(name string) (providers.Adapter, error) {
	a, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", providers.ErrUnsupportedProvider, name)
	}
	return a, nil
}

// Names returns the registered provider names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	return names
}
