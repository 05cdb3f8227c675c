package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/romashka-ai/integration-hub/internal/auth/token"
	"github.com/romashka-ai/integration-hub/internal/db/models"
	"github.com/romashka-ai/integration-hub/internal/providers"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := db.AutoMigrate(&models.OAuthToken{}, &models.WebhookConfig{}, &models.WebhookEvent{}, &models.WebhookAudit{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

// registerAdapter fakes the provider side of webhook registration.
type registerAdapter struct {
	name  string
	fail  error
	calls int
}

func (f *registerAdapter) Name() string { return f.name }

func (f *registerAdapter) ExchangeCode(context.Context, string, string, url.Values) (*providers.Grant, error) {
	return nil, errors.New("not implemented")
}

func (f *registerAdapter) Refresh(context.Context, string, string) (*providers.Grant, error) {
	return nil, errors.New("not implemented")
}

func (f *registerAdapter) FetchContacts(context.Context, providers.Token, string) (*providers.Page, error) {
	return &providers.Page{}, nil
}

func (f *registerAdapter) FetchDeals(context.Context, providers.Token, string) (*providers.Page, error) {
	return &providers.Page{}, nil
}

func (f *registerAdapter) RegisterWebhook(context.Context, providers.Token, *models.WebhookConfig) (*providers.WebhookRegistration, error) {
	f.calls++
	if f.fail != nil {
		return nil, f.fail
	}
	return &providers.WebhookRegistration{ExternalID: "ext-1", Detail: "ok"}, nil
}

type singleResolver struct {
	adapter providers.Adapter
}

func (r singleResolver) ForName(name string) (providers.Adapter, error) {
	if r.adapter == nil || r.adapter.Name() != name {
		return nil, fmt.Errorf("%w: %s", providers.ErrUnsupportedProvider, name)
	}
	return r.adapter, nil
}

func newRegistrar(t *testing.T, db *gorm.DB, adapter providers.Adapter) *Registrar {
	t.Helper()
	store := token.NewStore(db)
	if err := store.Put(&models.OAuthToken{
		UserID:      "u1",
		Provider:    adapter.Name(),
		AccessToken: "at",
		ExpiresAt:   time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("seed token: %v", err)
	}
	resolver := singleResolver{adapter: adapter}
	return NewRegistrar(db, store, token.NewRefresher(store, resolver), resolver, "https://hub.example.com")
}

func TestRegisterValidation(t *testing.T) {
	db := newTestDB(t)
	reg := newRegistrar(t, db, &registerAdapter{name: "shopify"})

	_, err := reg.Register(context.Background(), "u1", RegisterRequest{Provider: "bogus", Events: []string{"x"}})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for unknown provider, got %v", err)
	}

	_, err = reg.Register(context.Background(), "u1", RegisterRequest{Provider: "shopify"})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for empty events, got %v", err)
	}
}

func TestRegisterGeneratesURLAndSecret(t *testing.T) {
	db := newTestDB(t)
	reg := newRegistrar(t, db, &registerAdapter{name: "shopify"})

	res, err := reg.Register(context.Background(), "u1", RegisterRequest{
		Provider: "shopify",
		Events:   []string{"orders/create"},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	cfg := res.Config
	if cfg.URL != "https://hub.example.com/api/webhooks/shopify" {
		t.Fatalf("expected generated URL, got %s", cfg.URL)
	}
	if len(cfg.Secret) != 64 {
		t.Fatalf("expected 32-byte hex secret (64 chars), got %d chars", len(cfg.Secret))
	}
	if cfg.RegistrationStatus != models.RegistrationRegistered {
		t.Fatalf("expected registered status, got %s", cfg.RegistrationStatus)
	}
	if cfg.RateLimit != 60 || cfg.TimeoutMs != 5000 || cfg.RetryAttempts != 3 {
		t.Fatalf("expected defaults applied, got %+v", cfg)
	}
}

func TestRegisterTwiceUpsertsOneRow(t *testing.T) {
	db := newTestDB(t)
	reg := newRegistrar(t, db, &registerAdapter{name: "shopify"})

	first, err := reg.Register(context.Background(), "u1", RegisterRequest{
		Provider: "shopify",
		Events:   []string{"orders/create"},
	})
	if err != nil {
		t.Fatalf("first register: %v", err)
	}

	second, err := reg.Register(context.Background(), "u1", RegisterRequest{
		Provider: "shopify",
		Events:   []string{"orders/create", "customers/update"},
		URL:      "https://custom.example.com/hook",
	})
	if err != nil {
		t.Fatalf("second register: %v", err)
	}

	var count int64
	db.Model(&models.WebhookConfig{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected exactly one config row, got %d", count)
	}
	if second.Config.ID != first.Config.ID {
		t.Fatalf("expected same row id, got %s vs %s", second.Config.ID, first.Config.ID)
	}
	if second.Config.URL != "https://custom.example.com/hook" {
		t.Fatalf("expected second call's URL to win, got %s", second.Config.URL)
	}

	var events []string
	if err := json.Unmarshal([]byte(second.Config.Events), &events); err != nil {
		t.Fatalf("parse events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected second call's events to win, got %v", events)
	}
}

func TestRegisterProviderFailureIsSoft(t *testing.T) {
	db := newTestDB(t)
	adapter := &registerAdapter{name: "shopify", fail: &providers.APIError{Status: 503, Body: "down"}}
	reg := newRegistrar(t, db, adapter)

	res, err := reg.Register(context.Background(), "u1", RegisterRequest{
		Provider: "shopify",
		Events:   []string{"orders/create"},
	})
	if err != nil {
		t.Fatalf("expected soft failure, got %v", err)
	}
	if res.Config.RegistrationStatus != models.RegistrationFailed {
		t.Fatalf("expected failed status, got %s", res.Config.RegistrationStatus)
	}
	if res.RegistrationError == "" {
		t.Fatal("expected registration error recorded")
	}

	// Local row persisted despite the external failure.
	var count int64
	db.Model(&models.WebhookConfig{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected config row persisted, got %d", count)
	}
}

func TestRegisterWritesAudit(t *testing.T) {
	db := newTestDB(t)
	reg := newRegistrar(t, db, &registerAdapter{name: "shopify"})

	for i := 0; i < 2; i++ {
		if _, err := reg.Register(context.Background(), "u1", RegisterRequest{
			Provider: "shopify",
			Events:   []string{"orders/create"},
		}); err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
	}

	// Audit log is append-only: one entry per attempt even though the config
	// row was upserted.
	var count int64
	db.Model(&models.WebhookAudit{}).Count(&count)
	if count != 2 {
		t.Fatalf("expected 2 audit entries, got %d", count)
	}
}

func TestRegisterMissingTokenIsSoft(t *testing.T) {
	db := newTestDB(t)
	adapter := &registerAdapter{name: "shopify"}
	store := token.NewStore(db)
	resolver := singleResolver{adapter: adapter}
	reg := NewRegistrar(db, store, token.NewRefresher(store, resolver), resolver, "https://hub.example.com")

	res, err := reg.Register(context.Background(), "no-connection", RegisterRequest{
		Provider: "shopify",
		Events:   []string{"orders/create"},
	})
	if err != nil {
		t.Fatalf("expected soft failure without token, got %v", err)
	}
	if res.Config.RegistrationStatus != models.RegistrationFailed {
		t.Fatalf("expected failed status, got %s", res.Config.RegistrationStatus)
	}
	if adapter.calls != 0 {
		t.Fatalf("expected no provider call without token, got %d", adapter.calls)
	}
}
