package syncer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
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
	if err := db.AutoMigrate(&models.OAuthToken{}, &models.SyncedEntity{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

// fakeAdapter serves canned pages per resource kind.
type fakeAdapter struct {
	name         string
	contactPages []*providers.Page
	dealPages    []*providers.Page
	contactErr   error
	dealErr      error
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) ExchangeCode(context.Context, string, string, url.Values) (*providers.Grant, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAdapter) Refresh(context.Context, string, string) (*providers.Grant, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAdapter) FetchContacts(_ context.Context, _ providers.Token, cursor string) (*providers.Page, error) {
	return pageAt(f.contactPages, cursor, f.contactErr)
}

func (f *fakeAdapter) FetchDeals(_ context.Context, _ providers.Token, cursor string) (*providers.Page, error) {
	return pageAt(f.dealPages, cursor, f.dealErr)
}

func (f *fakeAdapter) RegisterWebhook(context.Context, providers.Token, *models.WebhookConfig) (*providers.WebhookRegistration, error) {
	return nil, errors.New("not implemented")
}

func pageAt(pages []*providers.Page, cursor string, err error) (*providers.Page, error) {
	if err != nil {
		return nil, err
	}
	idx := 0
	if cursor != "" {
		fmt.Sscanf(cursor, "p%d", &idx)
	}
	if idx >= len(pages) {
		return &providers.Page{}, nil
	}
	return pages[idx], nil
}

type fakeResolver struct {
	adapter providers.Adapter
}

func (r fakeResolver) ForName(name string) (providers.Adapter, error) {
	if r.adapter == nil || r.adapter.Name() != name {
		return nil, fmt.Errorf("%w: %s", providers.ErrUnsupportedProvider, name)
	}
	return r.adapter, nil
}

func recordsNamed(ids ...string) []providers.Record {
	recs := make([]providers.Record, 0, len(ids))
	for _, id := range ids {
		recs = append(recs, providers.Record{
			ExternalID: id,
			Name:       "name-" + id,
			Fields:     map[string]any{"id": id},
		})
	}
	return recs
}

func newWorker(t *testing.T, db *gorm.DB, adapter providers.Adapter) *Worker {
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
	resolver := fakeResolver{adapter: adapter}
	return NewWorker(db, store, token.NewRefresher(store, resolver), resolver)
}

func TestSyncAllCountsAndRows(t *testing.T) {
	db := newTestDB(t)
	adapter := &fakeAdapter{
		name:         "hubspot",
		contactPages: []*providers.Page{{Records: recordsNamed("c1", "c2", "c3")}},
		dealPages:    []*providers.Page{{Records: recordsNamed("d1")}},
	}
	w := newWorker(t, db, adapter)

	summary, err := w.SyncAll(context.Background(), "u1", "hubspot")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if summary.Contacts != 3 || summary.Deals != 1 {
		t.Fatalf("expected 3 contacts and 1 deal, got %+v", summary)
	}
	if summary.Total() != 4 {
		t.Fatalf("expected total 4, got %d", summary.Total())
	}

	var kinds []string
	db.Model(&models.SyncedEntity{}).Order("kind, external_id").Pluck("kind", &kinds)
	if len(kinds) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(kinds))
	}
}

func TestSyncAllIdempotentSnapshot(t *testing.T) {
	db := newTestDB(t)
	adapter := &fakeAdapter{
		name:         "hubspot",
		contactPages: []*providers.Page{{Records: recordsNamed("c1", "c2")}},
		dealPages:    []*providers.Page{{Records: recordsNamed("d1", "d2")}},
	}
	w := newWorker(t, db, adapter)

	for i := 0; i < 2; i++ {
		if _, err := w.SyncAll(context.Background(), "u1", "hubspot"); err != nil {
			t.Fatalf("sync run %d: %v", i, err)
		}
	}

	var count int64
	db.Model(&models.SyncedEntity{}).Count(&count)
	if count != 4 {
		t.Fatalf("expected snapshot of 4 rows after double sync, got %d", count)
	}

	var row models.SyncedEntity
	if err := db.Where("external_id = ? AND kind = ?", "c1", models.EntityContact).First(&row).Error; err != nil {
		t.Fatalf("expected c1 row: %v", err)
	}
	if row.Name != "name-c1" {
		t.Fatalf("expected unchanged content, got %+v", row)
	}
}

func TestSyncAllResourceFailureIsIsolated(t *testing.T) {
	db := newTestDB(t)
	adapter := &fakeAdapter{
		name:         "shopify",
		contactPages: []*providers.Page{{Records: recordsNamed("c1", "c2")}},
		dealErr:      &providers.APIError{Status: http.StatusInternalServerError, Body: "boom"},
	}
	w := newWorker(t, db, adapter)

	summary, err := w.SyncAll(context.Background(), "u1", "shopify")
	if err != nil {
		t.Fatalf("expected overall success despite deals failure, got %v", err)
	}
	if summary.Contacts != 2 {
		t.Fatalf("expected 2 contacts, got %d", summary.Contacts)
	}
	if summary.Deals != 0 {
		t.Fatalf("expected 0 deals for failing resource, got %d", summary.Deals)
	}
}

func TestSyncAllAuthFailureAborts(t *testing.T) {
	db := newTestDB(t)
	adapter := &fakeAdapter{name: "hubspot"}
	store := token.NewStore(db)
	resolver := fakeResolver{adapter: adapter}
	w := NewWorker(db, store, token.NewRefresher(store, resolver), resolver)

	_, err := w.SyncAll(context.Background(), "nobody", "hubspot")
	if !errors.Is(err, token.ErrTokenNotFound) {
		t.Fatalf("expected token error to abort sync, got %v", err)
	}

	var count int64
	db.Model(&models.SyncedEntity{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no rows written, got %d", count)
	}
}

func TestSyncAllFollowsCursor(t *testing.T) {
	db := newTestDB(t)
	adapter := &fakeAdapter{
		name: "hubspot",
		contactPages: []*providers.Page{
			{Records: recordsNamed("c1", "c2"), Cursor: "p1"},
			{Records: recordsNamed("c3")},
		},
		dealPages: []*providers.Page{{}},
	}
	w := newWorker(t, db, adapter)

	summary, err := w.SyncAll(context.Background(), "u1", "hubspot")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if summary.Contacts != 3 {
		t.Fatalf("expected 3 contacts across pages, got %d", summary.Contacts)
	}
}
