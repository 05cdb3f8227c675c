// Package syncer mirrors provider contacts and deals into local snapshot
// tables.
package syncer

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/romashka-ai/integration-hub/internal/auth/token"
	"github.com/romashka-ai/integration-hub/internal/db/models"
	"github.com/romashka-ai/integration-hub/internal/providers"
	"gorm.io/gorm"
)

// defaultMaxPages caps cursor following so a misbehaving provider cannot
// loop forever.
const defaultMaxPages = 25

// Summary reports per-resource synced counts for one run.
type Summary struct {
	Contacts int
	Deals    int
	SyncedAt time.Time
}

// Total returns the combined record count.
func (s *Summary) Total() int { return s.Contacts + s.Deals }

// Worker fetches provider collections and replaces the local snapshot for
// each (user, provider, kind) slice.
type Worker struct {
	db        *gorm.DB
	store     *token.Store
	refresher *token.Refresher
	resolver  providers.Resolver

	// MaxPages overrides defaultMaxPages when positive.
	MaxPages int
}

func NewWorker(db *gorm.DB, store *token.Store, refresher *token.Refresher, resolver providers.Resolver) *Worker {
	return &Worker{db: db, store: store, refresher: refresher, resolver: resolver}
}

// SyncAll syncs contacts and deals for one connection. A token failure aborts
// the whole run; after that, the two resource branches run concurrently and
// fail independently — a branch that errors records zero synced and the run
// still succeeds.
func (w *Worker) SyncAll(ctx context.Context, userID, provider string) (*Summary, error) {
	res, err := w.refresher.EnsureValid(ctx, userID, provider)
	if err != nil {
		return nil, err
	}
	row, err := w.store.Get(userID, provider)
	if err != nil {
		return nil, err
	}
	adapter, err := w.resolver.ForName(provider)
	if err != nil {
		return nil, err
	}

	tok := providers.Token{AccessToken: res.AccessToken, StoreID: row.StoreID}

	summary := &Summary{SyncedAt: time.Now()}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		summary.Contacts = w.syncResource(ctx, userID, provider, models.EntityContact, tok, adapter.FetchContacts)
	}()
	go func() {
		defer wg.Done()
		summary.Deals = w.syncResource(ctx, userID, provider, models.EntityDeal, tok, adapter.FetchDeals)
	}()
	wg.Wait()

	log.Printf("🔄 Synced %s for user %s: %d contacts, %d deals", provider, userID, summary.Contacts, summary.Deals)
	return summary, nil
}

type fetchFunc func(ctx context.Context, tok providers.Token, cursor string) (*providers.Page, error)

// syncResource follows the provider cursor until exhausted (or the page cap),
// then replaces the snapshot. Fetch errors are logged, not propagated.
func (w *Worker) syncResource(ctx context.Context, userID, provider, kind string, tok providers.Token, fetch fetchFunc) int {
	maxPages := w.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}

	var records []providers.Record
	cursor := ""
	for page := 0; page < maxPages; page++ {
		p, err := fetch(ctx, tok, cursor)
		if err != nil {
			log.Printf("⚠️ Sync %s/%s for user %s failed: %v", provider, kind, userID, err)
			return 0
		}
		records = append(records, p.Records...)
		if p.Cursor == "" {
			break
		}
		cursor = p.Cursor
	}

	if err := w.replaceSnapshot(userID, provider, kind, records); err != nil {
		log.Printf("⚠️ Snapshot replace %s/%s for user %s failed: %v", provider, kind, userID, err)
		return 0
	}
	return len(records)
}

// replaceSnapshot deletes the (user, provider, kind) slice and bulk-inserts
// the fresh rows in one transaction, so readers never see a partial mix of
// generations.
func (w *Worker) replaceSnapshot(userID, provider, kind string, records []providers.Record) error {
	rows := make([]models.SyncedEntity, 0, len(records))
	for _, rec := range records {
		data, err := json.Marshal(rec.Fields)
		if err != nil {
			data = []byte("{}")
		}
		rows = append(rows, models.SyncedEntity{
			ID:         uuid.New().String(),
			UserID:     userID,
			Provider:   provider,
			Kind:       kind,
			ExternalID: rec.ExternalID,
			Name:       rec.Name,
			Data:       string(data),
		})
	}

	return w.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND provider = ? AND kind = ?", userID, provider, kind).
			Delete(&models.SyncedEntity{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 100).Error
	})
}
