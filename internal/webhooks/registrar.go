// Package webhooks persists webhook subscription intents, registers them with
// providers best-effort, and aggregates delivery health.
package webhooks

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/romashka-ai/integration-hub/internal/auth/token"
	"github.com/romashka-ai/integration-hub/internal/db/models"
	"github.com/romashka-ai/integration-hub/internal/providers"
	"gorm.io/gorm"
)

// ErrInvalidRequest marks caller errors (unknown provider, empty event list).
var ErrInvalidRequest = errors.New("invalid webhook request")

// RegisterRequest is the validated input for one registration call.
type RegisterRequest struct {
	Provider      string
	Events        []string
	URL           string
	Secret        string
	RateLimit     int
	TimeoutMs     int
	RetryAttempts int
	IPWhitelist   []string
}

// RegisterResult pairs the persisted config with the provider-side outcome.
// RegistrationError is set when the external call failed; the config row is
// still valid and usable for future retries.
type RegisterResult struct {
	Config            *models.WebhookConfig
	Registration      *providers.WebhookRegistration
	RegistrationError string
}

// Registrar upserts webhook configs and attempts provider registration.
type Registrar struct {
	db        *gorm.DB
	store     *token.Store
	refresher *token.Refresher
	resolver  providers.Resolver

	// PublicBaseURL is the externally reachable base for generated webhook
	// URLs.
	PublicBaseURL string
}

func NewRegistrar(db *gorm.DB, store *token.Store, refresher *token.Refresher, resolver providers.Resolver, publicBaseURL string) *Registrar {
	return &Registrar{
		db:            db,
		store:         store,
		refresher:     refresher,
		resolver:      resolver,
		PublicBaseURL: publicBaseURL,
	}
}

// Register validates the request, upserts the config row keyed by
// (user, provider), then best-effort registers with the provider. External
// failure never rolls the row back; it is reflected in registration_status
// and the audit log only.
func (r *Registrar) Register(ctx context.Context, userID string, req RegisterRequest) (*RegisterResult, error) {
	adapter, err := r.resolver.ForName(req.Provider)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidRequest, req.Provider)
	}
	if len(req.Events) == 0 {
		return nil, fmt.Errorf("%w: events must be a non-empty list", ErrInvalidRequest)
	}

	url := req.URL
	if url == "" {
		url = fmt.Sprintf("%s/api/webhooks/%s", r.PublicBaseURL, req.Provider)
	}
	secret := req.Secret
	if secret == "" {
		secret = newSecret()
	}
	events, _ := json.Marshal(req.Events)
	whitelist, _ := json.Marshal(req.IPWhitelist)

	cfg := &models.WebhookConfig{
		UserID:             userID,
		Provider:           req.Provider,
		Events:             string(events),
		URL:                url,
		Secret:             secret,
		RateLimit:          req.RateLimit,
		TimeoutMs:          req.TimeoutMs,
		RetryAttempts:      req.RetryAttempts,
		IPWhitelist:        string(whitelist),
		IsActive:           true,
		RegistrationStatus: models.RegistrationPending,
	}
	applyDefaults(cfg)
	if err := r.upsert(cfg); err != nil {
		return nil, err
	}

	result := &RegisterResult{Config: cfg}
	reg, regErr := r.registerWithProvider(ctx, userID, adapter, cfg)
	if regErr != nil {
		cfg.RegistrationStatus = models.RegistrationFailed
		result.RegistrationError = regErr.Error()
		log.Printf("⚠️ Webhook registration with %s failed for user %s: %v", req.Provider, userID, regErr)
	} else {
		cfg.RegistrationStatus = models.RegistrationRegistered
		cfg.ExternalID = reg.ExternalID
		result.Registration = reg
	}
	if err := r.db.Save(cfg).Error; err != nil {
		return nil, err
	}

	r.audit(userID, req.Provider, regErr, reg)
	return result, nil
}

// upsert keeps at most one config row per (user, provider); a second call
// overwrites the first's events, url and secret in place.
func (r *Registrar) upsert(cfg *models.WebhookConfig) error {
	var existing models.WebhookConfig
	err := r.db.Where("user_id = ? AND provider = ?", cfg.UserID, cfg.Provider).First(&existing).Error
	switch {
	case err == nil:
		cfg.ID = existing.ID
		cfg.CreatedAt = existing.CreatedAt
	case errors.Is(err, gorm.ErrRecordNotFound):
		cfg.ID = uuid.New().String()
	default:
		return err
	}
	cfg.UpdatedAt = time.Now()
	return r.db.Save(cfg).Error
}

func (r *Registrar) registerWithProvider(ctx context.Context, userID string, adapter providers.Adapter, cfg *models.WebhookConfig) (*providers.WebhookRegistration, error) {
	res, err := r.refresher.EnsureValid(ctx, userID, cfg.Provider)
	if err != nil {
		return nil, err
	}
	row, err := r.store.Get(userID, cfg.Provider)
	if err != nil {
		return nil, err
	}
	tok := providers.Token{AccessToken: res.AccessToken, StoreID: row.StoreID}
	return adapter.RegisterWebhook(ctx, tok, cfg)
}

// audit appends one row per registration attempt. Rows are never mutated.
func (r *Registrar) audit(userID, provider string, regErr error, reg *providers.WebhookRegistration) {
	entry := models.WebhookAudit{
		ID:       uuid.New().String(),
		UserID:   userID,
		Provider: provider,
		Action:   "register",
		Success:  regErr == nil,
	}
	if regErr != nil {
		entry.Detail = regErr.Error()
	} else if reg != nil {
		entry.Detail = reg.Detail
	}
	if err := r.db.Create(&entry).Error; err != nil {
		log.Printf("⚠️ Failed to write webhook audit entry: %v", err)
	}
}

func applyDefaults(cfg *models.WebhookConfig) {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 60
	}
	if cfg.TimeoutMs <= 0 {
		cfg.TimeoutMs = 5000
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
}

// newSecret returns 32 cryptographically random bytes, hex-encoded.
func newSecret() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}
