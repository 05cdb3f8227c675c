package token

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/romashka-ai/integration-hub/internal/providers"
)

// DefaultBufferWindow is the safety margin before expiry: a token expiring
// within this window is refreshed before being handed out.
const DefaultBufferWindow = 5 * time.Minute

// defaultExpiresIn covers providers that omit expires_in from the refresh
// response (Salesforce session tokens).
const defaultExpiresIn = time.Hour

// ErrRefreshTokenMissing means the stored connection cannot be refreshed and
// the user must reconnect the provider.
var ErrRefreshTokenMissing = errors.New("refresh token missing, reconnect required")

// Result reports the usable access token and whether a refresh happened.
type Result struct {
	AccessToken string
	Refreshed   bool
}

// Refresher guarantees callers a token valid for at least the buffer window.
//
// Overlapping calls for the same pair are not coordinated: both may detect an
// expiring token and both issue refresh requests. Providers tolerate this by
// returning a fresh valid token each time.
type Refresher struct {
	store    *Store
	resolver providers.Resolver

	// BufferWindow overrides DefaultBufferWindow when positive.
	BufferWindow time.Duration
}

func NewRefresher(store *Store, resolver providers.Resolver) *Refresher {
	return &Refresher{store: store, resolver: resolver, BufferWindow: DefaultBufferWindow}
}

// EnsureValid returns an access token usable for at least the buffer window.
// The common path makes no network call; only a token at or inside the window
// triggers a single refresh exchange, whose failure is not retried here.
func (r *Refresher) EnsureValid(ctx context.Context, userID, provider string) (*Result, error) {
	tok, err := r.store.Get(userID, provider)
	if err != nil {
		return nil, err
	}

	window := r.BufferWindow
	if window <= 0 {
		window = DefaultBufferWindow
	}
	if tok.ExpiresAt.After(time.Now().Add(window)) {
		return &Result{AccessToken: tok.AccessToken, Refreshed: false}, nil
	}

	if tok.RefreshToken == "" {
		return nil, ErrRefreshTokenMissing
	}

	adapter, err := r.resolver.ForName(provider)
	if err != nil {
		return nil, err
	}
	grant, err := adapter.Refresh(ctx, tok.RefreshToken, tok.StoreID)
	if err != nil {
		return nil, err
	}

	tok.AccessToken = grant.AccessToken
	if grant.RefreshToken != "" && grant.RefreshToken != tok.RefreshToken {
		// Persist rotated refresh token when the provider returns one;
		// otherwise keep the old one (providers may omit rotation).
		tok.RefreshToken = grant.RefreshToken
	}
	expiresIn := time.Duration(grant.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = defaultExpiresIn
	}
	tok.ExpiresAt = time.Now().Add(expiresIn)
	if grant.StoreID != "" {
		tok.StoreID = grant.StoreID
	}
	if err := r.store.Put(tok); err != nil {
		return nil, err
	}

	log.Printf("✅ Refreshed %s token for user %s (expires %s)", provider, userID, tok.ExpiresAt.Format(time.RFC3339))
	return &Result{AccessToken: tok.AccessToken, Refreshed: true}, nil
}
