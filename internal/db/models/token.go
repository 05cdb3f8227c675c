package models

import "time"

// OAuthToken stores the OAuth credentials for one (user, provider) connection.
// There is at most one row per pair; reconnecting overwrites the mutable
// fields in place.
type OAuthToken struct {
	ID           string `gorm:"primaryKey"` // UUID
	UserID       string `gorm:"uniqueIndex:idx_user_provider"`
	Provider     string `gorm:"uniqueIndex:idx_user_provider"` // "hubspot", "shopify", "salesforce"
	AccessToken  string
	RefreshToken string
	TokenType    string `gorm:"default:Bearer"`
	ExpiresAt    time.Time
	// StoreID is the provider-side tenant identifier: Shopify shop domain,
	// HubSpot hub id, Salesforce instance URL.
	StoreID   string
	Scopes    string // JSON array of granted scopes
	CreatedAt time.Time
	UpdatedAt time.Time
}
