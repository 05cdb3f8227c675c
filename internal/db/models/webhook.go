package models

import "time"

// Webhook registration statuses.
const (
	RegistrationPending    = "pending"
	RegistrationRegistered = "registered"
	RegistrationFailed     = "failed"
)

// WebhookConfig is the desired webhook subscription for a (user, provider)
// pair. A second registration call updates the row in place.
type WebhookConfig struct {
	ID            string `gorm:"primaryKey"` // UUID
	UserID        string `gorm:"uniqueIndex:idx_webhook_user_provider"`
	Provider      string `gorm:"uniqueIndex:idx_webhook_user_provider"`
	Events        string `gorm:"type:text"` // JSON array of event names
	URL           string
	Secret        string // shared secret for HMAC verification
	RateLimit     int    `gorm:"default:60"`
	TimeoutMs     int    `gorm:"default:5000"`
	RetryAttempts int    `gorm:"default:3"`
	IPWhitelist   string `gorm:"type:text"` // JSON array, empty = allow all
	IsActive      bool   `gorm:"default:true"`
	// ExternalID holds the provider-assigned subscription id; Shopify
	// registrations accumulate several, stored as a JSON array.
	ExternalID         string
	RegistrationStatus string `gorm:"default:pending"` // pending | registered | failed
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (WebhookConfig) TableName() string {
	return "webhook_configs"
}

// WebhookEvent is one logged delivery attempt. Rows are written by the
// webhook receiver; this subsystem only reads them for health aggregation.
type WebhookEvent struct {
	ID          string `gorm:"primaryKey"` // UUID
	UserID      string `gorm:"index"`
	Provider    string `gorm:"index"`
	EventType   string
	Success     bool
	Processed   bool
	Error       string
	CreatedAt   time.Time `gorm:"index"`
	ProcessedAt *time.Time
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}

// WebhookAudit is an append-only record of a registration attempt against a
// provider. Never updated or deleted.
type WebhookAudit struct {
	ID        string `gorm:"primaryKey"` // UUID
	UserID    string `gorm:"index"`
	Provider  string
	Action    string // "register"
	Success   bool
	Detail    string `gorm:"type:text"`
	CreatedAt time.Time
}

func (WebhookAudit) TableName() string {
	return "webhook_audits"
}
