package models

import "time"

// APIKey maps a bearer credential to a user. Keys are generated server-side
// ("rk-" + 32 hex chars) and handed to dashboard sessions.
type APIKey struct {
	Key       string `gorm:"primaryKey"`
	UserID    string `gorm:"index"`
	Label     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
