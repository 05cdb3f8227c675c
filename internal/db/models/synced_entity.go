package models

import "time"

// Synced entity kinds.
const (
	EntityContact = "contact"
	EntityDeal    = "deal"
)

// SyncedEntity mirrors one provider record (contact or deal) locally.
// Uniqueness key is (user, provider, kind, external id); a sync run replaces
// the whole snapshot for its (user, provider, kind) slice.
type SyncedEntity struct {
	ID         string `gorm:"primaryKey"` // UUID
	UserID     string `gorm:"uniqueIndex:idx_entity_key"`
	Provider   string `gorm:"uniqueIndex:idx_entity_key"`
	Kind       string `gorm:"uniqueIndex:idx_entity_key"` // contact | deal
	ExternalID string `gorm:"uniqueIndex:idx_entity_key"` // provider's primary key
	Name       string
	Data       string `gorm:"type:text"` // normalized provider fields, JSON
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (SyncedEntity) TableName() string {
	return "synced_entities"
}
