package db

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"

	"github.com/glebarez/sqlite"
	"github.com/romashka-ai/integration-hub/internal/db/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB opens the database connection and runs migrations. Postgres is used
// when DATABASE_URL is set (Supabase in production); otherwise a local SQLite
// file keeps development self-contained.
func InitDB(sqlitePath string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	var db *gorm.DB
	var err error
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	} else {
		db, err = gorm.Open(sqlite.Open(sqlitePath), cfg)
	}
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&models.OAuthToken{},
		&models.SyncedEntity{},
		&models.WebhookConfig{},
		&models.WebhookEvent{},
		&models.WebhookAudit{},
		&models.APIKey{},
		&models.RequestLog{},
	); err != nil {
		return nil, err
	}

	return db, nil
}

// EnsureAPIKey returns the API key for a user, generating one on first use.
// Format: rk-<32 hex chars>.
func EnsureAPIKey(db *gorm.DB, userID string) (string, error) {
	var key models.APIKey
	if err := db.Where("user_id = ?", userID).First(&key).Error; err == nil {
		return key.Key, nil
	}

	keyBytes := make([]byte, 16)
	rand.Read(keyBytes)
	key = models.APIKey{
		Key:    "rk-" + hex.EncodeToString(keyBytes),
		UserID: userID,
		Label:  "default",
	}
	if err := db.Create(&key).Error; err != nil {
		return "", err
	}
	log.Printf("🔑 Generated API key for user %s", userID)
	return key.Key, nil
}

// UserForAPIKey resolves a bearer credential to its owning user.
// Returns an empty string when the key is unknown.
func UserForAPIKey(db *gorm.DB, key string) string {
	var row models.APIKey
	if err := db.Where("key = ?", key).First(&row).Error; err != nil {
		return ""
	}
	return row.UserID
}
