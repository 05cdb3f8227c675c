// Package token persists OAuth credentials per (user, provider) and keeps
// them usable via transparent refresh.
package token

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/romashka-ai/integration-hub/internal/db/models"
	"gorm.io/gorm"
)

// ErrTokenNotFound means no connection exists for the (user, provider) pair.
var ErrTokenNotFound = errors.New("token not found")

// Store is the durable home of OAuthToken rows. Server-side only; rows are
// never exposed to browser clients.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Get loads the token for a (user, provider) pair.
func (s *Store) Get(userID, provider string) (*models.OAuthToken, error) {
	var tok models.OAuthToken
	err := s.db.Where("user_id = ? AND provider = ?", userID, provider).First(&tok).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

// Put upserts by (user, provider). An existing row keeps its id and creation
// timestamp; mutable fields (tokens, expiry, store id) are overwritten.
func (s *Store) Put(tok *models.OAuthToken) error {
	var existing models.OAuthToken
	err := s.db.Where("user_id = ? AND provider = ?", tok.UserID, tok.Provider).First(&existing).Error
	switch {
	case err == nil:
		tok.ID = existing.ID
		tok.CreatedAt = existing.CreatedAt
	case errors.Is(err, gorm.ErrRecordNotFound):
		if tok.ID == "" {
			tok.ID = uuid.New().String()
		}
	default:
		return err
	}
	tok.UpdatedAt = time.Now()
	return s.db.Save(tok).Error
}
