package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/romashka-ai/integration-hub/internal/db"
	"github.com/romashka-ai/integration-hub/internal/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newAuthTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := database.AutoMigrate(&models.APIKey{}); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return database
}

func echoUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(UserID(r.Context())))
	}
}

func TestAPIKeyAuthBearer(t *testing.T) {
	database := newAuthTestDB(t)
	key, err := db.EnsureAPIKey(database, "user-1")
	if err != nil {
		t.Fatalf("EnsureAPIKey failed: %v", err)
	}

	handler := APIKeyAuth(database)(echoUserHandler())

	req := httptest.NewRequest("GET", "/api/integrations", nil)
	req.Header.Set("Authorization", "Bearer "+key)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if got := rec.Body.String(); got != "user-1" {
		t.Errorf("Expected user-1 in context, got %q", got)
	}
}

func TestAPIKeyAuthHeaderFallback(t *testing.T) {
	database := newAuthTestDB(t)
	key, err := db.EnsureAPIKey(database, "user-2")
	if err != nil {
		t.Fatalf("EnsureAPIKey failed: %v", err)
	}

	handler := APIKeyAuth(database)(echoUserHandler())

	req := httptest.NewRequest("GET", "/api/integrations", nil)
	req.Header.Set("x-api-key", key)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if got := rec.Body.String(); got != "user-2" {
		t.Errorf("Expected user-2 in context, got %q", got)
	}
}

func TestAPIKeyAuthRejectsUnknownKey(t *testing.T) {
	database := newAuthTestDB(t)

	handler := APIKeyAuth(database)(echoUserHandler())

	req := httptest.NewRequest("GET", "/api/integrations", nil)
	req.Header.Set("Authorization", "Bearer rk-deadbeef")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "unauthorized") {
		t.Errorf("Expected unauthorized error body, got %q", rec.Body.String())
	}
}

func TestAPIKeyAuthRejectsMissingKey(t *testing.T) {
	database := newAuthTestDB(t)

	handler := APIKeyAuth(database)(echoUserHandler())

	req := httptest.NewRequest("GET", "/api/integrations", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", rec.Code)
	}
}

func TestEnsureAPIKeyStable(t *testing.T) {
	database := newAuthTestDB(t)

	first, err := db.EnsureAPIKey(database, "user-3")
	if err != nil {
		t.Fatalf("EnsureAPIKey failed: %v", err)
	}
	second, err := db.EnsureAPIKey(database, "user-3")
	if err != nil {
		t.Fatalf("EnsureAPIKey failed on second call: %v", err)
	}

	if first != second {
		t.Errorf("Expected stable key, got %q then %q", first, second)
	}
	if !strings.HasPrefix(first, "rk-") || len(first) != 35 {
		t.Errorf("Unexpected key format: %q", first)
	}
}
