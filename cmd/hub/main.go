package main

import (
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/romashka-ai/integration-hub/internal/api/handlers"
	"github.com/romashka-ai/integration-hub/internal/api/middleware"
	"github.com/romashka-ai/integration-hub/internal/auth/oauthflow"
	"github.com/romashka-ai/integration-hub/internal/auth/token"
	"github.com/romashka-ai/integration-hub/internal/db"
	"github.com/romashka-ai/integration-hub/internal/monitor"
	"github.com/romashka-ai/integration-hub/internal/providers/catalog"
	"github.com/romashka-ai/integration-hub/internal/providers/registry"
	"github.com/romashka-ai/integration-hub/internal/syncer"
	"github.com/romashka-ai/integration-hub/internal/version"
	"github.com/romashka-ai/integration-hub/internal/webhooks"
)

func main() {
	// .env is optional; real deployments inject env vars directly
	_ = godotenv.Load()

	// Initialize database (Postgres via DATABASE_URL, sqlite fallback)
	database, err := db.InitDB("hub.db")
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Load provider catalog (built-in defaults + optional YAML + env credentials)
	if err := catalog.InitFromEnvAndConfig(); err != nil {
		log.Fatalf("Failed to load provider catalog: %v", err)
	}

	adapters := registry.New(nil)
	tokenStore := token.NewStore(database)
	refresher := token.NewRefresher(tokenStore, adapters)
	syncWorker := syncer.NewWorker(database, tokenStore, refresher, adapters)

	publicBaseURL := os.Getenv("PUBLIC_BASE_URL")
	registrar := webhooks.NewRegistrar(database, tokenStore, refresher, adapters, publicBaseURL)
	aggregator := webhooks.NewAggregator(database)

	requestMonitor := monitor.New(database)

	frontendURL := os.Getenv("FRONTEND_URL")
	if frontendURL == "" {
		frontendURL = "http://localhost:3000"
	}

	// Create router
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestMonitor.Middleware)

	// ============================================
	// Public Routes (No Auth Required)
	// ============================================

	// OAuth flow
	r.Get("/auth/{provider}/connect", oauthflow.HandleConnect())
	r.Get("/auth/{provider}/callback", oauthflow.HandleCallback(database, tokenStore, adapters, frontendURL))

	// Operational introspection
	r.Get("/api/ops/requests", handlers.OpsRequestsHandler(requestMonitor))

	// ============================================
	// Protected Routes (API Key Required)
	// ============================================

	r.Route("/api/integrations", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(database))
		r.Get("/", handlers.ListIntegrationsHandler(database))
		r.Post("/refresh", handlers.RefreshTokenHandler(refresher))
		r.Post("/sync", handlers.SyncHandler(syncWorker))
	})

	r.Route("/api/webhooks", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(database))
		r.Post("/register", handlers.RegisterWebhookHandler(registrar))
		r.Get("/status", handlers.WebhookStatusHandler(aggregator))
	})

	// Start server
	host := os.Getenv("HOST")
	if host == "" {
		host = "127.0.0.1" // Default to localhost, set HOST=0.0.0.0 for LAN access
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	addr := host + ":" + port

	log.Printf("🚀 Integration Hub %s starting on http://%s", version.Version, addr)
	log.Printf("🔑 OAuth connect: http://%s/auth/{provider}/connect", addr)
	log.Printf("🔌 API: http://%s/api", addr)

	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
