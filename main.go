package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"gitea.com/go-chi/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"feidelogin/authenticator"
	"feidelogin/config"
	"feidelogin/controllers"
	"feidelogin/database"
	authmiddleware "feidelogin/middleware"
	"feidelogin/repositories"
	"feidelogin/services"
	"feidelogin/sessions"
)

func main() {
	// Load environment variables from .env file, if present
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize audit database
	db, err := database.InitializeDatabase(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Initialize repositories
	repos := repositories.NewRepositories(db)

	// Initialize OIDC provider
	provider, err := authenticator.NewOpenIDProvider(authenticator.Config{
		Issuer:       cfg.ProviderBaseURI,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI(),
		Scopes:       cfg.Scopes,
	})
	if err != nil {
		log.Fatalf("Failed to initialize OIDC provider: %v", err)
	}

	// Run endpoint discovery up front: without the provider's discovery
	// document the process must not serve traffic.
	if _, err := provider.Endpoints(context.Background()); err != nil {
		log.Fatalf("Failed to discover OIDC endpoints: %v", err)
	}

	// Initialize session store, services and controllers
	store := sessions.NewMemoryStore()
	srvs := services.NewServices(repos, provider, cfg.GroupsBaseURI, provider.HTTPClient())
	ctrl := controllers.NewControllers(provider, store, srvs)

	// Set up router
	r, err := setupRouter(ctrl, store, cfg)
	if err != nil {
		log.Fatalf("Failed to setup router: %v", err)
	}

	fmt.Printf("feidelogin starting on port %s\n", cfg.Port)
	fmt.Printf("Visit: %s\n", cfg.AppBaseURI)

	log.Fatal(http.ListenAndServe(":"+cfg.Port, r))
}

// setupRouter configures all routes
func setupRouter(ctrl *controllers.Controllers, store sessions.Store, cfg *config.Config) (*chi.Mux, error) {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second)) // bound for the blocking OAuth calls
	r.Use(middleware.Compress(5))

	// Session middleware mints the opaque per-browser session identifier
	sessionHandler, err := session.Sessioner(session.Options{
		Provider:       "memory",
		ProviderConfig: "",
		CookieName:     "feidelogin_session",
		Secure:         cfg.UseHTTPS,
		Gclifetime:     cfg.SessionLifetime,
		Maxlifetime:    cfg.SessionLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session: %w", err)
	}
	r.Use(sessionHandler)
	r.Use(authmiddleware.Identify(store))

	r.Get("/", ctrl.Auth.Index)
	r.Get("/redirect_uri", ctrl.Auth.Callback)
	r.Get("/logout", ctrl.Auth.Logout)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status": "healthy", "service": "feidelogin"}`)
	})

	return r, nil
}
