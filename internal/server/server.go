// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects handlers, middleware and
// routes, and decides:
//   - Which URL patterns map to which handler functions
//   - What middleware runs on which routes
//   - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
// main.go loads config.Config and passes it to New, which creates:
//
//	sqlite.DB → RequestService / ProfileService / AuthService → handlers
//
// This is the "composition root" pattern: all dependencies are wired in one
// place (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/sevensolidarity/aidboard/internal/auth"
	"github.com/sevensolidarity/aidboard/internal/config"
	"github.com/sevensolidarity/aidboard/internal/handler"
	"github.com/sevensolidarity/aidboard/internal/middleware"
	sqliteRepo "github.com/sevensolidarity/aidboard/internal/repository/sqlite"
	"github.com/sevensolidarity/aidboard/internal/service"
)

const shutdownTimeout = 30 * time.Second

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection. Start closes it after graceful
// shutdown; callers that never Start (tests) call Close.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New opens the database and wires every route.
//
// Discord login routes are only registered when a client id and secret are
// configured; the rest of the API works without them.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	var provider auth.IdentityProvider
	if cfg.OAuthEnabled() {
		provider = auth.NewDiscordProvider(
			cfg.Auth.DiscordClientID,
			cfg.Auth.DiscordClientSecret,
			cfg.Auth.DiscordCallbackURL,
		)
	} else {
		logger.Warn("DISCORD_CLIENT_ID/DISCORD_CLIENT_SECRET not set, Discord login is disabled")
	}
	return newServer(cfg, logger, provider)
}

// newServer is New with the identity provider injected.
func newServer(cfg *config.Config, logger *slog.Logger, provider auth.IdentityProvider) (*Server, error) {
	db, err := sqliteRepo.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(provider); err != nil {
		db.Close() // Clean up DB if route setup fails
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /healthz                              → liveness + DB ping
//	GET    /auth/discord/login                   → start Discord OAuth
//	GET    /auth/discord/callback                → finish Discord OAuth
//	POST   /auth/exchange-token                  → exchange token → session cookie
//	GET    /auth/me                              → current user or null
//	POST   /auth/logout                          → clear session cookie
//	GET    /auth/failure                         → failed login landing
//	GET    /api/requests/tags?q=                 → tag suggestions (public)
//	POST   /api/requests                         → create          [auth]
//	GET    /api/requests                         → search          [auth]
//	GET    /api/requests/{id}                    → get one         [auth]
//	PUT    /api/requests/{id}                    → edit            [auth]
//	DELETE /api/requests/{id}                    → delete          [auth]
//	POST   /api/requests/{id}/respond            → add response    [auth]
//	PUT    /api/requests/{id}/respond/{responseId} → edit response [auth]
//	POST   /api/requests/{id}/close              → close           [auth]
//	GET    /api/profile/me                       → own profile     [auth]
//	PUT    /api/profile/me                       → edit profile    [auth]
//	GET    /api/profile/catalog                  → skills/offers (public)
//	GET    /api/profile/{id}                     → public profile (public)
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID: assigns a unique ID to each request (for tracing)
//  2. RealIP: extracts the real client IP from proxy headers
//  3. Logger: logs each request with timing info and the request ID
//  4. Recoverer: catches panics and returns 500 instead of crashing
//  5. CORS: lets the frontend origin call the API with credentials
func (s *Server) setupRoutes(provider auth.IdentityProvider) error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{s.config.Auth.FrontendURL},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}).Handler)

	tokens, err := auth.NewTokenService(s.config.Auth.JWTSecret, s.config.Auth.SessionTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	// DEPENDENCY CHAIN:
	//   s.db implements repository.RequestRepository and repository.UserRepository.
	//   Services receive the interfaces; handlers receive the services.
	requestService := service.NewRequestService(s.db, s.db, s.logger)
	profileService := service.NewProfileService(s.db, s.config.CatalogTTL, s.logger)
	authService := service.NewAuthService(s.db, tokens, s.logger)

	requestHandler := handler.NewRequestHandler(requestService, s.logger)
	profileHandler := handler.NewProfileHandler(profileService, s.logger)
	healthHandler := handler.NewHealthHandler(s.db, s.logger)
	authHandler := handler.NewAuthHandler(provider, authService, tokens, handler.AuthConfig{
		FrontendURL:  s.config.Auth.FrontendURL,
		CookieSecure: s.config.Auth.CookieSecure,
	}, s.logger)

	s.router.Get("/healthz", healthHandler.HandleHealth)

	s.router.Route("/auth", func(r chi.Router) {
		if provider != nil {
			r.Get("/discord/login", authHandler.HandleLogin)
			r.Get("/discord/callback", authHandler.HandleCallback)
		}
		r.Post("/exchange-token", authHandler.HandleExchangeToken)
		r.With(auth.OptionalAuth(tokens)).Get("/me", authHandler.HandleMe)
		r.Post("/logout", authHandler.HandleLogout)
		r.Get("/failure", authHandler.HandleFailure)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/requests/tags", requestHandler.HandleSuggestTags)
		r.Get("/profile/catalog", profileHandler.HandleCatalog)
		r.Get("/profile/{id}", profileHandler.HandleGetPublic)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))

			r.Post("/requests", requestHandler.HandleCreate)
			r.Get("/requests", requestHandler.HandleList)
			r.Get("/requests/{id}", requestHandler.HandleGet)
			r.Put("/requests/{id}", requestHandler.HandleUpdate)
			r.Delete("/requests/{id}", requestHandler.HandleDelete)
			r.Post("/requests/{id}/respond", requestHandler.HandleRespond)
			r.Put("/requests/{id}/respond/{responseId}", requestHandler.HandleEditResponse)
			r.Post("/requests/{id}/close", requestHandler.HandleClose)

			r.Get("/profile/me", profileHandler.HandleGetMe)
			r.Put("/profile/me", profileHandler.HandleUpdateMe)
		})
	})

	return nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Close the database connection (flushes WAL, releases file lock)
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Server.Port)),
			slog.String("database", s.config.Database.Path),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
