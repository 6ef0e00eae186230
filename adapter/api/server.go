// Package api serves the billing HTTP API: processor webhooks, checkout,
// portal, catalog and gated content.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixgeelhaar/reformer/pkg/observability"
)

// Server is the HTTP API server.
type Server struct {
	mux      *http.ServeMux
	server   *http.Server
	logger   *slog.Logger
	deps     Dependencies
	auth     *Authenticator
	metrics  observability.Metrics
	health   *observability.Health
	validate *requestValidator
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// PublicOrigin is used for redirect URLs when the request has no Origin header.
	PublicOrigin string
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         "0.0.0.0:8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		PublicOrigin: "http://localhost:3000",
	}
}

// Dependencies are the application services behind the routes.
type Dependencies struct {
	Verifier   WebhookVerifier
	Reconciler EventReconciler
	Checkout   CheckoutStarter
	Portal     PortalOpener
	Playback   PlaybackIssuer
	Access     AccessReader
	Videos     VideoLister

	Auth    *Authenticator
	Health  *observability.Health
	Metrics observability.Metrics
	// MetricsHandler serves GET /metrics when set.
	MetricsHandler http.Handler
}

// NewServer creates a new API server.
func NewServer(cfg ServerConfig, deps Dependencies, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NoopMetrics{}
	}
	if deps.Health == nil {
		deps.Health = observability.NewHealth()
	}

	s := &Server{
		mux:      http.NewServeMux(),
		logger:   logger,
		deps:     deps,
		auth:     deps.Auth,
		metrics:  deps.Metrics,
		health:   deps.Health,
		validate: newRequestValidator(),
	}
	s.registerRoutes(cfg.PublicOrigin)

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return s.recoverPanics(s.requestContext(s.observe(s.mux)))
}

func (s *Server) registerRoutes(publicOrigin string) {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ready", s.handleReady)
	if s.deps.MetricsHandler != nil {
		s.mux.Handle("GET /metrics", s.deps.MetricsHandler)
	}

	webhooks := &webhookHandler{verifier: s.deps.Verifier, reconciler: s.deps.Reconciler, logger: s.logger}
	s.mux.Handle("POST /api/webhooks/stripe", webhooks)

	billing := &billingHandler{server: s, publicOrigin: publicOrigin}
	s.mux.HandleFunc("GET /api/products", billing.listProducts)
	s.mux.HandleFunc("POST /api/create-checkout-session", s.requireAuth(billing.createCheckoutSession))
	s.mux.HandleFunc("POST /api/create-portal-session", s.requireAuth(billing.createPortalSession))
	s.mux.HandleFunc("GET /api/me/access", s.requireAuth(billing.accessSummary))
	s.mux.HandleFunc("GET /api/me/subscription", s.requireAuth(billing.latestSubscription))

	content := &contentHandler{server: s}
	s.mux.HandleFunc("GET /api/videos", s.requireAuth(content.listVideos))
	s.mux.HandleFunc("POST /api/video/token", s.requireAuth(content.issueToken))
	s.mux.HandleFunc("GET /api/videos/{id}/stream", s.requireAuth(content.stream))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := s.health.Evaluate(ctx)
	status := http.StatusOK
	if health.Status == observability.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

// Start starts the API server.
func (s *Server) Start() error {
	s.logger.Info("starting billing API server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down billing API server")
	return s.server.Shutdown(ctx)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Log error but can't do much at this point
			slog.Error("failed to encode JSON response", "error", err)
		}
	}
}
