package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/mmichie/umrahdesk/client"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/oauth2"
)

const version = "0.1.0"

var sensitivePattern = regexp.MustCompile(`(?i)(sql|database|token|password|secret|key)`)

// AgencyAPI is the part of the agency API the server calls.
type AgencyAPI interface {
	PermissionSource
	CatalogSource
	Login(ctx context.Context, email, password string) (*oauth2.Token, error)
	FetchBooking(ctx context.Context, sess SessionContext, bookingID string) (map[string]interface{}, error)
	Ping(ctx context.Context) error
}

type Server struct {
	cfg          *Config
	sessions     SessionRepository
	api          AgencyAPI
	logger       *slog.Logger
	tokenManager *TokenManager
	auth         *AuthMiddleware
	cors         *CORSMiddleware
	health       *HealthChecker
	accesses     *AccessStore
	catalogs     *CatalogCache
	aggregator   *Aggregator
	metrics      *Metrics
	registry     *prometheus.Registry
	mux          *http.ServeMux
	handler      http.Handler
}

func (s *Server) logError(err error, msg string) {
	logSanitizedError(s.logger, err, msg)
}

// logSanitizedError logs err with credentials and tokens redacted.
func logSanitizedError(logger *slog.Logger, err error, msg string, args ...interface{}) {
	errStr := sensitivePattern.ReplaceAllString(err.Error(), "[REDACTED]")

	logger.Error(msg, append([]interface{}{
		"error_type", fmt.Sprintf("%T", err),
		"sanitized_error", errStr,
	}, args...)...)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func NewServer(cfg *Config, db *DB, api AgencyAPI) (*Server, error) {
	return newServer(cfg, db, db, api)
}

// newServer takes the session repository separately from the database so
// tests can run handlers without Postgres.
func newServer(cfg *Config, sessions SessionRepository, db *DB, api AgencyAPI) (*Server, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	tokenManager, err := NewTokenManager(cfg.TokenTTL)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	api = meteredAgencyAPI{AgencyAPI: api, metrics: metrics}

	accesses := NewAccessStore(15 * time.Minute)

	srv := &Server{
		cfg:          cfg,
		sessions:     sessions,
		api:          api,
		logger:       logger,
		tokenManager: tokenManager,
		cors:         NewCORSMiddleware(NewCORSConfig(cfg.AllowedOrigins)),
		accesses:     accesses,
		catalogs:     NewCatalogCache(api, cfg.CatalogCacheSize, cfg.CatalogTTL, metrics),
		aggregator:   NewAggregator(cfg.CurrencyPolicy, cfg.DefaultRiyalRate),
		metrics:      metrics,
		registry:     registry,
		mux:          http.NewServeMux(),
	}

	srv.auth = NewAuthMiddleware(tokenManager, sessions, accesses, api, cfg.KnownResources, metrics, logger)
	srv.health = NewHealthChecker(version, db, api, logger)
	srv.routes()

	srv.handler = srv.cors.Handler(
		NewCSRFMiddleware(NewCSRFConfig(cfg))(
			NewValidationMiddleware(MaxRequestBodyBytes).Handler(srv.mux),
		),
	)
	return srv, nil
}

func (s *Server) route(pattern string, h http.Handler) {
	s.mux.Handle(pattern, s.metrics.Instrument(pattern, h))
}

func (s *Server) routes() {
	authed := s.auth.RequireAuth

	// Public endpoints
	s.route("GET /health", http.HandlerFunc(s.handleHealth))
	s.route("GET /metrics", metricsHandler(s.registry))
	s.route("GET /csrf/token", http.HandlerFunc(s.handleGetCSRFToken))
	s.route("GET /.well-known/jwks.json", http.HandlerFunc(s.handleJWKS))
	s.route("POST /auth/login", http.HandlerFunc(s.handleLogin))

	// Session endpoints
	s.route("POST /auth/logout", authed(http.HandlerFunc(s.handleLogout)))
	s.route("GET /me/permissions", authed(http.HandlerFunc(s.handleMyPermissions)))
	s.route("POST /me/permissions/refresh", authed(http.HandlerFunc(s.handleRefreshPermissions)))
	s.route("GET /me/capabilities", authed(http.HandlerFunc(s.handleCapabilities)))

	// Invoices
	s.route("GET /bookings/{id}/invoice", authed(
		s.auth.RequireAnyCapability(
			Capability{Action: ActionView, Resource: "booking"},
			Capability{Action: ActionView, Resource: "invoice"},
		)(http.HandlerFunc(s.handleBookingInvoice)),
	))
	s.route("POST /invoices/preview", authed(
		s.auth.RequireCapability(ActionAdd, "booking")(http.HandlerFunc(s.handleInvoicePreview)),
	))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := s.health.CheckHealth(ctx)

	status := http.StatusOK
	if response.Status == StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}

	s.logger.Info("health check completed",
		"status", response.Status,
		"checks", len(response.Checks),
		"duration", time.Since(response.CheckTime),
	)

	s.writeJSON(w, status, response)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("received request",
		"method", r.Method,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr,
	)

	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-XSS-Protection", "1; mode=block")

	s.handler.ServeHTTP(w, r)
}

// Close stops background work. It does not close the database.
func (s *Server) Close() {
	s.accesses.Close()
}

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	db, err := NewDB(cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	srv, err := NewServer(cfg, db, client.NewClient(cfg.AgencyAPIURL, cfg.AgencyClientID))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create server: %v\n", err)
		os.Exit(1)
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		srv.logger.Info("starting server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			srv.logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	srv.logger.Info("shutting down server", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		srv.logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	srv.logger.Info("server stopped gracefully")
}
