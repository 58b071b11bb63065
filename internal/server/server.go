package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"gorm.io/gorm"

	"makecoffee/internal/accounts"
	"makecoffee/internal/catalog"
	"makecoffee/internal/handlers"
	applog "makecoffee/internal/log"
	"makecoffee/internal/metrics"
	"makecoffee/internal/recipes"
	"makecoffee/internal/storage"
)

// Config captures the runtime configuration for the HTTP server.
type Config struct {
	Addr     string
	Session  SessionConfig
	Database *gorm.DB
	// ObjectStore holds ingredient images. Nil disables image handling.
	ObjectStore catalog.ObjectStore
	PresignTTL  time.Duration
	LoginRate   RateConfig
	// TrustProxyHeaders lets forwarding headers identify the client.
	TrustProxyHeaders bool
	Metrics           bool
}

// SessionConfig controls session behavior for the HTTP server.
type SessionConfig struct {
	Lifetime     time.Duration
	CookieName   string
	CookieDomain string
	CookieSecure bool
	// Store persists session data. Nil keeps sessions in process memory.
	Store scs.Store
}

// RateConfig throttles login attempts per client address.
type RateConfig struct {
	PerMinute int
	Burst     int
}

// Server wraps an http.Server and exposes helpers for bootstrapping a
// production-ready web service.
type Server struct {
	config     Config
	httpServer *http.Server
}

// New builds a new Server using the provided configuration.
func New(cfg Config) (*Server, error) {
	applog.Debug(context.Background(), "initializing server",
		"addr", cfg.Addr,
		"sessionLifetime", cfg.Session.Lifetime.String(),
		"sessionCookie", cfg.Session.CookieName,
	)

	sessionCfg := cfg.Session
	if sessionCfg.Lifetime <= 0 {
		applog.Debug(context.Background(), "session lifetime not provided, using default")
		sessionCfg.Lifetime = 12 * time.Hour
	}
	if strings.TrimSpace(sessionCfg.CookieName) == "" {
		applog.Debug(context.Background(), "session cookie name not provided, using default")
		sessionCfg.CookieName = "session_id"
	}

	sessionManager := scs.New()
	sessionManager.Lifetime = sessionCfg.Lifetime
	sessionManager.Cookie.Name = sessionCfg.CookieName
	sessionManager.Cookie.Domain = sessionCfg.CookieDomain
	sessionManager.Cookie.HttpOnly = true
	sessionManager.Cookie.Persist = true
	sessionManager.Cookie.SameSite = http.SameSiteLaxMode
	sessionManager.Cookie.Secure = sessionCfg.CookieSecure
	if sessionCfg.Store != nil {
		sessionManager.Store = sessionCfg.Store
	}

	applog.Debug(context.Background(), "session manager configured",
		"cookieName", sessionCfg.CookieName,
		"cookieDomain", sessionCfg.CookieDomain,
		"cookieSecure", sessionCfg.CookieSecure,
		"sharedStore", sessionCfg.Store != nil,
	)

	deps := handlers.Dependencies{
		Sessions:          sessionManager,
		LoginPerMinute:    cfg.LoginRate.PerMinute,
		LoginBurst:        cfg.LoginRate.Burst,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
	}
	if cfg.Database != nil {
		objectStore := cfg.ObjectStore
		if objectStore == nil {
			applog.Warn(context.Background(), "object storage not configured, ingredient images are disabled")
			objectStore = storage.Disabled{}
		}
		var opts []recipes.Option
		if cfg.Metrics {
			opts = append(opts, recipes.WithRecorder(metrics.Workflow{}))
		}
		deps.Catalog = catalog.NewService(cfg.Database, objectStore, cfg.PresignTTL)
		deps.Recipes = recipes.NewService(cfg.Database, opts...)
		deps.Accounts = accounts.NewService(cfg.Database)
	}
	handlers.Configure(deps)

	applog.Debug(context.Background(), "handler dependencies configured", "database", cfg.Database != nil)

	var handler http.Handler = handlers.Identify(requestLogger(newRouter(cfg.Metrics)))
	handler = sessionManager.LoadAndSave(handler)
	if cfg.Metrics {
		handler = metrics.InstrumentHandler(handler)
	}

	applog.Debug(context.Background(), "http handler chain prepared")

	return &Server{
		config: cfg,
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// Start begins serving HTTP traffic using the underlying http.Server.
func (s *Server) Start() error {
	applog.Debug(context.Background(), "server starting listener", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server with a timeout.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	applog.Debug(ctx, "server initiating graceful shutdown")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the configured HTTP handler, enabling integration tests.
func (s *Server) Handler() http.Handler {
	applog.Debug(context.Background(), "server handler requested")
	return s.httpServer.Handler
}
