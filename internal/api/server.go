package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/org/mdmagent/internal/policystore"
	"github.com/org/mdmagent/internal/syncworker"
	"github.com/org/mdmagent/internal/worktime"
	"github.com/org/mdmagent/pkg/models"
)

const (
	DefaultRateLimit  = 20
	DefaultRateWindow = time.Second
)

// Config holds server configuration.
type Config struct {
	ListenAddr string
	// APIToken, when set, must be presented in X-Agent-Token on mutating routes.
	APIToken string
	// RateLimit requests per RateWindow are accepted from one client IP on
	// mutating routes.
	RateLimit  int
	RateWindow time.Duration
}

// PolicyStore is what the server needs from the policy store.
type PolicyStore interface {
	Current() *models.PolicyDocument
	UpdatePolicy(ctx context.Context, localPayload string) policystore.Result
}

// AccessEngine answers work-time and app access questions.
type AccessEngine interface {
	Decide(packageID string) worktime.Decision
	IsWorkTime() bool
	ShouldRefreshUI() bool
}

// JobQueue triggers background sync jobs.
type JobQueue interface {
	Enqueue(name string) error
	Pending(name string) bool
	Jobs() []string
}

// CallStateObserver consumes telephony state changes.
type CallStateObserver interface {
	Observe(state syncworker.CallState) (bool, error)
}

// PayloadSource supplies the local policy payload from the device configuration.
type PayloadSource interface {
	LocalPayload() string
}

// Store is the persistence the API writes platform data into.
type Store interface {
	InsertCallLogs(ctx context.Context, records []models.CallLogRecord) (int, error)
	SaveLocation(ctx context.Context, loc *models.Location) error
	Ping(ctx context.Context) error
}

// Deps bundles the collaborators of the Server.
type Deps struct {
	Store     Store
	Policies  PolicyStore
	Engine    AccessEngine
	Jobs      JobQueue
	CallState CallStateObserver
	Payload   PayloadSource
	Logger    zerolog.Logger
}

// Server is the local control API.
type Server struct {
	deps    Deps
	cfg     Config
	logger  zerolog.Logger
	httpSrv *http.Server
}

// NewServer creates a Server.
func NewServer(deps Deps, cfg Config) *Server {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = DefaultRateWindow
	}
	s := &Server{
		deps:   deps,
		cfg:    cfg,
		logger: deps.Logger.With().Str("component", "api").Logger(),
	}
	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.BuildRouter(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// BuildRouter wires up all routes and returns a chi router.
func (s *Server) BuildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(metricsMiddleware)
	r.Use(accessLogMiddleware(s.logger))

	// Prometheus metrics (unauthenticated)
	r.Handle("/metrics", MetricsHandler())

	// Read-only routes
	r.Group(func(r chi.Router) {
		r.Get("/v1/sys/health", s.HealthHandler)
		r.Get("/v1/policy", s.PolicyGetHandler)
		r.Get("/v1/worktime", s.WorkTimeHandler)
		r.Get("/v1/apps/{package}/access", s.AppAccessHandler)
		r.Get("/v1/sync", s.SyncListHandler)
	})

	// Mutating routes
	r.Group(func(r chi.Router) {
		r.Use(tokenMiddleware(s.cfg.APIToken))
		r.Use(rateLimitMiddleware(s.cfg.RateLimit, s.cfg.RateWindow, s.logger))

		r.Post("/v1/policy/refresh", s.PolicyRefreshHandler)
		r.Post("/v1/sync/{job}", s.SyncTriggerHandler)
		r.Post("/v1/events/call-state", s.CallStateHandler)
		r.Post("/v1/calllog", s.CallLogIngestHandler)
		r.Post("/v1/location", s.LocationHandler)
	})

	return r
}

// Start begins listening on the configured address. It returns
// http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.cfg.ListenAddr).Msg("starting HTTP server")
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
