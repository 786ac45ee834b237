// Package server wires the engine components behind the admin HTTP API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/piwi3910/tenantcore/internal/api/admin"
	apimiddleware "github.com/piwi3910/tenantcore/internal/api/middleware"
	"github.com/piwi3910/tenantcore/internal/audit"
	"github.com/piwi3910/tenantcore/internal/cache"
	"github.com/piwi3910/tenantcore/internal/config"
	"github.com/piwi3910/tenantcore/internal/health"
	"github.com/piwi3910/tenantcore/internal/isolation"
	"github.com/piwi3910/tenantcore/internal/security"
	"github.com/piwi3910/tenantcore/internal/shutdown"
	"github.com/piwi3910/tenantcore/internal/store"
)

// Version is the current version of tenantcore.
const Version = "0.1.0"

// Server is the engine daemon.
type Server struct {
	cfg *config.Config

	resolver     *isolation.Resolver
	hierarchy    *isolation.HierarchyValidator
	guard        *security.Guard
	attemptStore security.AttemptStore
	tenantStore  *store.TenantStore
	tenantCache  *cache.TenantCache

	healthChecker *health.Checker
	auditLogger   *audit.Logger
	inFlight      *apimiddleware.InFlight
	coordinator   *shutdown.Coordinator

	adminServer *http.Server
}

// New creates the engine daemon from validated configuration.
func New(cfg *config.Config) (*Server, error) {
	srv := &Server{
		cfg:      cfg,
		inFlight: apimiddleware.NewInFlight(),
	}

	mt := &cfg.MultiTenancy

	srv.resolver = isolation.NewResolver(mt)
	srv.hierarchy = isolation.NewHierarchyValidator(mt)

	switch mt.Security.AttemptStore {
	case config.ContextStorageRedis:
		srv.attemptStore = security.NewRedisStore(cfg.Redis)

		log.Info().Str("addr", cfg.Redis.Addr).Msg("Using Redis attempt store")
	default:
		srv.attemptStore = security.NewMemoryStore()
	}

	srv.guard = security.NewGuard(mt.Security, srv.attemptStore)

	allowUnscoped := mt.Context.AllowCrossTenantAccess

	var err error

	srv.tenantStore, err = store.Open(cfg.DataDir, srv.resolver, allowUnscoped)
	if err != nil {
		return nil, fmt.Errorf("failed to open tenant store: %w", err)
	}

	srv.tenantCache = cache.NewTenantCache(cache.NewSharded(0, 0), srv.resolver, allowUnscoped)

	srv.healthChecker = health.NewChecker(srv.attemptStore, srv.tenantStore)

	if cfg.Audit.Enabled {
		auditPath := cfg.Audit.FilePath
		if auditPath == "" {
			auditPath = filepath.Join(cfg.DataDir, "audit.log")
		}

		integritySecret := ""
		if cfg.Audit.IntegrityEnabled {
			integritySecret = cfg.Audit.IntegritySecret
		}

		srv.auditLogger, err = audit.NewLogger(audit.Config{
			FilePath:        auditPath,
			BufferSize:      cfg.Audit.BufferSize,
			IntegritySecret: integritySecret,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize audit logger: %w", err)
		}

		log.Info().Str("path", auditPath).Msg("Audit logger initialized")
	}

	srv.coordinator = shutdown.NewCoordinator(shutdownConfig(cfg.Shutdown))

	srv.setupAdminServer()

	return srv, nil
}

// shutdownConfig maps daemon configuration onto coordinator timeouts,
// filling the phases the config does not expose with defaults.
func shutdownConfig(cfg config.ShutdownConfig) shutdown.Config {
	out := shutdown.DefaultConfig()

	if cfg.TotalTimeout > 0 {
		out.TotalTimeout = cfg.TotalTimeout
	}
	if cfg.DrainTimeout > 0 {
		out.DrainTimeout = cfg.DrainTimeout
	}
	if cfg.HTTPTimeout > 0 {
		out.HTTPTimeout = cfg.HTTPTimeout
	}

	return out
}

func (s *Server) setupAdminServer() {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(apimiddleware.RequestID)
	r.Use(s.inFlight.Middleware)
	r.Use(apimiddleware.MetricsMiddleware)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Tenant-ID", "X-Organization-ID", "X-Department-ID", "X-User-ID"},
		ExposedHeaders:   []string{apimiddleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	healthHandler := health.NewHandler(s.healthChecker)
	r.Get("/health", healthHandler.HealthHandler)
	r.Get("/health/live", healthHandler.LivenessHandler)
	r.Get("/health/ready", healthHandler.ReadinessHandler)

	r.Handle("/metrics", promhttp.Handler())

	mt := &s.cfg.MultiTenancy
	extractor := apimiddleware.NewTenantExtractor(mt.Context, mt.Security.JWTSecret, s.auditLogger)
	enforcer := apimiddleware.NewSecurityEnforcer(s.guard, s.auditLogger)

	adminHandler := admin.NewHandler(s.guard, s.resolver, s.hierarchy, s.tenantStore, s.tenantCache)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(extractor.Middleware)
		r.Use(enforcer.Middleware)

		adminHandler.RegisterRoutes(r)
		r.Get("/health/detailed", healthHandler.DetailedHandler)
	})

	s.adminServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.AdminPort),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// Start starts the daemon and blocks until ctx is cancelled and shutdown
// completes.
func (s *Server) Start(ctx context.Context) error {
	if s.auditLogger != nil {
		s.auditLogger.Start(ctx)
		log.Info().Msg("Audit logger started")
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Int("port", s.cfg.AdminPort).Msg("Starting admin API server")
		log.Info().Int("port", s.cfg.AdminPort).Msg("Prometheus metrics available at /metrics")

		if err := s.adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("admin server error: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		return s.coordinator.Shutdown(context.Background(), shutdown.ShutdownComponents{
			HTTPServers:     []shutdown.HTTPServerShutdown{namedServer{name: "admin", srv: s.adminServer}},
			AuditLogger:     auditStopper(s.auditLogger),
			AttemptStore:    s.attemptStore,
			TenantStore:     s.tenantStore,
			InFlightTracker: s.inFlight,
		})
	})

	return g.Wait()
}

// Coordinator exposes the shutdown coordinator for readiness integration.
func (s *Server) Coordinator() *shutdown.Coordinator {
	return s.coordinator
}

// auditStopper adapts a possibly-nil audit logger to the coordinator.
func auditStopper(l *audit.Logger) shutdown.StoppableNoError {
	if l == nil {
		return nil
	}

	return l
}

// namedServer pairs an HTTP server with a name for shutdown logging.
type namedServer struct {
	name string
	srv  *http.Server
}

func (n namedServer) Name() string { return n.name }

func (n namedServer) Shutdown(ctx context.Context) error { return n.srv.Shutdown(ctx) }

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("Admin request")
	})
}
