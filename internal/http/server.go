// Package http exposes the expensync REST API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"expensync/internal/auth"
	applog "expensync/internal/log"
	"expensync/internal/metrics"
	"expensync/internal/middleware/ratelimit"
	"expensync/internal/middleware/security"
	"expensync/internal/middleware/trace"
	"expensync/internal/services"
)

// Dependencies wires the server to the service layer.
type Dependencies struct {
	Users     *services.UserService
	Expenses  *services.ExpenseService
	Push      *services.PushService
	Dashboard *services.DashboardService
	Tokens    *auth.Issuer
	Metrics   *metrics.Metrics
	Logger    *applog.Logger

	// Ready reports whether the server can take traffic, typically a
	// database ping.
	Ready func(ctx context.Context) error

	RateLimit     ratelimit.Config
	PhotoMaxBytes int64
}

type Server struct {
	http.Server

	users     *services.UserService
	expenses  *services.ExpenseService
	push      *services.PushService
	dashboard *services.DashboardService
	tokens    *auth.Issuer
	metrics   *metrics.Metrics
	logger    *applog.Logger
	ready     func(ctx context.Context) error

	validator     *Validator
	rateLimiter   *ratelimit.Limiter
	detector      *security.Detector
	photoMaxBytes int64

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		users:         deps.Users,
		expenses:      deps.Expenses,
		push:          deps.Push,
		dashboard:     deps.Dashboard,
		tokens:        deps.Tokens,
		metrics:       deps.Metrics,
		logger:        logger,
		ready:         deps.Ready,
		validator:     NewValidator(),
		rateLimiter:   ratelimit.NewLimiter(deps.RateLimit),
		detector:      security.NewDetector(logger.WithComponent(applog.ComponentSecurity).Slog()),
		photoMaxBytes: deps.PhotoMaxBytes,
	}
	s.Handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(trace.NewMiddleware(s.logger, s.detector.ExtractClientIP).Middleware)
	if s.metrics != nil {
		r.Use(s.metrics.Instrument)
	}
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.detector.Middleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusNotFound, "not found").Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, "method not allowed").Write(w)
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.rateLimiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
			ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").Write(w)
		}))

		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Get("/me", s.handleMe)

			r.Route("/expenses", func(r chi.Router) {
				r.Get("/", s.handleListExpenses)
				r.Post("/", s.handleCreateExpense)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetExpense)
					r.Put("/", s.handleUpdateExpense)
					r.Delete("/", s.handleDeleteExpense)
					r.Post("/photo", s.handleUploadPhoto)
					r.Get("/photo", s.handleGetPhoto)
				})
			})
			r.Get("/summary", s.handleSummary)

			r.Post("/push-tokens", s.handleRegisterPushToken)
			r.Delete("/push-tokens/{token}", s.handleDeletePushToken)

			r.Route("/admin", func(r chi.Router) {
				r.Use(requireAdmin)
				r.Get("/users", s.handleAdminListUsers)
				r.Put("/users/{id}/role", s.handleAdminSetRole)
				r.Put("/users/{id}/disabled", s.handleAdminSetDisabled)
				r.Delete("/users/{id}", s.handleAdminDeleteUser)
				r.Get("/dashboard", s.handleAdminDashboard)
				r.Post("/notifications", s.handleAdminBroadcast)
			})
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.WarnContext(ctx, "Readiness check failed", applog.FieldError, err)
			ErrorResponse(http.StatusServiceUnavailable, "not ready").Write(w)
			return
		}
	}
	NewResponse().JSON(map[string]string{"status": "ready"}).Write(w)
}

// Shutdown stops background routines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
