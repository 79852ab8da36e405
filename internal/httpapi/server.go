// Package httpapi implements the ingress HTTP surface: claim submission,
// task and webhook status lookup, cleanup, health, and metrics.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/claimcore/core/internal/auth"
	"github.com/claimcore/core/internal/compute"
	"github.com/claimcore/core/internal/health"
	"github.com/claimcore/core/internal/idempotency"
	"github.com/claimcore/core/internal/lifecycle"
	"github.com/claimcore/core/internal/queue"
	"github.com/claimcore/core/internal/ratelimit"
)

// Server wires the ingress HTTP handlers together over a plain
// http.ServeMux, matching the composition style the rest of this core
// uses for its NATS and worker-pool wiring.
type Server struct {
	httpServer *http.Server
	cfg        Config
	logger     *slog.Logger
}

// Deps bundles the adapters the ingress handlers need.
type Deps struct {
	Auth           *auth.Module
	RateLimit      *ratelimit.Limiter
	Manager        *lifecycle.Manager
	ComputeQueue   *queue.Publisher
	ComputeFn      compute.Func
	Idempotency    *idempotency.Module
	Health         *health.Checker
	MetricsHandler http.Handler
	Logger         *slog.Logger
}

// New builds the ingress HTTP server and registers all routes.
func New(cfg Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "httpapi")

	h := &handlers{
		manager:      deps.Manager,
		computeQueue: deps.ComputeQueue,
		computeFn:    deps.ComputeFn,
		idempotency:  deps.Idempotency,
		health:       deps.Health,
		writeTimeout: cfg.WriteTimeout,
		logger:       logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /process-claim-basic", h.processClaim("basic"))
	mux.HandleFunc("POST /process-claim-extended", h.processClaim("extended"))
	mux.HandleFunc("POST /process-claim-complete", h.processClaim("complete"))
	mux.HandleFunc("GET /task-status/{task_id}", h.taskStatus)
	mux.HandleFunc("GET /webhook-status/{webhook_id}", h.getWebhookStatus)
	mux.HandleFunc("DELETE /webhook-status/{webhook_id}", h.deleteWebhookStatus)
	mux.HandleFunc("GET /webhook-statuses", h.listWebhookStatuses)
	mux.HandleFunc("DELETE /webhook-statuses", h.bulkDeleteWebhookStatuses)
	mux.HandleFunc("POST /webhook-cleanup", h.webhookCleanup)
	mux.HandleFunc("GET /health", h.healthCheck)
	if deps.MetricsHandler != nil {
		mux.Handle("GET /metrics", deps.MetricsHandler)
	}
	if deps.Auth != nil {
		deps.Auth.RegisterAdminRoutes(mux)
	}

	var handler http.Handler = mux
	if deps.Auth != nil {
		handler = withAuthExcept(deps.Auth, handler, "/health", "/metrics")
	}
	if deps.RateLimit != nil {
		handler = deps.RateLimit.Middleware(handler)
	}
	handler = cors(cfg.CORS)(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:           cfg.Addr,
			Handler:        handler,
			ReadTimeout:    cfg.ReadTimeout,
			WriteTimeout:   cfg.WriteTimeout,
			IdleTimeout:    cfg.IdleTimeout,
			MaxHeaderBytes: cfg.MaxHeaderBytes,
		},
		cfg:    cfg,
		logger: logger,
	}
}

// withAuthExcept applies the auth middleware to every path except the
// ones listed; expressed here since the auth module's skip-list is
// private to it.
func withAuthExcept(a *auth.Module, next http.Handler, except ...string) http.Handler {
	skip := make(map[string]bool, len(except))
	for _, p := range except {
		skip[p] = true
	}
	authed := a.AuthMiddleware()(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if skip[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		authed.ServeHTTP(w, r)
	})
}

// ListenAndServe starts the HTTP server. It blocks until the server
// stops or errors.
func (s *Server) ListenAndServe() error {
	s.logger.Info("ingress http server starting", "addr", s.cfg.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server, bounded by cfg.ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
