// Package ratelimit provides per-API-key HTTP rate limiting middleware.
package ratelimit

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/claimcore/core/internal/auth"
)

// Config configures the limiter.
type Config struct {
	Enabled           bool    `env:"ENABLED" envDefault:"true"`
	RequestsPerSecond float64 `env:"REQUESTS_PER_SECOND" envDefault:"1000"`
	BurstSize         int     `env:"BURST_SIZE" envDefault:"2000"`

	// CleanupInterval is how often idle client entries are evicted.
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"5m"`
}

// DefaultConfig returns sensible defaults matching Config's env defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		RequestsPerSecond: 1000,
		BurstSize:         2000,
		CleanupInterval:   5 * time.Minute,
	}
}

// clientLimiter pairs a token-bucket limiter with its last-seen time, so
// the cleanup loop can evict entries for clients that stopped sending
// requests.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter rate-limits requests per client, keyed by the authenticated
// app_id; requests without an app_id are passed through unlimited.
type Limiter struct {
	cfg     Config
	logger  *slog.Logger
	mu      sync.Mutex
	clients map[string]*clientLimiter
	stop    chan struct{}
}

// New creates a Limiter and starts its idle-cleanup goroutine.
func New(cfg Config, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Limiter{
		cfg:     cfg,
		logger:  logger.With("component", "ratelimit"),
		clients: make(map[string]*clientLimiter),
		stop:    make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Stop halts the idle-cleanup goroutine.
func (l *Limiter) Stop() {
	close(l.stop)
}

// Middleware enforces the per-client rate limit, responding 429 with a
// Retry-After header when exceeded.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	if !l.cfg.Enabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		appID := auth.GetAppID(r.Context())
		if appID == "" {
			// Unauthenticated routes (health, metrics) are not subject to
			// per-key limiting; they skip auth entirely so there's no key.
			next.ServeHTTP(w, r)
			return
		}
		if !l.allow("app:" + appID) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":   "rate_limit_exceeded",
				"message": "too many requests, please slow down",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *Limiter) allow(key string) bool {
	l.mu.Lock()
	cl, ok := l.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.BurstSize)}
		l.clients[key] = cl
	}
	cl.lastSeen = time.Now()
	l.mu.Unlock()

	return cl.limiter.Allow()
}

func (l *Limiter) cleanupLoop() {
	interval := l.cfg.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanup(interval)
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) cleanup(interval time.Duration) {
	threshold := time.Now().Add(-2 * interval)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, cl := range l.clients {
		if cl.lastSeen.Before(threshold) {
			delete(l.clients, key)
		}
	}
}
