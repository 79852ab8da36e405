package httpapi

import (
	"time"

	"github.com/claimcore/core/internal/ratelimit"
)

// CORSConfig holds CORS configuration for the ingress surface.
type CORSConfig struct {
	Enabled        bool     `env:"ENABLED" envDefault:"true"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	AllowedMethods []string `env:"ALLOWED_METHODS" envDefault:"GET,POST,DELETE,OPTIONS" envSeparator:","`
	AllowedHeaders []string `env:"ALLOWED_HEADERS" envDefault:"Content-Type,X-API-Key" envSeparator:","`
	MaxAge         int      `env:"MAX_AGE" envDefault:"86400"`
}

// Config configures the ingress HTTP server.
type Config struct {
	Addr            string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	MaxHeaderBytes  int           `env:"HTTP_MAX_HEADER_BYTES" envDefault:"1048576"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	CORS      CORSConfig       `envPrefix:"CORS_"`
	RateLimit ratelimit.Config `envPrefix:"RATE_LIMIT_"`
}

// DefaultConfig returns sane defaults matching Config's env defaults.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 30 * time.Second,
		CORS: CORSConfig{
			Enabled:        true,
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "X-API-Key"},
			MaxAge:         86400,
		},
		RateLimit: ratelimit.DefaultConfig(),
	}
}
