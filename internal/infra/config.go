package infra

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config represents application configuration loaded from environment
// variables. All binaries share this one struct.
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"development"`
	Port   string `env:"PORT" envDefault:"8080"`

	// DATABASE_URL may be left empty in development; the API then runs on
	// an in-memory store with seeded credits.
	DatabaseURL string `env:"DATABASE_URL"`

	RedisAddr      string        `env:"REDIS_ADDR"`
	RedisPassword  string        `env:"REDIS_PASSWORD"`
	StatusCacheTTL time.Duration `env:"STATUS_CACHE_TTL" envDefault:"24h"`

	JWTSecret string `env:"JWT_SECRET"`

	ProviderBaseURL string `env:"PROVIDER_BASE_URL" envDefault:"https://api.mediagen.io/v1"`
	ProviderAPIKey  string `env:"PROVIDER_API_KEY"`

	// Refund policy for terminal failures. Synchronous rejection paths
	// always refund regardless of these flags.
	RefundOnFailure bool `env:"REFUND_ON_FAILURE" envDefault:"true"`
	RefundOnTimeout bool `env:"REFUND_ON_TIMEOUT" envDefault:"false"`

	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"30s"`
	SweepBatch    int           `env:"SWEEP_BATCH" envDefault:"100"`

	GeoIPDBPath string `env:"GEOIP_DB_PATH"`

	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:"migrations"`

	HTTPReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	HTTPIdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	RateLimitPerMin  int           `env:"RATE_LIMIT_PER_MINUTE" envDefault:"30"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
}

// LoadConfig parses configuration from the environment and applies defaults.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.JWTSecret == "" {
		if cfg.AppEnv != "development" {
			return nil, fmt.Errorf("JWT_SECRET is required")
		}
		cfg.JWTSecret = "dev-secret"
	}
	return cfg, nil
}
