package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds the complete application configuration, loadable from
// environment variables (SHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage      string `default:"postgres" usage:"Storage backend: postgres or memory"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisAddr    string `usage:"Redis address for idempotency keys and rate limits; empty keeps both in process" flag:"redis-addr"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (SHOP_API_KEY_PEPPER)" flag:"api-key-pepper"`
	AdminAPIKey  string `usage:"Admin API key registered at startup in memory mode" flag:"admin-api-key"`
	Kafka        KafkaConfig
	JWT          JWTConfig
	Order        OrderConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// KafkaConfig controls order event publishing. No brokers disables it.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka bootstrap brokers"`
	Topic   string   `default:"storefront.orders" usage:"Order events topic"`
}

// JWTConfig controls customer access tokens.
type JWTConfig struct {
	Secret string        `usage:"HMAC secret for customer tokens (SHOP_JWT_SECRET)"`
	TTL    time.Duration `default:"24h" usage:"Customer token lifetime"`
}

// OrderConfig bounds order placement.
type OrderConfig struct {
	PlaceTimeout        time.Duration `default:"5s" usage:"Upper bound for a single order placement" flag:"place-timeout"`
	CompensationTimeout time.Duration `default:"5s" usage:"Upper bound for releasing stock after a failed placement" flag:"compensation-timeout"`
	WriteTimeout        time.Duration `default:"5s" usage:"Upper bound for each stock reservation and order insert" flag:"write-timeout"`
	IdempotencyTTL      time.Duration `default:"24h" usage:"Lifetime of idempotency keys" flag:"idempotency-ttl"`
	InFlightTTL         time.Duration `default:"1m" usage:"Lifetime of an idempotency key whose order is not stored yet" flag:"in-flight-ttl"`
}

// RateLimitConfig controls the per-customer order placement limiter.
type RateLimitConfig struct {
	Max    int           `default:"30" usage:"Max order placements per window; zero disables"`
	Window time.Duration `default:"1m" usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SHOP",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that depend on each other.
func (c *Config) Validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
		}
	case StorageMemory:
	default:
		return errors.Errorf("unknown storage %q", c.Storage)
	}
	if c.JWT.Secret == "" {
		return errors.New("JWT secret is required: set SHOP_JWT_SECRET")
	}
	if c.Order.PlaceTimeout < 0 || c.Order.CompensationTimeout < 0 || c.Order.WriteTimeout < 0 {
		return errors.New("order timeouts must not be negative")
	}
	if c.Order.InFlightTTL > 0 && c.Order.InFlightTTL <= c.Order.PlaceTimeout {
		return errors.Errorf("in-flight TTL %s must exceed place timeout %s", c.Order.InFlightTTL, c.Order.PlaceTimeout)
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's SHOP_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
