package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL       string        `mapstructure:"REDIS_URL"`
	RedisToken     string        `mapstructure:"REDIS_TOKEN"`
	DefaultTenant  string        `mapstructure:"DEFAULT_TENANT_ID"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimit      int           `mapstructure:"RATE_LIMIT_REQUESTS"`
	RateWindow     time.Duration `mapstructure:"RATE_LIMIT_WINDOW"`
	AuthIssuer     string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string        `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey string        `mapstructure:"AUTH_SIGNING_KEY"`
	SentryDSN      string        `mapstructure:"SENTRY_DSN"`
	CacheTTL       time.Duration `mapstructure:"CACHE_TTL"`

	QueueNames        []string      `mapstructure:"QUEUE_NAMES"`
	QueueLease        time.Duration `mapstructure:"QUEUE_LEASE"`
	WorkerConcurrency int           `mapstructure:"WORKER_CONCURRENCY"`

	MQTTBrokerURL string `mapstructure:"MQTT_BROKER_URL"`
	MQTTClientID  string `mapstructure:"MQTT_CLIENT_ID"`

	Office365ClientID     string `mapstructure:"OFFICE365_CLIENT_ID"`
	Office365ClientSecret string `mapstructure:"OFFICE365_CLIENT_SECRET"`
	Office365RedirectURL  string `mapstructure:"OFFICE365_REDIRECT_URL"`
	WearableAPIURL        string `mapstructure:"WEARABLE_API_URL"`
	GPConnectBaseURL      string `mapstructure:"GPCONNECT_BASE_URL"`
}

// fallbacks maps a variable to the legacy name read when the primary is unset.
var fallbacks = map[string]string{
	"REDIS_URL":   "KV_URL",
	"REDIS_TOKEN": "KV_REST_API_TOKEN",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("DEFAULT_TENANT_ID", "")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_WINDOW", "60s")
	v.SetDefault("CACHE_TTL", "1h")
	v.SetDefault("QUEUE_NAMES", "default,integrations")
	v.SetDefault("QUEUE_LEASE", "5m")
	v.SetDefault("WORKER_CONCURRENCY", 4)
	v.SetDefault("MQTT_CLIENT_ID", "careadmin-worker")
	v.SetDefault("WEARABLE_API_URL", "https://api.wearables.example.com")

	for _, key := range []string{
		"PORT", "ENV", "LOG_LEVEL", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"REDIS_URL", "REDIS_TOKEN", "DEFAULT_TENANT_ID", "CORS_ORIGINS",
		"RATE_LIMIT_REQUESTS", "RATE_LIMIT_WINDOW", "AUTH_ISSUER", "AUTH_AUDIENCE",
		"AUTH_SIGNING_KEY", "SENTRY_DSN", "CACHE_TTL", "QUEUE_NAMES", "QUEUE_LEASE",
		"WORKER_CONCURRENCY", "MQTT_BROKER_URL", "MQTT_CLIENT_ID",
		"OFFICE365_CLIENT_ID", "OFFICE365_CLIENT_SECRET", "OFFICE365_REDIRECT_URL",
		"WEARABLE_API_URL", "GPCONNECT_BASE_URL",
	} {
		if legacy, ok := fallbacks[key]; ok {
			v.BindEnv(key, key, legacy)
			continue
		}
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins, v.GetString("CORS_ORIGINS"))
	cfg.QueueNames = splitList(cfg.QueueNames, v.GetString("QUEUE_NAMES"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: running in DEVELOPMENT mode (ENV=development); unauthenticated requests get admin access")
	}

	return cfg, nil
}

// splitList normalises a comma separated env value that viper may have left
// as a single element.
func splitList(parsed []string, raw string) []string {
	if len(parsed) > 1 {
		return parsed
	}
	if raw == "" {
		return parsed
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// DefaultTenantID parses DEFAULT_TENANT_ID. uuid.Nil means no default tenant.
func (c *Config) DefaultTenantID() uuid.UUID {
	id, err := uuid.Parse(c.DefaultTenant)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// Validate checks that the configuration is safe to run. Outside development
// a token verifier must be configured.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthIssuer == "" && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_ISSUER or AUTH_SIGNING_KEY must be set when ENV=%q", c.Env)
	}
	if c.DefaultTenant != "" {
		if _, err := uuid.Parse(c.DefaultTenant); err != nil {
			return fmt.Errorf("DEFAULT_TENANT_ID is not a valid UUID: %w", err)
		}
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must not be negative")
	}
	if c.WorkerConcurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", c.WorkerConcurrency)
	}
	if len(c.QueueNames) == 0 {
		return fmt.Errorf("QUEUE_NAMES must list at least one queue")
	}
	return nil
}
