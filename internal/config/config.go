package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Provisioning backends.
const (
	ProvisioningHTTP     = "http"
	ProvisioningTemporal = "temporal"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

type Config struct {
	ServiceName    string
	DatabaseURL    string
	HTTPListenAddr string
	LogLevel       string
	AdminAPIKey    string
	MigrateOnStart bool

	ProvisioningBackend string
	ProvisioningAPIURL  string
	ProvisioningAPIKey  string

	TemporalAddress       string
	TemporalTaskQueue     string
	TemporalTLSCert       string
	TemporalTLSKey        string
	TemporalTLSCACert     string
	TemporalTLSServerName string

	CacheBackend        string
	CacheMaxEntries     int
	CacheStaleRetention time.Duration
	RedisURL            string

	QueueConcurrency int
	QueueMaxRetries  int
	QueueTimeout     time.Duration
	QueueBackoffBase time.Duration
	QueueBackoffMax  time.Duration

	BreakerThreshold int
	BreakerCooldown  time.Duration

	EventWebhookURL   string
	EventRedisChannel string
	EventBuffer       int

	// BillingConfigFile, when set, replaces the database settings table as the
	// source of billing configuration.
	BillingConfigFile string
}

func Load() (*Config, error) {
	p := &parser{}

	cfg := &Config{
		ServiceName:    getEnv("SERVICE_NAME", "billing-worker"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		HTTPListenAddr: getEnv("HTTP_LISTEN_ADDR", ":8095"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AdminAPIKey:    getEnv("ADMIN_API_KEY", ""),
		MigrateOnStart: p.bool("MIGRATE_ON_START", true),

		ProvisioningBackend: getEnv("PROVISIONING_BACKEND", ProvisioningHTTP),
		ProvisioningAPIURL:  strings.TrimRight(getEnv("PROVISIONING_API_URL", ""), "/"),
		ProvisioningAPIKey:  getEnv("PROVISIONING_API_KEY", ""),

		TemporalAddress:       getEnv("TEMPORAL_ADDRESS", "localhost:7233"),
		TemporalTaskQueue:     getEnv("TEMPORAL_TASK_QUEUE", "hosting-tasks"),
		TemporalTLSCert:       getEnv("TEMPORAL_TLS_CERT", ""),
		TemporalTLSKey:        getEnv("TEMPORAL_TLS_KEY", ""),
		TemporalTLSCACert:     getEnv("TEMPORAL_TLS_CA_CERT", ""),
		TemporalTLSServerName: getEnv("TEMPORAL_TLS_SERVER_NAME", ""),

		CacheBackend:        getEnv("CACHE_BACKEND", CacheMemory),
		CacheMaxEntries:     p.int("CACHE_MAX_ENTRIES", 10000),
		CacheStaleRetention: p.duration("CACHE_STALE_RETENTION", 24*time.Hour),
		RedisURL:            getEnv("REDIS_URL", ""),

		QueueConcurrency: p.int("QUEUE_CONCURRENCY", 5),
		QueueMaxRetries:  p.int("QUEUE_MAX_RETRIES", 3),
		QueueTimeout:     p.duration("QUEUE_TIMEOUT", 15*time.Second),
		QueueBackoffBase: p.duration("QUEUE_BACKOFF_BASE", time.Second),
		QueueBackoffMax:  p.duration("QUEUE_BACKOFF_MAX", 30*time.Second),

		BreakerThreshold: p.int("BREAKER_THRESHOLD", 5),
		BreakerCooldown:  p.duration("BREAKER_COOLDOWN", 60*time.Second),

		EventWebhookURL:   getEnv("EVENT_WEBHOOK_URL", ""),
		EventRedisChannel: getEnv("EVENT_REDIS_CHANNEL", ""),
		EventBuffer:       p.int("EVENT_BUFFER", 256),

		BillingConfigFile: getEnv("BILLING_CONFIG_FILE", ""),
	}

	if err := p.err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that required fields are present and that the selected
// backends have what they need.
func (c *Config) Validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.AdminAPIKey == "" {
		missing = append(missing, "ADMIN_API_KEY")
	}

	switch c.ProvisioningBackend {
	case ProvisioningHTTP:
		if c.ProvisioningAPIURL == "" {
			missing = append(missing, "PROVISIONING_API_URL")
		}
		if c.ProvisioningAPIKey == "" {
			missing = append(missing, "PROVISIONING_API_KEY")
		}
	case ProvisioningTemporal:
		if c.TemporalAddress == "" {
			missing = append(missing, "TEMPORAL_ADDRESS")
		}
	default:
		return fmt.Errorf("PROVISIONING_BACKEND must be %q or %q, got %q", ProvisioningHTTP, ProvisioningTemporal, c.ProvisioningBackend)
	}

	switch c.CacheBackend {
	case CacheMemory:
	case CacheRedis:
		if c.RedisURL == "" {
			missing = append(missing, "REDIS_URL")
		}
	default:
		return fmt.Errorf("CACHE_BACKEND must be %q or %q, got %q", CacheMemory, CacheRedis, c.CacheBackend)
	}

	if c.EventRedisChannel != "" && c.RedisURL == "" {
		missing = append(missing, "REDIS_URL")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	if (c.TemporalTLSCert == "") != (c.TemporalTLSKey == "") {
		return fmt.Errorf("TEMPORAL_TLS_CERT and TEMPORAL_TLS_KEY must both be set")
	}
	if c.QueueConcurrency < 1 {
		return fmt.Errorf("QUEUE_CONCURRENCY must be at least 1")
	}
	if c.QueueMaxRetries < 0 {
		return fmt.Errorf("QUEUE_MAX_RETRIES must not be negative")
	}
	if c.QueueBackoffMax < c.QueueBackoffBase {
		return fmt.Errorf("QUEUE_BACKOFF_MAX must be >= QUEUE_BACKOFF_BASE")
	}
	if c.BreakerThreshold < 1 {
		return fmt.Errorf("BREAKER_THRESHOLD must be at least 1")
	}
	if c.CacheMaxEntries < 1 {
		return fmt.Errorf("CACHE_MAX_ENTRIES must be at least 1")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// parser reads typed env values and remembers every malformed one.
type parser struct {
	errs []error
}

func (p *parser) int(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return fallback
	}
	return n
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return fallback
	}
	return d
}

func (p *parser) bool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return fallback
	}
	return b
}

func (p *parser) err() error {
	return errors.Join(p.errs...)
}
