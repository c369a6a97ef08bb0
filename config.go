package goSession

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/gateway"
)

// Config holds every tunable of a [Manager]. Start from [DefaultConfig]; the config
// package loads it from YAML and the environment.
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway"`
	Session   SessionConfig   `yaml:"session"`
	Recovery  RecoveryConfig  `yaml:"recovery"`
	Store     StoreConfig     `yaml:"store"`
	Password  PasswordConfig  `yaml:"password"`
	Audit     AuditConfig     `yaml:"audit"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

/*
====================================
GATEWAY CONFIG
====================================
*/

// GatewayConfig locates the identity service.
type GatewayConfig struct {
	BaseURL        string        `yaml:"base_url" env:"GOSESSION_GATEWAY_BASE_URL"`
	Timeout        time.Duration `yaml:"timeout" env:"GOSESSION_GATEWAY_TIMEOUT" env-default:"10s"`
	RefreshTimeout time.Duration `yaml:"refresh_timeout" env:"GOSESSION_GATEWAY_REFRESH_TIMEOUT" env-default:"10s"`
	Paths          gateway.Paths `yaml:"paths" env-prefix:"GOSESSION_"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig tunes the refresh ticket and the request pipeline.
type SessionConfig struct {
	// RefreshAttempts bounds gateway refresh calls per ticket when they fail with
	// service errors. Invalid refresh tokens are never retried.
	RefreshAttempts   int           `yaml:"refresh_attempts" env:"GOSESSION_REFRESH_ATTEMPTS" env-default:"2"`
	RefreshRetryDelay time.Duration `yaml:"refresh_retry_delay" env:"GOSESSION_REFRESH_RETRY_DELAY" env-default:"250ms"`
	// ProactiveRefreshSkew refreshes a JWT access token this long before its exp.
	// Zero disables proactive refresh.
	ProactiveRefreshSkew time.Duration `yaml:"proactive_refresh_skew" env:"GOSESSION_PROACTIVE_REFRESH_SKEW" env-default:"30s"`
	// StoreTimeout bounds each credential store call.
	StoreTimeout time.Duration `yaml:"store_timeout" env:"GOSESSION_STORE_TIMEOUT" env-default:"2s"`
	// MaxSnippetBytes caps the response body excerpt carried by invalidation events.
	MaxSnippetBytes int `yaml:"max_snippet_bytes" env:"GOSESSION_MAX_SNIPPET_BYTES" env-default:"256"`
}

/*
====================================
RECOVERY CONFIG
====================================
*/

// RecoveryConfig tunes the invalidation listener.
type RecoveryConfig struct {
	Enabled bool `yaml:"enabled" env:"GOSESSION_RECOVERY_ENABLED"`
	// Delay is waited before the silent refresh attempt.
	Delay time.Duration `yaml:"delay" env:"GOSESSION_RECOVERY_DELAY" env-default:"1s"`
	// NotifyInterval is the minimum spacing between two user notifications.
	NotifyInterval time.Duration `yaml:"notify_interval" env:"GOSESSION_RECOVERY_NOTIFY_INTERVAL" env-default:"5s"`
	Message        string        `yaml:"message" env:"GOSESSION_RECOVERY_MESSAGE" env-default:"Your session has expired. Please sign in again."`
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreBackend selects the credential store implementation.
type StoreBackend string

const (
	StoreMemory StoreBackend = "memory"
	StoreRedis  StoreBackend = "redis"
	StoreSQLite StoreBackend = "sqlite"
)

// StoreConfig selects and configures the credential store. It is ignored when a store
// is passed to [Builder.WithStore].
type StoreConfig struct {
	Backend     StoreBackend  `yaml:"backend" env:"GOSESSION_STORE_BACKEND" env-default:"memory"`
	Scope       string        `yaml:"scope" env:"GOSESSION_STORE_SCOPE" env-default:"default"`
	RedisAddr   string        `yaml:"redis_addr" env:"GOSESSION_STORE_REDIS_ADDR"`
	RedisPrefix string        `yaml:"redis_prefix" env:"GOSESSION_STORE_REDIS_PREFIX" env-default:"gs"`
	RedisTTL    time.Duration `yaml:"redis_ttl" env:"GOSESSION_STORE_REDIS_TTL"`
	SQLitePath  string        `yaml:"sqlite_path" env:"GOSESSION_STORE_SQLITE_PATH" env-default:"./data/credentials.db"`
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig is the client-side password policy applied before a round trip.
type PasswordConfig struct {
	MinLength int `yaml:"min_length" env:"GOSESSION_PASSWORD_MIN_LENGTH" env-default:"8"`
}

/*
====================================
AUDIT / BROADCAST / METRICS
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled" env:"GOSESSION_AUDIT_ENABLED" env-default:"false"`
	BufferSize int  `yaml:"buffer_size" env:"GOSESSION_AUDIT_BUFFER_SIZE" env-default:"1024"`
	DropIfFull bool `yaml:"drop_if_full" env:"GOSESSION_AUDIT_DROP_IF_FULL"`
}

// BroadcastConfig sizes the invalidation bus.
type BroadcastConfig struct {
	BufferSize       int `yaml:"buffer_size" env:"GOSESSION_BROADCAST_BUFFER_SIZE" env-default:"64"`
	SubscriberBuffer int `yaml:"subscriber_buffer" env:"GOSESSION_BROADCAST_SUBSCRIBER_BUFFER" env-default:"16"`
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled" env:"GOSESSION_METRICS_ENABLED" env-default:"false"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms" env:"GOSESSION_METRICS_LATENCY" env-default:"false"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration used when nothing is overridden. BaseURL is
// left empty and must be set.
func DefaultConfig() Config {
	return Config{
		Gateway: GatewayConfig{
			Timeout:        gateway.DefaultTimeout,
			RefreshTimeout: gateway.DefaultTimeout,
			Paths:          gateway.DefaultPaths(),
		},
		Session: SessionConfig{
			RefreshAttempts:      2,
			RefreshRetryDelay:    250 * time.Millisecond,
			ProactiveRefreshSkew: 30 * time.Second,
			StoreTimeout:         2 * time.Second,
			MaxSnippetBytes:      256,
		},
		Recovery: RecoveryConfig{
			Enabled:        true,
			Delay:          time.Second,
			NotifyInterval: 5 * time.Second,
			Message:        "Your session has expired. Please sign in again.",
		},
		Store: StoreConfig{
			Backend:     StoreMemory,
			Scope:       "default",
			RedisPrefix: "gs",
			SQLitePath:  "./data/credentials.db",
		},
		Password: PasswordConfig{
			MinLength: 8,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Broadcast: BroadcastConfig{
			BufferSize:       64,
			SubscriberBuffer: 16,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Gateway
	if strings.TrimSpace(c.Gateway.BaseURL) == "" {
		return errors.New("Gateway BaseURL is required")
	}
	u, err := url.Parse(c.Gateway.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("Gateway BaseURL must be an absolute URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("Gateway BaseURL scheme must be http or https")
	}
	if c.Gateway.Timeout <= 0 {
		return errors.New("Gateway Timeout must be > 0")
	}
	if c.Gateway.RefreshTimeout < 0 {
		return errors.New("Gateway RefreshTimeout must be >= 0")
	}

	// Session
	if c.Session.RefreshAttempts < 1 || c.Session.RefreshAttempts > 10 {
		return errors.New("Session RefreshAttempts must be between 1 and 10")
	}
	if c.Session.RefreshRetryDelay < 0 {
		return errors.New("Session RefreshRetryDelay must be >= 0")
	}
	if c.Session.ProactiveRefreshSkew < 0 {
		return errors.New("Session ProactiveRefreshSkew must be >= 0")
	}
	if c.Session.StoreTimeout <= 0 {
		return errors.New("Session StoreTimeout must be > 0")
	}
	if c.Session.MaxSnippetBytes < 0 {
		return errors.New("Session MaxSnippetBytes must be >= 0")
	}

	// Recovery
	if c.Recovery.Delay < 0 {
		return errors.New("Recovery Delay must be >= 0")
	}
	if c.Recovery.NotifyInterval < 0 {
		return errors.New("Recovery NotifyInterval must be >= 0")
	}

	// Store
	switch c.Store.Backend {
	case StoreMemory, "":
	case StoreRedis:
		if c.Store.RedisTTL < 0 {
			return errors.New("Store RedisTTL must be >= 0")
		}
	case StoreSQLite:
		if strings.TrimSpace(c.Store.SQLitePath) == "" {
			return errors.New("Store SQLitePath is required for the sqlite backend")
		}
	default:
		return errors.New("unsupported Store Backend")
	}

	// Password
	if c.Password.MinLength < 0 {
		return errors.New("Password MinLength must be >= 0")
	}

	// Audit / Broadcast
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	if c.Broadcast.BufferSize <= 0 {
		return errors.New("Broadcast BufferSize must be > 0")
	}
	if c.Broadcast.SubscriberBuffer <= 0 {
		return errors.New("Broadcast SubscriberBuffer must be > 0")
	}

	return nil
}
