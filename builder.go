package goSession

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goSession/credential"
	"github.com/MrEthical07/goSession/gateway"
	"github.com/MrEthical07/goSession/internal/dispatch"
	"github.com/MrEthical07/goSession/internal/limiters"
	"github.com/MrEthical07/goSession/middleware"
)

// Builder assembles a [Manager]. A Builder can be built once.
type Builder struct {
	config        Config
	logger        *slog.Logger
	store         credential.Store
	redis         redis.UniversalClient
	httpTransport http.RoundTripper
	notifier      Notifier
	auditSink     AuditSink
	now           func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithLogger sets the structured logger. slog.Default is used otherwise.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithStore sets the credential store; Store.Backend is then ignored.
func (b *Builder) WithStore(store credential.Store) *Builder {
	b.store = store
	return b
}

// WithRedis sets the client used by the redis store backend and the shared login
// cooldown.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithHTTPTransport sets the RoundTripper under the middleware chain.
func (b *Builder) WithHTTPTransport(rt http.RoundTripper) *Builder {
	b.httpTransport = rt
	return b
}

// WithNotifier sets who is told about sessions that could not be recovered.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithClock overrides time.Now for event timestamps, staleness checks and the
// login cooldown.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and starts the Manager's background workers.
func (b *Builder) Build() (*Manager, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	m := &Manager{
		config:  cfg,
		logger:  logger,
		now:     now,
		metrics: NewMetrics(cfg.Metrics),
	}

	// -------- CREDENTIAL STORE --------
	store, closers, err := b.openStore(cfg.Store)
	if err != nil {
		return nil, err
	}
	m.store = store
	m.closers = closers

	// -------- LOGIN COOLDOWN --------
	if b.redis != nil && cfg.Store.Backend == StoreRedis {
		m.cooldown = limiters.NewRedisCooldown(b.redis, cfg.Store.RedisPrefix, cfg.Store.Scope)
	} else {
		m.cooldown = limiters.NewMemoryCooldown(now)
	}

	// -------- HTTP CHANNELS --------
	chain := middleware.Chain(b.httpTransport,
		middleware.RequestID(),
		middleware.Logging(logger),
	)
	callTimeout := max(cfg.Gateway.Timeout, cfg.Gateway.RefreshTimeout)
	bare := &http.Client{Transport: middleware.Chain(chain, middleware.Timeout(callTimeout))}

	m.transport = &Transport{m: m, base: chain}
	m.client = &http.Client{Transport: m.transport}

	gw, err := gateway.NewClient(gateway.Config{
		BaseURL:        cfg.Gateway.BaseURL,
		Timeout:        cfg.Gateway.Timeout,
		RefreshTimeout: cfg.Gateway.RefreshTimeout,
		Paths:          cfg.Gateway.Paths,
	}, bare, m.client)
	if err != nil {
		closeAll(closers)
		return nil, err
	}
	m.gateway = gw
	m.flows = flowDeps(m)

	// -------- AUDIT / BUS / LISTENER --------
	if cfg.Audit.Enabled {
		sink := b.auditSink
		if sink == nil {
			sink = NewSlogSink(logger)
		}
		m.audit = dispatch.New[AuditEvent](dispatch.Config{
			Enabled:    true,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, sink)
	}
	m.bus = newBroadcaster(cfg.Broadcast)
	m.listener = newListener(m, cfg.Recovery, b.notifier, cfg.Broadcast.SubscriberBuffer)

	b.built = true
	return m, nil
}

func (b *Builder) openStore(cfg StoreConfig) (credential.Store, []func() error, error) {
	if b.store != nil {
		return b.store, nil, nil
	}

	switch cfg.Backend {
	case StoreMemory, "":
		return credential.NewMemoryStore(), nil, nil

	case StoreRedis:
		client := b.redis
		var closers []func() error
		if client == nil {
			if cfg.RedisAddr == "" {
				return nil, nil, errors.New("redis store requires WithRedis or Store RedisAddr")
			}
			owned := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
			client = owned
			b.redis = owned
			closers = append(closers, owned.Close)
		}
		return credential.NewRedisStore(client, cfg.RedisPrefix, cfg.Scope, cfg.RedisTTL), closers, nil

	case StoreSQLite:
		s, err := credential.OpenSQLiteStore(cfg.SQLitePath, cfg.Scope)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite credential store: %w", err)
		}
		return s, []func() error{s.Close}, nil

	default:
		return nil, nil, fmt.Errorf("unsupported store backend %q", cfg.Backend)
	}
}

func closeAll(closers []func() error) {
	for _, c := range closers {
		_ = c()
	}
}
