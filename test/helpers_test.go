//go:build integration
// +build integration

package test

import (
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal/identitytest"
)

const (
	testEmail    = "alice@example.com"
	testPassword = "correct-horse"
)

// redisMode describes which Redis backend the integration suite is running against.
type redisMode struct {
	name  string
	setup func(t *testing.T) (redis.UniversalClient, func())
}

// redisModes returns the set of Redis backends to test.
// miniredis is always available.
// Real Redis standalone is used when REDIS_ADDR is set (e.g. "127.0.0.1:6379").
func redisModes(t *testing.T) []redisMode {
	t.Helper()
	modes := []redisMode{
		{
			name: "miniredis",
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				mr, err := miniredis.Run()
				if err != nil {
					t.Fatalf("miniredis: %v", err)
				}
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				return rdb, func() { _ = rdb.Close(); mr.Close() }
			},
		},
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		modes = append(modes, redisMode{
			name: "standalone:" + addr,
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				return rdb, func() { _ = rdb.Close() }
			},
		})
	}
	return modes
}

func newIdentityServer(t *testing.T) *identitytest.Server {
	t.Helper()
	srv := identitytest.NewServer()
	t.Cleanup(srv.Close)
	srv.AddUser(identitytest.User{ID: "u1", Name: "Alice", Email: testEmail}, testPassword)
	return srv
}

// newRedisManager builds a manager whose credentials live in rdb under scope.
func newRedisManager(t *testing.T, baseURL string, rdb redis.UniversalClient, scope string) *goSession.Manager {
	t.Helper()

	cfg := goSession.DefaultConfig()
	cfg.Gateway.BaseURL = baseURL
	cfg.Gateway.Timeout = 2 * time.Second
	cfg.Session.RefreshRetryDelay = time.Millisecond
	cfg.Session.ProactiveRefreshSkew = 0
	cfg.Recovery.Enabled = false
	cfg.Store.Backend = goSession.StoreRedis
	cfg.Store.Scope = scope
	cfg.Metrics.Enabled = true

	m, err := goSession.New().
		WithConfig(cfg).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		WithRedis(rdb).
		Build()
	if err != nil {
		t.Fatalf("build manager: %v", err)
	}
	return m
}
