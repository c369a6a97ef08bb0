package goSession

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/goSession/credential"
	"github.com/MrEthical07/goSession/internal/identitytest"
)

const (
	testEmail    = "a@x.com"
	testPassword = "secret123"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(baseURL string) Config {
	cfg := DefaultConfig()
	cfg.Gateway.BaseURL = baseURL
	cfg.Gateway.Timeout = 2 * time.Second
	cfg.Session.RefreshAttempts = 2
	cfg.Session.RefreshRetryDelay = time.Millisecond
	cfg.Session.ProactiveRefreshSkew = 0
	cfg.Recovery.Delay = 20 * time.Millisecond
	cfg.Recovery.NotifyInterval = time.Minute
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

type captureNotifier struct {
	mu  sync.Mutex
	got []Notification
}

func (c *captureNotifier) Notify(_ context.Context, n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, n)
}

func (c *captureNotifier) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.got)
}

func (c *captureNotifier) Last() Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.got) == 0 {
		return Notification{}
	}
	return c.got[len(c.got)-1]
}

type harness struct {
	srv      *identitytest.Server
	m        *Manager
	store    *credential.MemoryStore
	notifier *captureNotifier
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()

	srv := identitytest.NewServer()
	t.Cleanup(srv.Close)
	srv.AddUser(identitytest.User{ID: "u1", Name: "Ada", Username: "ada", Email: testEmail}, testPassword)

	cfg := testConfig(srv.URL)
	for _, fn := range mutate {
		fn(&cfg)
	}

	h := &harness{
		srv:      srv,
		store:    credential.NewMemoryStore(),
		notifier: &captureNotifier{},
	}
	m, err := New().
		WithConfig(cfg).
		WithLogger(discardLogger()).
		WithStore(h.store).
		WithNotifier(h.notifier).
		Build()
	require.NoError(t, err)
	t.Cleanup(m.Close)
	h.m = m
	return h
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	require.NoError(t, h.m.Login(context.Background(), testEmail, testPassword))
}

func (h *harness) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := h.m.HTTPClient().Get(h.srv.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (h *harness) stored(t *testing.T) (credential.Record, bool) {
	t.Helper()
	rec, err := h.store.Load(context.Background())
	if errors.Is(err, credential.ErrNotFound) {
		return credential.Record{}, false
	}
	require.NoError(t, err)
	return rec, true
}

func (h *harness) seed(t *testing.T, pair credential.Pair, user identitytest.User) {
	t.Helper()
	profile, err := json.Marshal(user)
	require.NoError(t, err)
	require.NoError(t, h.store.Save(context.Background(), credential.Record{Pair: pair, Profile: profile}))
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

type failingStore struct {
	*credential.MemoryStore
	saveErr error
}

func (s *failingStore) Save(ctx context.Context, rec credential.Record) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.MemoryStore.Save(ctx, rec)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func metric(m *Manager, id MetricID) uint64 {
	return m.MetricsSnapshot().Counters[id]
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
