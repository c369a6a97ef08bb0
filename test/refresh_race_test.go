//go:build integration
// +build integration

package test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal/identitytest"
)

func TestRefreshRaceSingleTicket(t *testing.T) {
	rdb, cleanup := redisModes(t)[0].setup(t)
	defer cleanup()

	ctx := context.Background()
	srv := newIdentityServer(t)
	srv.SetRefreshDelay(50 * time.Millisecond)

	m := newRedisManager(t, srv.URL, rdb, "race")
	defer m.Close()
	if err := m.Login(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	srv.ExpireAccessTokens()

	const workers = 16
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(workers)

	results := make(chan int, workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			<-start
			resp, err := m.HTTPClient().Get(srv.URL + "/api/items")
			if err != nil {
				results <- 0
				return
			}
			_ = resp.Body.Close()
			results <- resp.StatusCode
		}()
	}

	close(start)
	wg.Wait()
	close(results)

	for status := range results {
		if status != http.StatusOK {
			t.Fatalf("expected every request to succeed, got %d", status)
		}
	}
	if n := srv.Calls(identitytest.RouteRefresh); n != 1 {
		t.Fatalf("expected exactly one refresh call, got %d", n)
	}
	if got := m.MetricsSnapshot().Counters[goSession.MetricRequestRetried]; got == 0 || got > workers {
		t.Fatalf("expected between 1 and %d replays, got %d", workers, got)
	}
	if m.Status() != goSession.StatusAuthenticated {
		t.Fatalf("expected authenticated, got %v", m.Status())
	}
}

func TestRefreshRaceLogoutWins(t *testing.T) {
	rdb, cleanup := redisModes(t)[0].setup(t)
	defer cleanup()

	ctx := context.Background()
	srv := newIdentityServer(t)
	srv.SetRefreshDelay(100 * time.Millisecond)

	m := newRedisManager(t, srv.URL, rdb, "race-logout")
	defer m.Close()
	if err := m.Login(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	srv.ExpireAccessTokens()

	done := make(chan struct{})
	go func() {
		defer close(done)
		resp, err := m.HTTPClient().Get(srv.URL + "/api/items")
		if err == nil {
			_ = resp.Body.Close()
		}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for srv.Calls(identitytest.RouteRefresh) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := m.Logout(ctx); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	<-done

	if m.Status() != goSession.StatusUnauthenticated {
		t.Fatalf("expected logout to win over the in-flight refresh, got %v", m.Status())
	}
	if m.AccessToken() != "" {
		t.Fatal("expected no access token after logout")
	}
}
