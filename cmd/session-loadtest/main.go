// Command session-loadtest fires bursts of concurrent requests at a fake identity
// service whose access tokens are expired before every burst, and reports how many
// refresh calls each burst cost plus request latency percentiles.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal/identitytest"
)

func main() {
	var (
		rounds       = flag.Int("rounds", 50, "number of bursts")
		concurrency  = flag.Int("concurrency", 256, "concurrent requests per burst")
		refreshDelay = flag.Duration("refresh-delay", 20*time.Millisecond, "latency of the fake refresh endpoint")
		redisAddr    = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *rounds <= 0 || *concurrency <= 0 {
		fmt.Fprintln(os.Stderr, "rounds and concurrency must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		fmt.Printf("using redis at %s\n", addr)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer client.Close()

	srv := identitytest.NewServer()
	defer srv.Close()
	srv.AddUser(identitytest.User{ID: "u1", Name: "Load", Email: "load@example.com"}, "load-test-pw")
	srv.SetRefreshDelay(*refreshDelay)

	cfg := goSession.DefaultConfig()
	cfg.Gateway.BaseURL = srv.URL
	cfg.Store.Backend = goSession.StoreRedis
	cfg.Store.Scope = "loadtest"
	cfg.Recovery.Enabled = false
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	m, err := goSession.New().
		WithConfig(cfg).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		WithRedis(client).
		WithHTTPTransport(&http.Transport{MaxIdleConnsPerHost: *concurrency}).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build manager: %v\n", err)
		os.Exit(1)
	}
	defer m.Close()

	if err := m.Login(ctx, "load@example.com", "load-test-pw"); err != nil {
		fmt.Fprintf(os.Stderr, "login: %v\n", err)
		os.Exit(1)
	}

	var (
		latencies = make([]time.Duration, 0, *rounds**concurrency)
		failures  int64
		worst     int64
	)
	start := time.Now()
	for r := 0; r < *rounds; r++ {
		srv.ExpireAccessTokens()
		before := srv.Calls(identitytest.RouteRefresh)

		samples, failed := burst(m.HTTPClient(), srv.URL+"/api/items", *concurrency)
		latencies = append(latencies, samples...)
		failures += failed

		if spent := srv.Calls(identitytest.RouteRefresh) - before; spent > worst {
			worst = spent
		}
	}
	total := time.Since(start)

	snap := m.MetricsSnapshot()
	fmt.Println("---- results ----")
	printStats("requests", computeStats(total, latencies, failures))
	fmt.Printf("refresh calls: total=%d worst-per-burst=%d coalesced=%d retried=%d\n",
		srv.Calls(identitytest.RouteRefresh),
		worst,
		snap.Counters[goSession.MetricRefreshCoalesced],
		snap.Counters[goSession.MetricRequestRetried],
	)
}

func burst(client *http.Client, url string, n int) ([]time.Duration, int64) {
	var (
		wg        sync.WaitGroup
		failures  int64
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			t0 := time.Now()
			resp, err := client.Get(url)
			d := time.Since(t0)
			if err != nil {
				atomic.AddInt64(&failures, 1)
			} else {
				if resp.StatusCode != http.StatusOK {
					atomic.AddInt64(&failures, 1)
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				_ = resp.Body.Close()
			}
			mu.Lock()
			latencies = append(latencies, d)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return latencies, failures
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
