package goSession

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one session counter or histogram.
type MetricID uint16

const (
	// MetricLoginSuccess counts logins committed to the session.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts logins rejected by validation or the identity service.
	MetricLoginFailure
	// MetricLoginRateLimited counts logins answered with HTTP 429.
	MetricLoginRateLimited
	// MetricLoginCooldownRejected counts logins refused locally while a Retry-After
	// window was open.
	MetricLoginCooldownRejected
	// MetricRegisterSuccess counts registrations committed to the session.
	MetricRegisterSuccess
	// MetricRegisterFailure counts rejected registrations.
	MetricRegisterFailure
	// MetricRefreshSuccess counts refresh tickets that produced a new pair.
	MetricRefreshSuccess
	// MetricRefreshFailure counts refresh tickets that exhausted their attempts on
	// service errors.
	MetricRefreshFailure
	// MetricRefreshInvalid counts refresh tickets whose refresh token was rejected.
	MetricRefreshInvalid
	// MetricRefreshSuperseded counts refresh results discarded after login or logout.
	MetricRefreshSuperseded
	// MetricRefreshCoalesced counts callers that joined an outstanding ticket.
	MetricRefreshCoalesced
	// MetricProactiveRefresh counts refreshes triggered by an access token about to expire.
	MetricProactiveRefresh
	// MetricRequestRetried counts requests replayed after a refresh.
	MetricRequestRetried
	// MetricRequestUnauthorized counts 401 responses seen by the pipeline.
	MetricRequestUnauthorized
	// MetricInvalidationPublished counts invalidation events put on the bus.
	MetricInvalidationPublished
	// MetricInvalidationStale counts events the listener skipped as stale.
	MetricInvalidationStale
	// MetricRecoverySuccess counts sessions the listener repaired silently.
	MetricRecoverySuccess
	// MetricRecoveryFailure counts sessions the listener had to end.
	MetricRecoveryFailure
	// MetricNotificationSent counts user notifications delivered.
	MetricNotificationSent
	// MetricNotificationSuppressed counts notifications dropped by the throttle.
	MetricNotificationSuppressed
	// MetricLogout counts logouts.
	MetricLogout
	// MetricLogoutRemoteFailure counts logouts whose server call failed.
	MetricLogoutRemoteFailure
	// MetricHydrateSuccess counts Initialize calls that restored a session.
	MetricHydrateSuccess
	// MetricHydrateFailure counts Initialize calls that discarded or could not confirm a
	// persisted session.
	MetricHydrateFailure
	// MetricProfileUpdated counts successful profile updates.
	MetricProfileUpdated
	// MetricPasswordChanged counts successful password changes.
	MetricPasswordChanged
	// MetricAccountDeleted counts deleted accounts.
	MetricAccountDeleted
	// MetricRefreshLatency is the refresh ticket latency histogram.
	MetricRefreshLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free session counters. A nil or disabled Metrics ignores every
// call.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter. Histograms holds raw
// (non-cumulative) bucket counts.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics builds counters according to cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram of id. Only [MetricRefreshLatency] has one.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricRefreshLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value reads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter. It returns empty maps when metrics are disabled.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricRefreshLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricRefreshLatency].buckets[i])
		}
		s.Histograms[MetricRefreshLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
