package internaldefs

import (
	"strconv"

	goSession "github.com/MrEthical07/goSession"
)

// CounterDef maps a session counter to its exported name.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef maps a session histogram to its exported name.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goSession.MetricLoginSuccess, Name: "gosession_login_success_total", Help: "Logins committed to the session."},
	{ID: goSession.MetricLoginFailure, Name: "gosession_login_failure_total", Help: "Logins rejected locally or by the identity service."},
	{ID: goSession.MetricLoginRateLimited, Name: "gosession_login_rate_limited_total", Help: "Logins answered with HTTP 429."},
	{ID: goSession.MetricLoginCooldownRejected, Name: "gosession_login_cooldown_rejected_total", Help: "Logins refused locally during a Retry-After window."},
	{ID: goSession.MetricRegisterSuccess, Name: "gosession_register_success_total", Help: "Registrations committed to the session."},
	{ID: goSession.MetricRegisterFailure, Name: "gosession_register_failure_total", Help: "Rejected registrations."},
	{ID: goSession.MetricRefreshSuccess, Name: "gosession_refresh_success_total", Help: "Refresh tickets that produced a new pair."},
	{ID: goSession.MetricRefreshFailure, Name: "gosession_refresh_failure_total", Help: "Refresh tickets that failed with service errors."},
	{ID: goSession.MetricRefreshInvalid, Name: "gosession_refresh_invalid_total", Help: "Refresh tickets whose refresh token was rejected."},
	{ID: goSession.MetricRefreshSuperseded, Name: "gosession_refresh_superseded_total", Help: "Refresh results discarded after login or logout."},
	{ID: goSession.MetricRefreshCoalesced, Name: "gosession_refresh_coalesced_total", Help: "Callers that joined an outstanding refresh ticket."},
	{ID: goSession.MetricProactiveRefresh, Name: "gosession_proactive_refresh_total", Help: "Refreshes triggered ahead of access token expiry."},
	{ID: goSession.MetricRequestRetried, Name: "gosession_request_retried_total", Help: "Requests replayed after a refresh."},
	{ID: goSession.MetricRequestUnauthorized, Name: "gosession_request_unauthorized_total", Help: "HTTP 401 responses seen by the request pipeline."},
	{ID: goSession.MetricInvalidationPublished, Name: "gosession_invalidation_published_total", Help: "Invalidation events published."},
	{ID: goSession.MetricInvalidationStale, Name: "gosession_invalidation_stale_total", Help: "Invalidation events skipped as stale."},
	{ID: goSession.MetricRecoverySuccess, Name: "gosession_recovery_success_total", Help: "Sessions recovered by a silent refresh."},
	{ID: goSession.MetricRecoveryFailure, Name: "gosession_recovery_failure_total", Help: "Sessions ended after a failed recovery."},
	{ID: goSession.MetricNotificationSent, Name: "gosession_notification_sent_total", Help: "User notifications delivered."},
	{ID: goSession.MetricNotificationSuppressed, Name: "gosession_notification_suppressed_total", Help: "User notifications dropped by the throttle."},
	{ID: goSession.MetricLogout, Name: "gosession_logout_total", Help: "Logouts."},
	{ID: goSession.MetricLogoutRemoteFailure, Name: "gosession_logout_remote_failure_total", Help: "Logouts whose server call failed."},
	{ID: goSession.MetricHydrateSuccess, Name: "gosession_hydrate_success_total", Help: "Persisted sessions restored."},
	{ID: goSession.MetricHydrateFailure, Name: "gosession_hydrate_failure_total", Help: "Persisted sessions discarded or left unconfirmed."},
	{ID: goSession.MetricProfileUpdated, Name: "gosession_profile_updated_total", Help: "Profile updates."},
	{ID: goSession.MetricPasswordChanged, Name: "gosession_password_changed_total", Help: "Password changes."},
	{ID: goSession.MetricAccountDeleted, Name: "gosession_account_deleted_total", Help: "Deleted accounts."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricRefreshLatency, Name: "gosession_refresh_latency_seconds", Help: "Refresh ticket latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds; the eighth bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBucketLabels returns the "le" label of each bucket, ending with "+Inf".
func HistogramBucketLabels() []string {
	out := make([]string, 0, len(HistogramUpperBounds)+1)
	for _, bound := range HistogramUpperBounds {
		out = append(out, strconv.FormatFloat(bound, 'g', -1, 64))
	}
	return append(out, "+Inf")
}

// NormalizeBuckets copies raw into a fixed 8-bucket array, zero-filling missing slots.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
