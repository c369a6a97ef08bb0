package goSession

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/MrEthical07/goSession/credential"
	"github.com/MrEthical07/goSession/gateway"
	"github.com/MrEthical07/goSession/internal/dispatch"
	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/internal/limiters"
	"github.com/MrEthical07/goSession/internal/redact"
)

// Manager owns the session: the credential pair, the user profile and the refresh
// ticket. Every mutation of session state goes through its methods; the request
// pipeline and the invalidation listener only call into it.
//
// A Manager is safe for concurrent use. Build one with [New].
type Manager struct {
	config      Config
	logger      *slog.Logger
	now         func() time.Time
	store       credential.Store
	closers     []func() error
	gateway     *gateway.Client
	cooldown    limiters.Cooldown
	metrics     *Metrics
	audit       *dispatch.Dispatcher[AuditEvent]
	bus         *broadcaster
	listener    *listener
	transport   *Transport
	client      *http.Client
	flows       flows.Deps
	flight      singleflight.Group

	mu           sync.Mutex
	pair         credential.Pair
	user         *User
	initializing bool
	refreshing   bool
	invalidating bool
	degraded     bool
	lastErr      error
	// epoch is bumped by login, register, logout and Close. A refresh ticket only
	// commits under the epoch it started in.
	epoch uint64
	// generation identifies the session the pair belongs to; invalidation events
	// from an older generation are stale.
	generation     uint64
	lastResolution time.Time
	refreshCancel  context.CancelFunc
	closed         bool
}

/*
====================================
LIFECYCLE
====================================
*/

// Initialize restores a persisted session. With a valid access token no refresh is
// made; with a rejected one exactly one refresh is attempted before the profile is
// fetched again. A session that cannot be restored is cleared. When the identity
// service is unreachable the pair and the cached profile are kept and the returned
// error is the service failure; Status reports [StatusError].
func (m *Manager) Initialize(ctx context.Context) error {
	if m == nil {
		return ErrManagerNotReady
	}
	if ctx == nil {
		ctx = context.Background()
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerNotReady
	}
	if !m.pair.Empty() || m.initializing {
		m.mu.Unlock()
		return nil
	}
	m.initializing = true
	epoch, generation := m.epoch, m.generation
	m.mu.Unlock()

	adopt := func(rec credential.Record) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.epoch == epoch && m.pair.Empty() {
			m.pair = rec.Pair
		}
	}
	refresh := func(ctx context.Context) (credential.Pair, error) {
		m.mu.Lock()
		stale := m.pair.AccessToken
		m.mu.Unlock()
		if err := m.refresh(ctx, "hydrate", stale); err != nil {
			return credential.Pair{}, err
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.pair, nil
	}
	res := flows.RunHydrate(ctx, m.flows.Hydrate.Bind(adopt, refresh))

	userID, err := m.commitHydrate(ctx, epoch, generation, res)

	switch res.Outcome {
	case flows.HydrateAuthenticated:
		m.metrics.Inc(MetricHydrateSuccess)
		m.emitAudit(ctx, AuditRestore, true, userID, "", nil, func() map[string]string {
			return map[string]string{"refreshed": fmt.Sprint(res.Refreshed)}
		})
	case flows.HydrateNoSession:
		if res.Err != nil {
			m.metrics.Inc(MetricHydrateFailure)
		}
	default:
		m.metrics.Inc(MetricHydrateFailure)
		m.emitAudit(ctx, AuditRestore, false, userID, "", res.Err, nil)
	}
	return err
}

func (m *Manager) commitHydrate(ctx context.Context, epoch, generation uint64, res flows.HydrateResult) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initializing = false

	if m.epoch != epoch || m.generation != generation {
		m.logger.Debug("goSession: discarding restored session, session changed meanwhile", "op", "initialize")
		return "", nil
	}

	switch res.Outcome {
	case flows.HydrateAuthenticated:
		if m.pair.Empty() {
			m.pair = res.Pair
		}
		m.user = res.User
		m.degraded = false
		m.lastErr = nil
		if err := m.saveLocked(ctx); err != nil {
			m.logger.Warn("goSession: persisting restored profile failed", "op", "initialize", "error", err)
		}
		m.logger.Info("goSession: session restored", "op", "initialize", "user_id", res.User.ID, "refreshed", res.Refreshed)
		return res.User.ID, nil

	case flows.HydrateDegraded:
		if m.pair.Empty() {
			m.pair = res.Pair
		}
		m.user = decodeProfile(res.Record.Profile)
		m.degraded = true
		m.lastErr = res.Err
		m.logger.Warn("goSession: identity service unreachable, keeping persisted session", "op", "initialize", "error", res.Err)
		return m.userIDLocked(), res.Err

	case flows.HydrateCleared:
		m.resetLocked()
		m.lastErr = res.Err
		m.clearStoreLocked(ctx)
		m.logger.Info("goSession: persisted session rejected, cleared", "op", "initialize", "error", res.Err)
		return "", nil

	default:
		m.resetLocked()
		if res.Err != nil {
			m.lastErr = res.Err
			m.logger.Warn("goSession: loading persisted session failed", "op", "initialize", "error", res.Err)
		}
		return "", res.Err
	}
}

// Close stops the listener, drains the audit and broadcast queues and releases stores
// opened by the builder. In-flight refresh results are discarded.
func (m *Manager) Close() {
	if m == nil {
		return
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.supersedeLocked()
	m.mu.Unlock()

	m.listener.Close()
	m.bus.Close()
	m.audit.Close()
	for _, closeFn := range m.closers {
		if err := closeFn(); err != nil {
			m.logger.Warn("goSession: closing resource failed", "error", err)
		}
	}
}

/*
====================================
LOGIN / REGISTER / LOGOUT
====================================
*/

// Login signs in with email and password. On success the pair and the profile are
// persisted before they become visible; on failure the session is left as it was.
// While a Retry-After window from an earlier 429 is open, Login fails with
// [ErrRateLimited] without contacting the identity service.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	if m == nil {
		return ErrManagerNotReady
	}
	if ctx == nil {
		ctx = context.Background()
	}
	const op = "login"

	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		m.metrics.Inc(MetricLoginFailure)
		return fmt.Errorf("%w: email and password are required", ErrValidation)
	}

	left, err := m.cooldown.Remaining(ctx)
	if err != nil {
		m.logger.Warn("goSession: cooldown lookup failed", "op", op, "error", err)
	}
	if left > 0 {
		m.metrics.Inc(MetricLoginCooldownRejected)
		return &gateway.Error{
			Op:         op,
			Kind:       ErrRateLimited,
			RetryAfter: left,
			Message:    "too many attempts, retry later",
		}
	}

	epoch, err := m.beginAuth()
	if err != nil {
		return err
	}
	res, err := m.gateway.Login(ctx, gateway.Credentials{Email: email, Password: password})
	if err != nil {
		if wait, ok := RetryAfter(err); ok {
			m.metrics.Inc(MetricLoginRateLimited)
			if wait > 0 {
				if cerr := m.cooldown.Block(ctx, wait); cerr != nil {
					m.logger.Warn("goSession: recording cooldown failed", "op", op, "error", cerr)
				}
			}
		}
		return m.authFailed(ctx, op, email, MetricLoginFailure, err)
	}

	if err := m.commitAuth(ctx, epoch, res); err != nil {
		return m.authFailed(ctx, op, email, MetricLoginFailure, err)
	}
	if err := m.cooldown.Reset(ctx); err != nil {
		m.logger.Warn("goSession: clearing cooldown failed", "op", op, "error", err)
	}

	m.metrics.Inc(MetricLoginSuccess)
	m.logger.Info("goSession: signed in", "op", op, "user_id", res.User.ID, "email", redact.Email(email))
	m.emitAudit(ctx, AuditLogin, true, res.User.ID, "", nil, nil)
	return nil
}

// Register creates an account and signs it in, with the same all-or-nothing commit as
// [Manager.Login]. Passwords shorter than Password.MinLength are rejected locally.
func (m *Manager) Register(ctx context.Context, reg Registration) error {
	if m == nil {
		return ErrManagerNotReady
	}
	if ctx == nil {
		ctx = context.Background()
	}
	const op = "register"

	reg.Email = strings.TrimSpace(reg.Email)
	if reg.Email == "" || reg.Password == "" {
		m.metrics.Inc(MetricRegisterFailure)
		return fmt.Errorf("%w: email and password are required", ErrValidation)
	}
	if err := m.checkPassword(reg.Password); err != nil {
		m.metrics.Inc(MetricRegisterFailure)
		return err
	}

	epoch, err := m.beginAuth()
	if err != nil {
		return err
	}
	res, err := m.gateway.Register(ctx, reg)
	if err != nil {
		return m.authFailed(ctx, op, reg.Email, MetricRegisterFailure, err)
	}
	if err := m.commitAuth(ctx, epoch, res); err != nil {
		return m.authFailed(ctx, op, reg.Email, MetricRegisterFailure, err)
	}

	m.metrics.Inc(MetricRegisterSuccess)
	m.logger.Info("goSession: registered", "op", op, "user_id", res.User.ID, "email", redact.Email(reg.Email))
	m.emitAudit(ctx, AuditRegister, true, res.User.ID, "", nil, nil)
	return nil
}

// Logout ends the session locally, then asks the identity service to invalidate the
// access token. The local teardown always happens; a failed server call is only
// logged, so Logout returns nil unless the Manager is unusable.
func (m *Manager) Logout(ctx context.Context) error {
	if m == nil {
		return ErrManagerNotReady
	}
	if ctx == nil {
		ctx = context.Background()
	}

	access, userID := m.endSession(ctx)
	m.metrics.Inc(MetricLogout)
	m.emitAudit(ctx, AuditLogout, true, userID, "", nil, nil)
	m.remoteLogout(ctx, access)
	return nil
}

func (m *Manager) remoteLogout(ctx context.Context, access string) {
	if access == "" {
		return
	}
	if err := m.gateway.Logout(ctx, access); err != nil {
		m.metrics.Inc(MetricLogoutRemoteFailure)
		m.logger.Warn("goSession: server logout failed", "op", "logout", "error", err)
	}
}

// beginAuth supersedes any outstanding refresh and returns the epoch the auth call
// must commit under.
func (m *Manager) beginAuth() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrManagerNotReady
	}
	m.supersedeLocked()
	return m.epoch, nil
}

func (m *Manager) commitAuth(ctx context.Context, epoch uint64, res gateway.AuthResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrManagerNotReady
	}
	if m.epoch != epoch {
		return ErrLoginSuperseded
	}

	user := res.User
	rec := credential.Record{
		Pair:    credential.Pair{AccessToken: res.AccessToken, RefreshToken: res.RefreshToken},
		Profile: encodeProfile(&user),
	}
	sctx, cancel := m.storeContext(ctx)
	defer cancel()
	if err := m.store.Save(sctx, rec); err != nil {
		return err
	}

	// Refreshes started after beginAuth still hold the previous refresh token.
	m.supersedeLocked()
	m.resetLocked()
	m.pair = rec.Pair
	m.user = &user
	m.lastErr = nil
	m.generation++
	m.lastResolution = m.now()
	return nil
}

func (m *Manager) authFailed(ctx context.Context, op, email string, metric MetricID, err error) error {
	m.metrics.Inc(metric)
	m.logger.Info("goSession: "+op+" failed", "op", op, "email", redact.Email(email), "error", err)
	eventType := AuditLogin
	if op == "register" {
		eventType = AuditRegister
	}
	m.emitAudit(ctx, eventType, false, "", "", err, func() map[string]string {
		return map[string]string{"email": redact.Email(email)}
	})
	return err
}

// endSession clears memory and the store and starts a new generation. It returns the
// access token that was held, for the best-effort server logout.
func (m *Manager) endSession(ctx context.Context) (access, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endSessionLocked(ctx)
}

func (m *Manager) endSessionLocked(ctx context.Context) (access, userID string) {
	access = m.pair.AccessToken
	userID = m.userIDLocked()
	m.supersedeLocked()
	m.resetLocked()
	m.lastErr = nil
	m.generation++
	m.lastResolution = m.now()
	m.clearStoreLocked(ctx)
	return access, userID
}

func (m *Manager) checkPassword(password string) error {
	if minLen := m.config.Password.MinLength; minLen > 0 && len([]rune(password)) < minLen {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minLen)
	}
	return nil
}

/*
====================================
ACCESSORS
====================================
*/

// Status derives the current session state.
func (m *Manager) Status() Status {
	if m == nil {
		return StatusUnauthenticated
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

// User returns a copy of the profile, or nil when signed out.
func (m *Manager) User() *User {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneUser(m.user)
}

// AccessToken returns the access token the pipeline would attach right now.
func (m *Manager) AccessToken() string {
	if m == nil {
		return ""
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pair.AccessToken
}

// LastError returns the last background failure (refresh or restore), if any.
func (m *Manager) LastError() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Snapshot returns status, profile and generation read under one lock.
func (m *Manager) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{Status: StatusUnauthenticated}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Status:     m.statusLocked(),
		User:       cloneUser(m.user),
		Generation: m.generation,
		LastError:  m.lastErr,
	}
}

// Subscribe receives every invalidation event published by the pipeline. Events are
// dropped for a subscriber whose buffer is full. Call cancel to unsubscribe.
func (m *Manager) Subscribe(buffer int) (events <-chan InvalidationEvent, cancel func()) {
	if buffer <= 0 {
		buffer = m.config.Broadcast.SubscriberBuffer
	}
	return m.bus.Subscribe(buffer)
}

// HTTPClient returns a client whose requests go through the session pipeline.
func (m *Manager) HTTPClient() *http.Client {
	return m.client
}

// Transport returns the session pipeline as a RoundTripper.
func (m *Manager) Transport() http.RoundTripper {
	return m.transport
}

// AuditDelivered counts audit events handed to the sink.
func (m *Manager) AuditDelivered() uint64 {
	if m == nil || m.audit == nil {
		return 0
	}
	return m.audit.Delivered()
}

func (m *Manager) AuditDropped() uint64 {
	if m == nil || m.audit == nil {
		return 0
	}
	return m.audit.Dropped()
}

// BroadcastDropped counts invalidation events lost on a full bus or subscriber.
func (m *Manager) BroadcastDropped() uint64 {
	if m == nil || m.bus == nil {
		return 0
	}
	return m.bus.Dropped()
}

func (m *Manager) MetricsSnapshot() MetricsSnapshot {
	if m == nil || m.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return m.metrics.Snapshot()
}

/*
====================================
STATE HELPERS (m.mu held)
====================================
*/

func (m *Manager) statusLocked() Status {
	switch {
	case m.initializing:
		return StatusInitializing
	case m.pair.Empty():
		return StatusUnauthenticated
	case m.invalidating:
		return StatusInvalidating
	case m.refreshing:
		return StatusRefreshing
	case m.degraded:
		return StatusError
	default:
		return StatusAuthenticated
	}
}

// supersedeLocked starts a new epoch and cancels the outstanding refresh.
func (m *Manager) supersedeLocked() {
	m.epoch++
	if m.refreshCancel != nil {
		m.refreshCancel()
		m.refreshCancel = nil
	}
	m.refreshing = false
}

func (m *Manager) resetLocked() {
	m.pair = credential.Pair{}
	m.user = nil
	m.refreshing = false
	m.invalidating = false
	m.degraded = false
}

func (m *Manager) userIDLocked() string {
	if m.user == nil {
		return ""
	}
	return m.user.ID
}

func (m *Manager) saveLocked(ctx context.Context) error {
	sctx, cancel := m.storeContext(ctx)
	defer cancel()
	return m.store.Save(sctx, credential.Record{Pair: m.pair, Profile: encodeProfile(m.user)})
}

func (m *Manager) clearStoreLocked(ctx context.Context) {
	sctx, cancel := m.storeContext(ctx)
	defer cancel()
	if err := m.store.Clear(sctx); err != nil {
		m.logger.Warn("goSession: clearing credential store failed", "error", err)
	}
}

// storeContext detaches store writes from caller cancellation; a write that started
// must finish so memory and the store agree.
func (m *Manager) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(context.WithoutCancel(ctx), m.config.Session.StoreTimeout)
}

func encodeProfile(u *User) []byte {
	if u == nil {
		return nil
	}
	data, err := json.Marshal(u)
	if err != nil {
		return nil
	}
	return data
}

func decodeProfile(data []byte) *User {
	if len(data) == 0 {
		return nil
	}
	var u User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil
	}
	return &u
}

func cloneUser(u *User) *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
