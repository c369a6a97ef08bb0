package goSession

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrEthical07/goSession/internal/flows"
)

// Notification is what the user is told when a session could not be recovered.
type Notification struct {
	Reason    InvalidationReason
	RequestID string
	Message   string
	At        time.Time
}

// Notifier surfaces a [Notification] to the user.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to [Notifier].
type NotifierFunc func(ctx context.Context, n Notification)

func (f NotifierFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// SlogNotifier writes notifications to a logger. It is used when no Notifier is
// configured.
type SlogNotifier struct {
	Logger *slog.Logger
}

func (s SlogNotifier) Notify(ctx context.Context, n Notification) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.WarnContext(ctx, n.Message, "reason", string(n.Reason), "request_id", n.RequestID)
}

// listener consumes invalidation events. For each current event it waits the
// configured delay, tries one silent refresh, and either keeps the session or
// notifies the user and ends it.
type listener struct {
	m        *Manager
	cfg      RecoveryConfig
	notifier Notifier
	limiter  *rate.Limiter

	events      <-chan InvalidationEvent
	unsubscribe func()
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
	closeOnce   sync.Once
}

func newListener(m *Manager, cfg RecoveryConfig, notifier Notifier, buffer int) *listener {
	if !cfg.Enabled {
		return nil
	}
	if notifier == nil {
		notifier = SlogNotifier{Logger: m.logger}
	}
	limit := rate.Inf
	if cfg.NotifyInterval > 0 {
		limit = rate.Every(cfg.NotifyInterval)
	}

	events, unsubscribe := m.bus.Subscribe(buffer)
	ctx, cancel := context.WithCancel(context.Background())
	l := &listener{
		m:           m,
		cfg:         cfg,
		notifier:    notifier,
		limiter:     rate.NewLimiter(limit, 1),
		events:      events,
		unsubscribe: unsubscribe,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *listener) run() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			return
		case ev, ok := <-l.events:
			if !ok {
				return
			}
			l.handle(ev)
		}
	}
}

func (l *listener) handle(ev InvalidationEvent) {
	m := l.m
	if m.staleInvalidation(ev) {
		m.metrics.Inc(MetricInvalidationStale)
		return
	}
	if err := flows.SleepContext(l.ctx, l.cfg.Delay); err != nil {
		return
	}
	if m.staleInvalidation(ev) {
		m.metrics.Inc(MetricInvalidationStale)
		return
	}

	if !m.hasRefreshToken() {
		l.fail(ev, errNoRefreshToken)
		return
	}

	err := m.refresh(l.ctx, "recovery", "")
	switch {
	case err == nil:
		if ferr := m.refetchProfile(l.ctx); ferr != nil {
			m.logger.Warn("goSession: profile re-fetch after recovery failed", "request_id", ev.RequestID, "error", ferr)
		}
		m.resolveInvalidation()
		m.metrics.Inc(MetricRecoverySuccess)
		m.logger.Info("goSession: session recovered", "reason", string(ev.Reason), "request_id", ev.RequestID)
		m.emitAudit(l.ctx, AuditRecovery, true, m.currentUserID(), ev.RequestID, nil, nil)
	case errors.Is(err, ErrRefreshSuperseded):
		m.resolveInvalidation()
	case l.ctx.Err() != nil:
		return
	default:
		l.fail(ev, err)
	}
}

func (l *listener) fail(ev InvalidationEvent, cause error) {
	m := l.m
	if m.staleInvalidation(ev) {
		m.metrics.Inc(MetricInvalidationStale)
		return
	}
	m.metrics.Inc(MetricRecoveryFailure)

	if l.limiter.AllowN(m.now(), 1) {
		l.notifier.Notify(l.ctx, Notification{
			Reason:    ev.Reason,
			RequestID: ev.RequestID,
			Message:   l.cfg.Message,
			At:        m.now(),
		})
		m.metrics.Inc(MetricNotificationSent)
	} else {
		m.metrics.Inc(MetricNotificationSuppressed)
	}

	access, userID, ended := m.finalizeInvalidation(l.ctx, ev.Generation)
	if !ended {
		return
	}
	m.logger.Info("goSession: session ended after failed recovery", "reason", string(ev.Reason), "request_id", ev.RequestID, "error", cause)
	m.emitAudit(l.ctx, AuditRecovery, false, userID, ev.RequestID, cause, func() map[string]string {
		return map[string]string{"reason": string(ev.Reason)}
	})
	m.remoteLogout(l.ctx, access)
}

func (l *listener) Close() {
	if l == nil {
		return
	}
	l.closeOnce.Do(func() {
		l.cancel()
		<-l.done
		l.unsubscribe()
	})
}

/*
====================================
MANAGER HOOKS
====================================
*/

// staleInvalidation reports whether ev belongs to an earlier session or predates the
// last resolution.
func (m *Manager) staleInvalidation(ev InvalidationEvent) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed || ev.Generation != m.generation || ev.At.Before(m.lastResolution)
}

// finalizeInvalidation ends the session of generation. It does nothing when a newer
// session exists.
func (m *Manager) finalizeInvalidation(ctx context.Context, generation uint64) (access, userID string, ended bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.generation != generation {
		return "", "", false
	}
	access, userID = m.endSessionLocked(ctx)
	return access, userID, true
}

func (m *Manager) hasRefreshToken() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pair.RefreshToken != ""
}

func (m *Manager) resolveInvalidation() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidating = false
	m.lastResolution = m.now()
}

// refetchProfile reloads the profile over the bare channel after a recovery.
func (m *Manager) refetchProfile(ctx context.Context) error {
	m.mu.Lock()
	access, generation := m.pair.AccessToken, m.generation
	m.mu.Unlock()
	if access == "" {
		return ErrNotAuthenticated
	}

	user, err := m.gateway.FetchCurrentUser(ctx, access)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != generation || m.pair.Empty() {
		return nil
	}
	m.user = &user
	m.degraded = false
	return m.saveLocked(ctx)
}
