package goSession

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/MrEthical07/goSession/credential"
	"github.com/MrEthical07/goSession/internal/flows"
)

var errNoRefreshToken = fmt.Errorf("%w: no refresh token", ErrRefreshInvalid)

func ticketKey(epoch uint64) string {
	return "refresh:" + strconv.FormatUint(epoch, 10)
}

// refresh joins the refresh ticket of the current epoch, starting one when none is
// outstanding. stale is the access token the caller saw rejected or about to expire;
// when the held token already differs the ticket resolves without a gateway call.
// An empty stale forces a gateway call.
//
// The ticket commits its result before any waiter is released. A ticket overtaken by
// login, register or logout returns [ErrRefreshSuperseded].
func (m *Manager) refresh(ctx context.Context, reason, stale string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerNotReady
	}
	if m.pair.RefreshToken == "" {
		m.mu.Unlock()
		return errNoRefreshToken
	}
	epoch := m.epoch
	m.mu.Unlock()

	leader := false
	ch := m.flight.DoChan(ticketKey(epoch), func() (any, error) {
		leader = true
		return nil, m.runRefresh(epoch, reason, stale)
	})

	select {
	case res := <-ch:
		if !leader {
			m.metrics.Inc(MetricRefreshCoalesced)
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runRefresh is the body of a ticket. It runs on a context owned by the Manager so a
// waiter giving up does not abort the exchange for the others; supersession cancels it.
func (m *Manager) runRefresh(epoch uint64, reason, stale string) error {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		m.metrics.Inc(MetricRefreshSuperseded)
		return ErrRefreshSuperseded
	}
	if stale != "" && m.pair.AccessToken != "" && m.pair.AccessToken != stale {
		m.mu.Unlock()
		return nil
	}
	refreshToken := m.pair.RefreshToken
	ctx, cancel := context.WithCancel(context.Background())
	m.refreshing = true
	m.refreshCancel = cancel
	m.mu.Unlock()
	defer cancel()

	res := flows.RunRefresh(ctx, refreshToken, m.flows.Refresh)
	m.metrics.Observe(MetricRefreshLatency, res.Duration)

	userID, err := m.commitRefresh(epoch, reason, res)

	metadata := func() map[string]string {
		return map[string]string{
			"reason":   reason,
			"attempts": strconv.Itoa(res.Attempts),
		}
	}
	switch {
	case err == nil:
		m.metrics.Inc(MetricRefreshSuccess)
		m.emitAudit(context.Background(), AuditRefresh, true, userID, "", nil, metadata)
	case errors.Is(err, ErrRefreshSuperseded):
		m.metrics.Inc(MetricRefreshSuperseded)
	case res.Failure == flows.RefreshFailureInvalid || res.Failure == flows.RefreshFailureNoToken:
		m.metrics.Inc(MetricRefreshInvalid)
		m.emitAudit(context.Background(), AuditRefresh, false, userID, "", err, metadata)
		m.emitAudit(context.Background(), AuditSessionCleared, true, userID, "", err, metadata)
	default:
		m.metrics.Inc(MetricRefreshFailure)
		m.emitAudit(context.Background(), AuditRefresh, false, userID, "", err, metadata)
	}
	return err
}

func (m *Manager) commitRefresh(epoch uint64, reason string, res flows.RefreshResult) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.epoch != epoch {
		m.logger.Debug("goSession: refresh result discarded", "op", "refresh", "reason", reason)
		return "", ErrRefreshSuperseded
	}
	m.refreshing = false
	m.refreshCancel = nil
	userID := m.userIDLocked()

	switch res.Failure {
	case flows.RefreshFailureNone:
		m.pair = res.Pair
		m.invalidating = false
		m.degraded = false
		m.lastErr = nil
		if err := m.saveLocked(context.Background()); err != nil {
			m.logger.Warn("goSession: persisting refreshed pair failed", "op", "refresh", "error", err)
		}
		m.logger.Debug("goSession: access token refreshed", "op", "refresh", "reason", reason, "attempts", res.Attempts)
		return userID, nil

	case flows.RefreshFailureInvalid, flows.RefreshFailureNoToken:
		m.resetLocked()
		m.lastErr = res.Err
		m.clearStoreLocked(context.Background())
		m.logger.Info("goSession: refresh token rejected, session cleared", "op", "refresh", "reason", reason)
		return userID, res.Err

	case flows.RefreshFailureCanceled:
		return userID, fmt.Errorf("%w: %v", ErrServiceError, res.Err)

	default:
		m.invalidating = true
		m.lastErr = res.Err
		m.logger.Warn("goSession: refresh failed", "op", "refresh", "reason", reason, "attempts", res.Attempts, "error", res.Err)
		return userID, res.Err
	}
}

func flowDeps(m *Manager) flows.Deps {
	return flows.Deps{
		Hydrate: flows.HydrateDeps{
			Load: func(ctx context.Context) (credential.Record, error) {
				sctx, cancel := m.storeContext(ctx)
				defer cancel()
				return m.store.Load(sctx)
			},
			FetchUser: m.gateway.FetchCurrentUser,
		},
		Refresh: flows.RefreshDeps{
			Exchange:   m.gateway.Refresh,
			Attempts:   m.config.Session.RefreshAttempts,
			RetryDelay: m.config.Session.RefreshRetryDelay,
			Now:        m.now,
			Warn: func(msg string, args ...any) {
				m.logger.Warn(msg, args...)
			},
		},
	}
}
