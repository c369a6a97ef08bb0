package goSession

import (
	"context"
	"fmt"

	"github.com/MrEthical07/goSession/gateway"
)

// UpdateProfile changes profile fields through the session pipeline and replaces the
// held profile with the service's answer. The credential pair is not touched.
func (m *Manager) UpdateProfile(ctx context.Context, patch ProfilePatch) (*User, error) {
	if m == nil {
		return nil, ErrManagerNotReady
	}
	if ctx == nil {
		ctx = context.Background()
	}
	generation, err := m.requireSession()
	if err != nil {
		return nil, err
	}

	user, err := m.gateway.UpdateProfile(ctx, patch)
	if err != nil {
		m.emitAudit(ctx, AuditProfileUpdate, false, "", "", err, nil)
		return nil, err
	}

	m.mu.Lock()
	if m.generation == generation && !m.pair.Empty() {
		m.user = &user
		if err := m.saveLocked(ctx); err != nil {
			m.logger.Warn("goSession: persisting updated profile failed", "op", "update_profile", "error", err)
		}
	}
	m.mu.Unlock()

	m.metrics.Inc(MetricProfileUpdated)
	m.emitAudit(ctx, AuditProfileUpdate, true, user.ID, "", nil, nil)
	return cloneUser(&user), nil
}

// ChangePassword changes the account password. Existing tokens stay valid and are not
// rotated.
func (m *Manager) ChangePassword(ctx context.Context, current, next string) error {
	if m == nil {
		return ErrManagerNotReady
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := m.requireSession(); err != nil {
		return err
	}
	if current == "" || next == "" {
		return fmt.Errorf("%w: current and new password are required", ErrValidation)
	}
	if err := m.checkPassword(next); err != nil {
		return err
	}

	userID := m.currentUserID()
	if err := m.gateway.ChangePassword(ctx, gateway.PasswordChange{CurrentPassword: current, NewPassword: next}); err != nil {
		m.emitAudit(ctx, AuditPasswordChange, false, userID, "", err, nil)
		return err
	}

	m.metrics.Inc(MetricPasswordChanged)
	m.logger.Info("goSession: password changed", "op", "change_password", "user_id", userID)
	m.emitAudit(ctx, AuditPasswordChange, true, userID, "", nil, nil)
	return nil
}

// DeleteAccount deletes the account after the service confirms password, then tears
// the session down the way [Manager.Logout] does, without the server logout call.
func (m *Manager) DeleteAccount(ctx context.Context, password string) error {
	if m == nil {
		return ErrManagerNotReady
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := m.requireSession(); err != nil {
		return err
	}
	if password == "" {
		return fmt.Errorf("%w: password is required", ErrValidation)
	}

	userID := m.currentUserID()
	if err := m.gateway.DeleteAccount(ctx, password); err != nil {
		m.emitAudit(ctx, AuditAccountDelete, false, userID, "", err, nil)
		return err
	}

	m.endSession(ctx)
	m.metrics.Inc(MetricAccountDeleted)
	m.logger.Info("goSession: account deleted", "op", "delete_account", "user_id", userID)
	m.emitAudit(ctx, AuditAccountDelete, true, userID, "", nil, nil)
	return nil
}

func (m *Manager) requireSession() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrManagerNotReady
	}
	if m.pair.Empty() {
		return 0, ErrNotAuthenticated
	}
	return m.generation, nil
}

func (m *Manager) currentUserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userIDLocked()
}
