package goSession

import (
	"context"
	"errors"

	"github.com/MrEthical07/goSession/credential"
)

// AuditErrorCode is the stable error label written into [AuditEvent.Error].
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrValidation         AuditErrorCode = "validation"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrUnauthorized       AuditErrorCode = "unauthorized"
	auditErrRefreshInvalid     AuditErrorCode = "refresh_invalid"
	auditErrSuperseded         AuditErrorCode = "superseded"
	auditErrStoreUnavailable   AuditErrorCode = "store_unavailable"
	auditErrService            AuditErrorCode = "service_error"
	auditErrCanceled           AuditErrorCode = "canceled"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (m *Manager) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	requestID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if m == nil || m.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: m.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		RequestID: requestID,
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	m.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrRefreshInvalid):
		return auditErrRefreshInvalid
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrRefreshSuperseded),
		errors.Is(err, ErrLoginSuperseded):
		return auditErrSuperseded
	case errors.Is(err, credential.ErrStoreUnavailable):
		return auditErrStoreUnavailable
	case errors.Is(err, ErrServiceError):
		return auditErrService
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return auditErrCanceled
	default:
		return auditErrInternal
	}
}
