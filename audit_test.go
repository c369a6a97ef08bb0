package goSession

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/goSession/credential"
	"github.com/MrEthical07/goSession/gateway"
)

func TestChannelSinkForwards(t *testing.T) {
	sink := NewChannelSink(1)
	sink.Emit(context.Background(), AuditEvent{EventType: AuditLogout, Success: true})

	ev := <-sink.Events()
	require.Equal(t, AuditLogout, ev.EventType)

	// A full sink gives up when ctx ends.
	sink.Emit(context.Background(), AuditEvent{EventType: AuditLogin})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink.Emit(ctx, AuditEvent{EventType: AuditRegister})
	require.Equal(t, AuditLogin, (<-sink.Events()).EventType)
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sink.Emit(context.Background(), AuditEvent{Timestamp: at, EventType: AuditRefresh, UserID: "u1", Success: true})
	sink.Emit(context.Background(), AuditEvent{Timestamp: at, EventType: AuditRefresh, Error: "refresh_invalid"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var ev AuditEvent
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &ev))
	require.Equal(t, "refresh_invalid", ev.Error)
	require.False(t, ev.Success)
	require.Contains(t, lines[0], `"user_id":"u1"`)
}

func TestSlogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sink := NewSlogSink(logger)

	sink.Emit(context.Background(), AuditEvent{EventType: AuditLogin, Success: true, UserID: "u1"})
	sink.Emit(context.Background(), AuditEvent{EventType: AuditRecovery, Error: "service_error", Metadata: map[string]string{"reason": "refresh_unavailable"}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], `"level":"INFO"`)
	require.Contains(t, lines[1], `"level":"WARN"`)
	require.Contains(t, lines[1], `"reason":"refresh_unavailable"`)
}

func TestAuditErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want AuditErrorCode
	}{
		{nil, ""},
		{&gateway.Error{Op: "login", Kind: ErrInvalidCredentials}, auditErrInvalidCredentials},
		{fmt.Errorf("%w: short", ErrValidation), auditErrValidation},
		{&gateway.Error{Op: "login", Kind: ErrRateLimited}, auditErrRateLimited},
		{errNoRefreshToken, auditErrRefreshInvalid},
		{ErrNotAuthenticated, auditErrUnauthorized},
		{ErrRefreshSuperseded, auditErrSuperseded},
		{ErrLoginSuperseded, auditErrSuperseded},
		{credential.ErrStoreUnavailable, auditErrStoreUnavailable},
		{&gateway.Error{Op: "refresh", Kind: ErrServiceError}, auditErrService},
		{context.Canceled, auditErrCanceled},
		{errors.New("boom"), auditErrInternal},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, auditErrorCode(tc.err), "%v", tc.err)
	}
}
