package goSession

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goSession/gateway"
)

// Identity service taxonomy, shared with the gateway package so errors.Is works on
// anything the Manager returns.
var (
	// ErrInvalidCredentials reports a rejected email/password combination.
	ErrInvalidCredentials = gateway.ErrInvalidCredentials
	// ErrValidation reports a request rejected as invalid, locally or by the service.
	ErrValidation = gateway.ErrValidation
	// ErrRateLimited reports throttling. Use [RetryAfter] for the wait duration.
	ErrRateLimited = gateway.ErrRateLimited
	// ErrUnauthorized reports a rejected or missing access token.
	ErrUnauthorized = gateway.ErrUnauthorized
	// ErrRefreshInvalid reports an expired or revoked refresh token.
	ErrRefreshInvalid = gateway.ErrRefreshInvalid
	// ErrServiceError covers transport failures, timeouts and unexpected statuses.
	ErrServiceError = gateway.ErrServiceError
)

var (
	// ErrNotAuthenticated is returned by operations that need a session when there is none.
	// It matches [ErrUnauthorized].
	ErrNotAuthenticated = fmt.Errorf("%w: no active session", ErrUnauthorized)
	// ErrRefreshSuperseded reports a refresh whose result was discarded because the
	// session changed (login, register or logout) while it was in flight.
	ErrRefreshSuperseded = errors.New("refresh superseded")
	// ErrLoginSuperseded reports a login or register whose result was discarded because
	// another login, register or logout started after it.
	ErrLoginSuperseded = errors.New("login superseded")
	// ErrManagerNotReady is returned by a nil or closed Manager.
	ErrManagerNotReady = errors.New("session manager not initialized")
)

// RetryAfter returns the wait duration carried by a rate-limit error.
func RetryAfter(err error) (time.Duration, bool) {
	return gateway.RetryAfter(err)
}
