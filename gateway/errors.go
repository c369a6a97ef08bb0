package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidCredentials reports a rejected email/password combination.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrValidation reports a request the service refused as invalid (duplicate email,
	// weak password, wrong current password).
	ErrValidation = errors.New("validation failed")
	// ErrRateLimited reports throttling. Use [RetryAfter] to read the wait duration.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnauthorized reports a rejected access token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRefreshInvalid reports an expired or revoked refresh token. It is terminal.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrServiceError covers transport failures, timeouts and unexpected statuses.
	ErrServiceError = errors.New("identity service error")
)

// Error carries the classification of a failed gateway call.
type Error struct {
	Op         string
	Kind       error
	Status     int
	RetryAfter time.Duration
	Message    string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("gateway ")
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Status != 0 {
		b.WriteString(" (HTTP ")
		b.WriteString(strconv.Itoa(e.Status))
		b.WriteByte(')')
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the taxonomy sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// RetryAfter returns the server-provided wait duration carried by a rate-limit error.
func RetryAfter(err error) (time.Duration, bool) {
	var gwErr *Error
	if !errors.As(err, &gwErr) || !errors.Is(gwErr.Kind, ErrRateLimited) {
		return 0, false
	}
	return gwErr.RetryAfter, gwErr.RetryAfter > 0
}

// StatusCode returns the HTTP status recorded on a gateway error, or 0.
func StatusCode(err error) int {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Status
	}
	return 0
}

func newError(op string, kind error, status int, message string, cause error) *Error {
	return &Error{
		Op:      op,
		Kind:    kind,
		Status:  status,
		Message: message,
		Err:     cause,
	}
}

// classifier maps a non-2xx status to a taxonomy sentinel for one operation.
type classifier func(status int) error

func classifyLogin(status int) error {
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return ErrInvalidCredentials
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return ErrServiceError
	}
}

func classifyRegister(status int) error {
	switch status {
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		return ErrValidation
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return ErrServiceError
	}
}

func classifyRefresh(status int) error {
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return ErrRefreshInvalid
	default:
		return ErrServiceError
	}
}

func classifyCurrentUser(status int) error {
	if status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return ErrServiceError
}

func classifyAccount(status int) error {
	switch status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusBadRequest, http.StatusForbidden, http.StatusConflict, http.StatusUnprocessableEntity:
		return ErrValidation
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return ErrServiceError
	}
}

func classifyLogout(status int) error {
	if status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return ErrServiceError
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func describeStatus(status int) string {
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("status %d", status)
}
