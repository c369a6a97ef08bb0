package goSession

import (
	"time"

	"github.com/MrEthical07/goSession/gateway"
)

// User is the authenticated identity's profile.
type User = gateway.User

// Registration is the input of [Manager.Register].
type Registration = gateway.Registration

// ProfilePatch carries the profile fields to change; nil fields are left untouched.
type ProfilePatch = gateway.ProfilePatch

// Status is the externally visible session state. It is derived from the credential
// pair, the profile, the in-progress phase and the last hydrate failure; it is never
// stored.
type Status int

const (
	// StatusUnauthenticated means no credential pair is held.
	StatusUnauthenticated Status = iota
	// StatusInitializing means the persisted session is being restored.
	StatusInitializing
	// StatusAuthenticated means a pair is held and the profile is known.
	StatusAuthenticated
	// StatusRefreshing means a refresh ticket is outstanding.
	StatusRefreshing
	// StatusInvalidating means refresh failed with service errors and the invalidation
	// listener has not resolved the session yet.
	StatusInvalidating
	// StatusError means a pair is held but the identity service could not confirm it.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusUnauthenticated:
		return "unauthenticated"
	case StatusInitializing:
		return "initializing"
	case StatusAuthenticated:
		return "authenticated"
	case StatusRefreshing:
		return "refreshing"
	case StatusInvalidating:
		return "invalidating"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Snapshot is a consistent view of the session.
type Snapshot struct {
	Status     Status
	User       *User
	Generation uint64
	LastError  error
}

// InvalidationReason names why a request pipeline gave up on a session.
type InvalidationReason string

const (
	// ReasonRefreshRejected: a request to the refresh route itself came back 401.
	ReasonRefreshRejected InvalidationReason = "refresh_rejected"
	// ReasonRetryRejected: a request that was already retried after a refresh got 401 again.
	ReasonRetryRejected InvalidationReason = "retry_rejected"
	// ReasonRefreshInvalid: the refresh token was rejected.
	ReasonRefreshInvalid InvalidationReason = "refresh_invalid"
	// ReasonRefreshUnavailable: refresh failed with service errors on every attempt.
	ReasonRefreshUnavailable InvalidationReason = "refresh_unavailable"
)

// InvalidationEvent is broadcast when the pipeline cannot repair a 401.
type InvalidationEvent struct {
	Reason      InvalidationReason `json:"reason"`
	URL         string             `json:"url"`
	Method      string             `json:"method"`
	Status      int                `json:"status"`
	RequestID   string             `json:"request_id"`
	BodySnippet string             `json:"body_snippet,omitempty"`
	// Generation identifies the session the failing request was sent under.
	Generation uint64    `json:"generation"`
	At         time.Time `json:"at"`
}
