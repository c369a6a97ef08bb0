package credential

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load when no credential pair is persisted.
var ErrNotFound = errors.New("credentials not found")

// ErrIncompletePair is returned by Save when one of the two tokens is missing.
var ErrIncompletePair = errors.New("incomplete credential pair")

// ErrStoreUnavailable wraps backend failures (Redis, SQLite).
var ErrStoreUnavailable = errors.New("credential store unavailable")

// Pair is the access/refresh token pair issued by the identity service.
type Pair struct {
	AccessToken  string
	RefreshToken string
}

// Complete reports whether both tokens are present.
func (p Pair) Complete() bool {
	return p.AccessToken != "" && p.RefreshToken != ""
}

// Empty reports whether both tokens are absent.
func (p Pair) Empty() bool {
	return p.AccessToken == "" && p.RefreshToken == ""
}

// Record is the unit persisted by a [Store]. Profile holds the cached user profile as
// opaque JSON and may be nil.
type Record struct {
	Pair    Pair
	Profile []byte
}

// Store is a scoped key-value persistence for one client session.
//
// Implementations must be safe for concurrent use. Concurrent Save and Clear calls
// resolve to whichever completes last.
type Store interface {
	Load(ctx context.Context) (Record, error)
	Save(ctx context.Context, rec Record) error
	Clear(ctx context.Context) error
}

func validate(rec Record) error {
	if !rec.Pair.Complete() {
		return ErrIncompletePair
	}
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
