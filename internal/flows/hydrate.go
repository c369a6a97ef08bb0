package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/goSession/credential"
	"github.com/MrEthical07/goSession/gateway"
)

// HydrateOutcome is the state a hydration lands in.
type HydrateOutcome int

const (
	// HydrateNoSession means nothing usable was persisted.
	HydrateNoSession HydrateOutcome = iota
	// HydrateAuthenticated means the profile was confirmed with a valid access token.
	HydrateAuthenticated
	// HydrateDegraded means the service could not be reached; the persisted pair is kept.
	HydrateDegraded
	// HydrateCleared means the persisted session was rejected and must be discarded.
	HydrateCleared
)

// HydrateResult describes a completed hydration.
type HydrateResult struct {
	Outcome   HydrateOutcome
	Record    credential.Record
	Pair      credential.Pair
	User      *gateway.User
	Refreshed bool
	Err       error
}

// HydrateDeps captures hydrate flow dependencies.
type HydrateDeps struct {
	Load func(ctx context.Context) (credential.Record, error)
	// Adopt exposes the loaded pair to the refresh ticket before any network call.
	Adopt     func(rec credential.Record)
	FetchUser func(ctx context.Context, accessToken string) (gateway.User, error)
	// Refresh joins the shared refresh ticket and returns the pair it produced.
	Refresh func(ctx context.Context) (credential.Pair, error)
}

// RunHydrate restores a persisted session: load, confirm the profile, and on a
// rejected access token perform exactly one refresh before confirming again.
func RunHydrate(ctx context.Context, deps HydrateDeps) HydrateResult {
	rec, err := deps.Load(ctx)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return HydrateResult{Outcome: HydrateNoSession}
		}
		return HydrateResult{Outcome: HydrateNoSession, Err: err}
	}
	if deps.Adopt != nil {
		deps.Adopt(rec)
	}

	user, err := deps.FetchUser(ctx, rec.Pair.AccessToken)
	if err == nil {
		return HydrateResult{Outcome: HydrateAuthenticated, Record: rec, Pair: rec.Pair, User: &user}
	}
	if !errors.Is(err, gateway.ErrUnauthorized) {
		return HydrateResult{Outcome: HydrateDegraded, Record: rec, Pair: rec.Pair, Err: err}
	}

	pair, err := deps.Refresh(ctx)
	if err != nil {
		return HydrateResult{Outcome: HydrateCleared, Record: rec, Refreshed: true, Err: err}
	}

	user, err = deps.FetchUser(ctx, pair.AccessToken)
	if err != nil {
		return HydrateResult{Outcome: HydrateCleared, Record: rec, Refreshed: true, Err: err}
	}
	return HydrateResult{Outcome: HydrateAuthenticated, Record: rec, Pair: pair, User: &user, Refreshed: true}
}
