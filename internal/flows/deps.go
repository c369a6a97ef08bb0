package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goSession/credential"
)

// Deps groups flow dependency sets. The Manager builds this once at construction.
// Hydrate carries only the session-independent functions (Load, FetchUser); Adopt and
// Refresh are bound per call with [HydrateDeps.Bind].
type Deps struct {
	Hydrate HydrateDeps
	Refresh RefreshDeps
}

// Bind returns a copy of d with the per-call hooks set.
func (d HydrateDeps) Bind(adopt func(rec credential.Record), refresh func(ctx context.Context) (credential.Pair, error)) HydrateDeps {
	d.Adopt = adopt
	d.Refresh = refresh
	return d
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
