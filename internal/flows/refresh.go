package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goSession/credential"
	"github.com/MrEthical07/goSession/gateway"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	// RefreshFailureNoToken means there was nothing to exchange.
	RefreshFailureNoToken
	// RefreshFailureInvalid means the service rejected the refresh token. Terminal.
	RefreshFailureInvalid
	// RefreshFailureService means every attempt failed with a service error.
	RefreshFailureService
	// RefreshFailureCanceled means the flow context ended first.
	RefreshFailureCanceled
)

// RefreshResult carries either the new pair or failure metadata.
type RefreshResult struct {
	Failure  RefreshFailureKind
	Err      error
	Pair     credential.Pair
	Attempts int
	Duration time.Duration
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Exchange   func(ctx context.Context, refreshToken string) (gateway.TokenPair, error)
	Attempts   int
	RetryDelay time.Duration
	Sleep      func(ctx context.Context, d time.Duration) error
	Now        func() time.Time
	Warn       func(msg string, args ...any)
}

// RunRefresh exchanges refreshToken for a new pair. Service errors are retried up to
// deps.Attempts times; an invalid refresh token is not. When the service omits a new
// refresh token the current one is kept.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	sleep := deps.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	attempts := deps.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	start := now()

	if refreshToken == "" {
		return RefreshResult{Failure: RefreshFailureNoToken, Err: gateway.ErrRefreshInvalid}
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, deps.RetryDelay); err != nil {
				return RefreshResult{Failure: RefreshFailureCanceled, Err: err, Attempts: attempt - 1, Duration: now().Sub(start)}
			}
		}

		tokens, err := deps.Exchange(ctx, refreshToken)
		if err == nil {
			next := credential.Pair{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}
			if next.RefreshToken == "" {
				next.RefreshToken = refreshToken
			}
			return RefreshResult{Pair: next, Attempts: attempt, Duration: now().Sub(start)}
		}
		lastErr = err

		switch {
		case ctx.Err() != nil:
			return RefreshResult{Failure: RefreshFailureCanceled, Err: ctx.Err(), Attempts: attempt, Duration: now().Sub(start)}
		case errors.Is(err, gateway.ErrRefreshInvalid):
			return RefreshResult{Failure: RefreshFailureInvalid, Err: err, Attempts: attempt, Duration: now().Sub(start)}
		}

		if deps.Warn != nil && attempt < attempts {
			deps.Warn("goSession: refresh attempt failed, retrying", "attempt", attempt, "error", err)
		}
	}

	return RefreshResult{Failure: RefreshFailureService, Err: lastErr, Attempts: attempts, Duration: now().Sub(start)}
}
