// Package oauth provides background token refresh scheduling for providers
// whose tokens are persisted in the oauth_tokens table. It performs jittered
// checks and refreshes when expiry falls within a configured window. This
// complements the relay scheduler's in-cycle refresh: the background
// refresher keeps the stored token warm even while polling is disabled.
package oauth

import (
	"context"
	"database/sql"
	"log/slog"
	"math/rand"
	"time"

	dbpkg "github.com/overlaykit/chat-relay/db"
)

// RefreshFunc performs provider-specific refresh and returns the new access
// token, refresh token (possibly empty), and expiry.
type RefreshFunc func(ctx context.Context, refreshToken string) (string, string, time.Time, error)

// Due reports whether a token with the given expiry should be refreshed now.
func Due(expiry time.Time, window time.Duration, now time.Time) bool {
	return expiry.Sub(now) <= window
}

// StartRefresher launches a goroutine that periodically checks the stored
// token row for provider and refreshes it when it nears expiry.
// interval: how often to wake up and check.
// window: refresh when remaining lifetime <= window.
func StartRefresher(ctx context.Context, db *sql.DB, provider string, interval, window time.Duration, fn RefreshFunc) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	go func() {
		// Randomized initial delay spreads load when several instances boot.
		//nolint:gosec // G404: math/rand is fine for scheduling jitter
		initial := time.Duration(rand.Int63n(int64(interval / 2)))
		select {
		case <-ctx.Done():
			return
		case <-time.After(initial):
		}
		for {
			refreshOnce(ctx, db, provider, window, fn)
			// Per-iteration jitter (±20% of interval).
			jitterRange := int64(interval / 5)
			//nolint:gosec // G404: math/rand is fine for scheduling jitter
			jitter := time.Duration(rand.Int63n(jitterRange*2) - jitterRange)
			sleep := interval + jitter
			if sleep < interval/2 {
				sleep = interval / 2
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(sleep):
			}
		}
	}()
}

func refreshOnce(ctx context.Context, db *sql.DB, provider string, window time.Duration, fn RefreshFunc) {
	_, refresh, expiry, scope, err := dbpkg.GetOAuthToken(ctx, db, provider)
	if err != nil || refresh == "" {
		return
	}
	if !Due(expiry, window, time.Now()) {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	newAccess, newRefresh, newExpiry, err := fn(rctx, refresh)
	cancel()
	if err != nil {
		slog.Warn("token refresh failed", slog.String("provider", provider), slog.Any("err", err))
		return
	}
	if newRefresh == "" {
		newRefresh = refresh
	}
	if err := dbpkg.UpsertOAuthToken(ctx, db, provider, newAccess, newRefresh, newExpiry, scope); err != nil {
		slog.Warn("token persist failed", slog.String("provider", provider), slog.Any("err", err))
		return
	}
	slog.Info("token refreshed", slog.String("provider", provider))
}
