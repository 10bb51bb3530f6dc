package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/travelmap/ratings-api/internal/app/ratings"
	"github.com/travelmap/ratings-api/internal/ports/out/clock"
	"github.com/travelmap/ratings-api/internal/ports/out/idempotency"
)

// pruneIdempotency drops replayable responses older than retention, once per interval, until ctx
// is done.
func pruneIdempotency(ctx context.Context, store idempotency.Store, clk clock.Clock, retention, interval time.Duration, log *zap.Logger) {
	if retention <= 0 {
		return
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			n, err := store.Prune(ctx, clk.Now().Add(-retention))
			if err != nil {
				log.Warn("idempotency prune failed", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Debug("idempotency records pruned", zap.Int("count", n))
			}
		}
	}
}

// evictIdleSessions forgets per-user state unused for idle, checking once per interval.
func evictIdleSessions(ctx context.Context, sessions *ratings.Sessions, clk clock.Clock, idle, interval time.Duration, log *zap.Logger) {
	if idle <= 0 {
		return
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if n := sessions.EvictIdle(clk.Now().Add(-idle)); n > 0 {
				log.Debug("idle sessions evicted", zap.Int("count", n), zap.Int("remaining", sessions.Len()))
			}
		}
	}
}
