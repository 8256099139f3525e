package chat

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/astro-tavern/backend/internal/observability"
)

// expiringStore is implemented by stores that can drop old sessions in bulk.
type expiringStore interface {
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Reaper periodically deletes sessions older than the retention window.
type Reaper struct {
	store     Store
	retention time.Duration
	interval  time.Duration
	logger    *zap.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

// NewReaper applies the 24h retention / hourly interval defaults for zero values.
func NewReaper(store Store, retention, interval time.Duration, logger *zap.Logger, metrics *observability.Metrics) *Reaper {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reaper{
		store:     store,
		retention: retention,
		interval:  interval,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Run sweeps on every tick until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.logger.Error("session sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep deletes every session created before now-retention and returns how many
// were removed. A panic inside the sweep is converted into an error.
func (r *Reaper) Sweep(ctx context.Context) (removed int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("session sweep panicked: %v", rec)
		}
	}()

	cutoff := r.now().Add(-r.retention)

	if bulk, ok := r.store.(expiringStore); ok {
		removed, err = bulk.DeleteCreatedBefore(ctx, cutoff)
		if err != nil {
			return 0, err
		}
	} else {
		sessions, err := r.store.All(ctx)
		if err != nil {
			return 0, fmt.Errorf("list sessions: %w", err)
		}
		for _, session := range sessions {
			if !session.CreatedAt.Before(cutoff) {
				continue
			}
			if err := r.store.Delete(ctx, session.ID); err != nil {
				return removed, fmt.Errorf("delete session %s: %w", session.ID, err)
			}
			removed++
		}
	}

	r.metrics.Reaped(removed)
	if remaining, err := countSessions(ctx, r.store); err == nil {
		r.metrics.SetActiveSessions(remaining)
	}
	if removed > 0 {
		r.logger.Info("expired sessions removed", zap.Int("count", removed), zap.Time("cutoff", cutoff))
	}
	return removed, nil
}
