package live

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/faceswap/internal/platform/correlation"
)

const (
	DefaultSweepInterval = 60 * time.Second
	DefaultIdleTimeout   = 300 * time.Second
)

// Reaper periodically evicts idle sessions from a Manager. It runs
// independently of request traffic.
type Reaper struct {
	manager  *Manager
	clock    clockwork.Clock
	interval time.Duration
	idle     time.Duration
	onEvict  func(ids []string)
}

// NewReaper creates a reaper. Non-positive durations fall back to the defaults.
// onEvict, if set, receives the ids closed by each sweep.
func NewReaper(manager *Manager, clock clockwork.Clock, interval, idle time.Duration, onEvict func(ids []string)) *Reaper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	return &Reaper{
		manager:  manager,
		clock:    clock,
		interval: interval,
		idle:     idle,
		onEvict:  onEvict,
	}
}

// Run sweeps every interval. It blocks until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	slog.Info("Idle session reaper started", "interval", r.interval, "idle_timeout", r.idle)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Idle session reaper stopped")
			return
		case <-ticker.Chan():
			r.Sweep(correlation.WithID(ctx, correlation.NewID()))
		}
	}
}

// Sweep runs one eviction pass and returns the number of sessions closed.
func (r *Reaper) Sweep(ctx context.Context) int {
	evicted := r.manager.EvictIdle(r.idle)
	if len(evicted) == 0 {
		slog.DebugContext(ctx, "Reaper: no idle sessions", "active", r.manager.ActiveCount())
		return 0
	}

	slog.InfoContext(ctx, "Reaper: evicted idle sessions", "evicted", len(evicted), "active", r.manager.ActiveCount())
	if r.onEvict != nil {
		r.onEvict(evicted)
	}
	return len(evicted)
}
