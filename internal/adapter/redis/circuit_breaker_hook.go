package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pscheid92/faceswap/internal/adapter/metrics"
	goredis "github.com/redis/go-redis/v9"
)

const (
	lastReadCapacity = 1024
	lastReadTTL      = 5 * time.Minute
)

// CircuitBreakerHook stops calling Redis while it is failing. While open, job
// status reads are answered from the records most recently read through the
// hook; every other command fails fast with circuitbreaker.ErrOpen.
type CircuitBreakerHook struct {
	cb       circuitbreaker.CircuitBreaker[any]
	lastRead *expirable.LRU[string, string]
}

var _ goredis.Hook = (*CircuitBreakerHook)(nil)

// NewCircuitBreakerHook opens at a 60% failure rate over at least 5 calls in
// 10s, probes again after 30s and closes on one success.
func NewCircuitBreakerHook(m *metrics.DependencyMetrics) *CircuitBreakerHook {
	return newCircuitBreakerHook(m, 30*time.Second)
}

func newCircuitBreakerHook(m *metrics.DependencyMetrics, delay time.Duration) *CircuitBreakerHook {
	cb := circuitbreaker.NewBuilder[any]().
		WithFailureRateThreshold(0.6, 5, 10*time.Second).
		WithDelay(delay).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", "redis",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			if m == nil {
				return
			}
			m.CircuitBreakerStateChanges.WithLabelValues("redis", e.NewState.String()).Inc()
			m.CircuitBreakerState.WithLabelValues("redis").Set(breakerGauge(e.NewState))
		}).
		Build()

	return &CircuitBreakerHook{
		cb:       cb,
		lastRead: expirable.NewLRU[string, string](lastReadCapacity, nil, lastReadTTL),
	}
}

func breakerGauge(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return -1
	}
}

// countsAsFailure excludes cache misses and callers giving up; neither says
// anything about Redis health.
func countsAsFailure(err error) bool {
	return err != nil && !errors.Is(err, goredis.Nil) && !errors.Is(err, context.Canceled)
}

func (h *CircuitBreakerHook) record(err error) {
	if countsAsFailure(err) {
		h.cb.RecordError(err)
		return
	}
	h.cb.RecordSuccess()
}

func (h *CircuitBreakerHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if !h.cb.TryAcquirePermit() {
			return nil, fmt.Errorf("redis dial to %s rejected: %w", addr, circuitbreaker.ErrOpen)
		}
		conn, err := next(ctx, network, addr)
		h.record(err)
		if err != nil {
			return nil, fmt.Errorf("redis dial to %s failed: %w", addr, err)
		}
		return conn, nil
	}
}

func (h *CircuitBreakerHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			return h.fromLastRead(ctx, cmd)
		}

		err := next(ctx, cmd)
		h.record(err)
		if countsAsFailure(err) {
			return fmt.Errorf("redis %s failed: %w", cmd.Name(), err)
		}
		h.remember(cmd)
		return err
	}
}

func (h *CircuitBreakerHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			return fmt.Errorf("redis pipeline of %d commands rejected: %w", len(cmds), circuitbreaker.ErrOpen)
		}

		err := next(ctx, cmds)
		h.record(err)
		if countsAsFailure(err) {
			return fmt.Errorf("redis pipeline failed: %w", err)
		}
		return err
	}
}

// jobReadKey returns the job key a GET targets, or "" for any other command.
func jobReadKey(cmd goredis.Cmder) string {
	args := cmd.Args()
	if cmd.Name() != "get" || len(args) < 2 {
		return ""
	}
	key, ok := args[1].(string)
	if !ok || !strings.HasPrefix(key, jobKeyPrefix) {
		return ""
	}
	return key
}

func (h *CircuitBreakerHook) remember(cmd goredis.Cmder) {
	key := jobReadKey(cmd)
	c, ok := cmd.(*goredis.StringCmd)
	if key == "" || !ok {
		return
	}
	if value, err := c.Result(); err == nil && value != "" {
		h.lastRead.Add(key, value)
	}
}

func (h *CircuitBreakerHook) fromLastRead(ctx context.Context, cmd goredis.Cmder) error {
	key := jobReadKey(cmd)
	if key == "" {
		return fmt.Errorf("redis %s rejected: %w", cmd.Name(), circuitbreaker.ErrOpen)
	}
	c, ok := cmd.(*goredis.StringCmd)
	value, found := h.lastRead.Get(key)
	if !ok || !found {
		return fmt.Errorf("redis get %s rejected, no recent read: %w", key, circuitbreaker.ErrOpen)
	}
	slog.DebugContext(ctx, "Redis circuit open, serving last read", "key", key)
	c.SetVal(value)
	return nil
}

// State returns the current state of the circuit breaker.
func (h *CircuitBreakerHook) State() circuitbreaker.State {
	return h.cb.State()
}
