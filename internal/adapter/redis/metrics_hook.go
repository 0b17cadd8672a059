package redis

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/pscheid92/faceswap/internal/adapter/metrics"
	goredis "github.com/redis/go-redis/v9"
)

// MetricsHook records the outcome and latency of every Redis command.
type MetricsHook struct {
	m *metrics.DependencyMetrics
}

var _ goredis.Hook = (*MetricsHook)(nil)

func NewMetricsHook(m *metrics.DependencyMetrics) *MetricsHook {
	return &MetricsHook{m: m}
}

func (h *MetricsHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil {
			h.m.RedisOps.WithLabelValues("dial", "error").Inc()
		}
		return conn, err
	}
}

func (h *MetricsHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		h.observe(cmd.Name(), start, err != nil && !errors.Is(err, goredis.Nil))
		return err
	}
}

func (h *MetricsHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		h.observe("pipeline", start, err != nil)
		return err
	}
}

func (h *MetricsHook) observe(operation string, start time.Time, failed bool) {
	status := "success"
	if failed {
		status = "error"
	}
	h.m.RedisOps.WithLabelValues(operation, status).Inc()
	h.m.RedisOpDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
