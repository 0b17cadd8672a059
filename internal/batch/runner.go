package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/pscheid92/faceswap/internal/adapter/metrics"
	"github.com/pscheid92/faceswap/internal/domain"
	"golang.org/x/sync/errgroup"
)

const (
	defaultConcurrency = 4
	defaultBatchSize   = 4
)

// Worker transforms one item. A returned error (or a panic) makes the item
// pass through unchanged.
type Worker[T any] func(ctx context.Context, item T) (T, error)

// Options configures a run. Zero values fall back to package defaults.
type Options struct {
	Concurrency int
	BatchSize   int

	// OnProgress is called after every chunk with the cumulative count.
	OnProgress func(processed, total int)
	// OnFailure is called once per failed item, from the worker goroutine.
	OnFailure func(index int, err error)

	Metrics *metrics.BatchMetrics
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = defaultConcurrency
	}
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	return o
}

// Run processes items in consecutive chunks of at most BatchSize. Within a
// chunk up to Concurrency workers run at once and the chunk completes before
// the next one starts. Each result lands at its input index, so the output
// order always matches the input order.
//
// Worker failure on item i yields result[i] == items[i]; other items are
// unaffected and the chunk keeps going. Once ctx is cancelled no further
// chunks are dispatched and the remaining items pass through unchanged.
func Run[T any](ctx context.Context, items []T, worker Worker[T], opts Options) []T {
	opts = opts.withDefaults()

	total := len(items)
	out := make([]T, total)

	for start := 0; start < total; start += opts.BatchSize {
		end := min(start+opts.BatchSize, total)

		if ctx.Err() != nil {
			copy(out[start:], items[start:])
			return out
		}

		runChunk(ctx, items, out, start, end, worker, opts)

		if opts.OnProgress != nil {
			opts.OnProgress(end, total)
		}
	}

	return out
}

func runChunk[T any](ctx context.Context, items, out []T, start, end int, worker Worker[T], opts Options) {
	began := time.Now()

	// A plain group: one failing item must not cancel its siblings.
	var g errgroup.Group
	g.SetLimit(opts.Concurrency)

	for i := start; i < end; i++ {
		g.Go(func() error {
			result, err := call(ctx, worker, items[i])
			if err != nil {
				out[i] = items[i]
				if opts.OnFailure != nil {
					opts.OnFailure(i, err)
				}
				if opts.Metrics != nil {
					opts.Metrics.WorkerFailures.Inc()
				}
				return nil
			}
			out[i] = result
			return nil
		})
	}
	_ = g.Wait()

	if opts.Metrics != nil {
		opts.Metrics.ItemsProcessed.Add(float64(end - start))
		opts.Metrics.ChunkDuration.Observe(time.Since(began).Seconds())
	}
}

func call[T any](ctx context.Context, worker Worker[T], item T) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", domain.ErrWorkerFailure, r)
		}
	}()

	result, err = worker(ctx, item)
	if err != nil {
		return result, fmt.Errorf("%w: %w", domain.ErrWorkerFailure, err)
	}
	return result, nil
}
