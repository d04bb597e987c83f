package vectorstore

import (
	"context"
	"fmt"
	"time"

	"nutrition-rag/internal/contextutil"
	"nutrition-rag/internal/retry"
)

const (
	// DefaultBatchSize is the number of records sent per upsert call.
	DefaultBatchSize = 100
	// DefaultTimeout bounds a single vector store call.
	DefaultTimeout = 30 * time.Second
)

// DefaultRetry is the bounded retry applied to every vector store call.
var DefaultRetry = retry.Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second}

// Options tune batching, deadlines and retries shared by all implementations.
type Options struct {
	BatchSize int
	Timeout   time.Duration
	Retry     retry.Policy
}

func (o Options) withDefaults() Options {
	if o.BatchSize < 1 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Retry.MaxAttempts < 1 {
		o.Retry = DefaultRetry
	}
	return o
}

// call runs fn under the retry policy, each attempt with its own deadline.
func (o Options) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, o.Retry, op, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, o.Timeout)
		defer cancel()
		return fn(callCtx)
	})
}

// upsertBatches sends records in sequential batches. A failed batch stops
// the run and is named in the error; earlier batches stay committed.
func (o Options) upsertBatches(ctx context.Context, index string, records []Record, send func(ctx context.Context, batch []Record) error) error {
	logger := contextutil.LoggerFromContext(ctx)

	batches := (len(records) + o.BatchSize - 1) / o.BatchSize
	for b := 0; b < batches; b++ {
		lo := b * o.BatchSize
		hi := min(lo+o.BatchSize, len(records))

		err := o.call(ctx, "upsert", func(ctx context.Context) error {
			return send(ctx, records[lo:hi])
		})
		if err != nil {
			logger.ErrorContext(ctx, "failed to upsert batch", "index", index, "batch", b+1, "batches", batches, "error", err)
			return fmt.Errorf("failed to upsert batch %d of %d (records %d-%d): %w", b+1, batches, lo, hi-1, err)
		}

		logger.DebugContext(ctx, "upserted batch", "index", index, "batch", b+1, "batches", batches, "count", hi-lo)
	}

	logger.InfoContext(ctx, "upserted records", "index", index, "count", len(records), "batches", batches)
	return nil
}
