package syncqueue

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/angelmondragon/stocksync-backend/pkg/logger"
)

const (
	defaultPollInterval = 5 * time.Second
	maxBackoff          = time.Minute
	jitterWindow        = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type queueProcessor interface {
	ProcessSyncQueue(ctx context.Context, limit int) ([]JobResult, error)
}

// Worker polls the queue. A full batch is followed immediately by another
// pass; an empty or partial batch waits one poll interval.
type Worker struct {
	queue    queueProcessor
	logg     *logger.Logger
	batch    int
	interval time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewWorker(queue queueProcessor, logg *logger.Logger, batch int, interval time.Duration) (*Worker, error) {
	if queue == nil {
		return nil, errors.New("sync queue is required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Worker{queue: queue, logg: logg, batch: batch, interval: interval, sleep: sleepCtx}, nil
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	backoff := w.interval
	for {
		select {
		case <-ctx.Done():
			w.logg.Info(ctx, "sync worker context canceled")
			return ctx.Err()
		default:
		}

		results, err := w.queue.ProcessSyncQueue(ctx, w.batch)
		if err != nil && !errors.Is(err, context.Canceled) {
			w.logg.Error(ctx, "sync worker batch error", err)
			backoff = nextBackoff(backoff, w.interval, maxBackoff)
			if err := w.sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}
		backoff = w.interval

		if len(results) > 0 {
			failed := 0
			for _, r := range results {
				if !r.Success {
					failed++
				}
			}
			w.logg.Info(w.logg.WithFields(ctx, map[string]any{"processed": len(results), "failed": failed}), "sync batch processed")
		}
		if len(results) >= w.batch {
			continue
		}
		if err := w.sleep(ctx, withJitter(w.interval)); err != nil {
			return err
		}
	}
}

func nextBackoff(current, base, limit time.Duration) time.Duration {
	if current < base {
		return base
	}
	next := current * 2
	if next > limit {
		return limit
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	return d + time.Duration(jitterSource.Int63n(int64(jitterWindow)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
