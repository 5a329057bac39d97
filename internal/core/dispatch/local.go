package dispatch

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// LocalDispatcher keeps jobs on an in-process channel and runs them on a
// bounded worker pool. It is the delivery path when no broker is configured.
// Jobs do not survive a restart; the manual retry endpoint covers that gap.
type LocalDispatcher struct {
	jobs      chan Job
	processor Processor
	workers   int
	log       *zap.SugaredLogger
}

func NewLocalDispatcher(processor Processor, workers, buffer int, log *zap.SugaredLogger) *LocalDispatcher {
	if workers <= 0 {
		workers = 1
	}
	if buffer <= 0 {
		buffer = 256
	}
	return &LocalDispatcher{
		jobs:      make(chan Job, buffer),
		processor: processor,
		workers:   workers,
		log:       log,
	}
}

// Enqueue never blocks; a full queue is an error the caller surfaces as a
// failed document.
func (d *LocalDispatcher) Enqueue(ctx context.Context, job Job) error {
	select {
	case d.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return errors.New("ingestion queue is full")
	}
}

// Start runs the worker pool until ctx is cancelled. Job failures are logged
// only; the pipeline has already recorded them on the document ledger.
func (d *LocalDispatcher) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case job := <-d.jobs:
					if err := d.processor.Process(gctx, job.DocumentID, job.UserID); err != nil {
						d.log.Errorw("ingestion job failed",
							"document_id", job.DocumentID, "error", err)
					}
				}
			}
		})
	}
	return g.Wait()
}
