package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"corpora/internal/claim"
	"corpora/internal/logging"
	"corpora/internal/services"
)

// RunWorkers starts n workers that each loop claim then run until a claim
// comes back empty or ctx ends. It returns the combined report and the first
// worker error.
func (r *Runner) RunWorkers(ctx context.Context, subsetName string, n int) (Report, error) {
	if n <= 0 {
		n = r.cfg.Pipeline.Workers
	}
	if n <= 0 {
		n = 1
	}
	if _, err := r.tracker.Get(ctx, subsetName); err != nil {
		return Report{Subset: subsetName}, err
	}

	var (
		mu       sync.Mutex
		total    = Report{Subset: subsetName}
		firstErr error
		wg       sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		worker := fmt.Sprintf("worker-%d", i+1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			report, err := r.work(services.WithWorker(ctx, worker), subsetName, worker)
			mu.Lock()
			defer mu.Unlock()
			total.Add(report)
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}()
	}
	wg.Wait()
	return total, firstErr
}

func (r *Runner) work(ctx context.Context, subsetName, worker string) (Report, error) {
	claimer := claim.New(r.cfg, r.tracker, worker, r.logger, r.metrics)
	logger := logging.WithContext(ctx, r.logger)
	total := Report{Subset: subsetName}
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		batch, err := claimer.Claim(ctx, subsetName)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return total, err
			}
			logging.ErrorWithContext(logger, "claim failed", "claim_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, services.Details(err).Hint),
			)
			return total, err
		}
		if batch.Empty() {
			_ = batch.Close(ctx)
			return total, nil
		}
		report, err := r.Run(ctx, batch)
		total.Add(report)
		if err != nil {
			return total, err
		}
	}
}
