package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cartpilot/job"
	"cartpilot/job/db"
	"cartpilot/notify"

	"go.opentelemetry.io/otel/codes"
)

// RunMultiStorePriceCheck prices the same item list on every store in
// turn, strictly sequentially: each store's leg runs to completion (or
// hits the per-store cap) before the next store's page is opened. The
// merged results are delivered as a single report.
func (o *Orchestrator) RunMultiStorePriceCheck(ctx context.Context, stores []string, items []job.Item) (map[string][]job.Result, error) {
	ctx, span := tracer.Start(ctx, "RunMultiStorePriceCheck")
	defer span.End()

	if len(stores) == 0 {
		return nil, fmt.Errorf("no stores to check")
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("no items to check")
	}

	merged := map[string][]job.Result{}
	var failed []job.FailedItem

	for i, storeName := range stores {
		results, storeFailed, err := o.runStoreLeg(ctx, storeName, items)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return merged, err
			}
			// one store failing should not sink the whole check
			slog.Error("store leg failed", "store", storeName, "error", err)
			span.RecordError(err)
			continue
		}
		merged[storeName] = results
		failed = append(failed, storeFailed...)

		if i < len(stores)-1 {
			select {
			case <-time.After(o.opts.Cooldown):
			case <-ctx.Done():
				return merged, ctx.Err()
			}
		}
	}

	report := notify.Report{
		Kind:        job.TypePriceCheck,
		Results:     merged,
		Failed:      failed,
		Requested:   len(items),
		GeneratedAt: time.Now(),
	}
	err := o.sink.Deliver(ctx, report)
	if err != nil {
		slog.Error("failed to deliver report", "error", err)
	}

	return merged, nil
}

func (o *Orchestrator) runStoreLeg(ctx context.Context, storeName string, items []job.Item) ([]job.Result, []job.FailedItem, error) {
	ctx, span := tracer.Start(ctx, "runStoreLeg")
	defer span.End()

	// each leg gets fresh items so one store's cached matches never
	// leak into another's
	legItems := make([]job.Item, len(items))
	copy(legItems, items)

	err := o.start(ctx, job.TypePriceCheck, storeName, legItems, true)
	if err != nil {
		return nil, nil, err
	}

	finished, err := o.waitFinished(ctx, o.opts.StoreTimeout)
	if err != nil {
		o.abandonLeg(ctx)
		return nil, nil, err
	}

	results := finished.Results
	failed := finished.FailedItems
	handle := finished.TargetHandle

	// close the page and wipe the document before the next store
	err = o.do(ctx, func() {
		closeErr := o.driver.ClosePage(handle)
		if closeErr != nil {
			slog.Warn("failed to close page", "store", storeName, "error", closeErr)
		}
		o.forgetPage(handle)
		clearErr := o.jobs.Clear(context.Background())
		if clearErr != nil {
			slog.Warn("failed to clear job", "error", clearErr)
		}
	})
	if err != nil {
		return results, failed, err
	}

	return results, failed, nil
}

// waitFinished blocks until the live job stops running, the timeout
// passes, or ctx is canceled.
func (o *Orchestrator) waitFinished(ctx context.Context, timeout time.Duration) (*job.Job, error) {
	deadline := time.After(timeout)
	for {
		wait := o.changed.Wait()

		j, err := o.jobs.Get(ctx)
		if err != nil && !errors.Is(err, db.ErrNoJob) {
			return nil, err
		}
		if err == nil && !j.IsRunning {
			return j, nil
		}

		select {
		case <-wait:
		case <-deadline:
			return nil, fmt.Errorf("store did not finish within %s", timeout)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// abandonLeg stops a stuck leg so the next store starts clean.
func (o *Orchestrator) abandonLeg(ctx context.Context) {
	err := o.do(context.WithoutCancel(ctx), func() {
		j, err := o.jobs.Get(context.Background())
		if err == nil {
			if j.TargetHandle != "" {
				closeErr := o.driver.ClosePage(j.TargetHandle)
				if closeErr != nil {
					slog.Warn("failed to close page", "error", closeErr)
				}
				o.forgetPage(j.TargetHandle)
			}
		}
		clearErr := o.jobs.Clear(context.Background())
		if clearErr != nil {
			slog.Warn("failed to clear job", "error", clearErr)
		}
	})
	if err != nil {
		slog.Warn("failed to abandon store leg", "error", err)
	}
}
