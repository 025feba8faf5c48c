// Package orchestrator drives shopping and price-check jobs. All job
// mutations happen on a single work-queue goroutine: page events and
// API calls alike enqueue closures, so there is exactly one writer and
// the advance step never recurses into itself.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cartpilot/job"
	"cartpilot/job/db"
	"cartpilot/notify"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("orchestrator")

// PageDriver is what the orchestrator asks of a page agent. Commands
// either fail to send (error return) or complete asynchronously by
// dispatching an event back.
type PageDriver interface {
	OpenPage(ctx context.Context, storeName string) (handle string, err error)
	ClosePage(handle string) error
	Search(handle string, item job.Item) error
	AddToCart(handle string, item job.Item) error
	Scrape(handle string, item job.Item) error
}

type Options struct {
	// how long a freshly opened page gets to become ready. defaults
	// to 5s.
	ReadinessTimeout time.Duration
	// cap on one store's leg of a multi-store price check. defaults
	// to 5m.
	StoreTimeout time.Duration
	// pause between stores in a multi-store price check. defaults
	// to 2s.
	Cooldown time.Duration
	// add-to-cart retries per item before the item is marked failed.
	// defaults to 2.
	MaxRetries int
}

func (o *Options) withDefaults() {
	if o.ReadinessTimeout == 0 {
		o.ReadinessTimeout = time.Second * 5
	}
	if o.StoreTimeout == 0 {
		o.StoreTimeout = time.Minute * 5
	}
	if o.Cooldown == 0 {
		o.Cooldown = time.Second * 2
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 2
	}
}

type Orchestrator struct {
	opts   Options
	jobs   *db.Store
	driver PageDriver
	sink   notify.Sink

	queue chan func()
	// broadcast after every job document write
	changed *monitor

	mu           sync.Mutex
	readyPages   map[string]bool
	readyWaiters map[string]chan struct{}
}

func New(jobs *db.Store, driver PageDriver, sink notify.Sink, opts Options) *Orchestrator {
	opts.withDefaults()
	if sink == nil {
		sink = notify.LogSink{}
	}
	return &Orchestrator{
		opts:         opts,
		jobs:         jobs,
		driver:       driver,
		sink:         sink,
		queue:        make(chan func(), 64),
		changed:      newMonitor(),
		readyPages:   map[string]bool{},
		readyWaiters: map[string]chan struct{}{},
	}
}

// Run executes queued work until ctx is canceled. Everything that
// touches the job document runs here.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-o.queue:
			fn()
		}
	}
}

func (o *Orchestrator) enqueue(fn func()) {
	o.queue <- fn
}

// do enqueues fn and waits for it to finish.
func (o *Orchestrator) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	o.enqueue(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatch receives page events. Readiness is handled inline since it
// never touches the job document; everything else goes through the
// work queue.
func (o *Orchestrator) Dispatch(event any) {
	switch ev := event.(type) {
	case PageReady:
		o.markReady(ev.Handle)
	case PageLoaded:
		o.enqueue(func() { o.handleSearchFinished(context.Background(), ev.Handle) })
	case SearchCompleted:
		o.enqueue(func() { o.handleSearchFinished(context.Background(), ev.Handle) })
	case TaskCompleted:
		o.enqueue(func() { o.handleTaskCompleted(context.Background(), ev) })
	case ScrapeCompleted:
		o.enqueue(func() { o.handleScrapeCompleted(context.Background(), ev) })
	default:
		slog.Warn("dropping unknown page event", "event", fmt.Sprintf("%T", event))
	}
}

func (o *Orchestrator) markReady(handle string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.readyPages[handle] {
		return
	}
	o.readyPages[handle] = true
	if ch, ok := o.readyWaiters[handle]; ok {
		close(ch)
		delete(o.readyWaiters, handle)
	}
}

// waitReady blocks until the page reports in, or the timeout passes.
// an expired wait is not fatal: the page may well be usable anyway, so
// the job proceeds and a genuinely dead page surfaces as item failures.
func (o *Orchestrator) waitReady(ctx context.Context, handle string) error {
	o.mu.Lock()
	if o.readyPages[handle] {
		o.mu.Unlock()
		return nil
	}
	ch, ok := o.readyWaiters[handle]
	if !ok {
		ch = make(chan struct{})
		o.readyWaiters[handle] = ch
	}
	o.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-time.After(o.opts.ReadinessTimeout):
		slog.Warn(
			"page did not report ready, proceeding anyway",
			"handle", handle,
			"timeout", o.opts.ReadinessTimeout,
		)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) forgetPage(handle string) {
	o.mu.Lock()
	delete(o.readyPages, handle)
	delete(o.readyWaiters, handle)
	o.mu.Unlock()
}

// StartShoppingJob opens a page on the given store and begins filling
// its cart. It returns once the job is created and moving; progress is
// observable through the job store.
func (o *Orchestrator) StartShoppingJob(ctx context.Context, storeName string, items []job.Item) error {
	return o.start(ctx, job.TypeShopping, storeName, items, false)
}

// StartPriceCheck begins a single-store price collection run.
func (o *Orchestrator) StartPriceCheck(ctx context.Context, storeName string, items []job.Item) error {
	return o.start(ctx, job.TypePriceCheck, storeName, items, false)
}

func (o *Orchestrator) start(ctx context.Context, t job.Type, storeName string, items []job.Item, multiStore bool) error {
	ctx, span := tracer.Start(ctx, "start")
	defer span.End()

	if len(items) == 0 {
		return fmt.Errorf("no items to process")
	}

	handle, err := o.driver.OpenPage(ctx, storeName)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to open %s: %w", storeName, err)
	}

	err = o.waitReady(ctx, handle)
	if err != nil {
		_ = o.driver.ClosePage(handle)
		o.forgetPage(handle)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	errc := make(chan error, 1)
	o.enqueue(func() {
		// a new start displaces whatever job was running; its page
		// goes with it
		existing, err := o.jobs.Get(context.Background())
		if err != nil && !errors.Is(err, db.ErrNoJob) {
			errc <- err
			return
		}
		if err == nil && existing.IsRunning && existing.TargetHandle != "" {
			slog.Warn("displacing running job", "store", existing.CurrentStoreName)
			closeErr := o.driver.ClosePage(existing.TargetHandle)
			if closeErr != nil {
				slog.Warn("failed to close page", "error", closeErr)
			}
			o.forgetPage(existing.TargetHandle)
		}

		j := job.New(t, storeName, items)
		j.TargetHandle = handle
		j.MultiStoreMode = multiStore
		err = o.put(context.Background(), j)
		if err != nil {
			errc <- err
			return
		}
		errc <- nil
		o.advance(context.Background())
	})

	select {
	case err := <-errc:
		if err != nil {
			_ = o.driver.ClosePage(handle)
			o.forgetPage(handle)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) put(ctx context.Context, j *job.Job) error {
	err := o.jobs.Put(ctx, j)
	o.changed.Broadcast()
	return err
}

// advance processes the item under the cursor, or finishes the job if
// the cursor walked past the end. It runs on the queue goroutine only.
func (o *Orchestrator) advance(ctx context.Context) {
	j, err := o.jobs.Get(ctx)
	if err != nil {
		slog.Error("failed to load job", "error", err)
		return
	}
	if !j.IsRunning {
		return
	}
	if j.Done() {
		o.finish(ctx, j)
		return
	}

	item, _ := j.CurrentItem()
	j.Status = job.StatusSearching
	j.StatusMessage = fmt.Sprintf("Searching for %s (%d/%d)", item.Name, j.CurrentIndex+1, len(j.Items))
	err = o.put(ctx, j)
	if err != nil {
		slog.Error("failed to persist job", "error", err)
		return
	}

	err = o.driver.Search(j.TargetHandle, item)
	if err != nil {
		// the command never reached the page; synthesize the failure
		// so the item is retried or skipped like any other
		handle := j.TargetHandle
		reason := err.Error()
		o.enqueue(func() {
			o.handleTaskCompleted(ctx, TaskCompleted{Handle: handle, OK: false, Reason: reason})
		})
	}
}

// handleSearchFinished fires on both search triggers, a page load and
// an explicit completion signal. The (status, handle) guard makes the
// second trigger for the same search a no-op.
func (o *Orchestrator) handleSearchFinished(ctx context.Context, handle string) {
	j, err := o.jobs.Get(ctx)
	if err != nil || !j.IsRunning {
		return
	}
	if j.Status != job.StatusSearching || j.TargetHandle != handle {
		return
	}

	item, ok := j.CurrentItem()
	if !ok {
		o.finish(ctx, j)
		return
	}

	var cmdErr error
	switch j.Type {
	case job.TypeShopping:
		j.Status = job.StatusAddingToCart
		j.StatusMessage = fmt.Sprintf("Adding %s to cart (%d/%d)", item.Name, j.CurrentIndex+1, len(j.Items))
		err = o.put(ctx, j)
		if err != nil {
			slog.Error("failed to persist job", "error", err)
			return
		}
		cmdErr = o.driver.AddToCart(handle, item)
	case job.TypePriceCheck:
		j.Status = job.StatusScraping
		j.StatusMessage = fmt.Sprintf("Collecting prices for %s (%d/%d)", item.Name, j.CurrentIndex+1, len(j.Items))
		err = o.put(ctx, j)
		if err != nil {
			slog.Error("failed to persist job", "error", err)
			return
		}
		cmdErr = o.driver.Scrape(handle, item)
	default:
		slog.Error("job has unknown type", "type", j.Type)
		return
	}

	if cmdErr != nil {
		reason := cmdErr.Error()
		o.enqueue(func() {
			o.handleTaskCompleted(ctx, TaskCompleted{Handle: handle, OK: false, Reason: reason})
		})
	}
}

func (o *Orchestrator) handleTaskCompleted(ctx context.Context, ev TaskCompleted) {
	j, err := o.jobs.Get(ctx)
	if err != nil || !j.IsRunning {
		return
	}
	if j.TargetHandle != ev.Handle {
		return
	}
	if j.Status == job.StatusIdle {
		return
	}

	item, ok := j.CurrentItem()
	if !ok {
		o.finish(ctx, j)
		return
	}

	if ev.OK {
		j.Advance()
		err = o.put(ctx, j)
		if err != nil {
			slog.Error("failed to persist job", "error", err)
			return
		}
		o.enqueue(func() { o.advance(ctx) })
		return
	}

	if j.Type == job.TypePriceCheck {
		// a price check records every requested item; a miss becomes an
		// errored result instead of a retry
		j.Results = append(j.Results, job.Result{
			ItemName: item.Name,
			Store:    j.CurrentStoreName,
			Error:    ev.Reason,
		})
		j.Advance()
	} else if j.RetryCount < o.opts.MaxRetries {
		j.RetryCount++
		j.Status = job.StatusIdle
		slog.Warn(
			"retrying item",
			"item", item.Name,
			"attempt", j.RetryCount,
			"reason", ev.Reason,
		)
	} else {
		j.MarkFailed(item.Name, ev.Reason)
		j.Advance()
	}
	err = o.put(ctx, j)
	if err != nil {
		slog.Error("failed to persist job", "error", err)
		return
	}
	o.enqueue(func() { o.advance(ctx) })
}

func (o *Orchestrator) handleScrapeCompleted(ctx context.Context, ev ScrapeCompleted) {
	j, err := o.jobs.Get(ctx)
	if err != nil || !j.IsRunning {
		return
	}
	if j.Status != job.StatusScraping || j.TargetHandle != ev.Handle {
		return
	}

	j.Results = append(j.Results, ev.Result)
	j.Advance()
	err = o.put(ctx, j)
	if err != nil {
		slog.Error("failed to persist job", "error", err)
		return
	}
	o.enqueue(func() { o.advance(ctx) })
}

// finish marks the job done and, outside multi-store mode, delivers
// the report. The shopping page stays open so the cart can be
// reviewed; price-check pages are closed.
func (o *Orchestrator) finish(ctx context.Context, j *job.Job) {
	j.IsRunning = false
	j.Status = job.StatusIdle
	j.StatusMessage = fmt.Sprintf(
		"Finished: %d of %d item(s) processed, %d failed",
		len(j.Items)-len(j.FailedItems), len(j.Items), len(j.FailedItems),
	)
	err := o.put(ctx, j)
	if err != nil {
		slog.Error("failed to persist job", "error", err)
	}

	if j.MultiStoreMode {
		return
	}

	if j.Type == job.TypePriceCheck {
		err = o.driver.ClosePage(j.TargetHandle)
		if err != nil {
			slog.Warn("failed to close page", "error", err)
		}
		o.forgetPage(j.TargetHandle)
	}

	report := notify.Report{
		Kind:        j.Type,
		Store:       j.CurrentStoreName,
		Failed:      j.FailedItems,
		Requested:   len(j.Items),
		GeneratedAt: time.Now(),
	}
	if len(j.Results) > 0 {
		report.Results = map[string][]job.Result{j.CurrentStoreName: j.Results}
	}
	err = o.sink.Deliver(ctx, report)
	if err != nil {
		slog.Error("failed to deliver report", "error", err)
	}
}

// CurrentJob returns a snapshot of the live job document.
func (o *Orchestrator) CurrentJob(ctx context.Context) (*job.Job, error) {
	return o.jobs.Get(ctx)
}

// Changed returns a channel that closes on the next job document
// write, so watchers can sleep between snapshots.
func (o *Orchestrator) Changed() <-chan struct{} {
	return o.changed.Wait()
}
