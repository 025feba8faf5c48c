// Package notify delivers run reports. A report is built once, rendered
// once, and handed to every configured sink.
package notify

import (
	"context"
	"log/slog"
	"time"

	"cartpilot/job"
)

// Report summarizes a finished run.
type Report struct {
	Kind job.Type
	// store the run was made against; empty on multi-store runs
	Store string
	// priced items keyed by store; populated on price checks
	Results map[string][]job.Result
	Failed  []job.FailedItem
	// number of items the run was asked for
	Requested   int
	GeneratedAt time.Time
}

type Sink interface {
	Deliver(ctx context.Context, report Report) error
}

// LogSink writes the report to the process log. It is the default sink
// when no webhook or email is configured.
type LogSink struct{}

func (LogSink) Deliver(_ context.Context, report Report) error {
	slog.Info(
		"run finished",
		"kind", report.Kind,
		"store", report.Store,
		"requested", report.Requested,
		"failed", len(report.Failed),
	)
	for storeName, results := range report.Results {
		for _, r := range results {
			slog.Info(
				"priced item",
				"store", storeName,
				"item", r.ItemName,
				"product", r.Product.Name,
				"packages", r.Packages,
				"total", r.Total,
			)
		}
	}
	for _, f := range report.Failed {
		slog.Warn("failed item", "item", f.Name, "reason", f.Reason)
	}
	return nil
}

// Multi fans a report out to several sinks, delivering to all of them
// even when some fail.
type Multi []Sink

func (m Multi) Deliver(ctx context.Context, report Report) error {
	var firstErr error
	for _, sink := range m {
		err := sink.Deliver(ctx, report)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
