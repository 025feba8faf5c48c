package orchestrator

import "cartpilot/job"

// Events originate from page sessions. Every event carries the handle
// of the page it came from; the orchestrator drops events whose handle
// does not match the live job's target page.

// PageLoaded fires when a page finishes a navigation. On stores where
// searching navigates, this is how a finished search announces itself.
type PageLoaded struct {
	Handle string
}

// PageReady fires once a freshly opened page session has completed its
// warmup and can accept commands.
type PageReady struct {
	Handle string
}

// SearchCompleted fires on stores where searching re-renders in place
// without a navigation.
type SearchCompleted struct {
	Handle string
}

// TaskCompleted reports the outcome of an add-to-cart command, or a
// command that could not be carried out at all.
type TaskCompleted struct {
	Handle string
	OK     bool
	Reason string
}

// ScrapeCompleted reports one priced item from a price-check scrape.
type ScrapeCompleted struct {
	Handle string
	Result job.Result
}

// Dispatcher receives page events. The orchestrator implements it;
// page agents hold it and never call back into the orchestrator
// directly.
type Dispatcher interface {
	Dispatch(event any)
}
