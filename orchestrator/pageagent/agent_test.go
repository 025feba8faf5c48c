package pageagent

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"cartpilot/job"
	"cartpilot/orchestrator"
	"cartpilot/store"

	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	name      string
	navigates bool

	mu       sync.Mutex
	searches []string
	carted   []struct {
		product  string
		quantity int
	}
	products  []store.Product
	searchErr error
	closed    bool
}

func (a *fakeAdapter) Store() string   { return a.name }
func (a *fakeAdapter) Navigates() bool { return a.navigates }

func (a *fakeAdapter) Warmup(ctx context.Context) error { return nil }

func (a *fakeAdapter) Search(ctx context.Context, query string) error {
	a.mu.Lock()
	a.searches = append(a.searches, query)
	a.mu.Unlock()
	return a.searchErr
}

func (a *fakeAdapter) FetchCandidateProducts(ctx context.Context) ([]store.Product, error) {
	if len(a.products) == 0 {
		return nil, store.ErrNoResults
	}
	return a.products, nil
}

func (a *fakeAdapter) AddToCart(ctx context.Context, p store.Product, quantity int) error {
	a.mu.Lock()
	a.carted = append(a.carted, struct {
		product  string
		quantity int
	}{p.Name, quantity})
	a.mu.Unlock()
	return nil
}

func (a *fakeAdapter) Close() error {
	a.closed = true
	return nil
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []any
}

func (d *recordingDispatcher) Dispatch(event any) {
	d.mu.Lock()
	d.events = append(d.events, event)
	d.mu.Unlock()
}

// next blocks until an event of type T shows up.
func next[T any](t *testing.T, d *recordingDispatcher) T {
	t.Helper()
	deadline := time.Now().Add(time.Second * 5)
	seen := 0
	for time.Now().Before(deadline) {
		d.mu.Lock()
		events := d.events[seen:]
		seen = len(d.events)
		d.mu.Unlock()

		for _, event := range events {
			if ev, ok := event.(T); ok {
				return ev
			}
		}
		time.Sleep(time.Millisecond * 5)
	}
	t.Fatalf("no %T event arrived", *new(T))
	panic("unreachable")
}

func setupAgent(t *testing.T, adapter *fakeAdapter) (*Agent, *recordingDispatcher, string) {
	t.Helper()

	registry := store.NewRegistry()
	registry.Register(adapter.name, func() (store.Adapter, error) {
		return adapter, nil
	})

	dispatcher := &recordingDispatcher{}
	agent := New(registry, dispatcher)

	handle, err := agent.OpenPage(context.Background(), adapter.name)
	require.NoError(t, err)

	ready := next[orchestrator.PageReady](t, dispatcher)
	require.Equal(t, handle, ready.Handle)

	return agent, dispatcher, handle
}

func TestSearchTriggers(t *testing.T) {
	adapter := &fakeAdapter{name: "barbora", navigates: true}
	agent, dispatcher, handle := setupAgent(t, adapter)

	require.NoError(t, agent.Search(handle, job.Item{Name: "Pienas 1l"}))
	loaded := next[orchestrator.PageLoaded](t, dispatcher)
	require.Equal(t, handle, loaded.Handle)

	// the quantity suffix is stripped before it hits the search box
	adapter.mu.Lock()
	searches := append([]string(nil), adapter.searches...)
	adapter.mu.Unlock()
	require.Equal(t, []string{"Pienas"}, searches)
}

func TestSearchWithoutNavigation(t *testing.T) {
	adapter := &fakeAdapter{name: "iki"}
	agent, dispatcher, handle := setupAgent(t, adapter)

	require.NoError(t, agent.Search(handle, job.Item{Name: "Duona"}))
	completed := next[orchestrator.SearchCompleted](t, dispatcher)
	require.Equal(t, handle, completed.Handle)
}

func TestSearchFailure(t *testing.T) {
	adapter := &fakeAdapter{name: "barbora", searchErr: fmt.Errorf("boom")}
	agent, dispatcher, handle := setupAgent(t, adapter)

	require.NoError(t, agent.Search(handle, job.Item{Name: "Duona"}))
	failed := next[orchestrator.TaskCompleted](t, dispatcher)
	require.False(t, failed.OK)
	require.Contains(t, failed.Reason, "search failed")
}

func TestAddToCart(t *testing.T) {
	adapter := &fakeAdapter{
		name: "barbora",
		products: []store.Product{
			{Name: "Bulvės fasuotos 1kg", Price: 1.09, Available: true},
			{Name: "Bulvių traškučiai", Price: 2.49, Available: true},
		},
	}
	agent, dispatcher, handle := setupAgent(t, adapter)

	require.NoError(t, agent.AddToCart(handle, job.Item{Name: "Bulvės 2kg"}))
	done := next[orchestrator.TaskCompleted](t, dispatcher)
	require.True(t, done.OK)

	adapter.mu.Lock()
	carted := append([]struct {
		product  string
		quantity int
	}(nil), adapter.carted...)
	adapter.mu.Unlock()

	require.Len(t, carted, 1)
	require.Equal(t, "Bulvės fasuotos 1kg", carted[0].product)
	// 2kg requested, sold in 1kg packs
	require.Equal(t, 2, carted[0].quantity)
}

func TestAddToCartSkipsUnavailable(t *testing.T) {
	adapter := &fakeAdapter{
		name: "barbora",
		products: []store.Product{
			{Name: "Pienas", Price: 1.19, Available: false},
			{Name: "Pienas rinktinis 1l", Price: 1.49, Available: true},
		},
	}
	agent, dispatcher, handle := setupAgent(t, adapter)

	require.NoError(t, agent.AddToCart(handle, job.Item{Name: "Pienas"}))
	done := next[orchestrator.TaskCompleted](t, dispatcher)
	require.True(t, done.OK)

	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	require.Len(t, adapter.carted, 1)
	require.Equal(t, "Pienas rinktinis 1l", adapter.carted[0].product)
}

func TestAddToCartNoResults(t *testing.T) {
	adapter := &fakeAdapter{name: "barbora"}
	agent, dispatcher, handle := setupAgent(t, adapter)

	require.NoError(t, agent.AddToCart(handle, job.Item{Name: "Vienaragio pienas"}))
	failed := next[orchestrator.TaskCompleted](t, dispatcher)
	require.False(t, failed.OK)
	require.Contains(t, failed.Reason, "no results")
}

func TestAddToCartPrefersCachedProduct(t *testing.T) {
	adapter := &fakeAdapter{
		name: "barbora",
		products: []store.Product{
			{Name: "Pienas", Price: 1.19, Available: true},
			{Name: "Pienas ūkininko 1l", Price: 1.89, Available: true},
		},
	}
	agent, dispatcher, handle := setupAgent(t, adapter)

	require.NoError(t, agent.AddToCart(handle, job.Item{
		Name:          "Pienas",
		CachedProduct: &store.Product{Name: "Pienas ūkininko 1l"},
	}))
	done := next[orchestrator.TaskCompleted](t, dispatcher)
	require.True(t, done.OK)

	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	require.Equal(t, "Pienas ūkininko 1l", adapter.carted[0].product)
}

func TestScrape(t *testing.T) {
	adapter := &fakeAdapter{
		name: "iki",
		products: []store.Product{
			{Name: "Pienas rinktinis 1l", Price: 1.49, Available: true, SourceHandle: "abc123"},
		},
	}
	agent, dispatcher, handle := setupAgent(t, adapter)

	require.NoError(t, agent.Scrape(handle, job.Item{Name: "Pienas 2l"}))
	scraped := next[orchestrator.ScrapeCompleted](t, dispatcher)

	require.Equal(t, "Pienas 2l", scraped.Result.ItemName)
	require.Equal(t, "iki", scraped.Result.Store)
	require.Equal(t, 2, scraped.Result.Packages)
	require.InDelta(t, 2.98, scraped.Result.Total, 0.001)
	// cart handles are page state and must not escape into results
	require.Empty(t, scraped.Result.Product.SourceHandle)
}

func TestClosePage(t *testing.T) {
	adapter := &fakeAdapter{name: "barbora"}
	agent, _, handle := setupAgent(t, adapter)

	require.NoError(t, agent.ClosePage(handle))
	require.True(t, adapter.closed)

	// commands on a closed page fail to send
	require.Error(t, agent.Search(handle, job.Item{Name: "Duona"}))

	// closing twice is fine
	require.NoError(t, agent.ClosePage(handle))
}
