// Package pageagent executes page commands against store adapters.
// Commands return as soon as they are accepted; outcomes travel back
// to the orchestrator as dispatched events, the same way a browser
// page would report in.
package pageagent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cartpilot/ingredient"
	"cartpilot/job"
	"cartpilot/matcher"
	"cartpilot/orchestrator"
	"cartpilot/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("pageagent")

// shortlist size handed to the matcher before tie-breaking
const candidateCount = 5

type Agent struct {
	registry   *store.Registry
	dispatcher orchestrator.Dispatcher

	mu     sync.Mutex
	pages  map[string]*pageSession
	nextId int
}

type pageSession struct {
	handle    string
	storeName string
	adapter   store.Adapter
}

func New(registry *store.Registry, dispatcher orchestrator.Dispatcher) *Agent {
	return &Agent{
		registry:   registry,
		dispatcher: dispatcher,
		pages:      map[string]*pageSession{},
	}
}

// SetDispatcher wires the event receiver in after construction, since
// the agent and the orchestrator reference each other.
func (a *Agent) SetDispatcher(d orchestrator.Dispatcher) {
	a.dispatcher = d
}

// OpenPage creates a fresh adapter session. Warmup runs in the
// background; PageReady fires once the session can take commands.
func (a *Agent) OpenPage(ctx context.Context, storeName string) (string, error) {
	ctx, span := tracer.Start(ctx, "OpenPage")
	defer span.End()

	adapter, err := a.registry.Open(storeName)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	a.mu.Lock()
	a.nextId++
	handle := fmt.Sprintf("%s-%d", storeName, a.nextId)
	a.pages[handle] = &pageSession{
		handle:    handle,
		storeName: storeName,
		adapter:   adapter,
	}
	a.mu.Unlock()

	go func() {
		ctx, span := tracer.Start(context.Background(), "warmup")
		defer span.End()

		err := adapter.Warmup(ctx)
		if err != nil {
			// no PageReady: the readiness wait on the other side
			// times out and closes the session
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return
		}
		a.dispatcher.Dispatch(orchestrator.PageReady{Handle: handle})
	}()

	return handle, nil
}

func (a *Agent) ClosePage(handle string) error {
	a.mu.Lock()
	session, ok := a.pages[handle]
	delete(a.pages, handle)
	a.mu.Unlock()
	if !ok {
		return nil
	}
	return session.adapter.Close()
}

func (a *Agent) session(handle string) (*pageSession, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	session, ok := a.pages[handle]
	if !ok {
		return nil, fmt.Errorf("no page session for handle %q", handle)
	}
	return session, nil
}

func (a *Agent) Search(handle string, item job.Item) error {
	session, err := a.session(handle)
	if err != nil {
		return err
	}

	go func() {
		ctx, span := tracer.Start(context.Background(), "search")
		defer span.End()

		// search by the bare ingredient name; the amount suffix only
		// matters once candidates come back
		parsed := ingredient.Parse(item.Name)
		err := session.adapter.Search(ctx, parsed.Name)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			a.dispatcher.Dispatch(orchestrator.TaskCompleted{
				Handle: handle,
				OK:     false,
				Reason: fmt.Sprintf("search failed: %v", err),
			})
			return
		}

		if session.adapter.Navigates() {
			a.dispatcher.Dispatch(orchestrator.PageLoaded{Handle: handle})
		} else {
			a.dispatcher.Dispatch(orchestrator.SearchCompleted{Handle: handle})
		}
	}()
	return nil
}

func (a *Agent) AddToCart(handle string, item job.Item) error {
	session, err := a.session(handle)
	if err != nil {
		return err
	}

	go func() {
		ctx, span := tracer.Start(context.Background(), "addToCart")
		defer span.End()

		product, packages, err := a.pickProduct(ctx, session, item)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			a.dispatcher.Dispatch(orchestrator.TaskCompleted{
				Handle: handle,
				OK:     false,
				Reason: err.Error(),
			})
			return
		}

		quantity := packages
		if item.Quantity > 0 {
			quantity = item.Quantity
		}
		err = session.adapter.AddToCart(ctx, product, quantity)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			a.dispatcher.Dispatch(orchestrator.TaskCompleted{
				Handle: handle,
				OK:     false,
				Reason: fmt.Sprintf("failed to add %q to cart: %v", product.Name, err),
			})
			return
		}

		a.dispatcher.Dispatch(orchestrator.TaskCompleted{Handle: handle, OK: true})
	}()
	return nil
}

func (a *Agent) Scrape(handle string, item job.Item) error {
	session, err := a.session(handle)
	if err != nil {
		return err
	}

	go func() {
		ctx, span := tracer.Start(context.Background(), "scrape")
		defer span.End()

		product, packages, err := a.pickProduct(ctx, session, item)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			a.dispatcher.Dispatch(orchestrator.TaskCompleted{
				Handle: handle,
				OK:     false,
				Reason: err.Error(),
			})
			return
		}

		// the cart handle is page-session state, it must not outlive
		// the page inside a persisted result
		product.SourceHandle = ""

		a.dispatcher.Dispatch(orchestrator.ScrapeCompleted{
			Handle: handle,
			Result: job.Result{
				ItemName: item.Name,
				Store:    session.storeName,
				Product:  product,
				Packages: packages,
				Total:    product.Price * float64(packages),
			},
		})
	}()
	return nil
}

// pickProduct fetches the current result page and chooses the product
// for the item, along with how many packages of it to buy.
func (a *Agent) pickProduct(ctx context.Context, session *pageSession, item job.Item) (store.Product, int, error) {
	parsed := ingredient.Parse(item.Name)

	products, err := session.adapter.FetchCandidateProducts(ctx)
	if errors.Is(err, store.ErrNoResults) {
		return store.Product{}, 0, fmt.Errorf("no results for %q", parsed.Name)
	}
	if err != nil {
		return store.Product{}, 0, err
	}

	available := products[:0:0]
	for _, p := range products {
		if p.Available {
			available = append(available, p)
		}
	}
	if len(available) == 0 {
		return store.Product{}, 0, fmt.Errorf("all results for %q are out of stock", parsed.Name)
	}

	product, ok := chooseProduct(available, parsed.Name, item.CachedProduct)
	if !ok {
		return store.Product{}, 0, fmt.Errorf("no match for %q", parsed.Name)
	}

	packages := 1
	pkg, ok := ingredient.ParsePackageSize(product.Name)
	if ok {
		packages = ingredient.PackagesNeeded(parsed, pkg)
	}

	return product, packages, nil
}

// chooseProduct prefers a previously matched product when it is still
// listed, then the matcher's best candidate with the cheapest unit
// price breaking score ties.
func chooseProduct(products []store.Product, query string, cached *store.Product) (store.Product, bool) {
	if cached != nil {
		for _, p := range products {
			if p.Name == cached.Name {
				return p, true
			}
		}
	}

	ranked := matcher.Rank(products, query, candidateCount)
	if len(ranked) == 0 {
		return store.Product{}, false
	}

	best := ranked[0]
	for _, candidate := range ranked[1:] {
		if candidate.Score != best.Score {
			break
		}
		if candidate.UnitPrice < best.UnitPrice {
			best = candidate
		}
	}
	return best.Product, true
}
