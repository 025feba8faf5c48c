// Package store defines the capability contract every supported grocery
// store implements, plus a registry resolving store ids to adapters.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Product is a single scraped search result. SourceHandle is an opaque
// reference back into the live page session (a product id, a cart token)
// that only the owning adapter knows how to interpret; it must never
// leave the page context.
type Product struct {
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	UnitPrice    float64 `json:"unitPrice"`
	Unit         string  `json:"unit"`
	Available    bool    `json:"available"`
	ImageURL     string  `json:"imageUrl,omitempty"`
	URL          string  `json:"url,omitempty"`
	HasDiscount  bool    `json:"hasDiscount,omitempty"`
	SourceHandle string  `json:"-"`
}

// ErrNoResults reports a search that the store answered with an explicit
// "nothing found" marker, as opposed to markup we failed to understand.
var ErrNoResults = errors.New("store returned no results")

// Adapter is the per-store capability surface. implementations hold a
/// live page session: Search mutates it, FetchCandidateProducts reads the
// currently displayed results, AddToCart acts on a product previously
// returned by FetchCandidateProducts.
type Adapter interface {
	// store id this adapter serves, e.g. "barbora"
	Store() string
	// whether Search causes a page navigation (as opposed to an
	// in-place single-page-app mutation)
	Navigates() bool
	// establishes the page session, e.g. by loading the store's
	// landing page
	Warmup(ctx context.Context) error
	Search(ctx context.Context, query string) error
	FetchCandidateProducts(ctx context.Context) ([]Product, error)
	AddToCart(ctx context.Context, p Product, quantity int) error
	Close() error
}

// Constructor builds a fresh adapter with its own page session.
type Constructor func() (Adapter, error)

// Registry maps store ids to adapter constructors. it is resolved once
// at job start; there is deliberately no way to switch on store names
// anywhere else.
type Registry struct {
	constructors map[string]Constructor
}

func NewRegistry() *Registry {
	return &Registry{constructors: map[string]Constructor{}}
}

func (r *Registry) Register(id string, c Constructor) {
	r.constructors[id] = c
}

func (r *Registry) Open(id string) (Adapter, error) {
	c, ok := r.constructors[id]
	if !ok {
		return nil, fmt.Errorf("unknown store: %q", id)
	}
	return c()
}

func (r *Registry) Stores() []string {
	out := make([]string, 0, len(r.constructors))
	for id := range r.constructors {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
