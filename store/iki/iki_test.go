package iki

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"cartpilot/store"

	"github.com/stretchr/testify/require"
)

func setupAdapter(t *testing.T, searchBody string) *Adapter {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/chain/iki":
			w.Write([]byte("<html></html>"))
		case "/chain/iki/api/search":
			w.Header().Set("content-type", "application/json")
			w.Write([]byte(searchBody))
		case "/chain/iki/api/cart":
			w.Write([]byte("{}"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	adapter, err := New(Options{BaseUrl: server.URL})
	require.NoError(t, err)
	t.Cleanup(func() { adapter.Close() })

	return adapter
}

func TestSearchAndFetch(t *testing.T) {
	adapter := setupAdapter(t, `{"items": [
		{"id": "a1", "name": "Pienas 1l", "price": 1.39, "unit_price": 1.39, "unit": "l", "in_stock": true},
		{"id": "a2", "name": "Pienas 2l", "price": 2.59, "unit_price": 1.30, "unit": "l", "in_stock": true, "discounted_price": 2.19}
	]}`)
	ctx := context.Background()

	require.NoError(t, adapter.Warmup(ctx))
	require.NoError(t, adapter.Search(ctx, "Pienas"))

	products, err := adapter.FetchCandidateProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 2)

	require.Equal(t, "Pienas 1l", products[0].Name)
	require.Equal(t, 1.39, products[0].Price)
	require.False(t, products[0].HasDiscount)
	require.Equal(t, "a1", products[0].SourceHandle)

	// a lower discounted price replaces the shelf price
	require.Equal(t, 2.19, products[1].Price)
	require.True(t, products[1].HasDiscount)
}

func TestSearchNothingFound(t *testing.T) {
	adapter := setupAdapter(t, `{"items": []}`)
	ctx := context.Background()

	require.NoError(t, adapter.Search(ctx, "vienaragis"))

	_, err := adapter.FetchCandidateProducts(ctx)
	require.ErrorIs(t, err, store.ErrNoResults)
}

func TestSearchDoesNotNavigate(t *testing.T) {
	adapter := setupAdapter(t, `{"items": []}`)
	require.False(t, adapter.Navigates())
	require.Equal(t, "iki", adapter.Store())
}
