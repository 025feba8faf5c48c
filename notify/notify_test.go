package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cartpilot/job"
	"cartpilot/store"

	"github.com/stretchr/testify/require"
)

func sampleReport() Report {
	return Report{
		Kind: job.TypePriceCheck,
		Results: map[string][]job.Result{
			"barbora": {
				{
					ItemName: "Pienas 1l",
					Store:    "barbora",
					Product:  store.Product{Name: "Pienas rinktinis 1l", Price: 1.49, UnitPrice: 1.49, Unit: "l"},
					Packages: 1,
					Total:    1.49,
				},
			},
			"iki": {
				{
					ItemName: "Pienas 1l",
					Store:    "iki",
					Product:  store.Product{Name: "Pienas 1l", Price: 1.39, UnitPrice: 1.39, Unit: "l"},
					Packages: 1,
					Total:    1.39,
				},
				{
					ItemName: "Duona",
					Store:    "iki",
					Error:    "no results",
				},
			},
		},
		Failed:      []job.FailedItem{{Name: "Vienaragio pienas", Reason: "no results"}},
		Requested:   2,
		GeneratedAt: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
}

func TestRender(t *testing.T) {
	text := Render(sampleReport())

	require.Contains(t, text, "barbora")
	require.Contains(t, text, "iki")
	require.Contains(t, text, "Pienas rinktinis 1l")
	require.Contains(t, text, "1.49 €")
	require.Contains(t, text, "Vienaragio pienas")
	require.Contains(t, text, "not found: no results")

	// stores render in a stable order
	require.Equal(t, text, Render(sampleReport()))
}

func TestWebhook(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	err := NewWebhook(server.URL).Deliver(context.Background(), sampleReport())
	require.NoError(t, err)

	require.Equal(t, "pricecheck", received["kind"])
	require.EqualValues(t, 2, received["requested"])
	require.NotEmpty(t, received["text"])
}

func TestWebhookErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	err := NewWebhook(server.URL).Deliver(context.Background(), sampleReport())
	require.Error(t, err)
}

func TestMultiDeliversToAll(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	sinks := Multi{LogSink{}, NewWebhook(server.URL), NewWebhook(server.URL)}
	require.NoError(t, sinks.Deliver(context.Background(), sampleReport()))
	require.Equal(t, 2, calls)
}
