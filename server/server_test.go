package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"cartpilot/job"
	jobdb "cartpilot/job/db"
	"cartpilot/lib/testutil"
	"cartpilot/orchestrator"

	"cartpilot/store"

	"github.com/stretchr/testify/require"
)

// instantDriver completes every command immediately.
type instantDriver struct {
	dispatcher orchestrator.Dispatcher

	mu    sync.Mutex
	count int
}

func (d *instantDriver) OpenPage(ctx context.Context, storeName string) (string, error) {
	d.mu.Lock()
	d.count++
	handle := fmt.Sprintf("%s-%d", storeName, d.count)
	d.mu.Unlock()
	go d.dispatcher.Dispatch(orchestrator.PageReady{Handle: handle})
	return handle, nil
}

func (d *instantDriver) ClosePage(handle string) error { return nil }

func (d *instantDriver) Search(handle string, item job.Item) error {
	d.dispatcher.Dispatch(orchestrator.SearchCompleted{Handle: handle})
	return nil
}

func (d *instantDriver) AddToCart(handle string, item job.Item) error {
	d.dispatcher.Dispatch(orchestrator.TaskCompleted{Handle: handle, OK: true})
	return nil
}

func (d *instantDriver) Scrape(handle string, item job.Item) error {
	d.dispatcher.Dispatch(orchestrator.ScrapeCompleted{
		Handle: handle,
		Result: job.Result{
			ItemName: item.Name,
			Product:  store.Product{Name: item.Name, Price: 0.99},
			Packages: 1,
			Total:    0.99,
		},
	})
	return nil
}

func setupServer(t *testing.T) *httptest.Server {
	setup, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "server",
		DbSchema: jobdb.Schema,
	})
	t.Cleanup(cleanup)

	driver := &instantDriver{}
	orch := orchestrator.New(jobdb.NewStore(setup.DB), driver, nil, orchestrator.Options{
		Cooldown: time.Millisecond * 10,
	})
	driver.dispatcher = orch

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		_ = orch.Run(ctx)
	}()

	mux := http.NewServeMux()
	New(orch).Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	res, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func TestShoppingEndpoint(t *testing.T) {
	server := setupServer(t)

	res := postJSON(t, server.URL+"/v1/jobs/shopping",
		`{"store": "barbora", "items": [{"name": "Pienas 1l"}, {"name": "Duona"}]}`)
	require.Equal(t, http.StatusAccepted, res.StatusCode)

	// the job ran to completion; its document is still inspectable
	deadline := time.Now().Add(time.Second * 5)
	for {
		res, err := http.Get(server.URL + "/v1/jobs/current")
		require.NoError(t, err)

		var j job.Job
		require.NoError(t, json.NewDecoder(res.Body).Decode(&j))
		res.Body.Close()

		if !j.IsRunning {
			require.Equal(t, job.TypeShopping, j.Type)
			require.Equal(t, 2, j.CurrentIndex)
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("job did not finish in time")
		}
		time.Sleep(time.Millisecond * 10)
	}
}

func TestShoppingEndpointValidation(t *testing.T) {
	server := setupServer(t)

	res := postJSON(t, server.URL+"/v1/jobs/shopping", `{"store": "", "items": []}`)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = postJSON(t, server.URL+"/v1/jobs/shopping", `not json`)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestPriceCheckEndpoint(t *testing.T) {
	server := setupServer(t)

	res := postJSON(t, server.URL+"/v1/jobs/pricecheck",
		`{"stores": ["iki"], "items": [{"name": "Pienas 1l"}]}`)
	require.Equal(t, http.StatusAccepted, res.StatusCode)

	deadline := time.Now().Add(time.Second * 5)
	for {
		res, err := http.Get(server.URL + "/v1/jobs/current")
		require.NoError(t, err)

		var j job.Job
		require.NoError(t, json.NewDecoder(res.Body).Decode(&j))
		res.Body.Close()

		if !j.IsRunning {
			require.Len(t, j.Results, 1)
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("job did not finish in time")
		}
		time.Sleep(time.Millisecond * 10)
	}
}

func TestCurrentWithoutJob(t *testing.T) {
	server := setupServer(t)

	res, err := http.Get(server.URL + "/v1/jobs/current")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusNotFound, res.StatusCode)
}
