// Package iki implements the store adapter for IKI, which sells online
// through the lastmile.lt platform. lastmile is a single-page app: a
// search never navigates, it re-renders the result grid in place from a
// JSON API, so searches on this adapter complete without a page-load.
package iki

import (
	"context"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"time"

	"cartpilot/lib/restyutil"
	"cartpilot/store"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("store/iki")
var restyInstrumentOutput restyutil.InstrumentOutput

func SetRestyInstrumentOutput(out restyutil.InstrumentOutput) {
	restyInstrumentOutput = out
}

const chainPath = "/chain/iki"

type Options struct {
	// defaults to https://lastmile.lt
	BaseUrl string
}

type Adapter struct {
	baseUrl *url.URL
	http    *resty.Client

	// results of the most recent search
	results []searchItem
	closed  bool
}

func New(opts Options) (*Adapter, error) {
	if opts.BaseUrl == "" {
		opts.BaseUrl = "https://lastmile.lt"
	}
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	client.SetTimeout(time.Second * 30)

	rateLimiter := rate.NewLimiter(2, 2)
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	restyutil.InstrumentClient(client, tracer, restyInstrumentOutput)

	return &Adapter{
		baseUrl: baseUrl,
		http:    client,
	}, nil
}

func (a *Adapter) Store() string   { return "iki" }
func (a *Adapter) Navigates() bool { return false }

func (a *Adapter) Warmup(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Warmup")
	defer span.End()

	res, err := a.http.R().SetContext(ctx).Get(chainPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if res.IsError() {
		err = fmt.Errorf("storefront returned status %d", res.StatusCode())
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

type searchItem struct {
	Id           string  `json:"id"`
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	UnitPrice    float64 `json:"unit_price"`
	Unit         string  `json:"unit"`
	ImageUrl     string  `json:"image_url"`
	InStock      bool    `json:"in_stock"`
	DiscountedTo float64 `json:"discounted_price"`
}

type searchResponse struct {
	Items []searchItem `json:"items"`
}

func (a *Adapter) Search(ctx context.Context, query string) error {
	ctx, span := tracer.Start(ctx, "Search")
	defer span.End()

	if a.closed {
		return fmt.Errorf("adapter is closed")
	}

	delay, err := random.IntRange(250, 750)
	if err == nil {
		select {
		case <-time.After(time.Duration(delay) * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	var body searchResponse
	res, err := a.http.R().
		SetContext(ctx).
		SetQueryParam("q", query).
		SetResult(&body).
		Get(chainPath + "/api/search")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if res.IsError() {
		err = fmt.Errorf("search returned status %d", res.StatusCode())
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	a.results = body.Items
	return nil
}

func (a *Adapter) FetchCandidateProducts(ctx context.Context) ([]store.Product, error) {
	_, span := tracer.Start(ctx, "FetchCandidateProducts")
	defer span.End()

	if a.results == nil {
		return nil, fmt.Errorf("no search has been performed yet")
	}
	if len(a.results) == 0 {
		return nil, store.ErrNoResults
	}

	var products []store.Product
	for _, item := range a.results {
		if item.Name == "" || item.Price <= 0 {
			continue
		}

		price := item.Price
		hasDiscount := false
		if item.DiscountedTo > 0 && item.DiscountedTo < item.Price {
			price = item.DiscountedTo
			hasDiscount = true
		}
		unitPrice := item.UnitPrice
		if unitPrice == 0 {
			unitPrice = price
		}
		unit := item.Unit
		if unit == "" {
			unit = "vnt"
		}

		products = append(products, store.Product{
			Name:         item.Name,
			Price:        price,
			UnitPrice:    unitPrice,
			Unit:         unit,
			Available:    item.InStock,
			ImageURL:     item.ImageUrl,
			URL:          a.baseUrl.String() + chainPath,
			HasDiscount:  hasDiscount,
			SourceHandle: item.Id,
		})
	}
	if len(products) == 0 {
		return nil, store.ErrNoResults
	}
	return products, nil
}

func (a *Adapter) AddToCart(ctx context.Context, p store.Product, quantity int) error {
	ctx, span := tracer.Start(ctx, "AddToCart")
	defer span.End()

	if a.closed {
		return fmt.Errorf("adapter is closed")
	}
	if p.SourceHandle == "" {
		return fmt.Errorf("product %q carries no cart handle", p.Name)
	}
	if quantity < 1 {
		quantity = 1
	}

	res, err := a.http.R().
		SetContext(ctx).
		SetHeader("content-type", "application/json").
		SetBody(map[string]any{
			"item_id":  p.SourceHandle,
			"quantity": quantity,
		}).
		Post(chainPath + "/api/cart")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if res.IsError() {
		err = fmt.Errorf("cart add returned status %d", res.StatusCode())
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (a *Adapter) Close() error {
	a.closed = true
	a.results = nil
	return nil
}
