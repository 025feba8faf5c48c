// Package barbora implements the store adapter for barbora.lt.
// barbora renders search results server-side, so every search is a full
// page navigation; product data rides along in a `data-b-for-cart`
// attribute as embedded JSON.
package barbora

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"cartpilot/lib/restyutil"
	"cartpilot/store"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("store/barbora")
var restyInstrumentOutput restyutil.InstrumentOutput

func SetRestyInstrumentOutput(out restyutil.InstrumentOutput) {
	restyInstrumentOutput = out
}

const (
	searchDelayMinMs = 250
	searchDelayMaxMs = 750
)

type Options struct {
	// defaults to https://www.barbora.lt
	BaseUrl string
}

type Adapter struct {
	baseUrl *url.URL
	http    *resty.Client

	// results page of the most recent search
	doc    *goquery.Document
	docUrl string
	closed bool
}

func New(opts Options) (*Adapter, error) {
	if opts.BaseUrl == "" {
		opts.BaseUrl = "https://www.barbora.lt"
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

	// 2 requests max per second, keeps the adapter under the radar of
	// the site's anti-automation heuristics
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

func (a *Adapter) Store() string   { return "barbora" }
func (a *Adapter) Navigates() bool { return true }

func (a *Adapter) Warmup(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Warmup")
	defer span.End()

	res, err := a.http.R().SetContext(ctx).Get("/")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if res.IsError() {
		err = fmt.Errorf("landing page returned status %d", res.StatusCode())
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (a *Adapter) Search(ctx context.Context, query string) error {
	ctx, span := tracer.Start(ctx, "Search")
	defer span.End()

	if a.closed {
		return fmt.Errorf("adapter is closed")
	}

	// small human-ish delay between typing and searching
	delay, err := random.IntRange(searchDelayMinMs, searchDelayMaxMs)
	if err == nil {
		select {
		case <-time.After(time.Duration(delay) * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	res, err := a.http.R().
		SetContext(ctx).
		SetQueryParam("q", query).
		Get("/paieska")
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

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.String()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	a.doc = doc
	a.docUrl = res.Request.URL
	return nil
}

// cartData is the JSON barbora embeds on every product card.
type cartData struct {
	Id                   json.Number     `json:"id"`
	Title                string          `json:"title"`
	Price                float64         `json:"price"`
	ComparativeUnitPrice float64         `json:"comparative_unit_price"`
	ComparativeUnit      string          `json:"comparative_unit"`
	Image                string          `json:"image"`
	BigImage             string          `json:"big_image"`
	Status               string          `json:"status"`
	Promotion            json.RawMessage `json:"promotion"`
	PromotionGroup       json.RawMessage `json:"promotionGroup"`
}

func (a *Adapter) FetchCandidateProducts(ctx context.Context) ([]store.Product, error) {
	ctx, span := tracer.Start(ctx, "FetchCandidateProducts")
	defer span.End()

	if a.doc == nil {
		return nil, fmt.Errorf("no search has been performed yet")
	}

	cards := a.doc.Find(`li[data-testid^="product-card"] [data-b-for-cart]`)
	if cards.Length() == 0 {
		// an explicit warning banner means the search genuinely came
		// up empty, anything else means the markup shifted under us
		if a.doc.Find(".b-alert--warning").Length() > 0 {
			return nil, store.ErrNoResults
		}
		err := fmt.Errorf("no product cards found at %s", a.docUrl)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var products []store.Product
	cards.Each(func(_ int, card *goquery.Selection) {
		raw, ok := card.Attr("data-b-for-cart")
		if !ok {
			return
		}

		var data cartData
		err := json.Unmarshal([]byte(raw), &data)
		if err != nil {
			span.AddEvent("failed to parse product card json")
			return
		}
		if data.Title == "" || data.Price <= 0 {
			return
		}

		unitPrice := data.ComparativeUnitPrice
		if unitPrice == 0 {
			unitPrice = data.Price
		}
		unit := data.ComparativeUnit
		if unit == "" {
			unit = "vnt"
		}
		image := data.Image
		if image == "" {
			image = data.BigImage
		}

		products = append(products, store.Product{
			Name:         data.Title,
			Price:        data.Price,
			UnitPrice:    unitPrice,
			Unit:         unit,
			Available:    data.Status == "active",
			ImageURL:     image,
			URL:          a.docUrl,
			HasDiscount:  notNull(data.Promotion) || notNull(data.PromotionGroup),
			SourceHandle: data.Id.String(),
		})
	})

	return products, nil
}

func notNull(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
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
			"product_id": p.SourceHandle,
			"quantity":   quantity,
		}).
		Post("/api/eshop/v1/cart/items")
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
	a.doc = nil
	return nil
}
