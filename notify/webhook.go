package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("notify")

// Webhook POSTs the report as JSON to a configured URL.
type Webhook struct {
	url  string
	http *resty.Client
}

func NewWebhook(url string) *Webhook {
	client := resty.New()
	client.SetTimeout(time.Second * 15)
	return &Webhook{url: url, http: client}
}

type webhookPayload struct {
	Kind        string    `json:"kind"`
	Store       string    `json:"store,omitempty"`
	Results     any       `json:"results,omitempty"`
	Failed      any       `json:"failed,omitempty"`
	Requested   int       `json:"requested"`
	GeneratedAt time.Time `json:"generatedAt"`
	Text        string    `json:"text"`
}

func (w *Webhook) Deliver(ctx context.Context, report Report) error {
	ctx, span := tracer.Start(ctx, "Webhook.Deliver")
	defer span.End()

	res, err := w.http.R().
		SetContext(ctx).
		SetHeader("content-type", "application/json").
		SetBody(webhookPayload{
			Kind:        string(report.Kind),
			Store:       report.Store,
			Results:     report.Results,
			Failed:      report.Failed,
			Requested:   report.Requested,
			GeneratedAt: report.GeneratedAt,
			Text:        Render(report),
		}).
		Post(w.url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if res.IsError() {
		err = fmt.Errorf("webhook returned status %d", res.StatusCode())
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
