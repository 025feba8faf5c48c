package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"cartpilot/job"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel/codes"
)

type SmtpConfig struct {
	Server       string `json:"server"`
	Port         int    `json:"port"`
	EmailAddress string `json:"email_address"`
	Password     string `json:"password"`
}

// Email sends the rendered report over SMTP.
type Email struct {
	smtp SmtpConfig
	to   []string
}

func NewEmail(smtp SmtpConfig, to []string) *Email {
	return &Email{smtp: smtp, to: to}
}

func (e *Email) Deliver(ctx context.Context, report Report) error {
	_, span := tracer.Start(ctx, "Email.Deliver")
	defer span.End()

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("cartpilot <%s>", e.smtp.EmailAddress)
	mail.To = e.to
	if report.Kind == job.TypePriceCheck {
		mail.Subject = "Grocery price check results"
	} else {
		mail.Subject = "Grocery shopping run finished"
	}
	mail.Text = []byte(Render(report))

	err := mail.Send(
		fmt.Sprintf("%s:%d", e.smtp.Server, e.smtp.Port),
		smtp.PlainAuth("", e.smtp.EmailAddress, e.smtp.Password, e.smtp.Server),
	)
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(fmt.Sprintf("%s:%d", e.smtp.Server, e.smtp.Port), nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send report email")
		return err
	}
	return nil
}
