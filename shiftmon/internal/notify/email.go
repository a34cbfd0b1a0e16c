package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/cms-tsg-fog/RateMon-sub001/shiftmon/internal/alert"
)

// Email sends a plain-text alert through SendGrid.
type Email struct {
	name   string
	apiKey string
	from   string
	to     []string
	prefix string

	// host overrides the SendGrid API host; empty means the public API.
	host string
}

// NewEmail returns an e-mail action. prefix is prepended to the subject.
func NewEmail(name, apiKey, from string, to []string, prefix string) *Email {
	if prefix == "" {
		prefix = "[RateMon]"
	}
	return &Email{name: name, apiKey: apiKey, from: from, to: append([]string(nil), to...), prefix: prefix}
}

func (e *Email) Name() string { return e.name }

func (e *Email) Notify(ctx context.Context, a alert.Alert) error {
	subject := fmt.Sprintf("%s %s %s", e.prefix, levelLabel(a.Level()), a.Message())

	var body strings.Builder
	body.WriteString(a.Message())
	body.WriteString("\n\n")
	if d := a.Details(); d != "" {
		body.WriteString(d)
		body.WriteString("\n\n")
	}
	fmt.Fprintf(&body, "---\nAlert: %s\nStatus: %s\n", a.Name(), a.Status())

	msg := mail.NewV3Mail()
	msg.SetFrom(mail.NewEmail("RateMon", e.from))
	msg.Subject = subject
	p := mail.NewPersonalization()
	for _, addr := range e.to {
		p.AddTos(mail.NewEmail("", addr))
	}
	msg.AddPersonalizations(p)
	msg.AddContent(mail.NewContent("text/plain", body.String()))

	req := sendgrid.GetRequest(e.apiKey, "/v3/mail/send", e.host)
	req.Method = "POST"
	req.Body = mail.GetRequestBody(msg)

	resp, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned HTTP %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
