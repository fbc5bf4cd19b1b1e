package mailer

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendgridMailer delivers mail through the SendGrid API.
type SendgridMailer struct {
	client      *sendgrid.Client
	fromName    string
	fromAddress string
}

// NewSendgridMailer constructs a SendGrid-backed mailer.
func NewSendgridMailer(apiKey, fromName, fromAddress string) (*SendgridMailer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("sendgrid api key required")
	}
	return &SendgridMailer{
		client:      sendgrid.NewSendClient(apiKey),
		fromName:    fromName,
		fromAddress: fromAddress,
	}, nil
}

// Send delivers a single message.
func (m *SendgridMailer) Send(ctx context.Context, msg Message) error {
	if msg.ToAddress == "" {
		return fmt.Errorf("mail message has no recipient")
	}
	from := sgmail.NewEmail(m.fromName, m.fromAddress)
	to := sgmail.NewEmail(msg.ToName, msg.ToAddress)
	html := msg.HTMLBody
	if html == "" {
		html = msg.TextBody
	}
	email := sgmail.NewSingleEmail(from, msg.Subject, to, msg.TextBody, html)

	resp, err := m.client.SendWithContext(ctx, email)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
