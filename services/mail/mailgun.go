package mail

import (
	"context"
	"fmt"
	"time"

	"github.com/mailgun/mailgun-go/v4"
)

// MailgunProvider sends emails via the Mailgun API.
type MailgunProvider struct {
	client *mailgun.MailgunImpl
	from   string
}

// NewMailgunProvider creates a Mailgun provider. region "eu" targets the EU
// API endpoint.
func NewMailgunProvider(apiKey, domain, from, region string) (*MailgunProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("mailgun API key is required")
	}
	if domain == "" {
		return nil, fmt.Errorf("mailgun domain is required")
	}
	if from == "" {
		return nil, fmt.Errorf("from address is required")
	}

	mg := mailgun.NewMailgun(domain, apiKey)
	if region == "eu" {
		mg.SetAPIBase("https://api.eu.mailgun.net/v3")
	}

	return &MailgunProvider{client: mg, from: from}, nil
}

// Send implements Provider.
func (p *MailgunProvider) Send(ctx context.Context, msg *Message) (string, error) {
	if err := validate(msg); err != nil {
		return "", err
	}

	from := msg.From
	if from == "" {
		from = p.from
	}

	m := p.client.NewMessage(from, msg.Subject, msg.Text, msg.To...)
	if msg.HTML != "" {
		m.SetHtml(msg.HTML)
	}

	sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, id, err := p.client.Send(sendCtx, m)
	if err != nil {
		return "", fmt.Errorf("mailgun send failed: %w", err)
	}
	return id, nil
}
