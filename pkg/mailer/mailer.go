package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
)

// ErrNotConfigured is returned when no API key or sender is set.
var ErrNotConfigured = errors.New("mailer not configured")

// Message is a rendered email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// ResendClient sends mail through the Resend SDK.
type ResendClient struct {
	apiKey string
	from   string
	client *resend.Client
}

// NewResendClient builds a client. A nil httpClient gets a 10s timeout default.
// baseURL overrides the provider endpoint and is mostly useful in tests.
func NewResendClient(baseURL, apiKey, from string, httpClient *http.Client) *ResendClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	client := resend.NewCustomClient(httpClient, apiKey)
	if baseURL != "" {
		if parsed, err := url.Parse(strings.TrimRight(baseURL, "/") + "/"); err == nil {
			client.BaseURL = parsed
		}
	}
	return &ResendClient{apiKey: apiKey, from: from, client: client}
}

// Configured reports whether Send can reach the provider.
func (c *ResendClient) Configured() bool {
	return c != nil && c.apiKey != "" && c.from != ""
}

// Send delivers msg through the provider.
func (c *ResendClient) Send(ctx context.Context, msg Message) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	if msg.To == "" {
		return errors.New("mail recipient required")
	}

	_, err := c.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    c.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("resend send: %w", err)
	}
	return nil
}
