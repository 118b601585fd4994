// ABOUTME: Resend email client
// ABOUTME: Sends transactional email through the resend-go SDK
package email

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/resend/resend-go/v2"
)

// Message is one outgoing email.
type Message struct {
	From    string
	To      []string
	Subject string
	HTML    string
	Text    string
	ReplyTo string
}

// Sender delivers a message and returns the provider's message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// ResendClient implements Sender against the Resend API.
type ResendClient struct {
	client *resend.Client
}

// NewResendClient builds a client. An empty baseURL keeps the SDK default.
func NewResendClient(apiKey, baseURL string, httpClient *http.Client) (*ResendClient, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	client := resend.NewCustomClient(httpClient, apiKey)
	if baseURL != "" {
		u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid resend base url: %w", err)
		}
		client.BaseURL = u
	}
	return &ResendClient{client: client}, nil
}

func (c *ResendClient) Send(ctx context.Context, msg Message) (string, error) {
	sent, err := c.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    msg.From,
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
		ReplyTo: msg.ReplyTo,
	})
	if err != nil {
		return "", fmt.Errorf("failed to send email: %w", err)
	}
	return sent.Id, nil
}
