// Package notify sends the transactional email that accompanies account
// lifecycle events. Sends are best effort from the caller's point of view:
// failing to greet a user must never fail the confirmation that created them.
package notify

import (
	"context"
	"fmt"

	"github.com/userplane/userplane/pkg/errx"
)

var notifyErrors = errx.NewRegistry("NOTIFY")

var (
	ErrInvalidMessage = notifyErrors.Register("INVALID_MESSAGE", errx.TypeValidation, 400, "Email message is invalid")
)

// EmailMessage is an email to be sent.
type EmailMessage struct {
	From     string
	To       []string
	Subject  string
	TextBody string
	HTMLBody string
}

// EmailSender sends a single email.
type EmailSender interface {
	SendEmail(ctx context.Context, msg EmailMessage) error
}

// Client wraps a provider with message validation and the canned lifecycle
// messages.
type Client struct {
	provider EmailSender
}

// NewClient creates a notification client on the given provider.
func NewClient(provider EmailSender) *Client {
	return &Client{provider: provider}
}

// SendEmail validates and sends an email through the provider.
func (c *Client) SendEmail(ctx context.Context, msg EmailMessage) error {
	if len(msg.To) == 0 {
		return notifyErrors.New(ErrInvalidMessage).WithDetail("reason", "no recipients")
	}
	if msg.Subject == "" {
		return notifyErrors.New(ErrInvalidMessage).WithDetail("reason", "empty subject")
	}
	return c.provider.SendEmail(ctx, msg)
}

// SendWelcome greets a freshly created account.
func (c *Client) SendWelcome(ctx context.Context, email, username string) error {
	name := username
	if name == "" {
		name = email
	}
	return c.SendEmail(ctx, EmailMessage{
		To:       []string{email},
		Subject:  "Welcome aboard",
		TextBody: fmt.Sprintf("Hi %s,\n\nYour account is ready. Sign in any time to get started.\n", name),
	})
}
