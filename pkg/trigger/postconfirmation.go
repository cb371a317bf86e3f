package trigger

import (
	"context"

	"github.com/aws/aws-lambda-go/events"

	"github.com/userplane/userplane/pkg/idp"
	"github.com/userplane/userplane/pkg/linker"
	"github.com/userplane/userplane/pkg/logx"
	"github.com/userplane/userplane/pkg/notify"
)

// PostConfirmation links the confirmed identity to a canonical account.
//
// This is the only trigger whose failure must fail the flow: losing the
// account records would leave a confirmed user that no token issuance can
// resolve, so store and write-back errors propagate and Cognito retries the
// whole event. Every write along the path is idempotent for exactly that
// reason.
type PostConfirmation struct {
	linker   *linker.Linker
	writer   idp.AttributeWriter
	notifier *notify.Client
}

// PostConfirmationOption configures the handler.
type PostConfirmationOption func(*PostConfirmation)

// WithNotifier enables the best-effort welcome email on first creation.
func WithNotifier(n *notify.Client) PostConfirmationOption {
	return func(h *PostConfirmation) { h.notifier = n }
}

// NewPostConfirmation creates the handler.
func NewPostConfirmation(l *linker.Linker, w idp.AttributeWriter, opts ...PostConfirmationOption) *PostConfirmation {
	h := &PostConfirmation{linker: l, writer: w}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle processes one post-confirmation event. Trigger sources other than
// sign-up confirmation (password resets confirm through here too) pass
// through untouched.
func (h *PostConfirmation) Handle(ctx context.Context, event events.CognitoEventUserPoolsPostConfirmation) (events.CognitoEventUserPoolsPostConfirmation, error) {
	if event.TriggerSource != SourceConfirmSignUp {
		return event, nil
	}

	attrs := event.Request.UserAttributes
	assertion := assertionFromAttributes(event.UserName, attrs)
	sctx := tenantContext(event.UserName, event.CallerContext.ClientID, attrs, event.Request.ClientMetadata)

	log := logx.WithFields(logx.Fields{
		"username": event.UserName,
		"provider": assertion.Provider(),
	})

	result, err := h.linker.EnsureAccount(ctx, assertion, sctx)
	if err != nil {
		log.WithError(err).Error("account linking failed")
		return event, err
	}
	log = log.WithFields(logx.Fields{
		"user_id":   result.UserID.String(),
		"tenant_id": result.TenantID.String(),
		"created":   result.Created,
	})

	if err := h.writeBack(ctx, event, result); err != nil {
		log.WithError(err).Error("identity attribute write-back failed")
		return event, err
	}

	if result.Created && h.notifier != nil && attrs[idp.AttrEmail] != "" {
		if err := h.notifier.SendWelcome(ctx, attrs[idp.AttrEmail], event.UserName); err != nil {
			log.WithError(err).Warn("welcome email failed")
		}
	}

	log.Info("confirmation processed")
	return event, nil
}

// writeBack stamps the canonical ids onto the identity so later token
// issuances take the fast path. Attributes already holding the right values
// are skipped, which makes retried events free.
func (h *PostConfirmation) writeBack(ctx context.Context, event events.CognitoEventUserPoolsPostConfirmation, result linker.LinkResult) error {
	attrs := event.Request.UserAttributes

	pending := make(map[string]string, 2)
	if attrs[idp.AttrUserID] != result.UserID.String() {
		pending[idp.AttrUserID] = result.UserID.String()
	}
	if !result.TenantID.IsEmpty() && attrs[idp.AttrTenantID] != result.TenantID.String() {
		pending[idp.AttrTenantID] = result.TenantID.String()
	}
	if len(pending) == 0 {
		return nil
	}
	return h.writer.SetIdentityAttributes(ctx, event.UserName, event.UserPoolID, pending)
}
