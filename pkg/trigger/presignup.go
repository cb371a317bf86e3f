package trigger

import (
	"context"

	"github.com/aws/aws-lambda-go/events"

	"github.com/userplane/userplane/pkg/idp"
	"github.com/userplane/userplane/pkg/logx"
	"github.com/userplane/userplane/pkg/tenant"
)

// PreSignup rejects signups from outside the allowed email domains before
// Cognito creates the identity. It only acts under the domain-driven
// strategies; everything else is admitted and sorted out at confirmation.
type PreSignup struct {
	policy tenant.Policy
}

// NewPreSignup creates the handler.
func NewPreSignup(policy tenant.Policy) *PreSignup {
	return &PreSignup{policy: policy}
}

// Handle validates one signup. Returning an error makes Cognito refuse the
// registration.
func (h *PreSignup) Handle(_ context.Context, event events.CognitoEventUserPoolsPreSignup) (events.CognitoEventUserPoolsPreSignup, error) {
	if h.policy.Strategy != tenant.StrategyDomain && h.policy.Strategy != tenant.StrategyStrict {
		return event, nil
	}
	if len(h.policy.AllowedDomains) == 0 {
		return event, nil
	}

	email := event.Request.UserAttributes[idp.AttrEmail]
	domain := tenant.EmailDomain(email)
	if !h.policy.DomainAllowed(domain) {
		logx.WithFields(logx.Fields{
			"username": event.UserName,
			"domain":   domain,
		}).Warn("signup rejected by domain allow-list")
		return event, tenant.ErrDomainNotAllowed(domain)
	}
	return event, nil
}
