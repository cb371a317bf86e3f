package trigger_test

import (
	"context"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"github.com/userplane/userplane/pkg/tenant"
	"github.com/userplane/userplane/pkg/trigger"
)

func signupEvent(email string) events.CognitoEventUserPoolsPreSignup {
	var event events.CognitoEventUserPoolsPreSignup
	event.TriggerSource = "PreSignUp_SignUp"
	event.UserName = "alice"
	event.Request.UserAttributes = map[string]string{"email": email}
	return event
}

func TestPreSignup_RejectsDisallowedDomain(t *testing.T) {
	h := trigger.NewPreSignup(tenant.Policy{
		Strategy:       tenant.StrategyDomain,
		AllowedDomains: []string{"co.example"},
	})

	if _, err := h.Handle(context.Background(), signupEvent("a@evil.example")); err == nil {
		t.Fatalf("disallowed domain admitted")
	}
	if _, err := h.Handle(context.Background(), signupEvent("a@co.example")); err != nil {
		t.Fatalf("allowed domain rejected: %v", err)
	}
}

func TestPreSignup_InactiveWithoutAllowList(t *testing.T) {
	h := trigger.NewPreSignup(tenant.Policy{Strategy: tenant.StrategyDomain})

	if _, err := h.Handle(context.Background(), signupEvent("a@anywhere.example")); err != nil {
		t.Fatalf("signup rejected without an allow-list: %v", err)
	}
}

func TestPreSignup_InactiveUnderOtherStrategies(t *testing.T) {
	h := trigger.NewPreSignup(tenant.Policy{
		Strategy:       tenant.StrategyClient,
		AllowedDomains: []string{"co.example"},
	})

	// The allow-list only gates the domain-driven strategies.
	if _, err := h.Handle(context.Background(), signupEvent("a@evil.example")); err != nil {
		t.Fatalf("client strategy enforced the domain allow-list: %v", err)
	}
}
