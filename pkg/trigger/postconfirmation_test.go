package trigger_test

import (
	"context"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"github.com/userplane/userplane/pkg/identity"
	"github.com/userplane/userplane/pkg/idp/idpmemory"
	"github.com/userplane/userplane/pkg/linker"
	"github.com/userplane/userplane/pkg/store"
	"github.com/userplane/userplane/pkg/store/storememory"
	"github.com/userplane/userplane/pkg/tenant"
	"github.com/userplane/userplane/pkg/trigger"
)

func confirmationEvent(username string, attrs map[string]string) events.CognitoEventUserPoolsPostConfirmation {
	var event events.CognitoEventUserPoolsPostConfirmation
	event.TriggerSource = trigger.SourceConfirmSignUp
	event.UserName = username
	event.UserPoolID = "pool-1"
	event.Request.UserAttributes = attrs
	return event
}

func newHandler(s *storememory.Store, w *idpmemory.Writer) *trigger.PostConfirmation {
	policy := tenant.Policy{
		Strategy:      tenant.StrategyDomain,
		DomainTenants: map[string]string{"co.example": "tenant-co"},
	}
	link := linker.New(s, identity.NewResolver(s), tenant.NewResolver(policy))
	return trigger.NewPostConfirmation(link, w)
}

func TestPostConfirmation_LinksAndWritesBack(t *testing.T) {
	s := storememory.New()
	w := idpmemory.NewWriter()
	h := newHandler(s, w)

	event := confirmationEvent("alice", map[string]string{
		"sub":   "sub-1",
		"email": "a@co.example",
	})

	if _, err := h.Handle(context.Background(), event); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	attrs := w.Attributes("alice")
	if attrs["custom:user_id"] == "" {
		t.Fatalf("user id not written back: %v", attrs)
	}
	if attrs["custom:tenant_id"] != "tenant-co" {
		t.Fatalf("tenant id not written back: %v", attrs)
	}

	// The link must be queryable by subject afterwards.
	recs, err := s.QueryIndex(context.Background(), store.IndexSubject, identity.SubjectKey("sub-1"), "")
	if err != nil || len(recs) != 1 {
		t.Fatalf("subject index after confirmation: %v / %d hits", err, len(recs))
	}
}

func TestPostConfirmation_OtherTriggerSourcePassesThrough(t *testing.T) {
	s := storememory.New()
	w := idpmemory.NewWriter()
	h := newHandler(s, w)

	event := confirmationEvent("alice", map[string]string{
		"sub":   "sub-1",
		"email": "a@co.example",
	})
	event.TriggerSource = "PostConfirmation_ConfirmForgotPassword"

	out, err := h.Handle(context.Background(), event)
	if err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if out.TriggerSource != event.TriggerSource {
		t.Fatalf("event mutated on passthrough")
	}
	if len(w.Attributes("alice")) != 0 {
		t.Fatalf("passthrough wrote attributes: %v", w.Attributes("alice"))
	}
	if recs, _ := s.QueryIndex(context.Background(), store.IndexSubject, identity.SubjectKey("sub-1"), ""); len(recs) != 0 {
		t.Fatalf("passthrough created records")
	}
}

func TestPostConfirmation_RetrySkipsWriteBack(t *testing.T) {
	s := storememory.New()
	w := idpmemory.NewWriter()
	h := newHandler(s, w)
	ctx := context.Background()

	event := confirmationEvent("alice", map[string]string{
		"sub":   "sub-1",
		"email": "a@co.example",
	})
	if _, err := h.Handle(ctx, event); err != nil {
		t.Fatalf("first handle failed: %v", err)
	}
	first := w.Attributes("alice")

	// The redelivered event already carries the stamped attributes.
	retry := confirmationEvent("alice", map[string]string{
		"sub":              "sub-1",
		"email":            "a@co.example",
		"custom:user_id":   first["custom:user_id"],
		"custom:tenant_id": first["custom:tenant_id"],
	})
	if _, err := h.Handle(ctx, retry); err != nil {
		t.Fatalf("retry failed: %v", err)
	}

	second := w.Attributes("alice")
	if second["custom:user_id"] != first["custom:user_id"] {
		t.Fatalf("retry changed the canonical id: %v vs %v", first, second)
	}
}

func TestPostConfirmation_FederatedIdentityBackfill(t *testing.T) {
	s := storememory.New()
	w := idpmemory.NewWriter()
	h := newHandler(s, w)

	event := confirmationEvent("google_alice", map[string]string{
		"sub":        "sub-g",
		"email":      "a@co.example",
		"identities": `[{"userId":"10987","providerName":"Google","providerType":"Google","issuer":null,"primary":true,"dateCreated":1718000000000}]`,
	})

	if _, err := h.Handle(context.Background(), event); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	recs, err := s.QueryIndex(context.Background(), store.IndexSubject, identity.SubjectKey("sub-g"), "")
	if err != nil || len(recs) != 1 {
		t.Fatalf("subject index: %v / %d hits", err, len(recs))
	}
	link, err := identity.IdentityLinkFromRecord(recs[0])
	if err != nil {
		t.Fatalf("link decode: %v", err)
	}
	if link.Provider != "GOOGLE" {
		t.Fatalf("provider %q, want GOOGLE", link.Provider)
	}
	if link.Federated == nil || link.Federated.UserID != "10987" {
		t.Fatalf("federated details lost: %+v", link.Federated)
	}
	if link.Federated.DateCreated != "1718000000000" {
		t.Fatalf("dateCreated %q", link.Federated.DateCreated)
	}
}

func TestPostConfirmation_MissingSubjectFails(t *testing.T) {
	h := newHandler(storememory.New(), idpmemory.NewWriter())

	event := confirmationEvent("alice", map[string]string{
		"email": "a@co.example",
	})
	if _, err := h.Handle(context.Background(), event); err == nil {
		t.Fatalf("confirmation without sub succeeded")
	}
}
