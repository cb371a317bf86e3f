package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/userplane/userplane/pkg/identity"
	"github.com/userplane/userplane/pkg/store"
	"github.com/userplane/userplane/pkg/store/storememory"
)

func seed(t *testing.T, s store.RecordStore, rec store.Record, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("building record: %v", err)
	}
	if err := s.PutIfAbsent(context.Background(), rec, store.ConditionNone); err != nil {
		t.Fatalf("seeding record: %v", err)
	}
}

func TestResolver_SubjectHitWins(t *testing.T) {
	s := storememory.New()
	now := time.Now()

	rec, err := identity.IdentityLink{
		TenantID:        "tenant-co",
		UserID:          "u-1",
		Provider:        "COGNITO",
		ProviderSubject: "sub-1",
		CreatedAt:       now,
	}.Record()
	seed(t, s, rec, err)

	// A conflicting email record must not matter: subject is authoritative.
	profile, err := identity.Profile{
		TenantID:  "tenant-other",
		UserID:    "u-2",
		Email:     "a@co.example",
		Status:    identity.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}.Record()
	seed(t, s, profile, err)

	res, err := identity.NewResolver(s).Resolve(context.Background(), identity.Assertion{
		ProviderSubject: "sub-1",
		Email:           "a@co.example",
	})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if res.Source != identity.SourceSubject {
		t.Fatalf("expected subject source, got %q", res.Source)
	}
	if res.UserID != "u-1" || res.TenantID != "tenant-co" {
		t.Fatalf("unexpected resolution: %+v", res)
	}
	if !res.Existing() {
		t.Fatalf("subject hit reported as new")
	}
}

func TestResolver_EmailFallback(t *testing.T) {
	s := storememory.New()
	now := time.Now()

	profile, err := identity.Profile{
		TenantID:  "tenant-co",
		UserID:    "u-1",
		Email:     "a@co.example",
		Status:    identity.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}.Record()
	seed(t, s, profile, err)

	res, err := identity.NewResolver(s).Resolve(context.Background(), identity.Assertion{
		ProviderName:    "Google",
		ProviderSubject: "g-sub",
		Email:           "A@CO.EXAMPLE", // provider casing must not matter
	})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if res.Source != identity.SourceEmail {
		t.Fatalf("expected email source, got %q", res.Source)
	}
	if res.UserID != "u-1" || res.TenantID != "tenant-co" {
		t.Fatalf("unexpected resolution: %+v", res)
	}
}

func TestResolver_NewUserGetsTimeOrderedID(t *testing.T) {
	s := storememory.New()

	r := identity.NewResolver(s)
	first, err := r.Resolve(context.Background(), identity.Assertion{ProviderSubject: "sub-a"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	second, err := r.Resolve(context.Background(), identity.Assertion{ProviderSubject: "sub-b"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	if first.Source != identity.SourceNew || second.Source != identity.SourceNew {
		t.Fatalf("expected new ids, got %q and %q", first.Source, second.Source)
	}
	if first.UserID == second.UserID {
		t.Fatalf("generated ids collide: %q", first.UserID)
	}
	// UUIDv7 ids generated in sequence sort in creation order.
	if !(first.UserID < second.UserID) {
		t.Fatalf("ids not time ordered: %q then %q", first.UserID, second.UserID)
	}
	if !first.TenantID.IsEmpty() {
		t.Fatalf("resolver invented a tenant: %q", first.TenantID)
	}
}

func TestResolver_MissingSubjectFatal(t *testing.T) {
	_, err := identity.NewResolver(storememory.New()).Resolve(context.Background(), identity.Assertion{
		Email: "a@co.example",
	})
	if err == nil {
		t.Fatalf("assertion without subject resolved")
	}
}
