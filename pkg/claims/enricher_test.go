package claims_test

import (
	"context"
	"testing"
	"time"

	"github.com/userplane/userplane/pkg/claims"
	"github.com/userplane/userplane/pkg/identity"
	"github.com/userplane/userplane/pkg/kernel"
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

// seedAccount creates the records the linker would have written.
func seedAccount(t *testing.T, s store.RecordStore, tenantID kernel.TenantID, userID kernel.UserID, sub string) {
	t.Helper()
	now := time.Now()

	rec, err := identity.Profile{
		TenantID:     tenantID,
		UserID:       userID,
		Email:        "a@co.example",
		Status:       identity.StatusActive,
		Role:         identity.RoleMember,
		AccountTier:  "free",
		SignupMethod: "GOOGLE",
		CreatedAt:    now,
		UpdatedAt:    now,
	}.Record()
	seed(t, s, rec, err)

	rec, err = identity.DefaultSettings(tenantID, userID, now).Record()
	seed(t, s, rec, err)

	rec, err = identity.IdentityLink{
		TenantID:        tenantID,
		UserID:          userID,
		Provider:        "COGNITO",
		ProviderSubject: sub,
		CreatedAt:       now,
	}.Record()
	seed(t, s, rec, err)

	if !tenantID.IsEmpty() {
		rec, err = identity.Membership{
			UserID:   userID,
			TenantID: tenantID,
			Role:     identity.RoleMember,
			Status:   identity.StatusActive,
			JoinedAt: now,
		}.Record()
		seed(t, s, rec, err)
	}
}

func TestBuildClaims_FastPath(t *testing.T) {
	s := storememory.New()
	seedAccount(t, s, "tenant-co", "u-1", "sub-1")

	e := claims.NewEnricher(s, true)
	got := e.BuildClaims(context.Background(), claims.Input{
		Subject:       "sub-1",
		Username:      "alice",
		TriggerSource: "TokenGeneration_Authentication",
		Attributes: map[string]string{
			"custom:user_id":   "u-1",
			"custom:tenant_id": "tenant-co",
		},
	})

	if got[claims.ClaimUserID] != "u-1" {
		t.Fatalf("user_id claim %q", got[claims.ClaimUserID])
	}
	if got[claims.ClaimTenantID] != "tenant-co" {
		t.Fatalf("tenant_id claim %q", got[claims.ClaimTenantID])
	}
	if got[claims.ClaimAuthType] != claims.AuthTypePassword {
		t.Fatalf("auth_type claim %q", got[claims.ClaimAuthType])
	}
	if got[claims.ClaimRole] != identity.RoleMember {
		t.Fatalf("role claim %q", got[claims.ClaimRole])
	}
	if got[claims.ClaimAccountTier] != "free" {
		t.Fatalf("account_tier claim %q", got[claims.ClaimAccountTier])
	}
	if got[claims.ClaimSignupMethod] != "GOOGLE" {
		t.Fatalf("signup_method claim %q", got[claims.ClaimSignupMethod])
	}
	if got[claims.ClaimPreferredLanguage] != "en" {
		t.Fatalf("preferred_language claim %q", got[claims.ClaimPreferredLanguage])
	}
	if _, ok := got[claims.ClaimMultipleTenants]; ok {
		t.Fatalf("single membership flagged as multiple")
	}
}

func TestBuildClaims_SlowPathViaSubjectIndex(t *testing.T) {
	s := storememory.New()
	seedAccount(t, s, "tenant-co", "u-1", "sub-1")

	e := claims.NewEnricher(s, true)
	got := e.BuildClaims(context.Background(), claims.Input{
		Subject:       "sub-1",
		Username:      "alice",
		TriggerSource: "TokenGeneration_Authentication",
		Attributes:    map[string]string{}, // write-back has not landed yet
	})

	if got[claims.ClaimUserID] != "u-1" || got[claims.ClaimTenantID] != "tenant-co" {
		t.Fatalf("slow path missed the account: %v", got)
	}
}

func TestBuildClaims_RevokedMembershipFallsBack(t *testing.T) {
	s := storememory.New()
	seedAccount(t, s, "tenant-co", "u-1", "sub-1")
	now := time.Now()

	// The stamped tenant was revoked; two other memberships remain.
	rec, err := identity.Membership{
		UserID: "u-1", TenantID: "tenant-gone",
		Role: identity.RoleMember, Status: identity.StatusRevoked, JoinedAt: now,
	}.Record()
	seed(t, s, rec, err)
	rec, err = identity.Membership{
		UserID: "u-1", TenantID: "tenant-other",
		Role: identity.RoleMember, Status: identity.StatusActive, JoinedAt: now,
	}.Record()
	seed(t, s, rec, err)

	e := claims.NewEnricher(s, true)
	got := e.BuildClaims(context.Background(), claims.Input{
		Subject: "sub-1",
		Attributes: map[string]string{
			"custom:user_id":   "u-1",
			"custom:tenant_id": "tenant-gone",
		},
	})

	// Deterministic pick: lexicographically first active tenant.
	if got[claims.ClaimTenantID] != "tenant-co" {
		t.Fatalf("fallback tenant %q, want tenant-co", got[claims.ClaimTenantID])
	}
	if got[claims.ClaimMultipleTenants] != "true" {
		t.Fatalf("multiple active memberships not flagged: %v", got)
	}
}

func TestBuildClaims_NoAccountStillIssues(t *testing.T) {
	e := claims.NewEnricher(storememory.New(), true)

	got := e.BuildClaims(context.Background(), claims.Input{
		Subject:       "sub-unknown",
		Username:      "ghost",
		TriggerSource: "TokenGeneration_RefreshTokens",
		Attributes:    map[string]string{},
	})

	if got[claims.ClaimAuthType] != claims.AuthTypeRefresh {
		t.Fatalf("auth_type claim %q", got[claims.ClaimAuthType])
	}
	if _, ok := got[claims.ClaimUserID]; ok {
		t.Fatalf("unresolvable subject produced a user_id: %v", got)
	}
}

func TestBuildClaims_SingleTenantModeOmitsTenant(t *testing.T) {
	s := storememory.New()
	seedAccount(t, s, "", "u-1", "sub-1")

	e := claims.NewEnricher(s, false)
	got := e.BuildClaims(context.Background(), claims.Input{
		Subject:    "sub-1",
		Attributes: map[string]string{"custom:user_id": "u-1"},
	})

	if got[claims.ClaimUserID] != "u-1" {
		t.Fatalf("user_id claim %q", got[claims.ClaimUserID])
	}
	if _, ok := got[claims.ClaimTenantID]; ok {
		t.Fatalf("single-tenant mode emitted tenant_id: %v", got)
	}
	if got[claims.ClaimPreferredLanguage] != "en" {
		t.Fatalf("enrichment skipped: %v", got)
	}
}

func TestAuthTypeFor(t *testing.T) {
	cases := []struct {
		source string
		want   string
	}{
		{"TokenGeneration_HostedAuth", claims.AuthTypeFederated},
		{"TokenGeneration_RefreshTokens", claims.AuthTypeRefresh},
		{"TokenGeneration_Authentication", claims.AuthTypePassword},
		{"", claims.AuthTypePassword},
	}
	for _, c := range cases {
		if got := claims.AuthTypeFor(c.source); got != c.want {
			t.Fatalf("AuthTypeFor(%q) = %q, want %q", c.source, got, c.want)
		}
	}
}
