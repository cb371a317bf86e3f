package tenant_test

import (
	"strings"
	"testing"

	"github.com/userplane/userplane/pkg/errx"
	"github.com/userplane/userplane/pkg/kernel"
	"github.com/userplane/userplane/pkg/tenant"
)

func TestResolve_ExplicitAttributeOutranksDomainMap(t *testing.T) {
	r := tenant.NewResolver(tenant.Policy{
		Strategy:      tenant.StrategyDomain,
		DomainTenants: map[string]string{"co.example": "T2"},
	})

	got, err := r.Resolve(tenant.Context{
		AttributeTenant: "T1",
		Email:           "a@co.example",
	})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got != "T1" {
		t.Fatalf("explicit attribute lost to domain map: %q", got)
	}
}

func TestResolve_InvitationTenantVerbatim(t *testing.T) {
	r := tenant.NewResolver(tenant.Policy{Strategy: tenant.StrategyDomain})

	got, err := r.Resolve(tenant.Context{InvitationTenant: "tenant-inv"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got != "tenant-inv" {
		t.Fatalf("invitation tenant not used: %q", got)
	}
}

func TestResolve_InvitationCodeOnlyUnderInvitationStrategy(t *testing.T) {
	sctx := tenant.Context{InvitationCode: "tenant-co:ABC123", Email: "a@nowhere.example"}

	r := tenant.NewResolver(tenant.Policy{Strategy: tenant.StrategyInvitation})
	got, err := r.Resolve(sctx)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got != "tenant-co" {
		t.Fatalf("invitation code not parsed: %q", got)
	}

	// Under other strategies the code is opaque and the chain falls through.
	r = tenant.NewResolver(tenant.Policy{Strategy: tenant.StrategyDomain})
	got, err = r.Resolve(sctx)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got != kernel.TenantUnassigned {
		t.Fatalf("opaque code resolved a tenant: %q", got)
	}
}

func TestResolve_ClientIDMap(t *testing.T) {
	r := tenant.NewResolver(tenant.Policy{
		Strategy:      tenant.StrategyClient,
		ClientTenants: map[string]string{"client-1": "tenant-app"},
	})

	got, err := r.Resolve(tenant.Context{ClientID: "client-1"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got != "tenant-app" {
		t.Fatalf("client map not used: %q", got)
	}
}

func TestResolve_DomainMapGatedByAllowList(t *testing.T) {
	policy := tenant.Policy{
		Strategy:       tenant.StrategyStrict,
		AllowedDomains: []string{"co.example"},
		DomainTenants:  map[string]string{"co.example": "tenant-co", "evil.example": "tenant-evil"},
	}
	r := tenant.NewResolver(policy)

	got, err := r.Resolve(tenant.Context{Email: "a@co.example"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got != "tenant-co" {
		t.Fatalf("domain map not used: %q", got)
	}

	// Strict strategy requires a tenant, so a disallowed domain is fatal
	// even when the domain map knows it.
	if _, err := r.Resolve(tenant.Context{Email: "a@evil.example"}); err == nil {
		t.Fatalf("disallowed domain resolved under strict strategy")
	}
}

func TestResolve_DisallowedDomainFallsThroughWhenOptional(t *testing.T) {
	r := tenant.NewResolver(tenant.Policy{
		Strategy:       tenant.StrategyDomain,
		AllowedDomains: []string{"co.example"},
		DomainTenants:  map[string]string{"evil.example": "tenant-evil"},
	})

	got, err := r.Resolve(tenant.Context{Email: "a@evil.example"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got != kernel.TenantUnassigned {
		t.Fatalf("expected unassigned sentinel, got %q", got)
	}
}

func TestResolve_PersonalTenantDeterministic(t *testing.T) {
	r := tenant.NewResolver(tenant.Policy{
		Strategy:      tenant.StrategyDomain,
		AllowPersonal: true,
	})

	first, err := r.Resolve(tenant.Context{Email: "solo@nowhere.example"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	second, err := r.Resolve(tenant.Context{Email: "Solo@Nowhere.Example"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	if first != second {
		t.Fatalf("personal tenant not stable: %q vs %q", first, second)
	}
	if !strings.HasPrefix(first.String(), tenant.PersonalPrefix) {
		t.Fatalf("personal tenant missing prefix: %q", first)
	}
	if !tenant.IsPersonal(first) {
		t.Fatalf("IsPersonal rejects %q", first)
	}

	other, err := r.Resolve(tenant.Context{Email: "someone-else@nowhere.example"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if other == first {
		t.Fatalf("different users share a personal tenant")
	}
}

func TestResolve_RequiredTenantError(t *testing.T) {
	r := tenant.NewResolver(tenant.Policy{
		Strategy:      tenant.StrategyDomain,
		RequireTenant: true,
	})

	_, err := r.Resolve(tenant.Context{Email: "a@nowhere.example"})
	if err == nil {
		t.Fatalf("expected tenant-required error")
	}
	var e *errx.Error
	if !errx.As(err, &e) || e.Type != errx.TypeBusiness {
		t.Fatalf("unexpected error shape: %v", err)
	}
}

func TestResolve_SingleTenantMode(t *testing.T) {
	r := tenant.NewResolver(tenant.Policy{Strategy: tenant.StrategyNone})

	got, err := r.Resolve(tenant.Context{
		AttributeTenant: "T1",
		Email:           "a@co.example",
	})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !got.IsEmpty() {
		t.Fatalf("single-tenant mode produced a tenant: %q", got)
	}
}
