// Package tenant determines which tenant a confirming user belongs to, via an
// ordered strategy chain over signup context, and derives deterministic
// personal tenants when no organizational tenant applies.
package tenant

import (
	"net/http"
	"strings"

	"github.com/userplane/userplane/pkg/errx"
)

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("TENANT")

var (
	CodeTenantRequired   = ErrRegistry.Register("REQUIRED", errx.TypeBusiness, http.StatusUnprocessableEntity, "No tenant strategy matched and a tenant is required")
	CodeDomainNotAllowed = ErrRegistry.Register("DOMAIN_NOT_ALLOWED", errx.TypeValidation, http.StatusBadRequest, "Email domain is not allowed")
)

// ErrTenantRequired builds the no-strategy-matched error.
func ErrTenantRequired() *errx.Error {
	return ErrRegistry.New(CodeTenantRequired)
}

// ErrDomainNotAllowed builds the allow-list rejection error.
func ErrDomainNotAllowed(domain string) *errx.Error {
	return ErrRegistry.New(CodeDomainNotAllowed).WithDetail("domain", domain)
}

// Strategy selects the deployment's tenancy model.
type Strategy string

const (
	// StrategyNone disables multi-tenancy; user partitions carry no tenant.
	StrategyNone Strategy = "none"
	// StrategyDomain maps users to tenants by email domain.
	StrategyDomain Strategy = "domain"
	// StrategyStrict is StrategyDomain with a required tenant: signups that
	// resolve no tenant are rejected.
	StrategyStrict Strategy = "strict"
	// StrategyInvitation additionally parses TENANT:CODE invitation codes.
	StrategyInvitation Strategy = "invitation"
	// StrategyClient maps users to tenants by app client id.
	StrategyClient Strategy = "client"
)

// ParseStrategy normalizes a configured strategy name, defaulting to domain.
func ParseStrategy(s string) Strategy {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyNone:
		return StrategyNone
	case StrategyStrict:
		return StrategyStrict
	case StrategyInvitation:
		return StrategyInvitation
	case StrategyClient:
		return StrategyClient
	default:
		return StrategyDomain
	}
}

// Policy is the process-wide, immutable tenancy configuration. It is loaded
// once at startup and passed explicitly; nothing reads it from global state
// at call time.
type Policy struct {
	Strategy Strategy

	// AllowedDomains gates the email-domain strategy when non-empty.
	AllowedDomains []string

	// DomainTenants maps email domains to tenant ids.
	DomainTenants map[string]string

	// ClientTenants maps app client ids to tenant ids.
	ClientTenants map[string]string

	// AllowPersonal enables auto-created single-user tenants.
	AllowPersonal bool

	// RequireTenant makes an unmatched strategy chain fatal.
	RequireTenant bool
}

// MultiTenant reports whether the deployment scopes users to tenants at all.
func (p Policy) MultiTenant() bool {
	return p.Strategy != StrategyNone
}

// TenantRequired reports whether confirmation must fail when no strategy
// matches.
func (p Policy) TenantRequired() bool {
	return p.RequireTenant || p.Strategy == StrategyStrict
}

// DomainAllowed checks the allow-list; an empty list allows everything.
func (p Policy) DomainAllowed(domain string) bool {
	if len(p.AllowedDomains) == 0 {
		return true
	}
	for _, d := range p.AllowedDomains {
		if strings.EqualFold(d, domain) {
			return true
		}
	}
	return false
}

// EmailDomain extracts the lower-cased domain of an email address, or ""
// when the address has none.
func EmailDomain(email string) string {
	_, domain, ok := strings.Cut(email, "@")
	if !ok || domain == "" {
		return ""
	}
	return strings.ToLower(domain)
}
