package tenant

import (
	"strings"

	"github.com/userplane/userplane/pkg/kernel"
	"github.com/userplane/userplane/pkg/logx"
)

// Context is everything signup discloses that can determine a tenant.
type Context struct {
	// AttributeTenant is an explicit tenant attribute already present on
	// the identity.
	AttributeTenant string

	// InvitationCode is the raw invitation code from client metadata. Codes
	// following the TENANT:CODE convention encode the tenant directly.
	InvitationCode string

	// InvitationTenant is a tenant id supplied verbatim in client metadata.
	InvitationTenant string

	// ClientID is the app client the signup came through.
	ClientID string

	Email    string
	Username string
}

// Resolver evaluates the strategy chain in its fixed order; first match wins.
type Resolver struct {
	policy Policy
}

// NewResolver creates a resolver bound to the immutable policy.
func NewResolver(policy Policy) *Resolver {
	return &Resolver{policy: policy}
}

// Policy returns the resolver's policy.
func (r *Resolver) Policy() Policy {
	return r.policy
}

// Resolve determines the tenant for the signup context.
//
// Order: explicit attribute, invitation metadata, client-id map, email-domain
// map (gated by the allow-list), personal tenant, then the required-tenant
// policy decides between failure and the unassigned sentinel.
func (r *Resolver) Resolve(sctx Context) (kernel.TenantID, error) {
	if !r.policy.MultiTenant() {
		return "", nil
	}

	if sctx.AttributeTenant != "" {
		return kernel.TenantID(sctx.AttributeTenant), nil
	}

	if sctx.InvitationTenant != "" {
		return kernel.TenantID(sctx.InvitationTenant), nil
	}
	if r.policy.Strategy == StrategyInvitation {
		if t := tenantFromInvitationCode(sctx.InvitationCode); t != "" {
			return kernel.TenantID(t), nil
		}
	}

	if sctx.ClientID != "" {
		if t, ok := r.policy.ClientTenants[sctx.ClientID]; ok {
			return kernel.TenantID(t), nil
		}
	}

	if domain := EmailDomain(sctx.Email); domain != "" {
		if !r.policy.DomainAllowed(domain) {
			if r.policy.TenantRequired() {
				return "", ErrDomainNotAllowed(domain)
			}
			logx.WithField("domain", domain).Debug("email domain not in allow-list, skipping domain strategy")
		} else if t, ok := r.policy.DomainTenants[domain]; ok {
			return kernel.TenantID(t), nil
		}
	}

	if r.policy.AllowPersonal {
		seed := sctx.Email
		if seed == "" {
			seed = sctx.Username
		}
		if seed != "" {
			return PersonalTenantID(seed), nil
		}
	}

	if r.policy.TenantRequired() {
		return "", ErrTenantRequired().
			WithDetail("client_id", sctx.ClientID).
			WithDetail("username", sctx.Username)
	}
	return kernel.TenantUnassigned, nil
}

// tenantFromInvitationCode parses the TENANT:CODE convention.
func tenantFromInvitationCode(code string) string {
	tenant, rest, ok := strings.Cut(code, ":")
	if !ok || tenant == "" || rest == "" {
		return ""
	}
	return tenant
}
