// Package claims turns the stored account state into the custom claims added
// to tokens at issuance time. Everything here is best effort: a token with
// missing claims is always better than a failed login, so no path returns an
// error to the caller.
package claims

import (
	"context"
	"sort"

	"github.com/userplane/userplane/pkg/identity"
	"github.com/userplane/userplane/pkg/idp"
	"github.com/userplane/userplane/pkg/kernel"
	"github.com/userplane/userplane/pkg/logx"
	"github.com/userplane/userplane/pkg/store"
)

// Claim names added to issued tokens.
const (
	ClaimUserID            = "user_id"
	ClaimTenantID          = "tenant_id"
	ClaimAuthType          = "auth_type"
	ClaimRole              = "role"
	ClaimAccountTier       = "account_tier"
	ClaimSignupMethod      = "signup_method"
	ClaimPreferredLanguage = "preferred_language"
	ClaimMultipleTenants   = "has_multiple_tenants"
)

// auth_type values.
const (
	AuthTypePassword  = "password"
	AuthTypeFederated = "federated"
	AuthTypeRefresh   = "refresh"
)

// AuthTypeFor maps the issuance trigger source to the auth_type claim.
func AuthTypeFor(triggerSource string) string {
	switch triggerSource {
	case "TokenGeneration_HostedAuth":
		return AuthTypeFederated
	case "TokenGeneration_RefreshTokens":
		return AuthTypeRefresh
	default:
		return AuthTypePassword
	}
}

// Input is the issuance context handed to the enricher.
type Input struct {
	Subject       string
	Username      string
	TriggerSource string
	Attributes    map[string]string
}

// Enricher builds token claims from the record store.
//
// The fast path trusts the canonical ids written back onto the identity after
// linking, revalidating only the membership. When the write-back has not
// landed yet the slow path resolves the ids through the subject index.
type Enricher struct {
	store       store.RecordStore
	cache       Cache
	multiTenant bool
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithCache adds a cache for the profile and settings lookups.
func WithCache(c Cache) Option {
	return func(e *Enricher) { e.cache = c }
}

// NewEnricher creates an enricher. multiTenant controls whether tenant claims
// are emitted at all.
func NewEnricher(s store.RecordStore, multiTenant bool, opts ...Option) *Enricher {
	e := &Enricher{store: s, multiTenant: multiTenant}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BuildClaims computes the claims for one token issuance. It never fails:
// whatever could not be determined is simply left out of the returned map.
func (e *Enricher) BuildClaims(ctx context.Context, in Input) map[string]string {
	claims := map[string]string{
		ClaimAuthType: AuthTypeFor(in.TriggerSource),
	}

	userID := kernel.UserID(in.Attributes[idp.AttrUserID])
	tenantID := kernel.TenantID(in.Attributes[idp.AttrTenantID])

	if userID.IsEmpty() {
		var err error
		userID, tenantID, err = e.lookupBySubject(ctx, in.Subject)
		if err != nil {
			logx.WithError(err).WithField("username", in.Username).
				Warn("claims: subject lookup failed, issuing token without identity claims")
			return claims
		}
		if userID.IsEmpty() {
			logx.WithField("username", in.Username).
				Warn("claims: no linked account for subject, issuing token without identity claims")
			return claims
		}
	}
	claims[ClaimUserID] = userID.String()

	if e.multiTenant {
		tenantID = e.verifiedTenant(ctx, userID, tenantID, claims)
	} else {
		tenantID = ""
	}

	e.enrich(ctx, tenantID, userID, claims)
	return claims
}

// lookupBySubject resolves the canonical ids through the subject index when
// the identity carries no write-back attributes yet.
func (e *Enricher) lookupBySubject(ctx context.Context, subject string) (kernel.UserID, kernel.TenantID, error) {
	if subject == "" {
		return "", "", nil
	}
	recs, err := e.store.QueryIndex(ctx, store.IndexSubject, identity.SubjectKey(subject), "")
	if err != nil {
		return "", "", err
	}
	if len(recs) == 0 {
		return "", "", nil
	}
	tenantID, userID, err := identity.ParseUserPartition(recs[0].GSI2SK)
	if err != nil {
		return "", "", err
	}
	return userID, tenantID, nil
}

// verifiedTenant revalidates the candidate tenant against the user's
// memberships and fills in the tenant claims. A stale or revoked candidate
// falls back to the user's active memberships, picking deterministically and
// flagging when more than one exists so clients can offer a tenant switch.
func (e *Enricher) verifiedTenant(ctx context.Context, userID kernel.UserID, candidate kernel.TenantID, claims map[string]string) kernel.TenantID {
	if !candidate.IsEmpty() {
		rec, err := e.store.GetByKey(ctx, identity.UserKey(userID), identity.TenantKey(candidate))
		if err == nil && rec != nil {
			if m, err := identity.MembershipFromRecord(*rec); err == nil && m.IsActive() {
				claims[ClaimTenantID] = candidate.String()
				return candidate
			}
		}
		if err != nil {
			logx.WithError(err).Debug("claims: membership revalidation failed")
		}
	}

	recs, err := e.store.Query(ctx, identity.UserKey(userID), identity.MembershipSKPrefix)
	if err != nil {
		logx.WithError(err).Debug("claims: membership fallback query failed")
		return ""
	}

	active := make([]identity.Membership, 0, len(recs))
	for _, rec := range recs {
		m, err := identity.MembershipFromRecord(rec)
		if err != nil {
			continue
		}
		if m.IsActive() {
			active = append(active, m)
		}
	}
	if len(active) == 0 {
		return ""
	}

	// Stores return rows ordered by sort key, but sort anyway so the pick
	// stays stable across backends.
	sort.Slice(active, func(i, j int) bool {
		return active[i].TenantID < active[j].TenantID
	})

	claims[ClaimTenantID] = active[0].TenantID.String()
	if len(active) > 1 {
		claims[ClaimMultipleTenants] = "true"
	}
	return active[0].TenantID
}

// enrich adds the profile- and settings-derived claims, going through the
// cache when one is configured.
func (e *Enricher) enrich(ctx context.Context, tenantID kernel.TenantID, userID kernel.UserID, claims map[string]string) {
	partition, err := identity.UserPartition(tenantID, userID)
	if err != nil {
		return
	}

	if e.cache != nil {
		if values, ok := e.cache.Get(ctx, partition); ok {
			mergeClaims(claims, values)
			return
		}
	}

	values := make(map[string]string)

	profileRec, err := e.store.GetByKey(ctx, partition, identity.SortKeyProfile)
	if err != nil {
		logx.WithError(err).Debug("claims: profile enrichment read failed")
		return
	}
	if profileRec != nil {
		if p, err := identity.ProfileFromRecord(*profileRec); err == nil {
			if p.Role != "" {
				values[ClaimRole] = p.Role
			}
			if p.AccountTier != "" {
				values[ClaimAccountTier] = p.AccountTier
			}
			if p.SignupMethod != "" {
				values[ClaimSignupMethod] = p.SignupMethod
			}
		}
	}

	settingsRec, err := e.store.GetByKey(ctx, partition, identity.SortKeySettings)
	if err != nil {
		logx.WithError(err).Debug("claims: settings enrichment read failed")
	} else if settingsRec != nil {
		if s, err := identity.SettingsFromRecord(*settingsRec); err == nil && s.Language != "" {
			values[ClaimPreferredLanguage] = s.Language
		}
	}

	mergeClaims(claims, values)
	if e.cache != nil && len(values) > 0 {
		e.cache.Set(ctx, partition, values)
	}
}

func mergeClaims(dst, src map[string]string) {
	for name, value := range src {
		dst[name] = value
	}
}
