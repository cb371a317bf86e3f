// Package linker orchestrates the atomic creation and linking of identity,
// profile, settings and tenant-membership records for one resolved user. All
// writes are idempotent: redelivered confirmation events converge on the
// records the first delivery created.
package linker

import (
	"context"
	"net/http"
	"time"

	"github.com/userplane/userplane/pkg/errx"
	"github.com/userplane/userplane/pkg/identity"
	"github.com/userplane/userplane/pkg/kernel"
	"github.com/userplane/userplane/pkg/logx"
	"github.com/userplane/userplane/pkg/store"
	"github.com/userplane/userplane/pkg/tenant"
)

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("LINKER")

var (
	CodeTransactionConflict = ErrRegistry.Register("TRANSACTION_CONFLICT", errx.TypeInternal, http.StatusInternalServerError, "Grouped creation transaction aborted for a non-predicate reason")
	CodeSubjectContention   = ErrRegistry.Register("SUBJECT_CONTENTION", errx.TypeConflict, http.StatusConflict, "Provider subject was claimed by a concurrent flow")
)

// maxResolveAttempts bounds the re-resolution loop after subject contention.
// One retry is enough in practice (the winner's claim is durable); the bound
// guards against a store that keeps lying.
const maxResolveAttempts = 3

// LinkResult reports the outcome of linking.
type LinkResult struct {
	// Created is true when the grouped transaction persisted new records;
	// false means everything already existed, which is success on retries.
	Created  bool
	UserID   kernel.UserID
	TenantID kernel.TenantID
}

// ProfileDefaults seed the profile record at first creation.
type ProfileDefaults struct {
	Status       string
	AccountTier  string
	SignupMethod string
}

// Linker wires the resolvers to the record store.
type Linker struct {
	store   store.RecordStore
	ids     *identity.Resolver
	tenants *tenant.Resolver
	now     func() time.Time
}

// New creates a linker.
func New(s store.RecordStore, ids *identity.Resolver, tenants *tenant.Resolver) *Linker {
	return &Linker{store: s, ids: ids, tenants: tenants, now: time.Now}
}

// EnsureAccount resolves the assertion to a canonical user, determines the
// tenant, and links. When a concurrent flow claimed the same provider subject
// first, the corrected ids are adopted and linking restarts; the loop is the
// mandatory re-check that prevents a split-brain user.
func (l *Linker) EnsureAccount(ctx context.Context, assertion identity.Assertion, sctx tenant.Context) (LinkResult, error) {
	if err := assertion.Validate(); err != nil {
		return LinkResult{}, err
	}

	var adopted *identity.SubjectClaim
	for attempt := 0; attempt < maxResolveAttempts; attempt++ {
		var userID kernel.UserID
		var tenantID kernel.TenantID

		if adopted != nil {
			userID, tenantID = adopted.UserID, adopted.TenantID
		} else {
			res, err := l.ids.Resolve(ctx, assertion)
			if err != nil {
				return LinkResult{}, err
			}
			userID = res.UserID
			tenantID = res.TenantID
			if res.Source == identity.SourceNew {
				tenantID, err = l.tenants.Resolve(sctx)
				if err != nil {
					return LinkResult{}, err
				}
			}
		}

		defaults := ProfileDefaults{
			Status:       identity.StatusActive,
			SignupMethod: assertion.Provider(),
		}

		result, claim, err := l.linkOnce(ctx, userID, tenantID, assertion, defaults)
		if err != nil {
			return LinkResult{}, err
		}
		if claim != nil {
			logx.WithFields(logx.Fields{
				"assumed_user_id": userID.String(),
				"winner_user_id":  claim.UserID.String(),
			}).Info("subject claimed concurrently, adopting winner")
			adopted = claim
			continue
		}
		return result, nil
	}

	return LinkResult{}, ErrRegistry.New(CodeSubjectContention).
		WithDetail("provider", assertion.Provider())
}

// LinkAccount performs one linking pass for already-resolved ids. Subject
// contention surfaces as a CodeSubjectContention error carrying the winning
// ids; callers must restart resolution with them (EnsureAccount does).
func (l *Linker) LinkAccount(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID, assertion identity.Assertion, defaults ProfileDefaults) (LinkResult, error) {
	result, claim, err := l.linkOnce(ctx, userID, tenantID, assertion, defaults)
	if err != nil {
		return LinkResult{}, err
	}
	if claim != nil {
		return LinkResult{}, ErrRegistry.New(CodeSubjectContention).
			WithDetail("winner_user_id", claim.UserID.String()).
			WithDetail("winner_tenant_id", claim.TenantID.String())
	}
	return result, nil
}

// linkOnce runs steps A-C. A non-nil claim return means the subject belongs
// to a different user and the caller must re-resolve.
func (l *Linker) linkOnce(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID, assertion identity.Assertion, defaults ProfileDefaults) (LinkResult, *identity.SubjectClaim, error) {
	now := l.now()

	// Step A: conditional identity-link write, guarded by the subject
	// claim. The claim record is what arbitrates two flows racing to
	// create the same subject under different candidate user ids.
	link := identity.IdentityLink{
		TenantID:        tenantID,
		UserID:          userID,
		Provider:        assertion.Provider(),
		ProviderSubject: assertion.ProviderSubject,
		Username:        assertion.Username,
		CreatedAt:       now,
		Federated:       assertion.Federated,
	}
	linkRec, err := link.Record()
	if err != nil {
		return LinkResult{}, nil, err
	}
	claimRec, err := identity.SubjectClaim{
		ProviderSubject: assertion.ProviderSubject,
		Provider:        assertion.Provider(),
		TenantID:        tenantID,
		UserID:          userID,
		CreatedAt:       now,
	}.Record()
	if err != nil {
		return LinkResult{}, nil, err
	}

	err = l.store.TransactWrite(ctx, []store.TransactPut{
		{Record: linkRec, Condition: store.ConditionSortKeyAbsent},
		{Record: claimRec, Condition: store.ConditionPartitionKeyAbsent},
	})
	if err != nil {
		aborted, ok := store.AsAborted(err)
		if !ok || !aborted.PredicateOnly() {
			return LinkResult{}, nil, wrapTransactErr(err)
		}

		// Step B: something already existed. Re-read the subject claim,
		// the authoritative record of who owns this subject.
		winner, err := l.readClaim(ctx, assertion.ProviderSubject)
		if err != nil {
			return LinkResult{}, nil, err
		}
		if winner != nil && winner.UserID != userID {
			return LinkResult{}, winner, nil
		}
		// Same owner: this provider is already linked for this user, which
		// is success, not failure.
	}

	// Step C: grouped creation of profile, settings and membership. A
	// purely predicate-caused abort is the steady state for any
	// second-or-later link by an existing user.
	puts, err := l.creationBatch(userID, tenantID, assertion, defaults, now)
	if err != nil {
		return LinkResult{}, nil, err
	}

	created := true
	if err := l.store.TransactWrite(ctx, puts); err != nil {
		aborted, ok := store.AsAborted(err)
		if !ok || !aborted.PredicateOnly() {
			return LinkResult{}, nil, wrapTransactErr(err)
		}
		created = false
	}

	return LinkResult{Created: created, UserID: userID, TenantID: tenantID}, nil, nil
}

func (l *Linker) creationBatch(userID kernel.UserID, tenantID kernel.TenantID, assertion identity.Assertion, defaults ProfileDefaults, now time.Time) ([]store.TransactPut, error) {
	profileRec, err := identity.Profile{
		TenantID:     tenantID,
		UserID:       userID,
		Email:        assertion.Email,
		Status:       defaults.Status,
		Role:         membershipRole(tenantID),
		AccountTier:  defaults.AccountTier,
		SignupMethod: defaults.SignupMethod,
		CreatedAt:    now,
		UpdatedAt:    now,
	}.Record()
	if err != nil {
		return nil, err
	}

	settingsRec, err := identity.DefaultSettings(tenantID, userID, now).Record()
	if err != nil {
		return nil, err
	}

	puts := []store.TransactPut{
		{Record: profileRec, Condition: store.ConditionPartitionKeyAbsent},
		{Record: settingsRec, Condition: store.ConditionPartitionKeyAbsent},
	}

	if !tenantID.IsEmpty() {
		membershipRec, err := identity.Membership{
			UserID:   userID,
			TenantID: tenantID,
			Role:     membershipRole(tenantID),
			Status:   identity.StatusActive,
			JoinedAt: now,
		}.Record()
		if err != nil {
			return nil, err
		}
		puts = append(puts, store.TransactPut{
			Record:    membershipRec,
			Condition: store.ConditionPartitionKeyAbsent,
		})
	}
	return puts, nil
}

func (l *Linker) readClaim(ctx context.Context, providerSubject string) (*identity.SubjectClaim, error) {
	rec, err := l.store.GetByKey(ctx, identity.SubjectKey(providerSubject), identity.SortKeySubject)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	claim := identity.SubjectClaimFromRecord(*rec)
	return &claim, nil
}

// membershipRole grants the creating user admin over their own personal
// tenant; everyone else joins as a member.
func membershipRole(tenantID kernel.TenantID) string {
	if tenant.IsPersonal(tenantID) {
		return identity.RoleAdmin
	}
	return identity.RoleMember
}

func wrapTransactErr(err error) error {
	if _, ok := store.AsAborted(err); ok {
		return ErrRegistry.NewWithCause(CodeTransactionConflict, err)
	}
	return err
}
