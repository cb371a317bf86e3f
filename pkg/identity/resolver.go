package identity

import (
	"context"

	"github.com/userplane/userplane/pkg/kernel"
	"github.com/userplane/userplane/pkg/logx"
	"github.com/userplane/userplane/pkg/store"
)

// Source records which path produced a resolution.
type Source string

const (
	// SourceSubject means the provider subject was already linked.
	SourceSubject Source = "subject"
	// SourceEmail means a profile with the same email exists; the caller is
	// linking a new provider to that user.
	SourceEmail Source = "email"
	// SourceNew means a fresh canonical id was generated. Nothing is
	// persisted until the account linker commits.
	SourceNew Source = "new"
)

// Resolution is the outcome of resolving an assertion.
type Resolution struct {
	UserID kernel.UserID
	// TenantID is set only when an existing record disclosed it.
	TenantID kernel.TenantID
	Source   Source
}

// Existing reports whether the id belonged to a user before this call.
func (r Resolution) Existing() bool {
	return r.Source != SourceNew
}

// Resolver maps an external assertion to the canonical user id. It never
// writes: creation is deferred to the account linker so a resolver-only
// failure cannot leave a ghost index entry.
type Resolver struct {
	store store.RecordStore
}

// NewResolver creates a resolver over the shared record store.
func NewResolver(s store.RecordStore) *Resolver {
	return &Resolver{store: s}
}

// Resolve finds or mints the canonical user id for the assertion.
//
// The subject-lookup index is authoritative: a hit there guarantees
// idempotency across redelivered confirmations. An email hit means a new
// provider is being linked to an existing user. Otherwise a new
// time-ordered id is generated.
func (r *Resolver) Resolve(ctx context.Context, assertion Assertion) (Resolution, error) {
	if err := assertion.Validate(); err != nil {
		return Resolution{}, err
	}

	recs, err := r.store.QueryIndex(ctx, store.IndexSubject, SubjectKey(assertion.ProviderSubject), "")
	if err != nil {
		return Resolution{}, err
	}
	if len(recs) > 0 {
		tenantID, userID, err := ParseUserPartition(recs[0].GSI2SK)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{UserID: userID, TenantID: tenantID, Source: SourceSubject}, nil
	}

	if assertion.Email != "" {
		recs, err = r.store.QueryIndex(ctx, store.IndexEmail, EmailKey(assertion.Email), "")
		if err != nil {
			return Resolution{}, err
		}
		if len(recs) > 0 {
			userID, err := ParseUserKey(recs[0].GSI1SK)
			if err != nil {
				return Resolution{}, err
			}
			tenantID, _, err := ParseUserPartition(recs[0].PK)
			if err != nil {
				return Resolution{}, err
			}
			logx.WithFields(logx.Fields{
				"user_id":  userID.String(),
				"provider": assertion.Provider(),
			}).Info("linking new provider to existing user by email")
			return Resolution{UserID: userID, TenantID: tenantID, Source: SourceEmail}, nil
		}
	}

	userID, err := kernel.GenerateUserID()
	if err != nil {
		return Resolution{}, ErrRegistry.NewWithCause(CodeIDGeneration, err)
	}
	return Resolution{UserID: userID, Source: SourceNew}, nil
}
