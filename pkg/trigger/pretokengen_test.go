package trigger_test

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/userplane/userplane/pkg/claims"
	"github.com/userplane/userplane/pkg/identity"
	"github.com/userplane/userplane/pkg/store"
	"github.com/userplane/userplane/pkg/store/storememory"
	"github.com/userplane/userplane/pkg/trigger"
)

func TestPreTokenGen_AddsClaims(t *testing.T) {
	s := storememory.New()
	now := time.Now()
	ctx := context.Background()

	for _, build := range []func() (store.Record, error){
		func() (store.Record, error) {
			return identity.Profile{
				TenantID: "tenant-co", UserID: "u-1", Email: "a@co.example",
				Status: identity.StatusActive, Role: identity.RoleMember,
				CreatedAt: now, UpdatedAt: now,
			}.Record()
		},
		func() (store.Record, error) {
			return identity.DefaultSettings("tenant-co", "u-1", now).Record()
		},
		func() (store.Record, error) {
			return identity.Membership{
				UserID: "u-1", TenantID: "tenant-co",
				Role: identity.RoleMember, Status: identity.StatusActive, JoinedAt: now,
			}.Record()
		},
	} {
		rec, err := build()
		if err != nil {
			t.Fatalf("building record: %v", err)
		}
		if err := s.PutIfAbsent(ctx, rec, store.ConditionNone); err != nil {
			t.Fatalf("seeding record: %v", err)
		}
	}

	h := trigger.NewPreTokenGen(claims.NewEnricher(s, true))

	var event events.CognitoEventUserPoolsPreTokenGen
	event.TriggerSource = "TokenGeneration_Authentication"
	event.UserName = "alice"
	event.Request.UserAttributes = map[string]string{
		"sub":              "sub-1",
		"custom:user_id":   "u-1",
		"custom:tenant_id": "tenant-co",
	}

	out, err := h.Handle(ctx, event)
	if err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	added := out.Response.ClaimsOverrideDetails.ClaimsToAddOrOverride
	if added[claims.ClaimUserID] != "u-1" || added[claims.ClaimTenantID] != "tenant-co" {
		t.Fatalf("identity claims missing: %v", added)
	}
	if added[claims.ClaimAuthType] != claims.AuthTypePassword {
		t.Fatalf("auth_type %q", added[claims.ClaimAuthType])
	}
}

func TestPreTokenGen_NeverFails(t *testing.T) {
	h := trigger.NewPreTokenGen(claims.NewEnricher(storememory.New(), true))

	var event events.CognitoEventUserPoolsPreTokenGen
	event.TriggerSource = "TokenGeneration_RefreshTokens"
	event.UserName = "ghost"
	event.Request.UserAttributes = map[string]string{"sub": "sub-unknown"}

	out, err := h.Handle(context.Background(), event)
	if err != nil {
		t.Fatalf("issuance failed for unknown account: %v", err)
	}
	added := out.Response.ClaimsOverrideDetails.ClaimsToAddOrOverride
	if added[claims.ClaimAuthType] != claims.AuthTypeRefresh {
		t.Fatalf("auth_type %q", added[claims.ClaimAuthType])
	}
	if _, ok := added[claims.ClaimUserID]; ok {
		t.Fatalf("unknown account produced user_id: %v", added)
	}
}
