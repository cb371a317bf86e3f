package identity_test

import (
	"testing"

	"github.com/userplane/userplane/pkg/identity"
	"github.com/userplane/userplane/pkg/kernel"
)

func TestValidateID_RejectsDelimiter(t *testing.T) {
	if err := identity.ValidateID("ok-id"); err != nil {
		t.Fatalf("valid id rejected: %v", err)
	}
	if err := identity.ValidateID(""); err == nil {
		t.Fatalf("empty id accepted")
	}
	if err := identity.ValidateID("bad#id"); err == nil {
		t.Fatalf("id containing delimiter accepted")
	}
}

func TestUserPartition_RoundTrip(t *testing.T) {
	pk, err := identity.UserPartition("tenant-co", "u-1")
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if pk != "TENANT#tenant-co#USER#u-1" {
		t.Fatalf("unexpected partition key %q", pk)
	}

	tenantID, userID, err := identity.ParseUserPartition(pk)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if tenantID != "tenant-co" || userID != "u-1" {
		t.Fatalf("round trip lost ids: %q %q", tenantID, userID)
	}
}

func TestUserPartition_NoTenant(t *testing.T) {
	pk, err := identity.UserPartition("", "u-1")
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if pk != "USER#u-1" {
		t.Fatalf("unexpected partition key %q", pk)
	}

	tenantID, userID, err := identity.ParseUserPartition(pk)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !tenantID.IsEmpty() || userID != "u-1" {
		t.Fatalf("round trip lost ids: %q %q", tenantID, userID)
	}
}

func TestUserPartition_RejectsBadIDs(t *testing.T) {
	if _, err := identity.UserPartition("t#1", "u-1"); err == nil {
		t.Fatalf("tenant with delimiter accepted")
	}
	if _, err := identity.UserPartition("t-1", ""); err == nil {
		t.Fatalf("empty user accepted")
	}
}

func TestParseUserPartition_RejectsGarbage(t *testing.T) {
	for _, pk := range []string{"", "USER#", "EMAIL#a@b", "TENANT#t#PROFILE#x"} {
		if _, _, err := identity.ParseUserPartition(pk); err == nil {
			t.Fatalf("garbage key %q parsed", pk)
		}
	}
}

func TestEmailKey_Normalizes(t *testing.T) {
	if got := identity.EmailKey("Alice@Co.Example"); got != "EMAIL#alice@co.example" {
		t.Fatalf("unexpected email key %q", got)
	}
}

func TestLinkSortKey_NormalizesProvider(t *testing.T) {
	if got := identity.LinkSortKey("Google"); got != "IDENTITY#GOOGLE" {
		t.Fatalf("unexpected link sort key %q", got)
	}
}

func TestUserKey_RoundTrip(t *testing.T) {
	key := identity.UserKey(kernel.UserID("u-1"))
	userID, err := identity.ParseUserKey(key)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if userID != "u-1" {
		t.Fatalf("round trip lost id: %q", userID)
	}
	if _, err := identity.ParseUserKey("TENANT#t-1"); err == nil {
		t.Fatalf("tenant key parsed as user key")
	}
}
