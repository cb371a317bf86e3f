package identity

import (
	"net/http"
	"strings"

	"github.com/userplane/userplane/pkg/errx"
	"github.com/userplane/userplane/pkg/kernel"
)

// Key segment prefixes. '#' is the segment delimiter, so no identifier may
// contain it; ValidateID enforces that at construction instead of trusting
// parse-time splitting.
const (
	prefixTenant  = "TENANT#"
	prefixUser    = "USER#"
	prefixIdent   = "IDENT#"
	prefixEmail   = "EMAIL#"
	prefixLinkSK  = "IDENTITY#"
)

// Fixed sort keys for the singleton records of a partition.
const (
	SortKeyProfile  = "PROFILE"
	SortKeySettings = "SETTINGS"
	SortKeySubject  = "SUBJECT"
)

// MembershipSKPrefix matches every membership row under a USER#<id>
// partition.
const MembershipSKPrefix = prefixTenant

var keyRegistry = errx.NewRegistry("KEY")

var (
	CodeBadIdentifier = keyRegistry.Register("BAD_IDENTIFIER", errx.TypeValidation, http.StatusBadRequest, "Identifier is empty or contains the key delimiter")
	CodeBadKey        = keyRegistry.Register("BAD_KEY", errx.TypeInternal, http.StatusInternalServerError, "Composite key does not match the expected layout")
)

// ValidateID rejects identifiers that are empty or would corrupt a composite
// key.
func ValidateID(id string) error {
	if id == "" || strings.Contains(id, "#") {
		return keyRegistry.New(CodeBadIdentifier).WithDetail("id", id)
	}
	return nil
}

// UserPartition builds the partition key owning a user's profile, settings
// and identity links. With an empty tenant (single-tenant deployments) the
// partition is USER#<user>; otherwise TENANT#<tenant>#USER#<user>.
func UserPartition(tenantID kernel.TenantID, userID kernel.UserID) (string, error) {
	if err := ValidateID(userID.String()); err != nil {
		return "", err
	}
	if tenantID.IsEmpty() {
		return prefixUser + userID.String(), nil
	}
	if err := ValidateID(tenantID.String()); err != nil {
		return "", err
	}
	return prefixTenant + tenantID.String() + "#" + prefixUser + userID.String(), nil
}

// ParseUserPartition recovers tenant and user ids from a partition key built
// by UserPartition. Tenant is empty for single-tenant keys.
func ParseUserPartition(pk string) (kernel.TenantID, kernel.UserID, error) {
	if rest, ok := strings.CutPrefix(pk, prefixUser); ok {
		if rest == "" || strings.Contains(rest, "#") {
			return "", "", keyRegistry.New(CodeBadKey).WithDetail("pk", pk)
		}
		return "", kernel.UserID(rest), nil
	}

	rest, ok := strings.CutPrefix(pk, prefixTenant)
	if !ok {
		return "", "", keyRegistry.New(CodeBadKey).WithDetail("pk", pk)
	}
	tenant, user, ok := strings.Cut(rest, "#"+prefixUser)
	if !ok || tenant == "" || user == "" ||
		strings.Contains(tenant, "#") || strings.Contains(user, "#") {
		return "", "", keyRegistry.New(CodeBadKey).WithDetail("pk", pk)
	}
	return kernel.TenantID(tenant), kernel.UserID(user), nil
}

// UserKey builds the USER#<user> value used by membership partitions and
// index sort keys.
func UserKey(userID kernel.UserID) string {
	return prefixUser + userID.String()
}

// ParseUserKey recovers a user id from a USER#<user> value.
func ParseUserKey(key string) (kernel.UserID, error) {
	rest, ok := strings.CutPrefix(key, prefixUser)
	if !ok || rest == "" || strings.Contains(rest, "#") {
		return "", keyRegistry.New(CodeBadKey).WithDetail("key", key)
	}
	return kernel.UserID(rest), nil
}

// TenantKey builds the TENANT#<tenant> value used by membership sort keys
// and the tenant roster index.
func TenantKey(tenantID kernel.TenantID) string {
	return prefixTenant + tenantID.String()
}

// ParseTenantKey recovers a tenant id from a TENANT#<tenant> value.
func ParseTenantKey(key string) (kernel.TenantID, error) {
	rest, ok := strings.CutPrefix(key, prefixTenant)
	if !ok || rest == "" || strings.Contains(rest, "#") {
		return "", keyRegistry.New(CodeBadKey).WithDetail("key", key)
	}
	return kernel.TenantID(rest), nil
}

// SubjectKey builds the IDENT#<subject> index partition key.
func SubjectKey(providerSubject string) string {
	return prefixIdent + providerSubject
}

// EmailKey builds the EMAIL#<email> index partition key. Emails are
// case-folded so lookup is insensitive to the provider's casing.
func EmailKey(email string) string {
	return prefixEmail + strings.ToLower(email)
}

// LinkSortKey builds the IDENTITY#<PROVIDER> sort key for an identity link.
func LinkSortKey(provider string) string {
	return prefixLinkSK + strings.ToUpper(provider)
}
