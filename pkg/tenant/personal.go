package tenant

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/userplane/userplane/pkg/kernel"
)

// PersonalPrefix distinguishes auto-created single-user tenants from
// organizational tenant ids. The account linker grants the creating user the
// admin role when it sees this prefix.
const PersonalPrefix = "personal-"

// personalDigestLen is the number of digest bytes kept in the id.
const personalDigestLen = 10

// PersonalTenantID derives the deterministic tenant id for a user's personal
// tenant from their email (or username when no email exists). The same seed
// always yields the same id, so redelivered confirmations converge.
func PersonalTenantID(seed string) kernel.TenantID {
	sum := sha3.Sum256([]byte(strings.ToLower(strings.TrimSpace(seed))))
	return kernel.TenantID(PersonalPrefix + hex.EncodeToString(sum[:personalDigestLen]))
}

// IsPersonal reports whether a tenant id names a personal tenant.
func IsPersonal(id kernel.TenantID) bool {
	return strings.HasPrefix(id.String(), PersonalPrefix)
}
