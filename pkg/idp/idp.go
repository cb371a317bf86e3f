// Package idp is the port to the external authentication provider: the
// attributes it stores on identities and the write-back capability used after
// a successful link so the next token issuance takes the fast path.
package idp

import "context"

// Attribute names on the provider's identity records.
const (
	AttrSub        = "sub"
	AttrEmail      = "email"
	AttrIdentities = "identities"
	AttrUserID     = "custom:user_id"
	AttrTenantID   = "custom:tenant_id"
)

// AttributeWriter sets attributes on an external identity. Implementations
// must be idempotent (setting an attribute to a fixed value naturally is) and
// must propagate failures loudly.
type AttributeWriter interface {
	SetIdentityAttributes(ctx context.Context, username, userPoolID string, attrs map[string]string) error
}
