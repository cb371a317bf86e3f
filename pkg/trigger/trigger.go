// Package trigger adapts Cognito user-pool trigger events to the core. Each
// handler returns the (possibly augmented) event back to Cognito; returning
// an error fails the flow that fired the trigger, so only the handlers whose
// work is state-critical ever do.
package trigger

import (
	"github.com/userplane/userplane/pkg/idp"
	"github.com/userplane/userplane/pkg/tenant"
)

// Trigger sources this package reacts to. Everything else passes through.
const (
	SourceConfirmSignUp = "PostConfirmation_ConfirmSignUp"
)

// Client metadata keys signups may carry.
const (
	MetadataInvitationCode = "invitationCode"
	MetadataTenantID       = "tenantId"
)

// tenantContext assembles the tenant determination inputs from the trigger
// payload.
func tenantContext(username, clientID string, attrs, metadata map[string]string) tenant.Context {
	return tenant.Context{
		AttributeTenant:  attrs[idp.AttrTenantID],
		InvitationCode:   metadata[MetadataInvitationCode],
		InvitationTenant: metadata[MetadataTenantID],
		ClientID:         clientID,
		Email:            attrs[idp.AttrEmail],
		Username:         username,
	}
}
