package trigger

import (
	"context"

	"github.com/aws/aws-lambda-go/events"

	"github.com/userplane/userplane/pkg/claims"
	"github.com/userplane/userplane/pkg/idp"
)

// PreTokenGen adds the account claims to issued tokens. It never returns an
// error: a failed enrichment degrades the token, never the login.
type PreTokenGen struct {
	enricher *claims.Enricher
}

// NewPreTokenGen creates the handler.
func NewPreTokenGen(e *claims.Enricher) *PreTokenGen {
	return &PreTokenGen{enricher: e}
}

// Handle processes one token-generation event.
func (h *PreTokenGen) Handle(ctx context.Context, event events.CognitoEventUserPoolsPreTokenGen) (events.CognitoEventUserPoolsPreTokenGen, error) {
	attrs := event.Request.UserAttributes

	built := h.enricher.BuildClaims(ctx, claims.Input{
		Subject:       attrs[idp.AttrSub],
		Username:      event.UserName,
		TriggerSource: event.TriggerSource,
		Attributes:    attrs,
	})

	event.Response.ClaimsOverrideDetails = events.ClaimsOverrideDetails{
		ClaimsToAddOrOverride: built,
	}
	return event, nil
}
