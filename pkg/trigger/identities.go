package trigger

import (
	"encoding/json"

	"github.com/userplane/userplane/pkg/identity"
	"github.com/userplane/userplane/pkg/idp"
	"github.com/userplane/userplane/pkg/logx"
)

// providerIdentity is one element of the identities attribute Cognito sets on
// federated users. dateCreated arrives as an epoch-millisecond number on some
// pool configurations and as a string on others.
type providerIdentity struct {
	UserID       string          `json:"userId"`
	ProviderName string          `json:"providerName"`
	ProviderType string          `json:"providerType"`
	Issuer       string          `json:"issuer"`
	Primary      bool            `json:"primary"`
	DateCreated  json.RawMessage `json:"dateCreated"`
}

func (p providerIdentity) dateCreated() string {
	if len(p.DateCreated) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(p.DateCreated, &asString); err == nil {
		return asString
	}
	var asNumber json.Number
	if err := json.Unmarshal(p.DateCreated, &asNumber); err == nil {
		return asNumber.String()
	}
	return ""
}

// assertionFromAttributes builds the linkable assertion for a confirmation
// event. The provider subject is always the pool's own sub; a federated
// identity contributes the provider name and the backfill details.
func assertionFromAttributes(username string, attrs map[string]string) identity.Assertion {
	a := identity.Assertion{
		ProviderSubject: attrs[idp.AttrSub],
		Email:           attrs[idp.AttrEmail],
		Username:        username,
	}

	raw := attrs[idp.AttrIdentities]
	if raw == "" {
		return a
	}

	var identities []providerIdentity
	if err := json.Unmarshal([]byte(raw), &identities); err != nil {
		logx.WithError(err).WithField("username", username).
			Warn("identities attribute is not valid JSON, treating login as native")
		return a
	}
	if len(identities) == 0 {
		return a
	}

	primary := identities[0]
	for _, id := range identities {
		if id.Primary {
			primary = id
			break
		}
	}

	a.ProviderName = primary.ProviderName
	a.Federated = &identity.FederatedDetails{
		UserID:      primary.UserID,
		Issuer:      primary.Issuer,
		DateCreated: primary.dateCreated(),
	}
	return a
}
