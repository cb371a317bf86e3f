package identity

import (
	"net/http"
	"strings"

	"github.com/userplane/userplane/pkg/errx"
)

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("IDENTITY")

var (
	CodeMissingIdentity = ErrRegistry.Register("MISSING_IDENTITY", errx.TypeValidation, http.StatusBadRequest, "Assertion carries no provider subject")
	CodeIDGeneration    = ErrRegistry.Register("ID_GENERATION", errx.TypeInternal, http.StatusInternalServerError, "Canonical id generation failed")
)

// ErrMissingIdentity builds the fatal no-linkable-identity error.
func ErrMissingIdentity() *errx.Error {
	return ErrRegistry.New(CodeMissingIdentity)
}

// DefaultProvider is used when the assertion names no federated provider.
const DefaultProvider = "COGNITO"

// Assertion is one external authentication event to resolve: a provider's
// stable subject plus whatever else the provider disclosed.
type Assertion struct {
	ProviderName    string
	ProviderSubject string
	Email           string
	Username        string

	// Federated is present only for federated logins.
	Federated *FederatedDetails
}

// Validate checks the assertion is linkable. A missing provider subject is
// always fatal; everything else is optional.
func (a Assertion) Validate() error {
	if strings.TrimSpace(a.ProviderSubject) == "" {
		return ErrMissingIdentity().WithDetail("username", a.Username)
	}
	return nil
}

// Provider returns the normalized provider name.
func (a Assertion) Provider() string {
	if a.ProviderName == "" {
		return DefaultProvider
	}
	return strings.ToUpper(a.ProviderName)
}
