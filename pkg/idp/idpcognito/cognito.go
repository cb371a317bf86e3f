package idpcognito

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"

	"github.com/userplane/userplane/pkg/errx"
)

var cognitoErrors = errx.NewRegistry("IDP_COGNITO")

var (
	// ErrUpdateFailed means the attribute write-back did not stick; the next
	// token issuance will have to take the slow path.
	ErrUpdateFailed = cognitoErrors.Register("UPDATE_FAILED", errx.TypeExternal, 502, "Cognito attribute update failed")
)

// Writer pushes canonical identifiers back onto Cognito users as custom
// attributes.
type Writer struct {
	client *cognitoidentityprovider.Client
}

// NewWriter creates a Cognito-backed attribute writer.
func NewWriter(client *cognitoidentityprovider.Client) *Writer {
	return &Writer{client: client}
}

// SetIdentityAttributes updates the given user's attributes in the user pool.
// Writing the same value twice is a no-op on the Cognito side, so retried
// confirmations are safe.
func (w *Writer) SetIdentityAttributes(ctx context.Context, username, userPoolID string, attrs map[string]string) error {
	if len(attrs) == 0 {
		return nil
	}

	userAttrs := make([]types.AttributeType, 0, len(attrs))
	for name, value := range attrs {
		userAttrs = append(userAttrs, types.AttributeType{
			Name:  aws.String(name),
			Value: aws.String(value),
		})
	}

	input := &cognitoidentityprovider.AdminUpdateUserAttributesInput{
		UserPoolId:     aws.String(userPoolID),
		Username:       aws.String(username),
		UserAttributes: userAttrs,
	}

	if _, err := w.client.AdminUpdateUserAttributes(ctx, input); err != nil {
		return cognitoErrors.NewWithCause(ErrUpdateFailed, err).WithDetail("username", username)
	}
	return nil
}
