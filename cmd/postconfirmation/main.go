// Lambda entrypoint for the post-confirmation trigger: links the confirmed
// identity to its canonical account and writes the ids back onto the user.
package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ses"

	"github.com/userplane/userplane/pkg/config"
	"github.com/userplane/userplane/pkg/identity"
	"github.com/userplane/userplane/pkg/idp/idpcognito"
	"github.com/userplane/userplane/pkg/linker"
	"github.com/userplane/userplane/pkg/logx"
	"github.com/userplane/userplane/pkg/notify"
	"github.com/userplane/userplane/pkg/notify/notifyses"
	"github.com/userplane/userplane/pkg/store/storedynamo"
	"github.com/userplane/userplane/pkg/tenant"
	"github.com/userplane/userplane/pkg/trigger"
)

func main() {
	cfg := config.Load()

	var awsOpts []func(*awsconfig.LoadOptions) error
	if cfg.AWSRegion != "" {
		awsOpts = append(awsOpts, awsconfig.WithRegion(cfg.AWSRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsOpts...)
	if err != nil {
		logx.Fatalf("Unable to load AWS SDK config: %v", err)
	}

	records := storedynamo.New(dynamodb.NewFromConfig(awsCfg), cfg.TableName)
	link := linker.New(
		records,
		identity.NewResolver(records),
		tenant.NewResolver(cfg.TenantPolicy()),
	)
	writer := idpcognito.NewWriter(cognitoidentityprovider.NewFromConfig(awsCfg))

	var opts []trigger.PostConfirmationOption
	if cfg.Notify.FromAddress != "" {
		sender := notifyses.NewSESProvider(ses.NewFromConfig(awsCfg), cfg.Notify.FromAddress)
		opts = append(opts, trigger.WithNotifier(notify.NewClient(sender)))
	}

	handler := trigger.NewPostConfirmation(link, writer, opts...)
	lambda.Start(handler.Handle)
}
