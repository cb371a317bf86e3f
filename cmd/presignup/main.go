// Lambda entrypoint for the pre-sign-up trigger: rejects registrations from
// outside the allowed email domains.
package main

import (
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/userplane/userplane/pkg/config"
	"github.com/userplane/userplane/pkg/trigger"
)

func main() {
	cfg := config.Load()
	handler := trigger.NewPreSignup(cfg.TenantPolicy())
	lambda.Start(handler.Handle)
}
