// Lambda entrypoint for the pre-token-generation trigger: enriches issued
// tokens with the canonical account claims.
package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/redis/go-redis/v9"

	"github.com/userplane/userplane/pkg/claims"
	"github.com/userplane/userplane/pkg/config"
	"github.com/userplane/userplane/pkg/logx"
	"github.com/userplane/userplane/pkg/store/storedynamo"
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

	var opts []claims.Option
	if cfg.Claims.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Claims.RedisAddr,
			Password: cfg.Claims.RedisPassword,
		})
		opts = append(opts, claims.WithCache(claims.NewRedisCache(client, cfg.Claims.CacheTTL)))
	}

	enricher := claims.NewEnricher(records, cfg.TenantPolicy().MultiTenant(), opts...)
	handler := trigger.NewPreTokenGen(enricher)
	lambda.Start(handler.Handle)
}
