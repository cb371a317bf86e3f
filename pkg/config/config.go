// Package config loads the process configuration from the environment once
// at startup. The resulting Config is immutable and passed explicitly;
// nothing reads os.Getenv at request time.
package config

import (
	"time"

	"github.com/userplane/userplane/pkg/tenant"
)

// Config is the full configuration of one binary.
type Config struct {
	// TableName is the single table holding every record kind.
	TableName string

	// AWSRegion overrides the SDK's region resolution when set.
	AWSRegion string

	Tenancy TenancyConfig
	Claims  ClaimsConfig
	Notify  NotifyConfig
	Dev     DevConfig
}

// TenancyConfig drives the tenant strategy chain.
type TenancyConfig struct {
	Strategy       string
	AllowedDomains []string
	DomainTenants  map[string]string
	ClientTenants  map[string]string
	AllowPersonal  bool
	RequireTenant  bool
}

// ClaimsConfig configures token-time enrichment.
type ClaimsConfig struct {
	// RedisAddr enables the enrichment cache when non-empty.
	RedisAddr     string
	RedisPassword string
	CacheTTL      time.Duration
}

// NotifyConfig configures the transactional mailer. An empty FromAddress
// disables sending.
type NotifyConfig struct {
	FromAddress string
}

// DevConfig configures the local development server only.
type DevConfig struct {
	HTTPAddr    string
	DatabaseURL string
	JWTSecret   string
	UserPoolID  string
}

// Load reads the whole configuration from the environment.
func Load() Config {
	return Config{
		TableName: getEnv("USERS_TABLE_NAME", "users"),
		AWSRegion: getEnv("AWS_REGION", ""),
		Tenancy: TenancyConfig{
			Strategy:       getEnv("TENANT_STRATEGY", "domain"),
			AllowedDomains: getEnvStringSlice("ALLOWED_DOMAINS", nil),
			DomainTenants:  getEnvStringMap("DOMAIN_TENANT_MAP"),
			ClientTenants:  getEnvStringMap("CLIENT_TENANT_MAP"),
			AllowPersonal:  getEnvBool("PERSONAL_TENANTS", false),
			RequireTenant:  getEnvBool("TENANT_REQUIRED", false),
		},
		Claims: ClaimsConfig{
			RedisAddr:     getEnv("REDIS_ADDR", ""),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			CacheTTL:      getEnvDuration("CLAIMS_CACHE_TTL", 5*time.Minute),
		},
		Notify: NotifyConfig{
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),
		},
		Dev: DevConfig{
			HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
			DatabaseURL: getEnv("DATABASE_URL", ""),
			JWTSecret:   getEnv("DEV_JWT_SECRET", "dev-secret"),
			UserPoolID:  getEnv("USER_POOL_ID", "local"),
		},
	}
}

// TenantPolicy converts the tenancy section into the resolver policy.
func (c Config) TenantPolicy() tenant.Policy {
	return tenant.Policy{
		Strategy:       tenant.ParseStrategy(c.Tenancy.Strategy),
		AllowedDomains: c.Tenancy.AllowedDomains,
		DomainTenants:  c.Tenancy.DomainTenants,
		ClientTenants:  c.Tenancy.ClientTenants,
		AllowPersonal:  c.Tenancy.AllowPersonal,
		RequireTenant:  c.Tenancy.RequireTenant,
	}
}
