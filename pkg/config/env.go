package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/userplane/userplane/pkg/logx"
)

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logx.Warnf("Invalid boolean for %s: %q, using %v", key, value, fallback)
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		logx.Warnf("Invalid duration for %s: %q, using %v", key, value, fallback)
		return fallback
	}
	return parsed
}

// getEnvStringSlice parses a JSON array, e.g. ALLOWED_DOMAINS='["co.example"]'.
func getEnvStringSlice(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var parsed []string
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		logx.Warnf("Invalid JSON array for %s: %q, using fallback", key, value)
		return fallback
	}
	return parsed
}

// getEnvStringMap parses a JSON object, e.g. DOMAIN_TENANT_MAP='{"co.example":"tenant-co"}'.
func getEnvStringMap(key string) map[string]string {
	value := os.Getenv(key)
	if value == "" {
		return map[string]string{}
	}
	var parsed map[string]string
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		logx.Warnf("Invalid JSON object for %s: %q, using empty map", key, value)
		return map[string]string{}
	}
	return parsed
}
