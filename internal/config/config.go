// Package config loads the ambient server configuration (ports, secrets,
// store DSNs, the config directory the pricing/routing/tier/rate-limit
// tables live under) from environment variables with viper, grounded on
// the teacher's internal/config/config.go Load()/env-override idiom —
// trimmed of the teacher's OPA policy, vector-db, and workflow-synthesis
// sections, none of which this spec calls for. Each domain table
// (pricing, routing, tier, rate-limit caps) owns its own YAML loading
// (internal/pricing and internal/routing also own a Reload; the
// internal/ratelimit cap table is loaded once); this package only
// resolves where those files live and the handful of process-wide knobs
// that aren't table-shaped.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig is the top-level process configuration.
type ServerConfig struct {
	HTTPPort        int
	HealthPort      int
	MetricsPort     int
	ConfigDir       string
	JWTSecret       string
	SkipAuth        bool
	DatabaseDSN     string
	RedisAddr       string
	CrossAppSecret  string
	GlobalPreference string
	EntitlementTTL  time.Duration
}

// Load resolves ServerConfig from environment variables, applying the
// same defaults a local/dev run needs (skip_auth=false, in-memory store
// when no DSN is set) and a viper-bound env overlay so GOVERNOR_* vars
// always win, matching the teacher's ParseBool-style override convention.
func Load() ServerConfig {
	v := viper.New()
	v.SetEnvPrefix("governor")
	v.AutomaticEnv()
	v.SetDefault("http_port", 8080)
	v.SetDefault("health_port", 8081)
	v.SetDefault("metrics_port", 2112)
	v.SetDefault("config_dir", "./config")
	v.SetDefault("jwt_secret", "change-this-to-a-secure-32-char-minimum-secret")
	v.SetDefault("skip_auth", false)
	v.SetDefault("database_dsn", "")
	v.SetDefault("redis_addr", "")
	v.SetDefault("cross_app_secret", "change-this-cross-app-secret-too")
	v.SetDefault("global_preference", "quality")
	v.SetDefault("entitlement_ttl_seconds", 300)

	return ServerConfig{
		HTTPPort:         v.GetInt("http_port"),
		HealthPort:       v.GetInt("health_port"),
		MetricsPort:      v.GetInt("metrics_port"),
		ConfigDir:        v.GetString("config_dir"),
		JWTSecret:        v.GetString("jwt_secret"),
		SkipAuth:         v.GetBool("skip_auth"),
		DatabaseDSN:      v.GetString("database_dsn"),
		RedisAddr:        v.GetString("redis_addr"),
		CrossAppSecret:   v.GetString("cross_app_secret"),
		GlobalPreference: v.GetString("global_preference"),
		EntitlementTTL:   time.Duration(v.GetInt("entitlement_ttl_seconds")) * time.Second,
	}
}

// ParseBool mirrors the teacher's lenient env-flag parsing ("1"/"true",
// case-insensitively, plus "on"/"yes") for reading a raw env var directly
// instead of going through viper. No call site in this module uses it;
// only its own test calls it.
func ParseBool(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return strings.EqualFold(s, "on") || strings.EqualFold(s, "yes")
}

// EnvOrDefault returns os.Getenv(key) if set, else defaultValue. Kept for
// the handful of pre-config-load bootstrap reads (e.g. which port to bind
// the admin HTTP mux before ServerConfig is available).
func EnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func EnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
