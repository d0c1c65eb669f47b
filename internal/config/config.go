// Package config holds the configuration model for the apiguard service.
package config

import (
	"time"

	"github.com/turtacn/apiguard/pkg/constants"
	"github.com/turtacn/apiguard/pkg/errors"
)

// Config holds the application's configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Security  SecurityConfig  `mapstructure:"security"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // in seconds

	// GlobalRPS is a coarse inbound throttle applied before admission control.
	// Zero disables it.
	GlobalRPS   float64 `mapstructure:"global_rps"`
	GlobalBurst int     `mapstructure:"global_burst"`
}

// SecurityConfig is the process-wide protection policy. It is supplied once at
// construction and never mutated at runtime; changing policy means constructing
// a new protection service.
type SecurityConfig struct {
	EnableRateLimiting      bool     `mapstructure:"enable_rate_limiting"`
	EnableDDoSProtection    bool     `mapstructure:"enable_ddos_protection"`
	EnableAbuseDetection    bool     `mapstructure:"enable_abuse_detection"`
	EnableRequestValidation bool     `mapstructure:"enable_request_validation"`
	MaxRequestSize          int64    `mapstructure:"max_request_size"` // in bytes
	AllowedOrigins          []string `mapstructure:"allowed_origins"`
	BlockedUserAgents       []string `mapstructure:"blocked_user_agents"` // substring match, case-insensitive
	SensitiveEndpoints      []string `mapstructure:"sensitive_endpoints"` // substring match
}

// QuotaConfig is one sliding-window quota: at most MaxRequests per Window.
type QuotaConfig struct {
	Window      time.Duration `mapstructure:"window"`
	MaxRequests int           `mapstructure:"max_requests"`
}

// RateLimitConfig holds the per-endpoint-category and per-subscription-tier quotas.
type RateLimitConfig struct {
	Categories map[string]QuotaConfig `mapstructure:"categories"`
	Tiers      map[string]QuotaConfig `mapstructure:"tiers"`
}

// AlertingConfig configures the Kafka alert publisher for alert-action violations.
type AlertingConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	BatchSize    int           `mapstructure:"batch_size"`
	RequiredAcks int           `mapstructure:"required_acks"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	Environment    string  `mapstructure:"environment"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
}

// DefaultSecurityConfig returns the protection policy used when none is configured:
// all detectors on, generic bot substrings blocked, and auth/payment/admin paths
// treated as sensitive.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		EnableRateLimiting:      true,
		EnableDDoSProtection:    true,
		EnableAbuseDetection:    true,
		EnableRequestValidation: true,
		MaxRequestSize:          10 << 20, // 10 MiB
		AllowedOrigins:          []string{"*"},
		BlockedUserAgents:       []string{"bot", "crawler", "spider", "scraper"},
		SensitiveEndpoints:      []string{"/auth", "/login", "/payment", "/admin", "/password"},
	}
}

// DefaultRateLimitConfig returns the default category and tier quotas.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Categories: map[string]QuotaConfig{
			string(constants.CategoryAuth):          {Window: 15 * time.Minute, MaxRequests: 10},
			string(constants.CategoryPayment):       {Window: time.Hour, MaxRequests: 20},
			string(constants.CategoryUpload):        {Window: time.Hour, MaxRequests: 50},
			string(constants.CategorySearch):        {Window: time.Minute, MaxRequests: 60},
			string(constants.CategoryPasswordReset): {Window: time.Hour, MaxRequests: 5},
			string(constants.CategoryAPI):           {Window: 15 * time.Minute, MaxRequests: 1000},
		},
		Tiers: map[string]QuotaConfig{
			constants.TierFree:       {Window: 15 * time.Minute, MaxRequests: 100},
			constants.TierPremium:    {Window: 15 * time.Minute, MaxRequests: 1000},
			constants.TierEnterprise: {Window: 15 * time.Minute, MaxRequests: 10000},
		},
	}
}

// Validate checks for essential configuration values.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.ErrInvalidConfig("server.port out of range")
	}
	if c.Alerting.Enabled && len(c.Alerting.Brokers) == 0 {
		return errors.ErrInvalidConfig("alerting.enabled requires alerting.brokers")
	}
	for name, q := range c.RateLimit.Categories {
		if q.Window <= 0 || q.MaxRequests <= 0 {
			return errors.ErrInvalidConfig("rate_limit.categories." + name + " must have positive window and max_requests")
		}
	}
	for name, q := range c.RateLimit.Tiers {
		if q.Window <= 0 || q.MaxRequests <= 0 {
			return errors.ErrInvalidConfig("rate_limit.tiers." + name + " must have positive window and max_requests")
		}
	}
	return nil
}
