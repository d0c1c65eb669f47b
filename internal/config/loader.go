package config

import (
	"context"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/turtacn/apiguard/pkg/errors"
	"github.com/turtacn/apiguard/pkg/logger"
)

// LoadConfig loads the configuration from file and environment variables.
// Precedence: environment > config file > defaults.
func LoadConfig(log logger.Logger) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Load from config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/apiguard/")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	// Load from environment variables
	v.SetEnvPrefix("APIGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeInvalidConfig, "failed to unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Policy is immutable at runtime; a file change only takes effect on restart,
	// so log it loudly instead of reloading.
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Warn(context.Background(), "Config file changed on disk; restart to apply",
			logger.String("file", e.Name),
			logger.String("op", e.Op.String()),
		)
	})
	v.WatchConfig()

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15)
	v.SetDefault("server.write_timeout", 15)
	v.SetDefault("server.global_rps", 0)
	v.SetDefault("server.global_burst", 0)

	sec := DefaultSecurityConfig()
	v.SetDefault("security.enable_rate_limiting", sec.EnableRateLimiting)
	v.SetDefault("security.enable_ddos_protection", sec.EnableDDoSProtection)
	v.SetDefault("security.enable_abuse_detection", sec.EnableAbuseDetection)
	v.SetDefault("security.enable_request_validation", sec.EnableRequestValidation)
	v.SetDefault("security.max_request_size", sec.MaxRequestSize)
	v.SetDefault("security.allowed_origins", sec.AllowedOrigins)
	v.SetDefault("security.blocked_user_agents", sec.BlockedUserAgents)
	v.SetDefault("security.sensitive_endpoints", sec.SensitiveEndpoints)

	rl := DefaultRateLimitConfig()
	for name, q := range rl.Categories {
		v.SetDefault("rate_limit.categories."+name+".window", q.Window)
		v.SetDefault("rate_limit.categories."+name+".max_requests", q.MaxRequests)
	}
	for name, q := range rl.Tiers {
		v.SetDefault("rate_limit.tiers."+name+".window", q.Window)
		v.SetDefault("rate_limit.tiers."+name+".max_requests", q.MaxRequests)
	}

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.topic", "apiguard.security.alerts")
	v.SetDefault("alerting.write_timeout", "10s")
	v.SetDefault("alerting.batch_timeout", "1s")
	v.SetDefault("alerting.batch_size", 100)
	v.SetDefault("alerting.required_acks", 1)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "apiguard")
	v.SetDefault("tracing.environment", "dev")
	v.SetDefault("tracing.sampling_rate", 0.1)
}
