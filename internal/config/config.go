package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete session pool configuration
type Config struct {
	Pool     PoolConfig     `mapstructure:"pool"`
	Session  SessionConfig  `mapstructure:"session"`
	Health   HealthConfig   `mapstructure:"health"`
	Balancer BalancerConfig `mapstructure:"balancer"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// PoolConfig controls pool sizing and autoscaling
type PoolConfig struct {
	// MinInstances is the floor the pool never shrinks below (default: 1)
	MinInstances int `mapstructure:"min_instances"`
	// MaxInstances is the ceiling the pool never grows above (default: 5)
	MaxInstances int `mapstructure:"max_instances"`
	// InitialCount is how many instances to create at bootstrap (default: 1)
	InitialCount int `mapstructure:"initial_count"`
	// AutoScale enables load-factor driven scaling decisions (default: true)
	AutoScale bool `mapstructure:"auto_scale"`
	// ScaleUpThreshold is the load factor above which the pool grows (default: 0.8)
	ScaleUpThreshold float64 `mapstructure:"scale_up_threshold"`
	// ScaleDownThreshold is the load factor below which the pool shrinks (default: 0.3)
	ScaleDownThreshold float64 `mapstructure:"scale_down_threshold"`
	// ScaleCooldownSeconds is the minimum time between scaling actions (default: 60)
	ScaleCooldownSeconds int `mapstructure:"scale_cooldown_seconds"`
}

// SessionConfig controls per-instance session expiry
type SessionConfig struct {
	// MaxRequestsPerSession retires a session after this many requests (default: 100)
	MaxRequestsPerSession int `mapstructure:"max_requests_per_session"`
	// LifetimeSeconds retires a session after this age (default: 3600)
	LifetimeSeconds int `mapstructure:"lifetime_seconds"`
}

// HealthConfig controls the health monitor
type HealthConfig struct {
	// CheckIntervalSeconds is how often all instances are probed (default: 10)
	CheckIntervalSeconds int `mapstructure:"check_interval_seconds"`
	// InstanceTimeoutSeconds bounds a single probe; a probe that has not
	// resolved by then is counted as failed (default: 30)
	InstanceTimeoutSeconds int `mapstructure:"instance_timeout_seconds"`
	// AlertThresholds are the levels at which aggregate alerts fire
	AlertThresholds AlertThresholds `mapstructure:"alert_thresholds"`
}

// AlertThresholds are the levels at which the health monitor raises alerts
type AlertThresholds struct {
	// ResponseTimeSeconds flags an instance whose recent average probe time
	// exceeds this (default: 10)
	ResponseTimeSeconds float64 `mapstructure:"response_time_seconds"`
	// ErrorRate flags the pool when the request error rate exceeds this (default: 0.1)
	ErrorRate float64 `mapstructure:"error_rate"`
	// InstanceFailureRate flags the pool when the health check failure rate
	// exceeds this (default: 0.2)
	InstanceFailureRate float64 `mapstructure:"instance_failure_rate"`
}

// BalancerConfig controls request routing
type BalancerConfig struct {
	// Strategy is the instance selection strategy (default: "least_busy")
	// Options: "round_robin", "least_busy", "response_time", "random", "weighted_round_robin"
	Strategy string `mapstructure:"strategy"`
	// MaxRetries is how many times routing is retried after the first
	// attempt fails, so a request sees max_retries + 1 attempts (default: 3)
	MaxRetries int `mapstructure:"max_retries"`
	// RetryDelayMs is the base backoff between attempts; attempt N waits
	// N times this long (default: 1000)
	RetryDelayMs int `mapstructure:"retry_delay_ms"`
}

// LoggingConfig controls structured logging behavior
type LoggingConfig struct {
	// Enabled controls whether logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// File is the log file path; empty logs to stderr (default: "")
	File string `mapstructure:"file"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
}

// ScaleCooldown returns the scaling cooldown as a time.Duration
func (p *PoolConfig) ScaleCooldown() time.Duration {
	return time.Duration(p.ScaleCooldownSeconds) * time.Second
}

// Lifetime returns the session lifetime as a time.Duration
func (s *SessionConfig) Lifetime() time.Duration {
	return time.Duration(s.LifetimeSeconds) * time.Second
}

// CheckInterval returns the probe interval as a time.Duration
func (h *HealthConfig) CheckInterval() time.Duration {
	return time.Duration(h.CheckIntervalSeconds) * time.Second
}

// InstanceTimeout returns the per-probe timeout as a time.Duration
func (h *HealthConfig) InstanceTimeout() time.Duration {
	return time.Duration(h.InstanceTimeoutSeconds) * time.Second
}

// ResponseTime returns the response time alert threshold as a time.Duration
func (a *AlertThresholds) ResponseTime() time.Duration {
	return time.Duration(a.ResponseTimeSeconds * float64(time.Second))
}

// RetryDelay returns the base retry backoff as a time.Duration
func (b *BalancerConfig) RetryDelay() time.Duration {
	return time.Duration(b.RetryDelayMs) * time.Millisecond
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Pool: PoolConfig{
			MinInstances:         1,
			MaxInstances:         5,
			InitialCount:         1,
			AutoScale:            true,
			ScaleUpThreshold:     0.8,
			ScaleDownThreshold:   0.3,
			ScaleCooldownSeconds: 60,
		},
		Session: SessionConfig{
			MaxRequestsPerSession: 100,
			LifetimeSeconds:       3600, // One hour
		},
		Health: HealthConfig{
			CheckIntervalSeconds:   10,
			InstanceTimeoutSeconds: 30,
			AlertThresholds: AlertThresholds{
				ResponseTimeSeconds: 10,
				ErrorRate:           0.1,
				InstanceFailureRate: 0.2,
			},
		},
		Balancer: BalancerConfig{
			Strategy:     "least_busy",
			MaxRetries:   3,
			RetryDelayMs: 1000,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			File:       "", // Empty means stderr
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Pool defaults
	viper.SetDefault("pool.min_instances", defaults.Pool.MinInstances)
	viper.SetDefault("pool.max_instances", defaults.Pool.MaxInstances)
	viper.SetDefault("pool.initial_count", defaults.Pool.InitialCount)
	viper.SetDefault("pool.auto_scale", defaults.Pool.AutoScale)
	viper.SetDefault("pool.scale_up_threshold", defaults.Pool.ScaleUpThreshold)
	viper.SetDefault("pool.scale_down_threshold", defaults.Pool.ScaleDownThreshold)
	viper.SetDefault("pool.scale_cooldown_seconds", defaults.Pool.ScaleCooldownSeconds)

	// Session defaults
	viper.SetDefault("session.max_requests_per_session", defaults.Session.MaxRequestsPerSession)
	viper.SetDefault("session.lifetime_seconds", defaults.Session.LifetimeSeconds)

	// Health defaults
	viper.SetDefault("health.check_interval_seconds", defaults.Health.CheckIntervalSeconds)
	viper.SetDefault("health.instance_timeout_seconds", defaults.Health.InstanceTimeoutSeconds)
	viper.SetDefault("health.alert_thresholds.response_time_seconds", defaults.Health.AlertThresholds.ResponseTimeSeconds)
	viper.SetDefault("health.alert_thresholds.error_rate", defaults.Health.AlertThresholds.ErrorRate)
	viper.SetDefault("health.alert_thresholds.instance_failure_rate", defaults.Health.AlertThresholds.InstanceFailureRate)

	// Balancer defaults
	viper.SetDefault("balancer.strategy", defaults.Balancer.Strategy)
	viper.SetDefault("balancer.max_retries", defaults.Balancer.MaxRetries)
	viper.SetDefault("balancer.retry_delay_ms", defaults.Balancer.RetryDelayMs)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.file", defaults.Logging.File)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "sessionpool")
	}
	// Fall back to ~/.config/sessionpool
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sessionpool"
	}
	return filepath.Join(home, ".config", "sessionpool")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ValidStrategies returns the list of valid load balancing strategy names
func ValidStrategies() []string {
	return []string{"round_robin", "least_busy", "response_time", "random", "weighted_round_robin"}
}

// IsValidStrategy checks if the given strategy name is valid
func IsValidStrategy(strategy string) bool {
	for _, valid := range ValidStrategies() {
		if strategy == valid {
			return true
		}
	}
	return false
}
