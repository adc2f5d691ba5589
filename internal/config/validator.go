package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "pool.max_instances")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validatePool()...)
	errors = append(errors, c.validateSession()...)
	errors = append(errors, c.validateHealth()...)
	errors = append(errors, c.validateBalancer()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validatePool validates the PoolConfig
func (c *Config) validatePool() []ValidationError {
	var errors []ValidationError

	if c.Pool.MinInstances < 1 {
		errors = append(errors, ValidationError{
			Field:   "pool.min_instances",
			Value:   c.Pool.MinInstances,
			Message: "must be at least 1",
		})
	}

	if c.Pool.MaxInstances < c.Pool.MinInstances {
		errors = append(errors, ValidationError{
			Field:   "pool.max_instances",
			Value:   c.Pool.MaxInstances,
			Message: fmt.Sprintf("must be at least pool.min_instances (%d)", c.Pool.MinInstances),
		})
	}

	if c.Pool.InitialCount < c.Pool.MinInstances || c.Pool.InitialCount > c.Pool.MaxInstances {
		errors = append(errors, ValidationError{
			Field:   "pool.initial_count",
			Value:   c.Pool.InitialCount,
			Message: fmt.Sprintf("must be between pool.min_instances (%d) and pool.max_instances (%d)", c.Pool.MinInstances, c.Pool.MaxInstances),
		})
	}

	if c.Pool.ScaleUpThreshold <= 0 || c.Pool.ScaleUpThreshold > 1 {
		errors = append(errors, ValidationError{
			Field:   "pool.scale_up_threshold",
			Value:   c.Pool.ScaleUpThreshold,
			Message: "must be in (0.0, 1.0]",
		})
	}

	if c.Pool.ScaleDownThreshold < 0 || c.Pool.ScaleDownThreshold >= 1 {
		errors = append(errors, ValidationError{
			Field:   "pool.scale_down_threshold",
			Value:   c.Pool.ScaleDownThreshold,
			Message: "must be in [0.0, 1.0)",
		})
	}

	if c.Pool.ScaleDownThreshold >= c.Pool.ScaleUpThreshold {
		errors = append(errors, ValidationError{
			Field:   "pool.scale_down_threshold",
			Value:   c.Pool.ScaleDownThreshold,
			Message: fmt.Sprintf("must be below pool.scale_up_threshold (%v)", c.Pool.ScaleUpThreshold),
		})
	}

	if c.Pool.ScaleCooldownSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "pool.scale_cooldown_seconds",
			Value:   c.Pool.ScaleCooldownSeconds,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateSession validates the SessionConfig
func (c *Config) validateSession() []ValidationError {
	var errors []ValidationError

	if c.Session.MaxRequestsPerSession < 1 {
		errors = append(errors, ValidationError{
			Field:   "session.max_requests_per_session",
			Value:   c.Session.MaxRequestsPerSession,
			Message: "must be at least 1",
		})
	}

	if c.Session.LifetimeSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "session.lifetime_seconds",
			Value:   c.Session.LifetimeSeconds,
			Message: "must be at least 1",
		})
	}

	return errors
}

// validateHealth validates the HealthConfig
func (c *Config) validateHealth() []ValidationError {
	var errors []ValidationError

	if c.Health.CheckIntervalSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "health.check_interval_seconds",
			Value:   c.Health.CheckIntervalSeconds,
			Message: "must be at least 1",
		})
	}

	if c.Health.InstanceTimeoutSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "health.instance_timeout_seconds",
			Value:   c.Health.InstanceTimeoutSeconds,
			Message: "must be at least 1",
		})
	}

	if c.Health.AlertThresholds.ResponseTimeSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "health.alert_thresholds.response_time_seconds",
			Value:   c.Health.AlertThresholds.ResponseTimeSeconds,
			Message: "must be positive",
		})
	}

	if c.Health.AlertThresholds.ErrorRate < 0 || c.Health.AlertThresholds.ErrorRate > 1 {
		errors = append(errors, ValidationError{
			Field:   "health.alert_thresholds.error_rate",
			Value:   c.Health.AlertThresholds.ErrorRate,
			Message: "must be in [0.0, 1.0]",
		})
	}

	if c.Health.AlertThresholds.InstanceFailureRate < 0 || c.Health.AlertThresholds.InstanceFailureRate > 1 {
		errors = append(errors, ValidationError{
			Field:   "health.alert_thresholds.instance_failure_rate",
			Value:   c.Health.AlertThresholds.InstanceFailureRate,
			Message: "must be in [0.0, 1.0]",
		})
	}

	return errors
}

// validateBalancer validates the BalancerConfig
func (c *Config) validateBalancer() []ValidationError {
	var errors []ValidationError

	if c.Balancer.Strategy != "" && !IsValidStrategy(c.Balancer.Strategy) {
		errors = append(errors, ValidationError{
			Field:   "balancer.strategy",
			Value:   c.Balancer.Strategy,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidStrategies(), ", ")),
		})
	}

	if c.Balancer.MaxRetries < 0 {
		errors = append(errors, ValidationError{
			Field:   "balancer.max_retries",
			Value:   c.Balancer.MaxRetries,
			Message: "must be non-negative",
		})
	}

	if c.Balancer.RetryDelayMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "balancer.retry_delay_ms",
			Value:   c.Balancer.RetryDelayMs,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" {
		valid := false
		for _, level := range ValidLogLevels() {
			if strings.EqualFold(c.Logging.Level, level) {
				valid = true
				break
			}
		}
		if !valid {
			errors = append(errors, ValidationError{
				Field:   "logging.level",
				Value:   c.Logging.Level,
				Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
			})
		}
	}

	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be non-negative",
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
