package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Iron-Ham/sessionpool/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify sessionpool configuration",
	Long: `View or modify sessionpool configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  sessionpool config set balancer.strategy least_busy
  sessionpool config set pool.max_instances 8
  sessionpool config set health.check_interval_seconds 5

Valid keys:
  pool.min_instances             - Floor of healthy instances
  pool.max_instances             - Ceiling of instances
  pool.initial_count             - Instances created at startup
  pool.auto_scale                - Enable load-based scaling (true/false)
  pool.scale_up_threshold        - Load factor that triggers growth
  pool.scale_down_threshold      - Load factor that triggers shrinking
  pool.scale_cooldown_seconds    - Minimum gap between scaling actions
  session.max_requests_per_session - Requests before session renewal
  session.lifetime_seconds       - Session age before renewal
  health.check_interval_seconds  - Seconds between health check cycles
  health.instance_timeout_seconds - Deadline for a single probe
  balancer.strategy              - Balancing strategy
  balancer.max_retries           - Extra routing attempts per request
  balancer.retry_delay_ms        - Base routing backoff in milliseconds
  logging.level                  - Log level (debug, info, warn, error)
  logging.file                   - Log file path (empty for stderr)`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/sessionpool/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	fmt.Println("Current configuration:")
	fmt.Println()

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Printf("Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Printf("Config file: (none - using defaults)\n")
	}
	fmt.Println()

	fmt.Println("pool:")
	fmt.Printf("  min_instances: %d\n", cfg.Pool.MinInstances)
	fmt.Printf("  max_instances: %d\n", cfg.Pool.MaxInstances)
	fmt.Printf("  initial_count: %d\n", cfg.Pool.InitialCount)
	fmt.Printf("  auto_scale: %v\n", cfg.Pool.AutoScale)
	fmt.Printf("  scale_up_threshold: %g\n", cfg.Pool.ScaleUpThreshold)
	fmt.Printf("  scale_down_threshold: %g\n", cfg.Pool.ScaleDownThreshold)
	fmt.Printf("  scale_cooldown_seconds: %d\n", cfg.Pool.ScaleCooldownSeconds)

	fmt.Println("session:")
	fmt.Printf("  max_requests_per_session: %d\n", cfg.Session.MaxRequestsPerSession)
	fmt.Printf("  lifetime_seconds: %d\n", cfg.Session.LifetimeSeconds)

	fmt.Println("health:")
	fmt.Printf("  check_interval_seconds: %d\n", cfg.Health.CheckIntervalSeconds)
	fmt.Printf("  instance_timeout_seconds: %d\n", cfg.Health.InstanceTimeoutSeconds)
	fmt.Println("  alert_thresholds:")
	fmt.Printf("    response_time_seconds: %g\n", cfg.Health.AlertThresholds.ResponseTimeSeconds)
	fmt.Printf("    error_rate: %g\n", cfg.Health.AlertThresholds.ErrorRate)
	fmt.Printf("    instance_failure_rate: %g\n", cfg.Health.AlertThresholds.InstanceFailureRate)

	fmt.Println("balancer:")
	fmt.Printf("  strategy: %s\n", cfg.Balancer.Strategy)
	fmt.Printf("  max_retries: %d\n", cfg.Balancer.MaxRetries)
	fmt.Printf("  retry_delay_ms: %d\n", cfg.Balancer.RetryDelayMs)

	fmt.Println("logging:")
	fmt.Printf("  enabled: %v\n", cfg.Logging.Enabled)
	fmt.Printf("  level: %s\n", cfg.Logging.Level)
	fmt.Printf("  file: %s\n", cfg.Logging.File)

	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	// Validate the key exists
	validKeys := map[string]string{
		"pool.min_instances":               "int",
		"pool.max_instances":               "int",
		"pool.initial_count":               "int",
		"pool.auto_scale":                  "bool",
		"pool.scale_up_threshold":          "float",
		"pool.scale_down_threshold":        "float",
		"pool.scale_cooldown_seconds":      "int",
		"session.max_requests_per_session": "int",
		"session.lifetime_seconds":         "int",

		"health.check_interval_seconds":                 "int",
		"health.instance_timeout_seconds":               "int",
		"health.alert_thresholds.response_time_seconds": "float",
		"health.alert_thresholds.error_rate":            "float",
		"health.alert_thresholds.instance_failure_rate": "float",

		"balancer.strategy":       "string",
		"balancer.max_retries":    "int",
		"balancer.retry_delay_ms": "int",

		"logging.enabled":     "bool",
		"logging.level":       "string",
		"logging.file":        "path",
		"logging.max_size_mb": "int",
		"logging.max_backups": "int",
	}

	keyType, ok := validKeys[key]
	if !ok {
		return fmt.Errorf("unknown configuration key: %s\nRun 'sessionpool config set --help' to see valid keys", key)
	}

	// Validate the value based on type
	var typedValue interface{}
	switch keyType {
	case "string":
		if key == "balancer.strategy" && !config.IsValidStrategy(value) {
			return fmt.Errorf("invalid value for %s: %s\nValid options: %s",
				key, value, strings.Join(config.ValidStrategies(), ", "))
		}
		if key == "logging.level" && !isValidLevel(value) {
			return fmt.Errorf("invalid value for %s: %s\nValid options: %s",
				key, value, strings.Join(config.ValidLogLevels(), ", "))
		}
		typedValue = value
	case "path":
		typedValue = value
	case "bool":
		if value != "true" && value != "false" {
			return fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		typedValue = value == "true"
	case "int":
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: expected integer", key)
		}
		if intVal < 0 {
			return fmt.Errorf("invalid value for %s: must be non-negative", key)
		}
		typedValue = intVal
	case "float":
		floatVal, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid value for %s: expected number", key)
		}
		typedValue = floatVal
	}

	// Ensure config directory exists
	configDir := config.ConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Set the value in viper
	viper.Set(key, typedValue)

	// Write to config file
	configFile := config.ConfigFile()
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Set %s = %v\n", key, typedValue)
	fmt.Printf("Config saved to %s\n", configFile)

	return nil
}

func isValidLevel(level string) bool {
	for _, l := range config.ValidLogLevels() {
		if strings.EqualFold(level, l) {
			return true
		}
	}
	return false
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'sessionpool config set' to modify values", configFile)
	}

	// Create config directory
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Generate a commented config file
	configContent := `# Sessionpool configuration

# Pool sizing and autoscaling
pool:
  # Floor of healthy instances; replacements are created below this
  min_instances: 1
  # Hard ceiling of instances
  max_instances: 5
  # Instances created at startup
  initial_count: 1
  # Grow and shrink the pool based on load factor
  auto_scale: true
  # Load factor above which the pool grows
  scale_up_threshold: 0.8
  # Load factor below which the pool shrinks
  scale_down_threshold: 0.3
  # Minimum seconds between scaling actions
  scale_cooldown_seconds: 60

# Session renewal policy
session:
  # Requests a session serves before renewal
  max_requests_per_session: 100
  # Session age in seconds before renewal
  lifetime_seconds: 3600

# Health monitoring
health:
  # Seconds between health check cycles
  check_interval_seconds: 10
  # Deadline in seconds for a single probe
  instance_timeout_seconds: 30
  alert_thresholds:
    # Average probe time that flags an instance as slow
    response_time_seconds: 10
    # Request error rate that flags the pool
    error_rate: 0.1
    # Health check failure rate that flags the pool
    instance_failure_rate: 0.2

# Load balancing
balancer:
  # One of: round_robin, least_busy, response_time, random, weighted_round_robin
  strategy: least_busy
  # Extra routing attempts per request
  max_retries: 3
  # Base routing backoff in milliseconds
  retry_delay_ms: 1000

# Logging
logging:
  enabled: true
  # One of: debug, info, warn, error
  level: info
  # Log file path; empty logs to stderr
  file: ""
  max_size_mb: 10
  max_backups: 3
`

	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Created config file at %s\n", configFile)
	fmt.Println("Edit this file to customize the pool's behavior.")

	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	configFile := config.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Printf("Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Printf("Default path: %s (not created)\n", configFile)
	}

	// Also show config search paths
	fmt.Println("\nSearch paths:")
	fmt.Printf("  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	fmt.Printf("  2. $HOME/.config/sessionpool/config.yaml\n")
	fmt.Printf("  3. ./config.yaml (current directory)\n")
	fmt.Println("\nEnvironment variables: SESSIONPOOL_* (e.g., SESSIONPOOL_BALANCER_STRATEGY)")

	return nil
}
