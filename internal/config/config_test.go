package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	// Verify default pool config
	if cfg.Pool.MinInstances != 1 {
		t.Errorf("Pool.MinInstances = %d, want 1", cfg.Pool.MinInstances)
	}
	if cfg.Pool.MaxInstances != 5 {
		t.Errorf("Pool.MaxInstances = %d, want 5", cfg.Pool.MaxInstances)
	}
	if cfg.Pool.InitialCount != 1 {
		t.Errorf("Pool.InitialCount = %d, want 1", cfg.Pool.InitialCount)
	}
	if !cfg.Pool.AutoScale {
		t.Error("Pool.AutoScale should be true by default")
	}
	if cfg.Pool.ScaleUpThreshold != 0.8 {
		t.Errorf("Pool.ScaleUpThreshold = %f, want 0.8", cfg.Pool.ScaleUpThreshold)
	}
	if cfg.Pool.ScaleDownThreshold != 0.3 {
		t.Errorf("Pool.ScaleDownThreshold = %f, want 0.3", cfg.Pool.ScaleDownThreshold)
	}
	if cfg.Pool.ScaleCooldown() != 60*time.Second {
		t.Errorf("Pool.ScaleCooldown() = %v, want 60s", cfg.Pool.ScaleCooldown())
	}

	// Verify default session config
	if cfg.Session.MaxRequestsPerSession != 100 {
		t.Errorf("Session.MaxRequestsPerSession = %d, want 100", cfg.Session.MaxRequestsPerSession)
	}
	if cfg.Session.Lifetime() != time.Hour {
		t.Errorf("Session.Lifetime() = %v, want 1h", cfg.Session.Lifetime())
	}

	// Verify default health config
	if cfg.Health.CheckInterval() != 10*time.Second {
		t.Errorf("Health.CheckInterval() = %v, want 10s", cfg.Health.CheckInterval())
	}
	if cfg.Health.InstanceTimeout() != 30*time.Second {
		t.Errorf("Health.InstanceTimeout() = %v, want 30s", cfg.Health.InstanceTimeout())
	}
	if cfg.Health.AlertThresholds.ResponseTime() != 10*time.Second {
		t.Errorf("AlertThresholds.ResponseTime() = %v, want 10s", cfg.Health.AlertThresholds.ResponseTime())
	}
	if cfg.Health.AlertThresholds.ErrorRate != 0.1 {
		t.Errorf("AlertThresholds.ErrorRate = %f, want 0.1", cfg.Health.AlertThresholds.ErrorRate)
	}
	if cfg.Health.AlertThresholds.InstanceFailureRate != 0.2 {
		t.Errorf("AlertThresholds.InstanceFailureRate = %f, want 0.2", cfg.Health.AlertThresholds.InstanceFailureRate)
	}

	// Verify default balancer config
	if cfg.Balancer.Strategy != "least_busy" {
		t.Errorf("Balancer.Strategy = %q, want %q", cfg.Balancer.Strategy, "least_busy")
	}
	if cfg.Balancer.MaxRetries != 3 {
		t.Errorf("Balancer.MaxRetries = %d, want 3", cfg.Balancer.MaxRetries)
	}
	if cfg.Balancer.RetryDelay() != time.Second {
		t.Errorf("Balancer.RetryDelay() = %v, want 1s", cfg.Balancer.RetryDelay())
	}

	// Verify default logging config
	if !cfg.Logging.Enabled {
		t.Error("Logging.Enabled should be true by default")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
	if cfg.Logging.MaxSizeMB != 10 {
		t.Errorf("Logging.MaxSizeMB = %d, want 10", cfg.Logging.MaxSizeMB)
	}
}

func TestDefaultIsValid(t *testing.T) {
	if errs := Default().Validate(); len(errs) > 0 {
		t.Errorf("Default() config should validate cleanly, got: %v", ValidationErrors(errs))
	}
}

func TestLoad_WithDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	SetDefaults()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Pool.MaxInstances != 5 {
		t.Errorf("Pool.MaxInstances = %d, want 5", cfg.Pool.MaxInstances)
	}
	if cfg.Balancer.Strategy != "least_busy" {
		t.Errorf("Balancer.Strategy = %q, want %q", cfg.Balancer.Strategy, "least_busy")
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	SetDefaults()
	viper.Set("pool.max_instances", 8)
	viper.Set("balancer.strategy", "round_robin")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Pool.MaxInstances != 8 {
		t.Errorf("Pool.MaxInstances = %d, want 8", cfg.Pool.MaxInstances)
	}
	if cfg.Balancer.Strategy != "round_robin" {
		t.Errorf("Balancer.Strategy = %q, want %q", cfg.Balancer.Strategy, "round_robin")
	}
}

func TestLoad_InvalidConfigRejected(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	SetDefaults()
	viper.Set("pool.max_instances", 0)

	if _, err := Load(); err == nil {
		t.Error("expected Load() to fail with max_instances below min_instances")
	}
}

func TestConfigDir_XDG(t *testing.T) {
	dir := t.TempDir()
	os.Setenv("XDG_CONFIG_HOME", dir)
	defer os.Unsetenv("XDG_CONFIG_HOME")

	want := filepath.Join(dir, "sessionpool")
	if got := ConfigDir(); got != want {
		t.Errorf("ConfigDir() = %q, want %q", got, want)
	}
	if got := ConfigFile(); got != filepath.Join(want, "config.yaml") {
		t.Errorf("ConfigFile() = %q", got)
	}
}

func TestIsValidStrategy(t *testing.T) {
	for _, s := range ValidStrategies() {
		if !IsValidStrategy(s) {
			t.Errorf("IsValidStrategy(%q) = false, want true", s)
		}
	}
	if IsValidStrategy("fastest") {
		t.Error("IsValidStrategy(\"fastest\") = true, want false")
	}
	if IsValidStrategy("") {
		t.Error("IsValidStrategy(\"\") = true, want false")
	}
}
