package cmd

import (
	"testing"

	"github.com/Iron-Ham/sessionpool/internal/config"
)

func TestRootCommand(t *testing.T) {
	if rootCmd == nil {
		t.Fatal("rootCmd is nil")
	}
	if rootCmd.Use != "sessionpool" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "sessionpool")
	}

	// Check for expected subcommands (compare by Name(), not Use which includes args)
	expectedCmds := []string{"run", "strategies", "config"}
	cmdMap := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		cmdMap[cmd.Name()] = true
	}

	for _, expected := range expectedCmds {
		if !cmdMap[expected] {
			t.Errorf("expected subcommand %q not found", expected)
		}
	}
}

func TestConfigSetRejectsUnknownKey(t *testing.T) {
	if err := runConfigSet(configSetCmd, []string{"pool.flavor", "spicy"}); err == nil {
		t.Error("unknown key accepted")
	}
}

func TestConfigSetRejectsBadValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"bad strategy", "balancer.strategy", "fastest"},
		{"bad bool", "pool.auto_scale", "yes"},
		{"bad int", "pool.max_instances", "many"},
		{"negative int", "pool.max_instances", "-1"},
		{"bad float", "pool.scale_up_threshold", "high"},
		{"bad level", "logging.level", "chatty"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := runConfigSet(configSetCmd, []string{tc.key, tc.value}); err == nil {
				t.Errorf("value %q accepted for %s", tc.value, tc.key)
			}
		})
	}
}

func TestStrategyDescriptionsCoverAllStrategies(t *testing.T) {
	for _, name := range config.ValidStrategies() {
		if strategyDescriptions[name] == "" {
			t.Errorf("strategy %q has no description", name)
		}
	}
}
