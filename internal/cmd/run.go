package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/sessionpool/internal/config"
	"github.com/Iron-Ham/sessionpool/internal/event"
	"github.com/Iron-Ham/sessionpool/internal/logging"
	"github.com/Iron-Ham/sessionpool/internal/orchestrator"
	"github.com/Iron-Ham/sessionpool/internal/worker"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the session pool",
	Long: `Run the session pool in the foreground.

Bootstraps the configured number of instances, starts health monitoring,
and serves until interrupted. Edits to the config file are picked up
live: changing balancer.strategy switches the balancing strategy without
a restart.`,
	RunE: runPool,
}

var (
	runStrategy  string
	runInstances int
	statusEvery  time.Duration
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runStrategy, "strategy", "", "balancing strategy (overrides config)")
	runCmd.Flags().IntVar(&runInstances, "instances", 0, "initial instance count (overrides config)")
	runCmd.Flags().DurationVar(&statusEvery, "status-every", time.Minute, "how often to print a pool summary (0 disables)")
}

var (
	runHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	runLabelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	runAlertStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

func runPool(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if runStrategy != "" {
		cfg.Balancer.Strategy = runStrategy
	}
	if runInstances > 0 {
		cfg.Pool.InitialCount = runInstances
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", config.ValidationErrors(errs))
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer logger.Close()

	orch, err := orchestrator.New(cfg, worker.NewEchoFactory(), logger)
	if err != nil {
		return fmt.Errorf("failed to build pool: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("failed to start pool: %w", err)
	}
	defer orch.Stop()

	// Surface alerts on the console as they happen.
	orch.Subscribe("alert.instance_failed", func(e event.Event) {
		fmt.Println(runAlertStyle.Render("alert: ") + e.EventType())
	})

	watchConfig(orch, logger)
	printSummary(orch)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var ticker *time.Ticker
	var tick <-chan time.Time
	if statusEvery > 0 {
		ticker = time.NewTicker(statusEvery)
		tick = ticker.C
		defer ticker.Stop()
	}

	for {
		select {
		case sig := <-sigCh:
			fmt.Printf("\nreceived %s, shutting down\n", sig)
			return nil
		case <-ctx.Done():
			return nil
		case <-tick:
			printSummary(orch)
		}
	}
}

// buildLogger constructs the pool logger from the logging configuration.
func buildLogger(cfg *config.Config) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	rotation := logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	}
	return logging.NewLogger(cfg.Logging.File, cfg.Logging.Level, rotation)
}

// watchConfig applies live config edits. Only the balancing strategy is
// hot-swappable; everything else needs a restart.
func watchConfig(orch *orchestrator.Orchestrator, logger *logging.Logger) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		name := viper.GetString("balancer.strategy")
		if name == "" || name == orch.StrategyName() {
			return
		}
		if err := orch.SetStrategy(name); err != nil {
			logger.Warn("rejected strategy from config change", "strategy", name, "error", err)
			return
		}
		logger.Info("strategy switched from config change", "strategy", name, "file", e.Name)
		fmt.Printf("strategy switched to %s\n", name)
	})
	viper.WatchConfig()
}

// printSummary renders a one-screen pool summary.
func printSummary(orch *orchestrator.Orchestrator) {
	status := orch.Status()
	stats := orch.RoutingStats()

	fmt.Println(runHeaderStyle.Render("session pool"))
	fmt.Printf("%s %d healthy / %d total (load %.2f)\n",
		runLabelStyle.Render("instances:"),
		status.HealthyInstances, status.TotalInstances, status.LoadFactor)
	fmt.Printf("%s %s\n", runLabelStyle.Render("strategy: "), stats.CurrentStrategy)
	fmt.Printf("%s %d routed, %d failed, %d retries, %d active\n",
		runLabelStyle.Render("requests: "),
		stats.TotalRequests, stats.FailedRoutes, stats.Retries, stats.ActiveRequestsCount)
}
