package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/sessionpool/internal/config"
)

var strategiesCmd = &cobra.Command{
	Use:   "strategies",
	Short: "List available balancing strategies",
	Long: `List the balancing strategies the pool can route with.

The configured strategy is marked. Switch strategies with
'sessionpool config set balancer.strategy <name>', or edit the config
file while 'sessionpool run' is active to switch live.`,
	RunE: runStrategies,
}

func init() {
	rootCmd.AddCommand(strategiesCmd)
}

var strategyDescriptions = map[string]string{
	"round_robin":          "cycle through healthy instances in creation order",
	"least_busy":           "pick the instance with the fewest in-flight requests",
	"response_time":        "pick the instance with the lowest average response time",
	"random":               "pick a healthy instance uniformly at random",
	"weighted_round_robin": "favor instances with faster average response times",
}

var (
	strategyActiveStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	strategyNameStyle   = lipgloss.NewStyle().Bold(true)
	strategyDescStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func runStrategies(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	for _, name := range config.ValidStrategies() {
		marker := "  "
		style := strategyNameStyle
		if name == cfg.Balancer.Strategy {
			marker = strategyActiveStyle.Render("* ")
			style = strategyActiveStyle
		}
		fmt.Printf("%s%-22s %s\n", marker, style.Render(name), strategyDescStyle.Render(strategyDescriptions[name]))
	}
	return nil
}
