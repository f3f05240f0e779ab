package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	lipgloss "charm.land/lipgloss/v2"
	"github.com/charmbracelet/fang"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/gyre-dev/gyre/internal/exitcode"
)

const (
	logoText1 = "█▀▀ █▄█ █▀█ █▀▀"
	logoText2 = "█▄█  █  █▀▄ ██▄"
)

// Version set via ldflags during build
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "gyre [max-iterations]",
	Short: "Autonomous iteration loop for coding agents",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRoot,
}

func main() {
	// Agent subprocesses usually need provider API keys from the project
	// .env; a missing file is fine.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := fang.Execute(ctx, rootCmd, fang.WithVersion(version)); err != nil {
		os.Exit(exitcode.FromError(err))
	}
}

// renderLogo creates the two-line logo with theme colors
func renderLogo() string {
	line1 := lipgloss.NewStyle().Foreground(lipgloss.Color("#cba6f7")).Render(logoText1)
	line2 := lipgloss.NewStyle().Foreground(lipgloss.Color("#89b4fa")).Render(logoText2)
	return strings.Join([]string{line1, line2}, "\n")
}

func init() {
	rootCmd.Long = renderLogo() + `

gyre runs a coding agent in a bounded loop against a durable work item
ledger. Each iteration selects the highest-priority pending item, hands
it to the agent with the journal and recent history as context, verifies
the result with the configured quality gates, and on success commits the
work, marks the item complete, and journals what was learned.

The loop stops when every item passes, when the iteration budget is
spent, or on a fatal error. The optional positional argument overrides
the configured iteration budget.`

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(doctorCmd)
}
