package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"charm.land/glamour/v2"
	"github.com/spf13/cobra"

	"github.com/gyre-dev/gyre/internal/archive"
	"github.com/gyre-dev/gyre/internal/config"
	"github.com/gyre-dev/gyre/internal/journal"
	"github.com/gyre-dev/gyre/internal/ledger"
)

var statusFlags struct {
	plain bool
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ledger items, counts, and the journal",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusFlags.plain, "plain", false, "Plain output without markdown rendering")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	_, dataDir, err := resolveDirs(cfg)
	if err != nil {
		return err
	}

	ledgerPath := filepath.Join(dataDir, ledger.FileName)
	led, err := ledger.Load(ledgerPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("no ledger at %s\n\nRun 'gyre init' to scaffold one", ledgerPath)
		}
		return err
	}

	fmt.Printf("%s %s\n", labelStyle.Render("project:"), led.Project)
	fmt.Printf("%s %s\n", labelStyle.Render("branch: "), led.BranchName)
	if st := archive.LoadState(dataDir); st.ContextID != "" {
		fmt.Printf("%s %s %s\n", labelStyle.Render("context:"), st.ContextID,
			dimStyle.Render("(recorded "+st.UpdatedAt.Format(time.RFC3339)+")"))
	}
	fmt.Printf("%s %d completed, %d remaining\n\n",
		labelStyle.Render("items:  "), led.CompletedCount(), led.RemainingCount())

	for _, item := range led.Items {
		mark := dimStyle.Render("·")
		if item.Passes {
			mark = okStyle.Render("✓")
		}
		fmt.Printf("  %s [P%d] %s %s\n", mark, item.Priority,
			dimStyle.Render(item.ID), item.Title)
	}

	content, err := journal.New(filepath.Join(dataDir, journal.FileName)).Read()
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	if content != "" {
		fmt.Println()
		fmt.Println(renderMarkdown(content))
	}
	return nil
}

// renderMarkdown renders journal markdown for the terminal, falling back
// to the raw text with --plain, in pipes, or when rendering fails.
func renderMarkdown(content string) string {
	if statusFlags.plain || !stdoutIsTerminal() {
		return strings.TrimRight(content, "\n")
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return strings.TrimRight(content, "\n")
	}
	rendered, err := r.Render(content)
	if err != nil {
		return strings.TrimRight(content, "\n")
	}
	return strings.TrimSuffix(rendered, "\n")
}

func stdoutIsTerminal() bool {
	info, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
