package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	lipgloss "charm.land/lipgloss/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gyre-dev/gyre/internal/agent"
	"github.com/gyre-dev/gyre/internal/config"
	"github.com/gyre-dev/gyre/internal/gate"
	"github.com/gyre-dev/gyre/internal/hooks"
	"github.com/gyre-dev/gyre/internal/logging"
	"github.com/gyre-dev/gyre/internal/orchestrator"
	"github.com/gyre-dev/gyre/internal/sentinel"
)

var rootFlags struct {
	task      string
	branch    string
	skipTests bool
	skipLint  bool
	dryRun    bool
	dataDir   string
	template  string
}

// Catppuccin Mocha accents shared by the CLI output.
var (
	headStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#cba6f7"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6c7086"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#a6e3a1"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#f9e2af"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#f38ba8"))
	dimStyle   = lipgloss.NewStyle().Faint(true)
)

func init() {
	rootCmd.Flags().StringVarP(&rootFlags.task, "task", "t", "", "Run a single ad hoc task instead of the ledger loop")
	rootCmd.Flags().StringVarP(&rootFlags.branch, "branch", "b", "", "Context id for the archival check (default: ledger branch)")
	rootCmd.Flags().BoolVar(&rootFlags.skipTests, "skip-tests", false, "Skip gates named \"test\"")
	rootCmd.Flags().BoolVar(&rootFlags.skipLint, "skip-lint", false, "Skip gates named \"lint\"")
	rootCmd.Flags().BoolVar(&rootFlags.dryRun, "dry-run", false, "Run the loop without committing")
	rootCmd.Flags().StringVar(&rootFlags.dataDir, "data-dir", "", "Data directory (default: .gyre)")
	rootCmd.Flags().StringVar(&rootFlags.template, "template", "", "Custom prompt template file")
}

func runRoot(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	maxIterations := cfg.Loop.MaxIterations
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("max iterations must be a positive integer, got %q", args[0])
		}
		maxIterations = n
	}

	if rootFlags.dataDir != "" {
		cfg.DataDir = rootFlags.dataDir
	}
	if rootFlags.template != "" {
		cfg.Prompt.Template = rootFlags.template
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	closeLog, err := logging.Init(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return err
	}
	defer closeLog()

	workDir, dataDir, err := resolveDirs(cfg)
	if err != nil {
		return err
	}

	gates, err := gate.LoadConfig(workDir)
	if err != nil {
		return fmt.Errorf("load gates: %w", err)
	}
	hooksCfg, err := hooks.LoadConfig(workDir)
	if err != nil {
		return fmt.Errorf("load hooks: %w", err)
	}

	runner := agent.New(agent.Config{
		Command:    cfg.Agent.Command,
		Args:       cfg.Agent.Args,
		Dir:        workDir,
		Timeout:    cfg.Agent.Timeout,
		Retries:    cfg.Agent.Retries,
		RetryDelay: cfg.Agent.RetryDelay,
		OnOutput:   printAgentLine,
	})
	detector := sentinel.New(cfg.Loop.Sentinel)

	ctrl, err := orchestrator.New(orchestrator.Config{
		WorkDir:       workDir,
		DataDir:       dataDir,
		Task:          rootFlags.task,
		Branch:        rootFlags.branch,
		MaxIterations: maxIterations,
		SkipTests:     rootFlags.skipTests,
		SkipLint:      rootFlags.skipLint,
		DryRun:        rootFlags.dryRun,
		GitCommit:     cfg.Git.Commit,
		TemplatePath:  cfg.Prompt.Template,
		Agent:         runner,
		Gates:         gates,
		Hooks:         hooksCfg,
		Sentinel:      detector,
	})
	if err != nil {
		return err
	}

	log.Info().
		Int("budget", maxIterations).
		Str("agent", cfg.Agent.Command).
		Bool("dry_run", rootFlags.dryRun).
		Msg("starting loop")

	res, runErr := ctrl.Run(cmd.Context())
	printSummary(res, maxIterations)

	if runErr == nil && res.Reason == orchestrator.ReasonAllComplete {
		fmt.Println(detector.Marker())
	}
	return runErr
}

// projectRoot walks upward from the working directory to the nearest
// directory carrying a .git or go.mod marker. Without a marker the
// working directory itself is the root.
func projectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("determine working directory: %w", err)
	}

	dir := cwd
	for {
		for _, marker := range []string{".git", "go.mod"} {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return cwd, nil
		}
		dir = parent
	}
}

// resolveDirs returns the project root and the absolute data directory.
func resolveDirs(cfg *config.Config) (workDir, dataDir string, err error) {
	workDir, err = projectRoot()
	if err != nil {
		return "", "", err
	}
	dataDir = cfg.DataDir
	if !filepath.IsAbs(dataDir) {
		dataDir = filepath.Join(workDir, dataDir)
	}
	return workDir, dataDir, nil
}

// printAgentLine streams agent stdout to the terminal. stderr keeps
// stdout clean for the summary and the completion sentinel.
func printAgentLine(line string) {
	fmt.Fprintln(os.Stderr, dimStyle.Render(line))
}

// printSummary renders the termination summary every exit path shares.
func printSummary(res *orchestrator.Result, budget int) {
	if res == nil {
		return
	}

	reasonStyle := okStyle
	switch res.Reason {
	case orchestrator.ReasonFatal:
		reasonStyle = failStyle
	case orchestrator.ReasonBudgetExhausted, orchestrator.ReasonInterrupted:
		reasonStyle = warnStyle
	}

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(headStyle.Render("gyre run summary"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("reason:"), reasonStyle.Render(string(res.Reason)))
	fmt.Fprintf(&b, "%s %d of %d\n", labelStyle.Render("iterations:"), len(res.Iterations), budget)
	fmt.Fprintf(&b, "%s %s completed, %s remaining\n",
		labelStyle.Render("items:"), formatCount(res.Completed), formatCount(res.Remaining))

	for _, it := range res.Iterations {
		mark := okStyle.Render("✓")
		detail := it.CommitHash
		if it.Disposition == orchestrator.DispositionFailed {
			mark = failStyle.Render("✗")
			if it.Gates != nil {
				if f := it.Gates.Failure(); f != nil {
					detail = fmt.Sprintf("gate %s exit %d", f.Gate, f.ExitCode)
				}
			}
		}
		line := fmt.Sprintf("  %s #%d %s", mark, it.Number, it.Title)
		if detail != "" {
			line += " " + dimStyle.Render("("+detail+")")
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	fmt.Print(b.String())
}

// formatCount renders an item count; negative means the ledger was
// never readable.
func formatCount(n int) string {
	if n < 0 {
		return "unknown"
	}
	return strconv.Itoa(n)
}
