package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/xid"
	"github.com/spf13/cobra"

	"github.com/gyre-dev/gyre/internal/config"
	"github.com/gyre-dev/gyre/internal/git"
	"github.com/gyre-dev/gyre/internal/journal"
	"github.com/gyre-dev/gyre/internal/ledger"
)

var initFlags struct {
	force bool
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold the gyre data directory and project config",
	Long: `Scaffold the gyre data directory and project config.

Creates a starter ledger with one example work item, an empty journal,
and a commented gyre.yml in the current directory. Existing files are
left alone unless --force is given.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initFlags.force, "force", "f", false, "Overwrite an existing ledger and journal")
}

const configTemplate = `# gyre project configuration.
# Values here override the global config at ~/.config/gyre/gyre.yml;
# GYRE_* environment variables override both.

agent:
  # Command invoked once per iteration. The prompt payload arrives on stdin.
  command: opencode
  args: ["run"]
  timeout: 15m
  retries: 2
  retry_delay: 5s

loop:
  max_iterations: 10

git:
  commit: true

log:
  level: info
  # file: .gyre/gyre.log
`

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	wd, dataDir, err := resolveDirs(cfg)
	if err != nil {
		return err
	}

	ledgerPath := filepath.Join(dataDir, ledger.FileName)
	if !initFlags.force && fileExists(ledgerPath) {
		return fmt.Errorf("ledger already exists at %s\n\nUse --force to overwrite", ledgerPath)
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	branch := "main"
	if git.Available() && git.IsRepo(cmd.Context(), wd) {
		if b, err := git.CurrentBranch(cmd.Context(), wd); err == nil {
			branch = b
		}
	}

	led := &ledger.Ledger{
		Project:    filepath.Base(wd),
		BranchName: branch,
		CreatedAt:  time.Now().UTC(),
		Items: []ledger.WorkItem{
			{
				ID:          xid.New().String(),
				Title:       "Replace this example work item",
				Description: "Describe the first real unit of work, then delete this placeholder.",
				AcceptanceCriteria: []string{
					"ledger.json lists the project's real work items",
				},
				Priority: 1,
			},
		},
	}
	if err := ledger.Save(ledgerPath, led); err != nil {
		return fmt.Errorf("write starter ledger: %w", err)
	}
	fmt.Printf("%s %s\n", okStyle.Render("created"), ledgerPath)

	journalPath := filepath.Join(dataDir, journal.FileName)
	if initFlags.force || !fileExists(journalPath) {
		if err := journal.New(journalPath).Reset(""); err != nil {
			return fmt.Errorf("write journal: %w", err)
		}
		fmt.Printf("%s %s\n", okStyle.Render("created"), journalPath)
	}

	configPath := filepath.Join(wd, config.ProjectPath())
	if !fileExists(configPath) {
		if err := os.WriteFile(configPath, []byte(configTemplate), 0o644); err != nil {
			return fmt.Errorf("write project config: %w", err)
		}
		fmt.Printf("%s %s\n", okStyle.Render("created"), configPath)
	}

	fmt.Println()
	fmt.Printf("Edit %s with your work items, then run 'gyre' to start the loop.\n", ledgerPath)
	return nil
}

// fileExists checks if a file exists (helper for scaffolding commands).
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
