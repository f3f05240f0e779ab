package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gyre-dev/gyre/internal/config"
	"github.com/gyre-dev/gyre/internal/gate"
	"github.com/gyre-dev/gyre/internal/git"
	"github.com/gyre-dev/gyre/internal/hooks"
	"github.com/gyre-dev/gyre/internal/ledger"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the environment can run the loop",
	RunE:  runDoctor,
}

// check is one doctor probe. Required failures make doctor exit non-zero;
// advisory failures only print a remedy.
type check struct {
	name     string
	ok       bool
	detail   string
	remedy   string
	required bool
}

func runDoctor(cmd *cobra.Command, args []string) error {
	var checks []check

	cfg, err := config.Load()
	if err != nil {
		checks = append(checks, check{
			name: "config", required: true,
			detail: err.Error(),
			remedy: "fix the YAML in gyre.yml or ~/.config/gyre/gyre.yml",
		})
		printChecks(checks)
		return fmt.Errorf("1 required check failed")
	}
	checks = append(checks, check{name: "config", ok: true, detail: "readable", required: true})

	if cfg.Agent.Command == "" {
		checks = append(checks, check{
			name: "agent", required: true,
			detail: "agent.command is not set",
			remedy: "set agent.command in gyre.yml or GYRE_AGENT_COMMAND",
		})
	} else if path, err := exec.LookPath(cfg.Agent.Command); err != nil {
		checks = append(checks, check{
			name: "agent", required: true,
			detail: fmt.Sprintf("%q not found on PATH", cfg.Agent.Command),
			remedy: "install the agent or point agent.command at its binary",
		})
	} else {
		checks = append(checks, check{name: "agent", ok: true, detail: path, required: true})
	}

	wd, dataDir, err := resolveDirs(cfg)
	if err != nil {
		return err
	}

	switch {
	case !git.Available():
		checks = append(checks, check{
			name:   "git",
			detail: "git binary not found",
			remedy: "install git to enable commits and history context",
		})
	case !git.IsRepo(cmd.Context(), wd):
		checks = append(checks, check{
			name:   "git",
			detail: "not inside a work tree",
			remedy: "run 'git init' so completed items can be committed",
		})
	default:
		checks = append(checks, check{name: "git", ok: true, detail: "work tree found"})
	}

	ledgerPath := filepath.Join(dataDir, ledger.FileName)
	if led, err := ledger.Load(ledgerPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			checks = append(checks, check{
				name:   "ledger",
				detail: "no ledger at " + ledgerPath,
				remedy: "run 'gyre init' or use --task for a one-off run",
			})
		} else {
			checks = append(checks, check{
				name: "ledger", required: true,
				detail: err.Error(),
				remedy: "fix the items " + ledgerPath + " names, or re-run 'gyre init --force'",
			})
		}
	} else {
		checks = append(checks, check{
			name: "ledger", ok: true,
			detail: fmt.Sprintf("%d items, %d remaining", len(led.Items), led.RemainingCount()),
		})
	}

	if gates, err := gate.LoadConfig(wd); err != nil {
		checks = append(checks, check{
			name: "gates", required: true,
			detail: err.Error(),
			remedy: "fix " + gate.ConfigFileName + " or delete it to use the defaults",
		})
	} else {
		checks = append(checks, check{
			name: "gates", ok: true,
			detail: fmt.Sprintf("%d gates configured", len(gates)), required: true,
		})
	}

	if _, err := hooks.LoadConfig(wd); err != nil {
		checks = append(checks, check{
			name:   "hooks",
			detail: err.Error(),
			remedy: "fix " + hooks.ConfigFileName + " or delete it",
		})
	} else {
		checks = append(checks, check{name: "hooks", ok: true, detail: "ok"})
	}

	printChecks(checks)

	failed := 0
	for _, c := range checks {
		if !c.ok && c.required {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d required checks failed", failed)
	}
	return nil
}

func printChecks(checks []check) {
	for _, c := range checks {
		mark := okStyle.Render("✓")
		if !c.ok {
			mark = failStyle.Render("✗")
			if !c.required {
				mark = warnStyle.Render("!")
			}
		}
		fmt.Printf("%s %-7s %s\n", mark, c.name, c.detail)
		if !c.ok && c.remedy != "" {
			fmt.Printf("          %s\n", dimStyle.Render(c.remedy))
		}
	}
}
