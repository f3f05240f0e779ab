package prompt

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/gyre-dev/gyre/internal/ledger"
)

// Variables holds the data to be injected into template placeholders.
type Variables struct {
	Project   string // Project name from the ledger
	Iteration string // Current iteration number
	Item      string // Formatted work item block
	Ledger    string // Formatted ledger summary
	Journal   string // Journal tail from previous iterations
	History   string // Recent git history
	Sentinel  string // Completion marker the agent should emit
	Extra     string // Extra instructions
}

// Render replaces {{variable}} placeholders in template with actual values.
// Supports the following variables:
// - {{project}} - Project name
// - {{iteration}} - Current iteration number
// - {{item}} - Formatted work item block
// - {{ledger}} - Formatted ledger summary (empty in single-task mode)
// - {{journal}} - Journal tail (empty if none)
// - {{history}} - Recent git history (empty if none)
// - {{sentinel}} - Completion marker phrase
// - {{extra}} - Extra instructions (empty if none)
func Render(template string, vars Variables) string {
	result := template

	replacements := map[string]string{
		"{{project}}":   vars.Project,
		"{{iteration}}": vars.Iteration,
		"{{item}}":      vars.Item,
		"{{ledger}}":    vars.Ledger,
		"{{journal}}":   vars.Journal,
		"{{history}}":   vars.History,
		"{{sentinel}}":  vars.Sentinel,
		"{{extra}}":     vars.Extra,
	}

	for placeholder, value := range replacements {
		result = strings.ReplaceAll(result, placeholder, value)
	}

	return result
}

// LoadFromFile loads a template from a file.
func LoadFromFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read template file %s: %w", path, err)
	}
	return string(data), nil
}

// GetTemplate returns the template content. If customPath is non-empty,
// loads from that file. Otherwise returns the default embedded template.
func GetTemplate(customPath string) (string, error) {
	if customPath == "" {
		return DefaultTemplate, nil
	}
	return LoadFromFile(customPath)
}

// BuildConfig holds everything needed to assemble a prompt payload.
type BuildConfig struct {
	Item            *ledger.WorkItem // Item the agent should work on
	Ledger          *ledger.Ledger   // Full ledger, nil in single-task mode
	Iteration       int              // Current iteration number
	JournalTail     string           // Tail of the progress journal
	GitHistory      string           // Recent commit lines
	SentinelMarker  string           // Completion phrase to instruct
	TemplatePath    string           // Custom template file (optional)
	ExtraContext    string           // Extra instructions (optional)
}

// Build assembles the prompt payload for one agent invocation.
func Build(cfg BuildConfig) (string, error) {
	if cfg.Item == nil {
		return "", fmt.Errorf("prompt: no work item")
	}

	templateContent, err := GetTemplate(cfg.TemplatePath)
	if err != nil {
		return "", err
	}

	project := ""
	if cfg.Ledger != nil {
		project = cfg.Ledger.Project
	}

	vars := Variables{
		Project:   project,
		Iteration: strconv.Itoa(cfg.Iteration),
		Item:      formatItem(cfg.Item),
		Ledger:    formatLedger(cfg.Ledger),
		Journal:   formatJournal(cfg.JournalTail),
		History:   formatHistory(cfg.GitHistory),
		Sentinel:  cfg.SentinelMarker,
		Extra:     cfg.ExtraContext,
	}

	result := Render(templateContent, vars)
	log.Debug().
		Str("item", cfg.Item.ID).
		Int("iteration", cfg.Iteration).
		Int("bytes", len(result)).
		Msg("prompt rendered")
	return result, nil
}

// formatItem formats the selected work item for template injection.
func formatItem(it *ledger.WorkItem) string {
	var sb strings.Builder
	sb.WriteString("## Work Item\n")
	sb.WriteString(fmt.Sprintf("ID: %s | Priority: %d\n", it.ID, it.Priority))
	sb.WriteString(fmt.Sprintf("Title: %s\n", it.Title))
	if it.Description != "" {
		sb.WriteString("\n" + it.Description + "\n")
	}
	sb.WriteString("\nAcceptance criteria:\n")
	for _, c := range it.AcceptanceCriteria {
		sb.WriteString("  - " + c + "\n")
	}
	if it.Notes != "" {
		sb.WriteString("\nNotes: " + it.Notes + "\n")
	}
	return sb.String()
}

// formatLedger formats the ledger summary for template injection.
// Returns empty string when there is no ledger (single-task mode).
func formatLedger(l *ledger.Ledger) string {
	if l == nil {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Ledger\n")
	sb.WriteString(fmt.Sprintf("Project: %s | Branch: %s\n", l.Project, l.BranchName))

	remaining := 0
	for _, it := range l.Items {
		if it.Passes {
			continue
		}
		if remaining == 0 {
			sb.WriteString("REMAINING:\n")
		}
		sb.WriteString(fmt.Sprintf("  - [P%d] [%s] %s\n", it.Priority, it.ID, it.Title))
		remaining++
	}
	if remaining == 0 {
		sb.WriteString("REMAINING: none\n")
	}
	sb.WriteString(fmt.Sprintf("COMPLETED: %d of %d items\n", l.CompletedCount(), len(l.Items)))
	return sb.String()
}

func formatJournal(tail string) string {
	tail = strings.TrimSpace(tail)
	if tail == "" {
		return ""
	}
	return "## Journal\n" + tail + "\n"
}

func formatHistory(history string) string {
	history = strings.TrimSpace(history)
	if history == "" {
		return ""
	}
	return "## Recent Commits\n" + history + "\n"
}
