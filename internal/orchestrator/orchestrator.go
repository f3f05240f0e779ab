// Package orchestrator drives the iteration loop: select a work item,
// invoke the agent, run the quality gates, persist the outcome, decide
// whether to continue.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gyre-dev/gyre/internal/agent"
	"github.com/gyre-dev/gyre/internal/archive"
	"github.com/gyre-dev/gyre/internal/gate"
	"github.com/gyre-dev/gyre/internal/git"
	"github.com/gyre-dev/gyre/internal/hooks"
	"github.com/gyre-dev/gyre/internal/journal"
	"github.com/gyre-dev/gyre/internal/ledger"
	"github.com/gyre-dev/gyre/internal/prompt"
	"github.com/gyre-dev/gyre/internal/sentinel"
)

// ErrPersistence marks a failed write of loop state. Ledger writes are
// fatal; journal writes are downgraded to warnings before reaching this.
var ErrPersistence = errors.New("persistence failure")

// Phase is the controller's position in the iteration state machine.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSelecting  Phase = "selecting"
	PhaseInvoking   Phase = "invoking"
	PhaseGating     Phase = "gating"
	PhaseRecording  Phase = "recording"
	PhaseDeciding   Phase = "deciding"
	PhaseTerminated Phase = "terminated"
)

// TerminationReason says why the loop stopped.
type TerminationReason string

const (
	ReasonAllComplete     TerminationReason = "all complete"
	ReasonBudgetExhausted TerminationReason = "iteration budget exhausted"
	ReasonFatal           TerminationReason = "fatal error"
	ReasonInterrupted     TerminationReason = "interrupted"
)

// Dispositions for a single iteration. An iteration that passes its
// gates is committed (or skipped when no commit happened); the one that
// clears the last pending item reports completed-all.
const (
	DispositionCommitted    = "committed"
	DispositionSkipped      = "skipped"
	DispositionFailed       = "failed"
	DispositionCompletedAll = "completed-all"
)

const (
	defaultJournalTail = 4 * 1024
	historyLines       = 5
	summaryLines       = 10
	summaryMaxBytes    = 1000
)

// IterationResult records what one iteration did.
type IterationResult struct {
	Number      int
	ItemID      string
	Title       string
	Disposition string
	CommitHash  string
	Gates       *gate.Report
	Duration    time.Duration
}

// Result is the loop outcome handed back to the CLI. Completed and
// Remaining are -1 when the ledger was never readable.
type Result struct {
	Reason     TerminationReason
	Iterations []IterationResult
	Completed  int
	Remaining  int
}

// Config holds configuration for the controller.
type Config struct {
	WorkDir       string             // Working directory for agent, gates and git
	DataDir       string             // gyre data directory (ledger, journal, state)
	Task          string             // Single-task description; bypasses the ledger
	Branch        string             // Context id override for the archival check
	MaxIterations int                // Iteration budget
	SkipTests     bool               // Skip gates named "test"
	SkipLint      bool               // Skip gates named "lint"
	DryRun        bool               // Suppress the commit step in Recording
	GitCommit     bool               // Commit after each completed item
	TemplatePath  string             // Custom prompt template (optional)
	JournalTail   int                // Max journal bytes handed to the agent
	Agent         *agent.Runner      // Agent subprocess runner
	Gates         []gate.Gate        // Ordered quality gates
	Hooks         *hooks.Config      // Lifecycle hooks (optional)
	Sentinel      *sentinel.Detector // Completion marker detector
}

// Controller runs the iteration loop as an explicit state machine.
type Controller struct {
	cfg      Config
	phase    Phase
	journal  *journal.Journal
	gates    *gate.Runner
	archiver *archive.Manager
	detector *sentinel.Detector
	isRepo   bool
}

// New creates a Controller. The agent runner is required; everything
// else has workable defaults.
func New(cfg Config) (*Controller, error) {
	if cfg.Agent == nil {
		return nil, fmt.Errorf("orchestrator: agent runner is required")
	}
	if cfg.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		cfg.WorkDir = wd
	}
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join(cfg.WorkDir, ".gyre")
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 10
	}
	if cfg.JournalTail <= 0 {
		cfg.JournalTail = defaultJournalTail
	}
	if len(cfg.Gates) == 0 {
		cfg.Gates = gate.Defaults()
	}
	if cfg.Sentinel == nil {
		cfg.Sentinel = sentinel.New("")
	}

	j := journal.New(filepath.Join(cfg.DataDir, journal.FileName))
	return &Controller{
		cfg:      cfg,
		phase:    PhaseIdle,
		journal:  j,
		gates:    gate.NewRunner(cfg.WorkDir),
		archiver: archive.NewManager(cfg.DataDir, j),
		detector: cfg.Sentinel,
	}, nil
}

// Phase returns the controller's current phase.
func (c *Controller) Phase() Phase {
	return c.phase
}

func (c *Controller) setPhase(p Phase) {
	log.Debug().Str("from", string(c.phase)).Str("to", string(p)).Msg("phase")
	c.phase = p
}

// Run executes the loop until a termination reason is reached. The
// returned error is non-nil only for ReasonFatal and ReasonInterrupted;
// the Result is valid in every case.
func (c *Controller) Run(ctx context.Context) (*Result, error) {
	c.isRepo = git.Available() && git.IsRepo(ctx, c.cfg.WorkDir)
	if !c.isRepo {
		log.Warn().Msg("not a git repository, commits and history are disabled")
	}

	if c.cfg.Task != "" {
		return c.runSingle(ctx)
	}
	return c.runLoop(ctx)
}

// runLoop is the ledger-driven mode.
func (c *Controller) runLoop(ctx context.Context) (*Result, error) {
	res := &Result{Completed: -1, Remaining: -1}

	ledgerPath := filepath.Join(c.cfg.DataDir, ledger.FileName)
	led, err := ledger.Load(ledgerPath)
	if err != nil {
		c.setPhase(PhaseTerminated)
		res.Reason = ReasonFatal
		return res, fmt.Errorf("load ledger: %w", err)
	}
	res.Completed = led.CompletedCount()
	res.Remaining = led.RemainingCount()

	c.checkBranch(ctx, led)

	// Archival check runs once per process, before the first iteration.
	contextID := c.cfg.Branch
	if contextID == "" {
		contextID = led.BranchName
	}
	st := archive.LoadState(c.cfg.DataDir)
	next, archived, err := c.archiver.CheckAndArchive(st, contextID)
	if err != nil {
		log.Warn().Err(err).Msg("archival failed, continuing with current journal")
	} else {
		if archived != "" {
			log.Info().Str("dir", archived).Msg("archived previous context")
		}
		if err := archive.SaveState(c.cfg.DataDir, next); err != nil {
			log.Warn().Err(err).Msg("could not record archival state")
		}
	}

	c.runHook(ctx, c.hookFor("loop_start"), hooks.Variables{Project: led.Project})
	defer func() {
		c.runHook(ctx, c.hookFor("loop_end"), hooks.Variables{Project: led.Project})
	}()

	for iteration := 1; ; iteration++ {
		c.setPhase(PhaseSelecting)
		item := led.NextPending()
		if item == nil {
			res.Reason = ReasonAllComplete
			break
		}
		log.Info().
			Int("iteration", iteration).
			Str("item", item.ID).
			Str("title", item.Title).
			Msg("selected work item")

		iterRes, err := c.runIteration(ctx, iteration, item, led)
		if err != nil {
			res.Completed = led.CompletedCount()
			res.Remaining = led.RemainingCount()
			if ctx.Err() != nil {
				c.setPhase(PhaseTerminated)
				res.Reason = ReasonInterrupted
				return res, ctx.Err()
			}
			c.setPhase(PhaseTerminated)
			res.Reason = ReasonFatal
			return res, err
		}
		res.Iterations = append(res.Iterations, *iterRes)
		res.Completed = led.CompletedCount()
		res.Remaining = led.RemainingCount()

		c.setPhase(PhaseDeciding)
		if led.RemainingCount() == 0 {
			res.Reason = ReasonAllComplete
			break
		}
		if iteration >= c.cfg.MaxIterations {
			res.Reason = ReasonBudgetExhausted
			break
		}
	}

	c.setPhase(PhaseTerminated)
	return res, nil
}

// runIteration walks one work item through Invoking, Gating and
// Recording. A nil IterationResult means the error is fatal.
func (c *Controller) runIteration(ctx context.Context, iteration int, item *ledger.WorkItem, led *ledger.Ledger) (*IterationResult, error) {
	started := time.Now()
	iterRes := &IterationResult{Number: iteration, ItemID: item.ID, Title: item.Title}

	vars := hooks.Variables{
		Project:   led.Project,
		Iteration: strconv.Itoa(iteration),
		Item:      item.ID,
	}
	hookOut := c.runHook(ctx, c.hookFor("iteration_start"), vars)

	tail, err := c.journal.Tail(c.cfg.JournalTail)
	if err != nil {
		log.Warn().Err(err).Msg("could not read journal for prompt")
		tail = ""
	}
	history := c.recentHistory(ctx)

	payload, err := prompt.Build(prompt.BuildConfig{
		Item:           item,
		Ledger:         led,
		Iteration:      iteration,
		JournalTail:    tail,
		GitHistory:     history,
		SentinelMarker: c.detector.Marker(),
		TemplatePath:   c.cfg.TemplatePath,
		ExtraContext:   hookOut,
	})
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	dirtyBefore := c.changedFiles(ctx)

	c.setPhase(PhaseInvoking)
	output, err := c.cfg.Agent.Invoke(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("invoke agent for %s: %w", item.ID, err)
	}

	c.setPhase(PhaseGating)
	skip := map[string]bool{"test": c.cfg.SkipTests, "lint": c.cfg.SkipLint}
	report, err := c.gates.Run(ctx, c.cfg.Gates, skip)
	if err != nil {
		return nil, err
	}
	iterRes.Gates = report

	claimed := c.detector.Detect(output)

	if !report.AllPassed {
		failure := report.Failure()
		log.Warn().
			Str("gate", failure.Gate).
			Int("exit", failure.ExitCode).
			Str("item", item.ID).
			Msg("quality gate failed, item stays pending")
		if out := strings.TrimSpace(failure.Output); out != "" {
			log.Warn().Msg(out)
		}
		if claimed {
			log.Warn().Msg("agent claimed completion but gates failed")
		}
		iterRes.Disposition = DispositionFailed
		iterRes.Duration = time.Since(started)
		return iterRes, nil
	}

	c.setPhase(PhaseRecording)
	touched := diffFiles(dirtyBefore, c.changedFiles(ctx))

	iterRes.Disposition = DispositionSkipped
	if hash, ok := c.commit(ctx, commitMessage(item)); ok {
		iterRes.CommitHash = hash
		iterRes.Disposition = DispositionCommitted
	}

	if err := led.MarkComplete(item.ID); err != nil {
		return nil, fmt.Errorf("record completion: %w", err)
	}
	ledgerPath := filepath.Join(c.cfg.DataDir, ledger.FileName)
	if err := ledger.Save(ledgerPath, led); err != nil {
		return nil, fmt.Errorf("%w: save ledger: %w", ErrPersistence, err)
	}
	if led.RemainingCount() == 0 {
		iterRes.Disposition = DispositionCompletedAll
	}

	entry := journal.Entry{
		Timestamp: time.Now().UTC(),
		ItemID:    item.ID,
		Title:     item.Title,
		Summary:   summarize(output, c.detector.Marker()),
		Files:     touched,
	}
	if err := c.journal.Append(entry); err != nil {
		log.Warn().Err(err).Msg("journal write failed, continuing")
	}

	c.runHook(ctx, c.hookFor("item_complete"), vars)

	if claimed && led.RemainingCount() > 0 {
		log.Warn().
			Int("remaining", led.RemainingCount()).
			Msg("agent claimed full completion but items remain")
	}

	log.Info().
		Str("item", item.ID).
		Str("commit", iterRes.CommitHash).
		Str("disposition", iterRes.Disposition).
		Msg("work item completed")

	iterRes.Duration = time.Since(started)
	return iterRes, nil
}

// runSingle is the --task mode: one ad hoc item, no ledger reads or
// writes, no archival check.
func (c *Controller) runSingle(ctx context.Context) (*Result, error) {
	res := &Result{Completed: 0, Remaining: 1}
	item := ledger.NewAdHocItem(c.cfg.Task)

	c.runHook(ctx, c.hookFor("loop_start"), hooks.Variables{})
	defer func() {
		c.runHook(ctx, c.hookFor("loop_end"), hooks.Variables{})
	}()

	vars := hooks.Variables{Iteration: "1", Item: item.ID}
	hookOut := c.runHook(ctx, c.hookFor("iteration_start"), vars)

	tail, err := c.journal.Tail(c.cfg.JournalTail)
	if err != nil {
		tail = ""
	}

	c.setPhase(PhaseSelecting)
	payload, err := prompt.Build(prompt.BuildConfig{
		Item:           &item,
		Iteration:      1,
		JournalTail:    tail,
		GitHistory:     c.recentHistory(ctx),
		SentinelMarker: c.detector.Marker(),
		TemplatePath:   c.cfg.TemplatePath,
		ExtraContext:   hookOut,
	})
	if err != nil {
		c.setPhase(PhaseTerminated)
		res.Reason = ReasonFatal
		return res, fmt.Errorf("build prompt: %w", err)
	}

	started := time.Now()
	iterRes := IterationResult{Number: 1, ItemID: item.ID, Title: item.Title}
	dirtyBefore := c.changedFiles(ctx)

	c.setPhase(PhaseInvoking)
	output, err := c.cfg.Agent.Invoke(ctx, payload)
	if err != nil {
		c.setPhase(PhaseTerminated)
		if ctx.Err() != nil {
			res.Reason = ReasonInterrupted
			return res, ctx.Err()
		}
		res.Reason = ReasonFatal
		return res, fmt.Errorf("invoke agent: %w", err)
	}

	c.setPhase(PhaseGating)
	skip := map[string]bool{"test": c.cfg.SkipTests, "lint": c.cfg.SkipLint}
	report, err := c.gates.Run(ctx, c.cfg.Gates, skip)
	if err != nil {
		c.setPhase(PhaseTerminated)
		res.Reason = ReasonInterrupted
		return res, err
	}
	iterRes.Gates = report

	if !report.AllPassed {
		failure := report.Failure()
		log.Warn().Str("gate", failure.Gate).Int("exit", failure.ExitCode).Msg("quality gate failed")
		iterRes.Disposition = DispositionFailed
		iterRes.Duration = time.Since(started)
		res.Iterations = append(res.Iterations, iterRes)
		c.setPhase(PhaseTerminated)
		res.Reason = ReasonBudgetExhausted
		return res, nil
	}

	c.setPhase(PhaseRecording)
	touched := diffFiles(dirtyBefore, c.changedFiles(ctx))
	if hash, ok := c.commit(ctx, commitMessage(&item)); ok {
		iterRes.CommitHash = hash
	}

	entry := journal.Entry{
		Timestamp: time.Now().UTC(),
		ItemID:    item.ID,
		Title:     item.Title,
		Summary:   summarize(output, c.detector.Marker()),
		Files:     touched,
	}
	if err := c.journal.Append(entry); err != nil {
		log.Warn().Err(err).Msg("journal write failed, continuing")
	}

	c.runHook(ctx, c.hookFor("item_complete"), vars)

	iterRes.Disposition = DispositionCompletedAll
	iterRes.Duration = time.Since(started)
	res.Iterations = append(res.Iterations, iterRes)
	res.Completed, res.Remaining = 1, 0

	c.setPhase(PhaseTerminated)
	res.Reason = ReasonAllComplete
	return res, nil
}

// checkBranch warns when the working tree is on a different branch than
// the ledger expects. Advisory only.
func (c *Controller) checkBranch(ctx context.Context, led *ledger.Ledger) {
	expected := c.cfg.Branch
	if expected == "" {
		expected = led.BranchName
	}
	if expected == "" || !c.isRepo {
		return
	}
	current, err := git.CurrentBranch(ctx, c.cfg.WorkDir)
	if err != nil {
		log.Warn().Err(err).Msg("could not determine current branch")
		return
	}
	if current != expected {
		log.Warn().
			Str("current", current).
			Str("expected", expected).
			Msg("working tree branch differs from ledger branch")
	}
}

// commit commits all changes when the repo is dirty and committing is
// enabled. Commit failures are warnings; the ledger stays authoritative.
func (c *Controller) commit(ctx context.Context, message string) (string, bool) {
	if !c.cfg.GitCommit || c.cfg.DryRun || !c.isRepo {
		return "", false
	}
	dirty, err := git.HasChanges(ctx, c.cfg.WorkDir)
	if err != nil {
		log.Warn().Err(err).Msg("could not inspect working tree")
		return "", false
	}
	if !dirty {
		log.Debug().Msg("nothing to commit")
		return "", false
	}
	hash, err := git.Commit(ctx, c.cfg.WorkDir, message)
	if err != nil {
		log.Warn().Err(err).Msg("commit failed, continuing")
		return "", false
	}
	return hash, true
}

func (c *Controller) recentHistory(ctx context.Context) string {
	if !c.isRepo {
		return ""
	}
	history, err := git.RecentHistory(ctx, c.cfg.WorkDir, historyLines)
	if err != nil {
		log.Warn().Err(err).Msg("could not read git history")
		return ""
	}
	return history
}

func (c *Controller) changedFiles(ctx context.Context) []string {
	if !c.isRepo {
		return nil
	}
	files, err := git.ChangedFiles(ctx, c.cfg.WorkDir)
	if err != nil {
		log.Warn().Err(err).Msg("could not list changed files")
		return nil
	}
	return files
}

func (c *Controller) hookFor(point string) *hooks.HookConfig {
	if c.cfg.Hooks == nil {
		return nil
	}
	switch point {
	case "loop_start":
		return c.cfg.Hooks.Hooks.LoopStart
	case "iteration_start":
		return c.cfg.Hooks.Hooks.IterationStart
	case "item_complete":
		return c.cfg.Hooks.Hooks.ItemComplete
	case "loop_end":
		return c.cfg.Hooks.Hooks.LoopEnd
	}
	return nil
}

// runHook executes a lifecycle hook. Hook problems never stop the loop.
func (c *Controller) runHook(ctx context.Context, hook *hooks.HookConfig, vars hooks.Variables) string {
	if hook == nil {
		return ""
	}
	out, err := hooks.Execute(ctx, hook, c.cfg.WorkDir, vars)
	if err != nil {
		log.Warn().Err(err).Msg("hook aborted")
		return ""
	}
	return out
}

// commitMessage builds the commit message for a completed item: a
// conventional subject plus the satisfied acceptance criteria as body.
func commitMessage(item *ledger.WorkItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "gyre: %s (%s)", item.Title, item.ID)
	if len(item.AcceptanceCriteria) > 0 {
		b.WriteString("\n\nAcceptance criteria:\n")
		for _, criterion := range item.AcceptanceCriteria {
			fmt.Fprintf(&b, "- %s\n", criterion)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// summarize trims agent output to a short journal note: the sentinel
// line is dropped, then the last few non-empty lines are kept.
func summarize(output, marker string) string {
	var lines []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" || strings.Contains(line, marker) {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) > summaryLines {
		lines = lines[len(lines)-summaryLines:]
	}
	summary := strings.Join(lines, "\n")
	if len(summary) > summaryMaxBytes {
		summary = summary[len(summary)-summaryMaxBytes:]
		if idx := strings.IndexByte(summary, '\n'); idx >= 0 {
			summary = summary[idx+1:]
		}
	}
	return summary
}

// diffFiles returns entries of after that were not dirty before.
func diffFiles(before, after []string) []string {
	if len(after) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(before))
	for _, f := range before {
		seen[f] = true
	}
	var out []string
	for _, f := range after {
		if !seen[f] {
			out = append(out, f)
		}
	}
	return out
}
