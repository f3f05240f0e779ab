// Package agent invokes the external coding agent as a subprocess.
//
// The agent is opaque to gyre: it receives the prompt payload on stdin
// and its stdout is captured as plain text. gyre never parses or
// interprets the work the agent did; the quality gates judge that.
package agent

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const maxStderr = 8 * 1024

// InvocationError reports that the agent could not be invoked after all
// retry attempts were spent. The orchestrator treats it as fatal.
type InvocationError struct {
	Attempts int
	Err      error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("agent invocation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// Runner manages execution of the agent subprocess for each iteration.
type Runner struct {
	command    string
	args       []string
	dir        string
	timeout    time.Duration
	retries    int
	retryDelay time.Duration
	onOutput   func(line string)
}

// Config holds configuration for creating a new Runner.
type Config struct {
	Command    string            // Agent executable (e.g. "opencode")
	Args       []string          // Arguments passed before the stdin prompt
	Dir        string            // Working directory for the agent
	Timeout    time.Duration     // Per-attempt timeout, 0 for none
	Retries    int               // Retry attempts after the first failure
	RetryDelay time.Duration     // Pause between attempts
	OnOutput   func(line string) // Callback for each stdout line
}

// New creates a new Runner instance.
func New(cfg Config) *Runner {
	return &Runner{
		command:    cfg.Command,
		args:       cfg.Args,
		dir:        cfg.Dir,
		timeout:    cfg.Timeout,
		retries:    cfg.Retries,
		retryDelay: cfg.RetryDelay,
		onOutput:   cfg.OnOutput,
	}
}

// Invoke runs one agent invocation, retrying failed attempts up to the
// configured budget. It returns the agent's full stdout. Exhausting the
// budget yields an *InvocationError; a cancelled parent context aborts
// the retry loop immediately.
func (r *Runner) Invoke(ctx context.Context, prompt string) (string, error) {
	if r.command == "" {
		return "", &InvocationError{Attempts: 0, Err: fmt.Errorf("no agent command configured")}
	}

	attempts := r.retries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		out, err := r.runOnce(ctx, prompt)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		lastErr = err
		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("attempts", attempts).
			Msg("agent invocation failed")

		if attempt < attempts && r.retryDelay > 0 {
			select {
			case <-time.After(r.retryDelay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}

	return "", &InvocationError{Attempts: attempts, Err: lastErr}
}

// runOnce executes a single agent attempt. It sends the prompt via
// stdin and accumulates plain-text output from stdout.
func (r *Runner) runOnce(ctx context.Context, prompt string) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	log.Debug().Str("command", r.command).Strs("args", r.args).Msg("starting agent subprocess")

	cmd := exec.CommandContext(ctx, r.command, r.args...)
	cmd.Dir = r.dir
	cmd.Env = os.Environ()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return "", fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &cappedWriter{buf: &stderr, max: maxStderr}

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start agent: %w", err)
	}

	// Monitor context cancellation and ensure process cleanup
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			if cmd.Process != nil {
				cmd.Process.Kill()
			}
		case <-done:
		}
	}()

	log.Debug().Int("bytes", len(prompt)).Msg("sending prompt to agent")
	if _, err := io.WriteString(stdin, prompt); err != nil {
		close(done)
		cmd.Wait()
		return "", fmt.Errorf("failed to write prompt: %w", err)
	}
	stdin.Close()

	var output strings.Builder
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := scanner.Text()
		output.WriteString(line)
		output.WriteByte('\n')
		if r.onOutput != nil {
			r.onOutput(line)
		}
	}

	close(done)

	if ctx.Err() != nil {
		cmd.Wait()
		return "", ctx.Err()
	}

	if err := scanner.Err(); err != nil {
		cmd.Wait()
		return "", fmt.Errorf("failed to read agent output: %w", err)
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("agent failed: %w: %s", err, msg)
		}
		return "", fmt.Errorf("agent failed: %w", err)
	}

	result := output.String()
	if strings.TrimSpace(result) == "" {
		return "", fmt.Errorf("agent produced no output")
	}

	log.Debug().Int("bytes", len(result)).Msg("agent completed")
	return result, nil
}

// cappedWriter drops writes past max so a noisy agent cannot balloon
// the captured stderr.
type cappedWriter struct {
	buf *bytes.Buffer
	max int
}

func (w *cappedWriter) Write(p []byte) (int, error) {
	if remaining := w.max - w.buf.Len(); remaining > 0 {
		if len(p) > remaining {
			w.buf.Write(p[:remaining])
		} else {
			w.buf.Write(p)
		}
	}
	return len(p), nil
}
