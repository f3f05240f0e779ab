package gate

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/rs/zerolog/log"
)

// maxOutput caps the captured output per gate so a chatty test suite cannot
// balloon memory or the journal.
const maxOutput = 32 * 1024

// Runner executes gates in the project working directory.
type Runner struct {
	Dir string
	Env []string
}

// NewRunner returns a Runner for dir using the current process environment.
func NewRunner(dir string) *Runner {
	return &Runner{Dir: dir, Env: os.Environ()}
}

// Run executes the gates in declared order, stopping at the first failure.
// Gates named in skip and marked skippable yield StatusSkipped without
// executing. The returned error is non-nil only on context cancellation.
func (r *Runner) Run(ctx context.Context, gates []Gate, skip map[string]bool) (*Report, error) {
	report := &Report{}
	start := time.Now()

	for _, g := range gates {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if skip[g.Name] && g.Skippable {
			log.Info().Str("gate", g.Name).Msg("gate skipped")
			report.Results = append(report.Results, Result{Gate: g.Name, Status: StatusSkipped})
			report.Skipped++
			continue
		}

		res := r.runOne(ctx, g)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		report.Results = append(report.Results, res)

		if res.Status == StatusFail {
			report.Failed++
			log.Warn().Str("gate", g.Name).Int("exit_code", res.ExitCode).
				Dur("duration", res.Duration).Msg("gate failed")
			break
		}
		report.Passed++
		log.Info().Str("gate", g.Name).Dur("duration", res.Duration).Msg("gate passed")
	}

	report.Duration = time.Since(start)
	report.AllPassed = report.Failed == 0
	return report, nil
}

func (r *Runner) runOne(ctx context.Context, g Gate) Result {
	log.Debug().Str("gate", g.Name).Str("command", g.Command).Msg("running gate")
	start := time.Now()

	cmd := exec.CommandContext(ctx, "sh", "-c", g.Command)
	cmd.Dir = r.Dir
	cmd.Env = r.Env

	out := &cappedBuffer{max: maxOutput}
	cmd.Stdout = out
	cmd.Stderr = out

	err := cmd.Run()
	res := Result{
		Gate:     g.Name,
		Status:   StatusPass,
		Output:   out.String(),
		Duration: time.Since(start),
	}
	if err != nil {
		res.Status = StatusFail
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = -1
			res.Output = fmt.Sprintf("%s\n%v", res.Output, err)
		}
	}
	return res
}

// cappedBuffer keeps the first max bytes written and notes the truncation.
type cappedBuffer struct {
	buf       []byte
	max       int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.max - len(b.buf); room > 0 {
		if len(p) <= room {
			b.buf = append(b.buf, p...)
		} else {
			b.buf = append(b.buf, p[:room]...)
			b.truncated = true
		}
	} else if len(p) > 0 {
		b.truncated = true
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	if b.truncated {
		return string(b.buf) + "\n[output truncated]"
	}
	return string(b.buf)
}
