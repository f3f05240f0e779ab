package exitcode

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/gyre-dev/gyre/internal/agent"
	"github.com/gyre-dev/gyre/internal/ledger"
	"github.com/gyre-dev/gyre/internal/orchestrator"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil error", nil, Success},
		{"malformed ledger", fmt.Errorf("load ledger: %w", ledger.ErrMalformed), MalformedLedger},
		{"unknown item", fmt.Errorf("record completion: %w: b2", ledger.ErrUnknownItem), MalformedLedger},
		{"persistence", fmt.Errorf("%w: save ledger: disk full", orchestrator.ErrPersistence), PersistenceFailure},
		{"agent invocation", fmt.Errorf("invoke agent: %w", &agent.InvocationError{Attempts: 3, Err: errors.New("exit 1")}), AgentFailure},
		{"interrupt", fmt.Errorf("run: %w", context.Canceled), Interrupted},
		{"anything else", errors.New("boom"), GeneralError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromError(tt.err); got != tt.want {
				t.Errorf("FromError(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
