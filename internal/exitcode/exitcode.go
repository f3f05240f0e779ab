// Package exitcode maps loop errors to process exit codes.
package exitcode

import (
	"context"
	"errors"

	"github.com/gyre-dev/gyre/internal/agent"
	"github.com/gyre-dev/gyre/internal/ledger"
	"github.com/gyre-dev/gyre/internal/orchestrator"
)

// Exit codes for consistent error handling across the CLI. A run that
// terminates with all items complete or with the iteration budget
// exhausted exits with Success; only fatal errors are non-zero.
const (
	// Success indicates the loop terminated normally
	Success = 0

	// GeneralError indicates an unclassified fatal error
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// MalformedLedger indicates the ledger failed validation or named an unknown item
	MalformedLedger = 3

	// AgentFailure indicates the agent could not be invoked within its retry budget
	AgentFailure = 4

	// PersistenceFailure indicates loop state could not be written
	PersistenceFailure = 5

	// Interrupted indicates the run was cut short by a signal
	Interrupted = 130
)

// FromError returns the exit code for a loop error.
func FromError(err error) int {
	if err == nil {
		return Success
	}

	var invErr *agent.InvocationError

	switch {
	case errors.Is(err, context.Canceled):
		return Interrupted
	case errors.Is(err, ledger.ErrMalformed), errors.Is(err, ledger.ErrUnknownItem):
		return MalformedLedger
	case errors.Is(err, orchestrator.ErrPersistence):
		return PersistenceFailure
	case errors.As(err, &invErr):
		return AgentFailure
	}

	return GeneralError
}
