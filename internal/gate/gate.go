// Package gate runs the configured verification commands that decide whether
// a work item may be marked complete.
package gate

import "time"

// Gate is one named verification command.
type Gate struct {
	Name      string `yaml:"name"`
	Command   string `yaml:"command"`
	Skippable bool   `yaml:"skippable"`
}

// Status is the outcome of a single gate.
type Status string

const (
	StatusPass    Status = "pass"
	StatusFail    Status = "fail"
	StatusSkipped Status = "skipped"
)

// Result is the outcome of one gate execution.
type Result struct {
	Gate     string
	Status   Status
	ExitCode int
	Output   string
	Duration time.Duration
}

// Report aggregates the results of one gating pass. Execution is fail-fast,
// so gates after the first failure never appear in Results.
type Report struct {
	Results   []Result
	Passed    int
	Failed    int
	Skipped   int
	AllPassed bool
	Duration  time.Duration
}

// Failure returns the failing result, or nil when every executed gate passed.
func (r *Report) Failure() *Result {
	for i := range r.Results {
		if r.Results[i].Status == StatusFail {
			return &r.Results[i]
		}
	}
	return nil
}

// Defaults is the gate set used when no gates file exists, ordered
// cheapest-first.
func Defaults() []Gate {
	return []Gate{
		{Name: "typecheck", Command: "go vet ./..."},
		{Name: "lint", Command: "golangci-lint run ./...", Skippable: true},
		{Name: "test", Command: "go test ./...", Skippable: true},
		{Name: "build", Command: "go build ./..."},
	}
}
