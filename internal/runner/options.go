package runner

import (
	"fmt"
	"strings"
	"time"
)

// Policy decides what happens after a statement fails
type Policy string

const (
	// FailFast stops at the first failure
	FailFast Policy = "fail-fast"
	// BestEffort records failures, skips dependents and carries on
	BestEffort Policy = "best-effort"
)

// ParsePolicy accepts fail-fast or best-effort (underscores allowed)
func ParsePolicy(s string) (Policy, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-") {
	case "", string(FailFast):
		return FailFast, nil
	case string(BestEffort):
		return BestEffort, nil
	default:
		return "", fmt.Errorf("unknown policy %q (want fail-fast or best-effort)", s)
	}
}

// DefaultStatisticsTarget is used by SetStatistics when no target is given
const DefaultStatisticsTarget = 10

// Options controls how statements are executed
type Options struct {
	Policy Policy
	// Transactional runs a recreate inside one transaction
	Transactional bool
	// Cascade appends CASCADE to DROP statements
	Cascade bool
	// DryRun builds statements without executing them
	DryRun bool
	// Parallel is the number of views handled concurrently within a
	// level. Only used when Transactional is false.
	Parallel int
	// Apps restricts operations to definitions of these apps
	Apps []string
	// CheckTables verifies that external tables exist before running
	CheckTables bool
	Timeout     time.Duration
}

// DefaultOptions returns fail-fast, transactional, sequential options
func DefaultOptions() Options {
	return Options{
		Policy:        FailFast,
		Transactional: true,
		Parallel:      1,
	}
}
