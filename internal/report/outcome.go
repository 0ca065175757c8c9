// Package report reduces per-target outcomes into the run-level report and
// streams them to the configured output sinks.
package report

import (
	"fmt"
	"time"
)

// OutcomeStatus is the terminal state of a single target. Every target
// reaches exactly one terminal status per run.
type OutcomeStatus string

const (
	// StatusSucceeded: some attempt completed successfully.
	StatusSucceeded OutcomeStatus = "SUCCEEDED"

	// StatusExhausted: retryable failures depleted the attempt budget.
	StatusExhausted OutcomeStatus = "EXHAUSTED"

	// StatusFatal: the execution signaled a fatal error class; no retry
	// occurred.
	StatusFatal OutcomeStatus = "FATAL"

	// StatusSkipped: the run was canceled before the target reached a
	// terminal execution state.
	StatusSkipped OutcomeStatus = "SKIPPED"
)

// Failed reports whether the status counts against the run.
func (s OutcomeStatus) Failed() bool {
	return s == StatusExhausted || s == StatusFatal
}

// TargetOutcome records how one target's lifecycle concluded. Immutable once
// created.
type TargetOutcome struct {
	AccountID   string        `json:"account_id"`
	AccountName string        `json:"account_name,omitempty"`
	Region      string        `json:"region"`
	Status      OutcomeStatus `json:"status"`
	Attempts    int           `json:"attempts"`
	LastError   string        `json:"last_error,omitempty"`
	Duration    time.Duration `json:"duration_ns,omitempty"`
}

// Target returns the outcome's target identity as "account/region". Outcomes
// are keyed by this identity, never by arrival order.
func (o TargetOutcome) Target() string {
	return fmt.Sprintf("%s/%s", o.AccountID, o.Region)
}
