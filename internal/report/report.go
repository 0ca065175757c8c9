package report

import (
	"sort"
	"time"
)

// RunStatus is the overall verdict for one worker run.
type RunStatus string

const (
	// RunSuccess: no target failed. A run with zero targets is a success.
	RunSuccess RunStatus = "SUCCESS"

	// RunPartialFailure: at least one target failed and at least one
	// succeeded.
	RunPartialFailure RunStatus = "PARTIAL_FAILURE"

	// RunFailure: every target failed.
	RunFailure RunStatus = "FAILURE"
)

// RunReport is the terminal artifact of a run: exact counts plus every
// failing target with its cause.
type RunReport struct {
	RunID  string `json:"run_id"`
	Worker string `json:"worker"`

	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`

	Status RunStatus `json:"status"`

	// Failures lists the failing outcomes sorted by target identity.
	Failures []TargetOutcome `json:"failures,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Aggregate reduces outcomes into a RunReport. It is a pure function of its
// inputs: aggregating the same outcome set twice yields an identical report.
func Aggregate(runID, workerName string, outcomes []TargetOutcome, startedAt, finishedAt time.Time) RunReport {
	r := RunReport{
		RunID:      runID,
		Worker:     workerName,
		Total:      len(outcomes),
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
	}

	for _, o := range outcomes {
		switch {
		case o.Status == StatusSucceeded:
			r.Succeeded++
		case o.Status.Failed():
			r.Failed++
			r.Failures = append(r.Failures, o)
		case o.Status == StatusSkipped:
			r.Skipped++
		}
	}

	sort.Slice(r.Failures, func(i, j int) bool {
		return r.Failures[i].Target() < r.Failures[j].Target()
	})

	switch {
	case r.Failed == 0:
		r.Status = RunSuccess
	case r.Succeeded > 0:
		r.Status = RunPartialFailure
	default:
		r.Status = RunFailure
	}

	return r
}
