package report

// Event is a lifecycle record for NDJSON streaming output.
//
// In NDJSON mode, sinks emit Events (one JSON object per line), including:
// - run.started
// - target.outcome
// - run.finished
//
// JSON mode remains an aggregate of TargetOutcome values.
type Event struct {
	Type   string `json:"type"`
	Target string `json:"target,omitempty"`
	*TargetOutcome
	Worker   string `json:"worker,omitempty"`
	Targets  int    `json:"targets,omitempty"`
	ExitCode int    `json:"exit_code,omitempty"`
}

func eventFromOutcome(o TargetOutcome) Event {
	return Event{Type: "target.outcome", Target: o.Target(), TargetOutcome: &o}
}
