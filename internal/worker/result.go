package worker

// ResultClass classifies a single execution attempt.
type ResultClass string

const (
	// ClassSuccess: the attempt completed; no retry.
	ClassSuccess ResultClass = "SUCCESS"

	// ClassRetryable: the attempt failed in a way that may heal (throttling,
	// timeout, transient API error); the supervisor may retry up to the
	// worker's max attempts.
	ClassRetryable ResultClass = "RETRYABLE"

	// ClassFatal: retrying cannot help (invalid target, authorization
	// failure); the target is terminal after the first attempt.
	ClassFatal ResultClass = "FATAL"
)

// CauseTimeout is the cause attached when an execution exceeds the worker's
// per-target timeout.
const CauseTimeout = "timeout"

// ExecutionResult is the outcome of one execution attempt against one target.
type ExecutionResult struct {
	Class  ResultClass `json:"class"`
	Detail string      `json:"detail,omitempty"`
}

// Success returns a successful result with optional detail.
func Success(detail string) ExecutionResult {
	return ExecutionResult{Class: ClassSuccess, Detail: detail}
}

// Retryable returns a retryable failure with its cause.
func Retryable(cause string) ExecutionResult {
	return ExecutionResult{Class: ClassRetryable, Detail: cause}
}

// Fatal returns a terminal failure with its cause.
func Fatal(cause string) ExecutionResult {
	return ExecutionResult{Class: ClassFatal, Detail: cause}
}
