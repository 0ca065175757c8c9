// Package worker defines the pluggable worker capability: the business logic
// the engine fans out across targets. The engine depends only on the Worker
// interface, never on concrete worker types; concrete workers register
// themselves by name at init time.
package worker

import (
	"context"

	"starfleet/internal/payload"
)

// Worker is a unit of fleet work. Execute must be safe to call concurrently
// and must honor ctx cancellation: the dispatcher enforces the per-target
// timeout through the context.
type Worker interface {
	// Name is the registry key referenced by manifests.
	Name() string

	// Description is a one-line human summary for `starfleet workers list`.
	Description() string

	// Execute runs the worker against a single target. Failures are reported
	// through the result classification, not an error return: the engine
	// needs to distinguish retryable from fatal outcomes.
	Execute(ctx context.Context, inv payload.Invocation) ExecutionResult
}
