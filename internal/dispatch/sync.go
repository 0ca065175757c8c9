package dispatch

import (
	"context"

	"starfleet/internal/payload"
	"starfleet/internal/worker"
)

// SyncInvoker executes the worker in-process: the dispatcher's pool goroutine
// calls the worker's entry point directly and awaits its result.
type SyncInvoker struct {
	worker worker.Worker
}

func NewSyncInvoker(w worker.Worker) *SyncInvoker {
	return &SyncInvoker{worker: w}
}

func (s *SyncInvoker) Invoke(ctx context.Context, inv payload.Invocation) worker.ExecutionResult {
	return s.worker.Execute(ctx, inv)
}
