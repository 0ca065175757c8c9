// Package dispatch fans invocation payloads out to an execution substrate
// under a bounded concurrency limit with a per-target timeout.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"starfleet/internal/payload"
	"starfleet/internal/worker"
)

// Invoker is the execution substrate: it runs exactly one invocation to
// completion. Implementations must be safe for concurrent use and must honor
// ctx cancellation (the dispatcher enforces the per-target timeout through
// the context).
type Invoker interface {
	Invoke(ctx context.Context, inv payload.Invocation) worker.ExecutionResult
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, inv payload.Invocation) worker.ExecutionResult

func (f InvokerFunc) Invoke(ctx context.Context, inv payload.Invocation) worker.ExecutionResult {
	return f(ctx, inv)
}

// Completion pairs an invocation with its execution result.
type Completion struct {
	Invocation payload.Invocation
	Result     worker.ExecutionResult
}

// Dispatcher executes payloads with at most `concurrency` in flight at once.
// It never retries; retry policy is the supervisor's responsibility layered
// on top.
type Dispatcher struct {
	invoker     Invoker
	concurrency int64
	timeout     time.Duration
}

func New(invoker Invoker, concurrency int, timeout time.Duration) (*Dispatcher, error) {
	if invoker == nil {
		return nil, errors.New("invoker is nil")
	}
	if concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be >= 1, got %d", concurrency)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0, got %v", timeout)
	}
	return &Dispatcher{
		invoker:     invoker,
		concurrency: int64(concurrency),
		timeout:     timeout,
	}, nil
}

// Run pulls payloads from in and executes them concurrently, never exceeding
// the concurrency limit.
//
// Channel semantics:
//   - In the normal (non-canceled) case, exactly one Completion is emitted
//     per payload received.
//   - An execution that exceeds the per-target timeout completes as a
//     retryable failure with cause timeout, and its pool slot is freed
//     immediately; a hung invoker never blocks the pool.
//   - On context cancellation, admission stops promptly; fewer completions
//     than payloads may be emitted.
//   - The completions channel and the error channel are both closed reliably
//     once in is closed (or the run is canceled) and in-flight work drains.
func (d *Dispatcher) Run(ctx context.Context, in <-chan payload.Invocation) (<-chan Completion, <-chan error) {
	out := make(chan Completion)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		trySendErr := func(err error) {
			if err == nil {
				return
			}
			select {
			case errCh <- err:
			default:
			}
		}

		if ctx == nil {
			trySendErr(errors.New("context is nil"))
			return
		}

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		sem := semaphore.NewWeighted(d.concurrency)
		var wg sync.WaitGroup

	admission:
		for {
			var inv payload.Invocation
			var ok bool
			select {
			case inv, ok = <-in:
				if !ok {
					break admission
				}
			case <-runCtx.Done():
				break admission
			}

			if err := sem.Acquire(runCtx, 1); err != nil {
				// Run canceled while waiting for a slot.
				break
			}

			wg.Add(1)
			go d.execute(runCtx, inv, sem, &wg, out)
		}

		wg.Wait()
		trySendErr(ctx.Err())
	}()

	return out, errCh
}

// execute runs one invocation inside an acquired pool slot. The slot is
// released as soon as the result is known, including on timeout while the
// invoker goroutine is still winding down.
func (d *Dispatcher) execute(runCtx context.Context, inv payload.Invocation, sem *semaphore.Weighted, wg *sync.WaitGroup, out chan<- Completion) {
	defer wg.Done()

	invCtx, cancel := context.WithTimeout(runCtx, d.timeout)
	defer cancel()

	resCh := make(chan worker.ExecutionResult, 1)
	go func() {
		resCh <- d.invoker.Invoke(invCtx, inv)
	}()

	var res worker.ExecutionResult
	select {
	case res = <-resCh:
	case <-invCtx.Done():
		if runCtx.Err() != nil {
			// Whole run canceled: no completion for this target.
			sem.Release(1)
			return
		}
		res = worker.Retryable(worker.CauseTimeout)
	}

	sem.Release(1)

	select {
	case out <- Completion{Invocation: inv, Result: res}:
	case <-runCtx.Done():
	}
}
