package supervise

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"starfleet/internal/dispatch"
	"starfleet/internal/payload"
	"starfleet/internal/report"
	"starfleet/internal/resolve"
	"starfleet/internal/worker"
)

func testTargets(ids ...string) []resolve.Target {
	var ts []resolve.Target
	for _, id := range ids {
		ts = append(ts, resolve.Target{AccountID: id, Region: "us-east-1"})
	}
	return ts
}

func newBuilder(t *testing.T) *payload.Builder {
	t.Helper()
	b, err := payload.NewBuilder("echo", "run-test", map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("NewBuilder error: %v", err)
	}
	return b
}

// countingInvoker tracks attempts per target and delegates the result to fn.
type countingInvoker struct {
	mu       sync.Mutex
	attempts map[string]int
	fn       func(target string, attempt int) worker.ExecutionResult
}

func newCountingInvoker(fn func(target string, attempt int) worker.ExecutionResult) *countingInvoker {
	return &countingInvoker{attempts: make(map[string]int), fn: fn}
}

func (c *countingInvoker) Invoke(_ context.Context, inv payload.Invocation) worker.ExecutionResult {
	c.mu.Lock()
	c.attempts[inv.Target()]++
	n := c.attempts[inv.Target()]
	c.mu.Unlock()
	return c.fn(inv.Target(), n)
}

func (c *countingInvoker) count(target string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts[target]
}

func runSupervisor(t *testing.T, ctx context.Context, inv dispatch.Invoker, cfg Config, targets []resolve.Target) ([]report.TargetOutcome, error) {
	t.Helper()
	d, err := dispatch.New(inv, 4, 5*time.Second)
	if err != nil {
		t.Fatalf("dispatch.New error: %v", err)
	}
	s, err := New(d, newBuilder(t), cfg)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return s.Run(ctx, targets)
}

func TestSupervisor_AllSucceed(t *testing.T) {
	inv := newCountingInvoker(func(string, int) worker.ExecutionResult {
		return worker.Success("")
	})
	targets := testTargets("111111111111", "222222222222", "333333333333")

	outcomes, err := runSupervisor(t, context.Background(), inv, Config{MaxAttempts: 3}, targets)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(outcomes) != len(targets) {
		t.Fatalf("want %d outcomes, got %d", len(targets), len(outcomes))
	}
	for i, o := range outcomes {
		if o.AccountID != targets[i].AccountID {
			t.Fatalf("outcome %d out of target order: %s", i, o.AccountID)
		}
		if o.Status != report.StatusSucceeded || o.Attempts != 1 {
			t.Fatalf("outcome %s: want SUCCEEDED after 1 attempt, got %s after %d", o.Target(), o.Status, o.Attempts)
		}
	}
}

func TestSupervisor_ZeroTargets(t *testing.T) {
	inv := newCountingInvoker(func(string, int) worker.ExecutionResult {
		t.Error("invoker must not be called for zero targets")
		return worker.Success("")
	})
	outcomes, err := runSupervisor(t, context.Background(), inv, Config{MaxAttempts: 3}, nil)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(outcomes) != 0 {
		t.Fatalf("want no outcomes, got %d", len(outcomes))
	}
}

func TestSupervisor_FatalTerminatesOnFirstAttempt(t *testing.T) {
	inv := newCountingInvoker(func(string, int) worker.ExecutionResult {
		return worker.Fatal("access denied")
	})
	targets := testTargets("111111111111")

	outcomes, err := runSupervisor(t, context.Background(), inv, Config{MaxAttempts: 3}, targets)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	o := outcomes[0]
	if o.Status != report.StatusFatal {
		t.Fatalf("want FATAL, got %s", o.Status)
	}
	if o.Attempts != 1 {
		t.Fatalf("fatal must be terminal at attempt 1, got %d attempts", o.Attempts)
	}
	if o.LastError != "access denied" {
		t.Fatalf("want cause preserved, got %q", o.LastError)
	}
	if got := inv.count("111111111111/us-east-1"); got != 1 {
		t.Fatalf("fatal target must not be retried, got %d invocations", got)
	}
}

func TestSupervisor_RetryableRecovers(t *testing.T) {
	inv := newCountingInvoker(func(_ string, attempt int) worker.ExecutionResult {
		if attempt < 3 {
			return worker.Retryable("throttled")
		}
		return worker.Success("")
	})
	targets := testTargets("111111111111")

	outcomes, err := runSupervisor(t, context.Background(), inv, Config{MaxAttempts: 3}, targets)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	o := outcomes[0]
	if o.Status != report.StatusSucceeded {
		t.Fatalf("want SUCCEEDED, got %s (%s)", o.Status, o.LastError)
	}
	if o.Attempts != 3 {
		t.Fatalf("want success on attempt 3, got %d", o.Attempts)
	}
}

func TestSupervisor_RetryableExhausts(t *testing.T) {
	inv := newCountingInvoker(func(string, int) worker.ExecutionResult {
		return worker.Retryable("throttled")
	})
	targets := testTargets("111111111111", "222222222222")

	outcomes, err := runSupervisor(t, context.Background(), inv, Config{MaxAttempts: 3}, targets)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	for _, o := range outcomes {
		if o.Status != report.StatusExhausted {
			t.Fatalf("target %s: want EXHAUSTED, got %s", o.Target(), o.Status)
		}
		if o.Attempts != 3 {
			t.Fatalf("target %s: want exactly 3 attempts, got %d", o.Target(), o.Attempts)
		}
	}
	for _, target := range []string{"111111111111/us-east-1", "222222222222/us-east-1"} {
		if got := inv.count(target); got != 3 {
			t.Fatalf("target %s: want exactly 3 invocations, got %d", target, got)
		}
	}
}

func TestSupervisor_OnOutcomeObservesEachTargetOnce(t *testing.T) {
	inv := newCountingInvoker(func(target string, _ int) worker.ExecutionResult {
		if target == "222222222222/us-east-1" {
			return worker.Fatal("bad target")
		}
		return worker.Success("")
	})
	targets := testTargets("111111111111", "222222222222", "333333333333")

	seen := make(map[string]int)
	cfg := Config{
		MaxAttempts: 3,
		OnOutcome: func(o report.TargetOutcome) {
			seen[o.Target()]++
		},
	}
	if _, err := runSupervisor(t, context.Background(), inv, cfg, targets); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(seen) != 3 {
		t.Fatalf("want 3 observed targets, got %d", len(seen))
	}
	for target, n := range seen {
		if n != 1 {
			t.Fatalf("target %s observed %d times, want exactly once", target, n)
		}
	}
}

func TestSupervisor_CancelYieldsPartialOutcomes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	release := make(chan struct{})
	inv := dispatch.InvokerFunc(func(_ context.Context, inv payload.Invocation) worker.ExecutionResult {
		if inv.AccountID == "111111111111" {
			return worker.Success("")
		}
		// Block past cancellation; released only at test teardown.
		<-release
		return worker.Success("")
	})
	defer close(release)

	targets := testTargets("111111111111", "222222222222", "333333333333")

	var mu sync.Mutex
	var observed []report.TargetOutcome
	cfg := Config{
		MaxAttempts: 3,
		OnOutcome: func(o report.TargetOutcome) {
			mu.Lock()
			defer mu.Unlock()
			observed = append(observed, o)
			if o.AccountID == "111111111111" {
				cancel()
			}
		},
	}

	d, err := dispatch.New(inv, 4, 5*time.Second)
	if err != nil {
		t.Fatalf("dispatch.New error: %v", err)
	}
	s, err := New(d, newBuilder(t), cfg)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	outcomes, runErr := s.Run(ctx, targets)
	if !errors.Is(runErr, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", runErr)
	}

	// The report stays complete and consistent: exactly one outcome per
	// target, unfinished targets marked skipped.
	if len(outcomes) != len(targets) {
		t.Fatalf("want %d outcomes, got %d", len(targets), len(outcomes))
	}
	byTarget := make(map[string]report.TargetOutcome)
	for _, o := range outcomes {
		if _, dup := byTarget[o.Target()]; dup {
			t.Fatalf("duplicate outcome for %s", o.Target())
		}
		byTarget[o.Target()] = o
	}
	if got := byTarget["111111111111/us-east-1"].Status; got != report.StatusSucceeded {
		t.Fatalf("finished target: want SUCCEEDED, got %s", got)
	}
	skipped := 0
	for _, o := range outcomes {
		if o.Status == report.StatusSkipped {
			skipped++
		}
	}
	if skipped == 0 {
		t.Fatal("want at least one skipped target after cancellation")
	}
}

func TestSupervisor_BackoffDoesNotHoldPoolSlot(t *testing.T) {
	// One pool slot. The first target backs off for much longer than the
	// second target needs; the second target must finish during the backoff.
	inv := newCountingInvoker(func(target string, attempt int) worker.ExecutionResult {
		if target == "111111111111/us-east-1" && attempt == 1 {
			return worker.Retryable("throttled")
		}
		return worker.Success("")
	})
	targets := testTargets("111111111111", "222222222222")

	var mu sync.Mutex
	var order []string
	cfg := Config{
		MaxAttempts: 2,
		Retry:       ExponentialBackoffStrategy{Base: 300 * time.Millisecond, Factor: 1, Max: 300 * time.Millisecond},
		OnOutcome: func(o report.TargetOutcome) {
			mu.Lock()
			order = append(order, o.AccountID)
			mu.Unlock()
		},
	}

	d, err := dispatch.New(inv, 1, 5*time.Second)
	if err != nil {
		t.Fatalf("dispatch.New error: %v", err)
	}
	s, err := New(d, newBuilder(t), cfg)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	outcomes, runErr := s.Run(context.Background(), targets)
	if runErr != nil {
		t.Fatalf("Run error: %v", runErr)
	}
	for _, o := range outcomes {
		if o.Status != report.StatusSucceeded {
			t.Fatalf("target %s: want SUCCEEDED, got %s", o.Target(), o.Status)
		}
	}
	if len(order) != 2 || order[0] != "222222222222" {
		t.Fatalf("second target should finish during the first target's backoff; terminal order: %v", order)
	}
}

func TestNew_Validation(t *testing.T) {
	b, err := payload.NewBuilder("echo", "run-test", nil)
	if err != nil {
		t.Fatalf("NewBuilder error: %v", err)
	}
	d, err := dispatch.New(dispatch.InvokerFunc(func(context.Context, payload.Invocation) worker.ExecutionResult {
		return worker.Success("")
	}), 1, time.Second)
	if err != nil {
		t.Fatalf("dispatch.New error: %v", err)
	}

	if _, err := New(nil, b, Config{MaxAttempts: 1}); err == nil {
		t.Fatal("want error for nil runner")
	}
	if _, err := New(d, nil, Config{MaxAttempts: 1}); err == nil {
		t.Fatal("want error for nil builder")
	}
	if _, err := New(d, b, Config{MaxAttempts: 0}); err == nil {
		t.Fatal("want error for zero max attempts")
	}
}
