// Package supervise owns the per-target lifecycle: it feeds invocations to
// the dispatcher, applies the retry policy to each completion and drives
// every target to exactly one terminal outcome.
package supervise

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"starfleet/internal/dispatch"
	"starfleet/internal/payload"
	"starfleet/internal/report"
	"starfleet/internal/resolve"
	"starfleet/internal/worker"
)

// Runner is the dispatch surface the supervisor drives. *dispatch.Dispatcher
// satisfies it.
type Runner interface {
	Run(ctx context.Context, in <-chan payload.Invocation) (<-chan dispatch.Completion, <-chan error)
}

// Config tunes a Supervisor.
type Config struct {
	// MaxAttempts caps attempts per target, first attempt included.
	MaxAttempts int

	// Retry computes the delay before each retry attempt. Defaults to
	// NoDelayStrategy.
	Retry RetryStrategy

	// OnOutcome, if set, observes each terminal outcome as it is decided.
	// Called from a single goroutine.
	OnOutcome func(report.TargetOutcome)

	Logger *slog.Logger
}

// Supervisor drives targets through attempt, retry and terminal outcome.
// Retries wait outside the dispatcher's worker pool: a target backing off
// holds no pool slot.
type Supervisor struct {
	runner      Runner
	builder     *payload.Builder
	maxAttempts int
	retry       RetryStrategy
	onOutcome   func(report.TargetOutcome)
	logger      *slog.Logger
}

func New(runner Runner, builder *payload.Builder, cfg Config) (*Supervisor, error) {
	if runner == nil {
		return nil, errors.New("runner is nil")
	}
	if builder == nil {
		return nil, errors.New("payload builder is nil")
	}
	if cfg.MaxAttempts < 1 {
		return nil, errors.New("max attempts must be >= 1")
	}
	retry := cfg.Retry
	if retry == nil {
		retry = NoDelayStrategy{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		runner:      runner,
		builder:     builder,
		maxAttempts: cfg.MaxAttempts,
		retry:       retry,
		onOutcome:   cfg.OnOutcome,
		logger:      logger,
	}, nil
}

type targetState struct {
	target   resolve.Target
	attempts int
	started  time.Time
	outcome  *report.TargetOutcome
}

// Run executes every target to a terminal outcome and returns the outcomes
// in target order. On cancellation it returns early with the targets decided
// so far; targets that never reached a terminal execution state are reported
// as skipped. The returned error is the cancellation cause, if any.
func (s *Supervisor) Run(ctx context.Context, targets []resolve.Target) ([]report.TargetOutcome, error) {
	if len(targets) == 0 {
		return nil, nil
	}

	states := make(map[string]*targetState, len(targets))
	now := time.Now()
	for _, t := range targets {
		states[t.String()] = &targetState{target: t, started: now}
	}

	submitCh := make(chan payload.Invocation)
	completions, errCh := s.runner.Run(ctx, submitCh)

	var senders sync.WaitGroup

	// Seed the first attempt for every target. Later attempts are produced
	// by the retry timers below.
	senders.Add(1)
	go func() {
		defer senders.Done()
		for _, t := range targets {
			inv := s.builder.Build(t, 1)
			select {
			case submitCh <- inv:
			case <-ctx.Done():
				return
			}
		}
	}()

	pending := len(targets)
	terminal := func(st *targetState, o report.TargetOutcome) {
		st.outcome = &o
		pending--
		if s.onOutcome != nil {
			s.onOutcome(o)
		}
		if pending == 0 {
			// No sender can be in flight: a pending retry or unseeded
			// target would keep its state non-terminal.
			close(submitCh)
		}
	}

	for completions != nil {
		c, ok := <-completions
		if !ok {
			completions = nil
			continue
		}

		st := states[c.Invocation.Target()]
		if st == nil || st.outcome != nil {
			// Unknown target or late duplicate; outcomes are decided once.
			continue
		}
		st.attempts = c.Invocation.Attempt

		switch c.Result.Class {
		case worker.ClassSuccess:
			terminal(st, s.outcomeFor(st, report.StatusSucceeded, ""))
		case worker.ClassFatal:
			s.logger.Debug("target failed fatally",
				"target", c.Invocation.Target(), "attempt", c.Invocation.Attempt, "cause", c.Result.Detail)
			terminal(st, s.outcomeFor(st, report.StatusFatal, c.Result.Detail))
		case worker.ClassRetryable:
			if c.Invocation.Attempt >= s.maxAttempts {
				terminal(st, s.outcomeFor(st, report.StatusExhausted, c.Result.Detail))
				continue
			}
			delay := s.retry.SleepDuration(c.Invocation.Attempt - 1)
			s.logger.Debug("retrying target",
				"target", c.Invocation.Target(), "attempt", c.Invocation.Attempt+1, "delay", delay)
			next := s.builder.Build(st.target, c.Invocation.Attempt+1)
			senders.Add(1)
			go func() {
				defer senders.Done()
				if delay > 0 {
					timer := time.NewTimer(delay)
					defer timer.Stop()
					select {
					case <-timer.C:
					case <-ctx.Done():
						return
					}
				}
				select {
				case submitCh <- next:
				case <-ctx.Done():
				}
			}()
		default:
			terminal(st, s.outcomeFor(st, report.StatusFatal, "unknown result class: "+string(c.Result.Class)))
		}
	}

	runErr := <-errCh
	senders.Wait()

	outcomes := make([]report.TargetOutcome, 0, len(targets))
	for _, t := range targets {
		st := states[t.String()]
		if st.outcome == nil {
			// Canceled before this target reached a terminal state.
			o := s.outcomeFor(st, report.StatusSkipped, "")
			st.outcome = &o
			if s.onOutcome != nil {
				s.onOutcome(o)
			}
		}
		outcomes = append(outcomes, *st.outcome)
	}
	return outcomes, runErr
}

func (s *Supervisor) outcomeFor(st *targetState, status report.OutcomeStatus, lastError string) report.TargetOutcome {
	return report.TargetOutcome{
		AccountID:   st.target.AccountID,
		AccountName: st.target.AccountName,
		Region:      st.target.Region,
		Status:      status,
		Attempts:    st.attempts,
		LastError:   lastError,
		Duration:    time.Since(st.started),
	}
}
