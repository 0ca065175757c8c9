// Package engine wires the launch pipeline together: manifest, index,
// target resolution, dispatch, supervision, aggregation and sinks.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"starfleet/internal/config"
	"starfleet/internal/dispatch"
	"starfleet/internal/index"
	"starfleet/internal/payload"
	"starfleet/internal/report"
	"starfleet/internal/resolve"
	"starfleet/internal/supervise"
	"starfleet/internal/worker"
)

func exitCodeForRun(fatal bool, status report.RunStatus) int {
	// Exit code contract (UI spec):
	// 0 = success, every target succeeded (or no targets)
	// 1 = partial failure
	// 2 = failure, every target failed
	// 3 = fatal error (run never dispatched)
	if fatal {
		return 3
	}
	switch status {
	case report.RunPartialFailure:
		return 1
	case report.RunFailure:
		return 2
	default:
		return 0
	}
}

func setupOutputManager(cfg *config.Config) (*report.Manager, error) {
	outMgr := report.NewManager()

	// Console Sink
	if !cfg.Output.NoConsole {
		if err := outMgr.AddSink(report.NewConsoleSink(nil, cfg.Output.ConsoleFormat, cfg.Output.ConsoleFilterStatus)); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// Emit Sinks (additional structured streams)
	for _, emit := range cfg.Output.Emit {
		es, err := report.NewEmitSink(os.Stdout, emit)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(es); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// File Sink
	if cfg.Output.Out != "" {
		fs, err := report.NewFileSink(cfg.Output.Out, cfg.Output.OutFormat)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(fs); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	return outMgr, nil
}

// applyConfigOverridesIfAny applies worker config overrides supplied via
// repeated --set flags on top of the manifest entry's config block.
//
// Example:
//
//	starfleet launch --manifest fleet.yaml --worker echo --set message=ahoy
func applyConfigOverridesIfAny(cfg *config.Config, def *worker.Definition) error {
	if len(cfg.Targeting.Set) == 0 {
		return nil
	}
	overrides, err := config.ParseConfigOverrides(cfg.Targeting.Set)
	if err != nil {
		return err
	}
	if def.Config == nil {
		def.Config = make(map[string]any, len(overrides))
	}
	for k, v := range overrides {
		def.Config[k] = v
	}
	return nil
}

// applyRuntimeOverrides lets CLI flags win over the manifest's runtime knobs.
func applyRuntimeOverrides(cfg *config.Config, def *worker.Definition) {
	if cfg.Runtime.Concurrency > 0 {
		def.Concurrency = cfg.Runtime.Concurrency
	}
	if cfg.Runtime.Timeout > 0 {
		def.Timeout = worker.Duration(cfg.Runtime.Timeout)
	}
	if cfg.Targeting.Commit {
		if def.Config == nil {
			def.Config = make(map[string]any, 1)
		}
		// Workers gate their mutating actions on this key.
		def.Config["commit"] = true
	}
}

// narrowTargets intersects the resolved target set with the --accounts and
// --regions narrowing flags. Narrowing never adds targets.
func narrowTargets(targets []resolve.Target, accounts, regions []string) []resolve.Target {
	if len(accounts) == 0 && len(regions) == 0 {
		return targets
	}
	accountSet := make(map[string]struct{}, len(accounts))
	for _, a := range accounts {
		accountSet[a] = struct{}{}
	}
	regionSet := make(map[string]struct{}, len(regions))
	for _, r := range regions {
		regionSet[r] = struct{}{}
	}

	var out []resolve.Target
	for _, t := range targets {
		if len(accountSet) > 0 {
			if _, ok := accountSet[t.AccountID]; !ok {
				continue
			}
		}
		if len(regionSet) > 0 {
			if _, ok := regionSet[t.Region]; !ok {
				continue
			}
		}
		out = append(out, t)
	}
	return out
}

type Engine struct {
	// loadIndex is a test seam; if nil, Run loads from the configured
	// file or SQL source.
	loadIndex func(ctx context.Context, cfg *config.Config) (*index.Index, error)

	// newInvoker is a test seam; if nil, Run builds the sync or queued
	// invoker from the worker definition.
	newInvoker func(ctx context.Context, cfg *config.Config, def worker.Definition, w worker.Worker) (dispatch.Invoker, func() error, error)

	// newRunID is a test seam for deterministic run IDs.
	newRunID func() string
}

func NewEngine() *Engine {
	return &Engine{}
}

func (e *Engine) resolveIndex(ctx context.Context, cfg *config.Config) (*index.Index, error) {
	if e.loadIndex != nil {
		return e.loadIndex(ctx, cfg)
	}
	if cfg.Index.DSN != "" {
		src, err := index.NewSQLSource(cfg.Index.DSN)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", index.ErrUnavailable, err)
		}
		defer src.Close()
		return index.Load(ctx, src)
	}
	return index.Load(ctx, index.NewFileSource(cfg.Index.File))
}

func (e *Engine) buildInvoker(ctx context.Context, cfg *config.Config, def worker.Definition, w worker.Worker) (dispatch.Invoker, func() error, error) {
	if e.newInvoker != nil {
		return e.newInvoker(ctx, cfg, def, w)
	}
	if def.Mode == worker.ModeQueued {
		q, err := dispatch.NewQueueInvoker(ctx, dispatch.QueueConfig{
			ProjectID:          cfg.Queue.Project,
			Topic:              cfg.Queue.Topic,
			ResultSubscription: cfg.Queue.ResultSubscription,
		}, nil)
		if err != nil {
			return nil, nil, err
		}
		return q, q.Close, nil
	}
	return dispatch.NewSyncInvoker(w), nil, nil
}

func maybeDryRun(cfg *config.Config, def worker.Definition, targets []resolve.Target) (int, bool) {
	if !cfg.Targeting.DryRun {
		return 0, false
	}
	fmt.Printf("Launch plan for worker %q (%d targets):\n", def.Name, len(targets))
	for _, t := range targets {
		fmt.Println(t.String())
	}
	return 0, true
}

func (e *Engine) Run(ctx context.Context, cfg *config.Config) int {
	fatalf := func(format string, args ...any) int {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
		return exitCodeForRun(true, "")
	}

	manifest, err := worker.LoadManifest(cfg.Targeting.Manifest)
	if err != nil {
		return fatalf("Error loading manifest: %v", err)
	}
	def, err := manifest.Find(cfg.Targeting.Worker)
	if err != nil {
		return fatalf("Error selecting worker: %v", err)
	}
	if !def.IsEnabled() {
		return fatalf("Worker %q is disabled in the manifest", def.Name)
	}

	w, err := worker.Resolve(def.Worker)
	if err != nil {
		return fatalf("Error resolving worker plugin: %v", err)
	}

	if err := applyConfigOverridesIfAny(cfg, &def); err != nil {
		return fatalf("Error applying config overrides: %v", err)
	}
	applyRuntimeOverrides(cfg, &def)

	if !cfg.Output.NoConsole {
		fmt.Fprintln(os.Stderr, "Loading account index...")
	}
	idx, err := e.resolveIndex(ctx, cfg)
	if err != nil {
		return fatalf("Error loading account index: %v", err)
	}

	targets := resolve.Resolve(def.Targeting, idx)
	targets = narrowTargets(targets, cfg.Targeting.Accounts, cfg.Targeting.Regions)
	if !cfg.Output.NoConsole {
		fmt.Fprintf(os.Stderr, "Resolved %d targets.\n", len(targets))
	}

	if code, ok := maybeDryRun(cfg, def, targets); ok {
		return code
	}

	runID := uuid.NewString()
	if e.newRunID != nil {
		runID = e.newRunID()
	}

	builder, err := payload.NewBuilder(def.Name, runID, def.Config)
	if err != nil {
		// Nothing was dispatched; every target would have failed the same way.
		return fatalf("Error building payloads: %v", err)
	}

	outMgr, err := setupOutputManager(cfg)
	if err != nil {
		return fatalf("Error creating output sinks: %v", err)
	}
	defer outMgr.Close()

	invoker, closeInvoker, err := e.buildInvoker(ctx, cfg, def, w)
	if err != nil {
		return fatalf("Error preparing invocation mode %q: %v", def.Mode, err)
	}
	if closeInvoker != nil {
		defer closeInvoker()
	}

	dispatcher, err := dispatch.New(invoker, def.Concurrency, def.Timeout.Std())
	if err != nil {
		return fatalf("Error configuring dispatcher: %v", err)
	}

	sup, err := supervise.New(dispatcher, builder, supervise.Config{
		MaxAttempts: def.Retry.MaxAttempts,
		Retry: supervise.ExponentialBackoffStrategy{
			Base:   def.Retry.BaseDelay.Std(),
			Factor: 2,
			Max:    def.Retry.MaxDelay.Std(),
			Jitter: def.Retry.Jitter,
		},
		OnOutcome: func(o report.TargetOutcome) {
			_ = outMgr.Write(o)
		},
	})
	if err != nil {
		return fatalf("Error configuring supervisor: %v", err)
	}

	_ = outMgr.Write(report.Event{Type: "run.started", Worker: def.Name, Targets: len(targets)})

	startedAt := time.Now()
	outcomes, runErr := sup.Run(ctx, targets)
	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return fatalf("Error during dispatch: %v", runErr)
	}

	rep := report.Aggregate(runID, def.Name, outcomes, startedAt, time.Now())
	if !cfg.Output.NoConsole {
		printSummary(rep, runErr != nil)
	}

	code := exitCodeForRun(false, rep.Status)
	_ = outMgr.Write(report.Event{Type: "run.finished", Worker: def.Name, Targets: rep.Total, ExitCode: code})
	return code
}

func printSummary(rep report.RunReport, canceled bool) {
	fmt.Fprintf(os.Stderr, "Run %s finished: %s (%d targets: %d succeeded, %d failed, %d skipped)\n",
		rep.RunID, rep.Status, rep.Total, rep.Succeeded, rep.Failed, rep.Skipped)
	if canceled {
		fmt.Fprintln(os.Stderr, "Run was canceled; the report covers the targets decided before cancellation.")
	}
}
