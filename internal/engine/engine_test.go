package engine

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"starfleet/internal/config"
	"starfleet/internal/index"
	"starfleet/internal/report"
	"starfleet/internal/resolve"
	"starfleet/internal/worker"

	_ "starfleet/internal/worker/plugins"
)

func TestExitCodeForRun(t *testing.T) {
	tests := []struct {
		name   string
		fatal  bool
		status report.RunStatus
		want   int
	}{
		{name: "success", status: report.RunSuccess, want: 0},
		{name: "partial failure", status: report.RunPartialFailure, want: 1},
		{name: "failure", status: report.RunFailure, want: 2},
		{name: "fatal wins", fatal: true, status: report.RunSuccess, want: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCodeForRun(tt.fatal, tt.status); got != tt.want {
				t.Fatalf("want %d, got %d", tt.want, got)
			}
		})
	}
}

func TestNarrowTargets(t *testing.T) {
	targets := []resolve.Target{
		{AccountID: "111111111111", Region: "us-east-1"},
		{AccountID: "111111111111", Region: "eu-west-1"},
		{AccountID: "222222222222", Region: "us-east-1"},
	}

	t.Run("no narrowing returns all", func(t *testing.T) {
		if got := narrowTargets(targets, nil, nil); len(got) != 3 {
			t.Fatalf("want 3 targets, got %d", len(got))
		}
	})

	t.Run("by account", func(t *testing.T) {
		got := narrowTargets(targets, []string{"222222222222"}, nil)
		if len(got) != 1 || got[0].AccountID != "222222222222" {
			t.Fatalf("unexpected targets: %v", got)
		}
	})

	t.Run("by region", func(t *testing.T) {
		got := narrowTargets(targets, nil, []string{"eu-west-1"})
		if len(got) != 1 || got[0].Region != "eu-west-1" {
			t.Fatalf("unexpected targets: %v", got)
		}
	})

	t.Run("by both", func(t *testing.T) {
		got := narrowTargets(targets, []string{"111111111111"}, []string{"us-east-1"})
		if len(got) != 1 || got[0].AccountID != "111111111111" || got[0].Region != "us-east-1" {
			t.Fatalf("unexpected targets: %v", got)
		}
	})

	t.Run("unknown account yields none", func(t *testing.T) {
		if got := narrowTargets(targets, []string{"999999999999"}, nil); len(got) != 0 {
			t.Fatalf("want no targets, got %v", got)
		}
	})
}

// writeIndexFile materializes a two-account snapshot and returns its path.
func writeIndexFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accounts.json")
	accounts := []index.Account{
		{ID: "111111111111", Name: "workload-prod", Regions: []string{"us-east-1"}},
		{ID: "222222222222", Name: "workload-dev", Regions: []string{"us-east-1"}},
	}
	if err := index.WriteSnapshot(path, accounts, time.Now()); err != nil {
		t.Fatalf("WriteSnapshot error: %v", err)
	}
	return path
}

func writeManifest(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	return path
}

func launchConfig(t *testing.T, manifest, indexFile string) *config.Config {
	t.Helper()
	cfg := config.New()
	cfg.Targeting.Manifest = manifest
	cfg.Targeting.Worker = "smoke"
	cfg.Index.File = indexFile
	cfg.Output.NoConsole = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	return cfg
}

const successManifest = `
workers:
  - name: smoke
    worker: echo
    mode: sync
    retry:
      max_attempts: 2
      base_delay: 1ms
      max_delay: 5ms
`

const partialManifest = `
workers:
  - name: smoke
    worker: echo
    mode: sync
    retry:
      max_attempts: 2
      base_delay: 1ms
      max_delay: 5ms
    config:
      fatal_accounts: ["222222222222"]
`

const allFatalManifest = `
workers:
  - name: smoke
    worker: echo
    mode: sync
    config:
      fatal_accounts: ["111111111111", "222222222222"]
`

const noTargetsManifest = `
workers:
  - name: smoke
    worker: echo
    mode: sync
    targeting:
      include:
        accounts: ["999999999999"]
`

func TestRun_Success(t *testing.T) {
	out := filepath.Join(t.TempDir(), "events.ndjson")
	cfg := launchConfig(t, writeManifest(t, successManifest), writeIndexFile(t))
	cfg.Output.Out = out
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}

	code := NewEngine().Run(context.Background(), cfg)
	if code != 0 {
		t.Fatalf("want exit 0, got %d", code)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	// run.started + one outcome per target + run.finished
	if len(lines) != 4 {
		t.Fatalf("want 4 NDJSON events, got %d: %q", len(lines), lines)
	}
	var first, last report.Event
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("first line: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &last); err != nil {
		t.Fatalf("last line: %v", err)
	}
	if first.Type != "run.started" || first.Targets != 2 {
		t.Fatalf("unexpected run.started event: %+v", first)
	}
	if last.Type != "run.finished" || last.ExitCode != 0 {
		t.Fatalf("unexpected run.finished event: %+v", last)
	}
}

func TestRun_PartialFailure(t *testing.T) {
	cfg := launchConfig(t, writeManifest(t, partialManifest), writeIndexFile(t))
	if code := NewEngine().Run(context.Background(), cfg); code != 1 {
		t.Fatalf("want exit 1, got %d", code)
	}
}

func TestRun_AllTargetsFail(t *testing.T) {
	cfg := launchConfig(t, writeManifest(t, allFatalManifest), writeIndexFile(t))
	if code := NewEngine().Run(context.Background(), cfg); code != 2 {
		t.Fatalf("want exit 2, got %d", code)
	}
}

func TestRun_ZeroTargetsIsSuccess(t *testing.T) {
	cfg := launchConfig(t, writeManifest(t, noTargetsManifest), writeIndexFile(t))
	if code := NewEngine().Run(context.Background(), cfg); code != 0 {
		t.Fatalf("want exit 0 for zero targets, got %d", code)
	}
}

func TestRun_DryRunDispatchesNothing(t *testing.T) {
	out := filepath.Join(t.TempDir(), "events.ndjson")
	cfg := launchConfig(t, writeManifest(t, allFatalManifest), writeIndexFile(t))
	cfg.Targeting.DryRun = true
	cfg.Output.Out = out
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}

	if code := NewEngine().Run(context.Background(), cfg); code != 0 {
		t.Fatalf("dry run must exit 0, got %d", code)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("dry run must not open sinks; stat err: %v", err)
	}
}

func TestRun_FatalBeforeDispatch(t *testing.T) {
	t.Run("missing manifest", func(t *testing.T) {
		cfg := launchConfig(t, filepath.Join(t.TempDir(), "absent.yaml"), writeIndexFile(t))
		if code := NewEngine().Run(context.Background(), cfg); code != 3 {
			t.Fatalf("want exit 3, got %d", code)
		}
	})

	t.Run("missing index", func(t *testing.T) {
		cfg := launchConfig(t, writeManifest(t, successManifest), filepath.Join(t.TempDir(), "absent.json"))
		if code := NewEngine().Run(context.Background(), cfg); code != 3 {
			t.Fatalf("want exit 3, got %d", code)
		}
	})

	t.Run("unknown manifest entry", func(t *testing.T) {
		cfg := launchConfig(t, writeManifest(t, successManifest), writeIndexFile(t))
		cfg.Targeting.Worker = "nonexistent"
		if code := NewEngine().Run(context.Background(), cfg); code != 3 {
			t.Fatalf("want exit 3, got %d", code)
		}
	})
}

func TestRun_RetryableRecoversThroughRetry(t *testing.T) {
	manifest := `
workers:
  - name: smoke
    worker: echo
    mode: sync
    retry:
      max_attempts: 3
      base_delay: 1ms
      max_delay: 2ms
    config:
      flaky_accounts: ["111111111111"]
`
	cfg := launchConfig(t, writeManifest(t, manifest), writeIndexFile(t))
	if code := NewEngine().Run(context.Background(), cfg); code != 0 {
		t.Fatalf("flaky account should recover on retry; got exit %d", code)
	}
}

func TestApplyRuntimeOverrides(t *testing.T) {
	cfg := config.New()
	cfg.Runtime.Concurrency = 12
	cfg.Runtime.Timeout = 90 * time.Second
	cfg.Targeting.Commit = true

	def := worker.Definition{Concurrency: 5, Timeout: worker.Duration(5 * time.Minute)}
	applyRuntimeOverrides(cfg, &def)

	if def.Concurrency != 12 {
		t.Fatalf("concurrency override not applied: %d", def.Concurrency)
	}
	if def.Timeout.Std() != 90*time.Second {
		t.Fatalf("timeout override not applied: %v", def.Timeout.Std())
	}
	if committed, _ := def.Config["commit"].(bool); !committed {
		t.Fatalf("commit flag not injected into worker config: %v", def.Config)
	}
}

func TestApplyConfigOverridesIfAny(t *testing.T) {
	cfg := config.New()
	cfg.Targeting.Set = []string{"message=ahoy", "marker="}

	def := worker.Definition{Config: map[string]any{"message": "original", "keep": true}}
	if err := applyConfigOverridesIfAny(cfg, &def); err != nil {
		t.Fatalf("applyConfigOverridesIfAny error: %v", err)
	}
	if def.Config["message"] != "ahoy" {
		t.Fatalf("override not applied: %v", def.Config)
	}
	if def.Config["keep"] != true {
		t.Fatalf("untouched keys must survive: %v", def.Config)
	}
	if v, ok := def.Config["marker"]; !ok || v != "" {
		t.Fatalf("empty override value must be set: %v", def.Config)
	}
}
