package worker

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"starfleet/internal/resolve"
)

// ErrManifestInvalid indicates a fleet manifest that cannot be used. It is
// fatal to the run and surfaces before any dispatch.
var ErrManifestInvalid = errors.New("invalid fleet manifest")

// InvocationMode selects the execution substrate for a worker.
type InvocationMode string

const (
	// ModeSync executes the worker in-process inside the dispatcher pool.
	ModeSync InvocationMode = "sync"

	// ModeQueued hands payloads to the queued invocation substrate and
	// awaits completions, still bounded by the same concurrency limit.
	ModeQueued InvocationMode = "queued"
)

// Duration wraps time.Duration with YAML decoding from strings like "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// RetryPolicy controls per-target retry behavior for retryable failures.
type RetryPolicy struct {
	// MaxAttempts is the total attempt budget per target, including the
	// first attempt. 1 disables retries.
	MaxAttempts int `yaml:"max_attempts"`

	// BaseDelay is the delay before the first retry; subsequent delays grow
	// exponentially up to MaxDelay.
	BaseDelay Duration `yaml:"base_delay"`
	MaxDelay  Duration `yaml:"max_delay"`

	// Jitter randomizes each delay in [0, delay] to avoid thundering herds.
	Jitter bool `yaml:"jitter"`
}

// Definition is one worker entry in a fleet manifest: which plugin to run,
// where to run it, and how to run it.
type Definition struct {
	// Name identifies this manifest entry (a plugin may appear under several
	// names with different targeting).
	Name string `yaml:"name"`

	// Worker is the registered plugin name.
	Worker string `yaml:"worker"`

	// Enabled defaults to true; a disabled entry cannot be launched.
	Enabled *bool `yaml:"enabled,omitempty"`

	Mode        InvocationMode `yaml:"mode"`
	Concurrency int            `yaml:"concurrency"`
	Timeout     Duration       `yaml:"timeout"`
	Retry       RetryPolicy    `yaml:"retry"`

	Targeting resolve.Rule `yaml:"targeting"`

	// Config is opaque to the engine; it is snapshotted into every
	// invocation payload.
	Config map[string]any `yaml:"config,omitempty"`
}

// IsEnabled reports whether the entry may be launched.
func (d Definition) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// Manifest is a fleet manifest document: the declared worker fleet.
type Manifest struct {
	Workers []Definition `yaml:"workers"`
}

// Defaults applied by normalize when a manifest omits the knob.
const (
	defaultConcurrency = 5
	defaultTimeout     = Duration(5 * time.Minute)
	defaultMaxAttempts = 3
	defaultBaseDelay   = Duration(1 * time.Second)
	defaultMaxDelay    = Duration(30 * time.Second)
)

// LoadManifest reads and validates a fleet manifest.
func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrManifestInvalid, path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrManifestInvalid, path, err)
	}
	if len(m.Workers) == 0 {
		return nil, fmt.Errorf("%w: %s declares no workers", ErrManifestInvalid, path)
	}

	seen := make(map[string]struct{}, len(m.Workers))
	for i := range m.Workers {
		d := &m.Workers[i]
		if err := d.normalize(); err != nil {
			return nil, fmt.Errorf("%w: worker %q: %w", ErrManifestInvalid, d.Name, err)
		}
		if _, dup := seen[d.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate worker name %q", ErrManifestInvalid, d.Name)
		}
		seen[d.Name] = struct{}{}
	}
	return &m, nil
}

// Find returns the definition with the given name.
func (m *Manifest) Find(name string) (Definition, error) {
	for _, d := range m.Workers {
		if d.Name == name {
			return d, nil
		}
	}
	return Definition{}, fmt.Errorf("%w: no worker named %q", ErrManifestInvalid, name)
}

func (d *Definition) normalize() error {
	if d.Name == "" {
		return errors.New("name is required")
	}
	if d.Worker == "" {
		return errors.New("worker plugin name is required")
	}

	switch d.Mode {
	case "":
		d.Mode = ModeSync
	case ModeSync, ModeQueued:
	default:
		return fmt.Errorf("unsupported mode %q (must be sync or queued)", d.Mode)
	}

	if d.Concurrency == 0 {
		d.Concurrency = defaultConcurrency
	}
	if d.Concurrency < 1 {
		return fmt.Errorf("concurrency must be >= 1, got %d", d.Concurrency)
	}

	if d.Timeout == 0 {
		d.Timeout = defaultTimeout
	}
	if d.Timeout < 0 {
		return errors.New("timeout must be > 0")
	}

	if d.Retry.MaxAttempts == 0 {
		d.Retry.MaxAttempts = defaultMaxAttempts
	}
	if d.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1, got %d", d.Retry.MaxAttempts)
	}
	if d.Retry.BaseDelay == 0 {
		d.Retry.BaseDelay = defaultBaseDelay
	}
	if d.Retry.MaxDelay == 0 {
		d.Retry.MaxDelay = defaultMaxDelay
	}
	if d.Retry.MaxDelay < d.Retry.BaseDelay {
		return errors.New("retry.max_delay must be >= retry.base_delay")
	}

	if len(d.Targeting.Regions) > 0 && d.Targeting.AllRegions {
		return errors.New("targeting.regions and targeting.all_regions are mutually exclusive")
	}

	return nil
}
