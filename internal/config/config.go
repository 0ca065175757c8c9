package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	// MAINTAINER NOTE: If you add/change/remove config fields that affect run
	// behavior, keep the CLI flags in internal/cli/launch.go in sync.
	Targeting Targeting
	Index     Index
	Queue     Queue
	Output    Output
	Runtime   Runtime
}

type Targeting struct {
	// Manifest is the path to the fleet manifest YAML (see --manifest).
	Manifest string

	// Worker selects the manifest worker entry to launch (see --worker).
	Worker string

	// Accounts narrows the resolved target set to these account IDs
	// (see --accounts). Values may be provided as repeated flags and/or
	// comma-separated lists.
	Accounts []string

	// Regions narrows the resolved target set to these regions (see --regions).
	// Same input rules as Accounts.
	Regions []string

	// Set provides worker config overrides from the CLI.
	// Entries are of the form key=value (repeatable; comma-separated accepted; see --set).
	Set []string

	// DryRun resolves the target set and prints the launch plan without
	// dispatching (see --dry-run).
	DryRun bool

	// Commit lets workers perform mutating actions. Without it workers run
	// in read-only mode (see --commit).
	Commit bool
}

type Index struct {
	// File is the path to an account index snapshot JSON (see --index-file).
	File string

	// DSN is a MySQL DSN for a live account index (see --index-dsn).
	// Exactly one of File or DSN must be provided.
	DSN string
}

type Queue struct {
	// Project is the Pub/Sub project for queued invocation mode (see --queue-project).
	Project string

	// Topic is the invocation topic (see --queue-topic).
	Topic string

	// ResultSubscription is the completion subscription (see --queue-result-subscription).
	ResultSubscription string
}

type Output struct {
	// ConsoleFormat controls the human-facing console sink format (see --console-format).
	// Allowed values: text, json, ndjson.
	ConsoleFormat string

	// ConsoleFilterStatus filters console output by outcome status (see --console-filter-status).
	// Allowed values: SUCCEEDED, EXHAUSTED, FATAL, SKIPPED.
	ConsoleFilterStatus []string

	// Out writes structured output to this path (see --out).
	Out string

	// OutFormat selects the format for --out (see --out-format).
	// Allowed values: json, ndjson. If empty, it is inferred from the --out file extension.
	OutFormat string

	// Emit writes an additional structured event stream to stdout (see --emit).
	// Allowed values: json, ndjson.
	Emit []string

	// NoConsole suppresses the console sink (see --no-console).
	// Use with --emit/--out for machine-readable output.
	NoConsole bool
}

type Runtime struct {
	// Concurrency overrides the manifest worker pool size (see --concurrency).
	// 0 means use the manifest value.
	Concurrency int

	// Timeout overrides the manifest per-target timeout (see --timeout).
	// 0 means use the manifest value.
	Timeout time.Duration

	// Verbose enables more detailed diagnostics.
	Verbose bool
}

func New() *Config {
	return &Config{
		Output: Output{
			ConsoleFormat: "text",
		},
	}
}

func (c *Config) Validate() error {
	// Normalize comma-delimited list inputs.
	c.Targeting.Accounts = splitCommaList(c.Targeting.Accounts)
	c.Targeting.Regions = splitCommaList(c.Targeting.Regions)
	c.Targeting.Set = splitCommaList(c.Targeting.Set)
	c.Output.ConsoleFilterStatus = splitCommaList(c.Output.ConsoleFilterStatus)
	c.Output.Emit = splitCommaList(c.Output.Emit)

	// Targeting validation
	if c.Targeting.Manifest == "" {
		return errors.New("--manifest must be provided")
	}
	if c.Targeting.Worker == "" {
		return errors.New("--worker must be provided")
	}
	if c.Targeting.DryRun && c.Targeting.Commit {
		return errors.New("--dry-run and --commit are mutually exclusive")
	}

	// Index validation
	if c.Index.File == "" && c.Index.DSN == "" {
		return errors.New("one of --index-file or --index-dsn must be provided")
	}
	if c.Index.File != "" && c.Index.DSN != "" {
		return errors.New("--index-file and --index-dsn are mutually exclusive")
	}

	// Queue validation: partial queue wiring is always a mistake.
	queueSet := c.Queue.Project != "" || c.Queue.Topic != "" || c.Queue.ResultSubscription != ""
	if queueSet {
		if c.Queue.Project == "" {
			return errors.New("--queue-project is required when queue flags are set")
		}
		if c.Queue.Topic == "" {
			return errors.New("--queue-topic is required when queue flags are set")
		}
	}

	// Output validation
	c.Output.ConsoleFormat = normalizeEnumValue(c.Output.ConsoleFormat)
	if c.Output.ConsoleFormat == "" {
		c.Output.ConsoleFormat = "text"
	}
	if c.Output.ConsoleFormat != "text" && c.Output.ConsoleFormat != "json" && c.Output.ConsoleFormat != "ndjson" {
		return fmt.Errorf("unsupported --console-format: %s (must be one of: text, json, ndjson)", c.Output.ConsoleFormat)
	}

	for _, emit := range c.Output.Emit {
		v := normalizeEnumValue(emit)
		if v != "json" && v != "ndjson" {
			return fmt.Errorf("unsupported --emit value: %s (must be one of: json, ndjson)", emit)
		}
	}

	// Runtime validation
	if c.Runtime.Concurrency < 0 {
		return errors.New("--concurrency must be >= 1")
	}
	if c.Runtime.Timeout < 0 {
		return errors.New("--timeout must be > 0")
	}

	if c.Output.Out != "" {
		c.Output.OutFormat = normalizeEnumValue(c.Output.OutFormat)
		if c.Output.OutFormat == "" {
			ext := strings.ToLower(filepath.Ext(c.Output.Out))
			switch ext {
			case ".json":
				c.Output.OutFormat = "json"
			case ".ndjson", ".jsonl":
				c.Output.OutFormat = "ndjson"
			default:
				if ext == "" {
					return errors.New("cannot infer output format from file extension (missing extension); use --out-format")
				}
				return fmt.Errorf("cannot infer output format from file extension %q; use --out-format", ext)
			}
		} else {
			if c.Output.OutFormat != "json" && c.Output.OutFormat != "ndjson" {
				return fmt.Errorf("unsupported output format: %s", c.Output.OutFormat)
			}
		}
	}

	// Override syntax validation (key=value)
	if len(c.Targeting.Set) > 0 {
		if _, err := ParseConfigOverrides(c.Targeting.Set); err != nil {
			return err
		}
	}

	return nil
}

func normalizeEnumValue(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// ParseConfigOverrides parses values of the form "key=value" into worker
// config overrides.
//
// Notes:
// - Entries may be provided via repeated flags and/or comma-delimited lists.
// - Keys must be non-empty; empty values are allowed ("key=").
func ParseConfigOverrides(values []string) (map[string]string, error) {
	out := make(map[string]string)
	for _, raw := range splitCommaList(values) {
		key, value, ok := strings.Cut(raw, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --set entry %q: expected key=value", raw)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("invalid --set entry %q: expected non-empty key", raw)
		}
		out[key] = strings.TrimSpace(value)
	}
	return out, nil
}

func splitCommaList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			p := strings.TrimSpace(part)
			if p == "" {
				continue
			}
			out = append(out, p)
		}
	}
	return out
}
