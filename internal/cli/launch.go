package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"starfleet/internal/config"
	"starfleet/internal/engine"
	"starfleet/internal/flags"
)

var cfg = config.New()

const launchHelpTemplate = `{{with (or .Long .Short)}}{{. | trimTrailingWhitespaces}}

{{end}}Usage:
  {{.UseLine}}

{{if .HasAvailableLocalFlags}}Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}{{if .HasAvailableInheritedFlags}}Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}Index sources:
	Starfleet resolves targets against an account index.

	Sources (exactly one):
	1) --index-file: a snapshot JSON document ({"accounts": {...}, "generated": ...})
	2) --index-dsn: a MySQL DSN for a live accounts table

  Examples:
    # File index
    starfleet launch --manifest fleet.yaml --worker echo --index-file accounts.json

    # Live index
    starfleet launch --manifest fleet.yaml --worker echo \
      --index-dsn "ops:secret@tcp(db:3306)/fleet"

{{if .HasAvailableSubCommands}}Available Commands:
{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

{{end}}{{if .HasAvailableSubCommands}}Use "{{.CommandPath}} [command] --help" for more information about a command.
{{end}}`

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Launch a manifest worker across its targets",
	Long: `Launch one worker from a fleet manifest across every (account, region)
pair its targeting rule resolves to.

Targeting:
	The manifest declares include/exclude filters over accounts (IDs, names,
	tags, org units, types) plus a region list. Exclusion always beats
	inclusion. --accounts and --regions narrow the resolved set further; they
	never add targets.

Safety:
	Workers run read-only unless --commit is given. --dry-run prints the
	resolved launch plan and exits without dispatching anything.

Output:
	Console output is controlled by --console-format (default: text).
	Structured outputs can be written via:
	- --out / --out-format: write an aggregate JSON array or NDJSON stream to a file
	- --emit: write an additional structured stream to stdout (json or ndjson)
	- --no-console: suppress the console sink (use with --emit/--out for machine output)

	NDJSON mode emits one JSON object per line. Objects are lifecycle Events with a
	"type" field (run.started, target.outcome, run.finished).

Exit codes:
	0 = success, every target succeeded (or no targets resolved)
	1 = partial failure (some targets failed, some succeeded)
	2 = failure (every target failed)
	3 = fatal error (run never dispatched)

Examples:
  # Smoke-test targeting with the built-in echo worker
  starfleet launch --manifest fleet.yaml --worker echo --index-file accounts.json --dry-run

  # Launch for real, with mutations enabled
  starfleet launch --manifest fleet.yaml --worker inventory --index-file accounts.json --commit

	# Stream machine-readable events to stdout
	starfleet launch --manifest fleet.yaml --worker echo --index-dsn "$DSN" --no-console --emit ndjson
`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 && cmd.Flags().NFlag() == 0 {
			_ = cmd.Help()
			return
		}

		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(3)
		}

		eng := engine.NewEngine()
		os.Exit(eng.Run(context.Background(), cfg))
	},
}

func init() {
	rootCmd.AddCommand(launchCmd)
	launchCmd.SetHelpTemplate(launchHelpTemplate)

	// MAINTAINER NOTE: If you add/change/remove any launch-affecting flags
	// here, keep internal/config/config.go's sections and Validate in sync.

	// Targeting
	launchCmd.Flags().StringVar(&cfg.Targeting.Manifest, flags.FlagManifest, "", "Path to the fleet manifest YAML (required)")
	launchCmd.Flags().StringVar(&cfg.Targeting.Worker, flags.FlagWorker, "", "Manifest worker entry to launch (required)")
	launchCmd.Flags().StringSliceVar(&cfg.Targeting.Accounts, flags.FlagAccounts, nil, "Narrow to these account IDs (repeatable; comma-separated accepted)")
	launchCmd.Flags().StringSliceVar(&cfg.Targeting.Regions, flags.FlagRegions, nil, "Narrow to these regions (repeatable; comma-separated accepted)")
	launchCmd.Flags().StringSliceVar(&cfg.Targeting.Set, flags.FlagSet, nil, "Worker config overrides as key=value (repeatable; comma-separated accepted)")
	launchCmd.Flags().BoolVar(&cfg.Targeting.DryRun, flags.FlagDryRun, false, "Resolve targets and print the launch plan without dispatching")
	launchCmd.Flags().BoolVar(&cfg.Targeting.Commit, flags.FlagCommit, false, "Allow workers to perform mutating actions (default: read-only)")

	// Index
	launchCmd.Flags().StringVar(&cfg.Index.File, flags.FlagIndexFile, "", "Path to an account index snapshot JSON")
	launchCmd.Flags().StringVar(&cfg.Index.DSN, flags.FlagIndexDSN, "", "MySQL DSN for a live account index")

	// Queue (only used by workers with mode: queued)
	launchCmd.Flags().StringVar(&cfg.Queue.Project, flags.FlagQueueProject, "", "Pub/Sub project for queued invocation mode")
	launchCmd.Flags().StringVar(&cfg.Queue.Topic, flags.FlagQueueTopic, "", "Pub/Sub topic receiving invocation events")
	launchCmd.Flags().StringVar(&cfg.Queue.ResultSubscription, flags.FlagQueueResultSubscription, "", "Pub/Sub subscription delivering completion events")

	// Output
	launchCmd.Flags().StringVar(&cfg.Output.ConsoleFormat, flags.FlagConsoleFormat, "text", "Console output format: text|json|ndjson (default: text)")
	launchCmd.Flags().StringSliceVar(&cfg.Output.ConsoleFilterStatus, flags.FlagConsoleFilterStatus, nil, "Filter console output by status (SUCCEEDED, EXHAUSTED, FATAL, SKIPPED). Comma-separated.")
	launchCmd.Flags().StringVar(&cfg.Output.Out, flags.FlagOut, "", "Write structured output to this path")
	launchCmd.Flags().StringVar(&cfg.Output.OutFormat, flags.FlagOutFormat, "", "Structured output format for --out: json|ndjson (default: inferred from file extension)")
	launchCmd.Flags().StringSliceVar(&cfg.Output.Emit, flags.FlagEmit, nil, "Emit additional structured stream to stdout: json|ndjson (repeatable; comma-separated accepted)")
	launchCmd.Flags().BoolVar(&cfg.Output.NoConsole, flags.FlagNoConsole, false, "Suppress console output (use with --emit/--out)")

	// Runtime
	launchCmd.Flags().IntVar(&cfg.Runtime.Concurrency, flags.FlagConcurrency, 0, "Override the manifest worker pool size (0 = use manifest)")
	launchCmd.Flags().DurationVar(&cfg.Runtime.Timeout, flags.FlagTimeout, 0, "Override the manifest per-target timeout (0 = use manifest)")
}
