package flags

// Package flags defines canonical CLI flag names shared across the CLI and engine.
// Keeping these as constants helps avoid drift between Cobra flag wiring and other
// code paths that need to reference flags.
// IMPORTANT: These are flag *names* without leading dashes.
// Example usage:
//
//	cmd.Flags().StringVar(&cfg.Targeting.Manifest, flags.FlagManifest, "", "...")
//	arg := "--" + flags.FlagManifest
const (
	// Targeting
	FlagManifest = "manifest"
	FlagWorker   = "worker"
	FlagAccounts = "accounts"
	FlagRegions  = "regions"
	FlagSet      = "set"
	FlagDryRun   = "dry-run"
	FlagCommit   = "commit"

	// Index
	FlagIndexFile = "index-file"
	FlagIndexDSN  = "index-dsn"

	// Queue
	FlagQueueProject            = "queue-project"
	FlagQueueTopic              = "queue-topic"
	FlagQueueResultSubscription = "queue-result-subscription"

	// Output
	FlagConsoleFormat       = "console-format"
	FlagConsoleFilterStatus = "console-filter-status"
	FlagOut                 = "out"
	FlagOutFormat           = "out-format"
	FlagEmit                = "emit"
	FlagNoConsole           = "no-console"

	// Runtime
	FlagConcurrency = "concurrency"
	FlagTimeout     = "timeout"
	FlagVerbose     = "verbose"
)
