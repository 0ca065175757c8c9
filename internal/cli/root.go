package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "starfleet",
	Short: "Dispatch worker jobs across a fleet of accounts and regions",
	Long: `Starfleet fans worker jobs out across every (account, region) pair a
fleet manifest targets, supervises timeouts and retries, and reports exactly
what happened to each target.

Examples:
	# Show available commands and global flags
	starfleet --help

	# Launch a manifest worker against a file index
	starfleet launch --manifest fleet.yaml --worker echo --index-file accounts.json

	# List worker plugins
	starfleet workers list

	# Print build info
	starfleet version

Output:
	By default, commands write human-readable output to stdout.
	Some commands support structured output via emitter flags (see each command's --help).`,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&cfg.Runtime.Verbose, "verbose", false, "Enable verbose logging (full error details and retry diagnostics)")
}

func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	if date != "" {
		buildDate = date
	}

	rootCmd.Version = fmt.Sprintf("%s (%s) %s", buildVersion, buildCommit, buildDate)
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

func BuildInfo() (version, commit, date string) {
	return buildVersion, buildCommit, buildDate
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
