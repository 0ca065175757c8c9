package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"starfleet/internal/worker"
	_ "starfleet/internal/worker/plugins"
)

var workersListQuiet bool
var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "Manage and list worker plugins",
	Long: `Manage Starfleet worker plugins.

This command group helps you discover which worker plugins exist in this
build and what each one does. Manifest entries reference plugins by name
(see "starfleet launch --help").

Examples:
  # List all available worker plugins
  starfleet workers list
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var workersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available worker plugins",
	Long: `List all worker plugins currently registered in this build.

Plugins are sorted by name.

Examples:
  starfleet workers list

Output:
  A vertical list of plugins:
    ----------------------------------------
    WORKER: {NAME}
    ----------------------------------------
    {DESCRIPTION}
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, w := range worker.List() {
			if workersListQuiet {
				fmt.Fprintln(cmd.OutOrStdout(), w.Name())
			} else {
				printWorker(cmd.OutOrStdout(), w)
			}
		}
		return nil
	},
}

var workersShowCmd = &cobra.Command{
	Use:   "show [worker-name]",
	Short: "Show details of a specific worker plugin",
	Long: `Show details of a specific worker plugin by its name.

Examples:
  starfleet workers show echo
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := worker.Resolve(args[0])
		if err != nil {
			return err
		}
		printWorker(cmd.OutOrStdout(), w)
		return nil
	},
}

func printWorker(w io.Writer, p worker.Worker) {
	bold := color.New(color.Bold)
	fmt.Fprintln(w, "----------------------------------------")
	bold.Fprintf(w, "WORKER: %s\n", p.Name())
	fmt.Fprintln(w, "----------------------------------------")
	fmt.Fprintln(w, p.Description())
	fmt.Fprintln(w)
}

func init() {
	rootCmd.AddCommand(workersCmd)
	workersCmd.AddCommand(workersListCmd)
	workersListCmd.Flags().BoolVarP(&workersListQuiet, "quiet", "q", false, "Only print worker names")
	workersCmd.AddCommand(workersShowCmd)
}
