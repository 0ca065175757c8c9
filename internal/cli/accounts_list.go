package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"starfleet/internal/flags"
	"starfleet/internal/index"
)

var (
	accountsIndexFile string
	accountsIndexDSN  string
	accountsListQuiet bool
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Inspect the account index",
	Long: `Inspect the account index a launch would resolve targets against.

Examples:
  # List every account in a snapshot
  starfleet accounts list --index-file accounts.json
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts in the index",
	Long: `List every account the configured index knows, ascending by ID.

Examples:
  starfleet accounts list --index-file accounts.json
  starfleet accounts list --index-dsn "ops:secret@tcp(db:3306)/fleet" --quiet
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if accountsIndexFile == "" && accountsIndexDSN == "" {
			return errors.New("one of --index-file or --index-dsn must be provided")
		}
		if accountsIndexFile != "" && accountsIndexDSN != "" {
			return errors.New("--index-file and --index-dsn are mutually exclusive")
		}

		var src index.Source
		if accountsIndexDSN != "" {
			sqlSrc, err := index.NewSQLSource(accountsIndexDSN)
			if err != nil {
				return err
			}
			defer sqlSrc.Close()
			src = sqlSrc
		} else {
			src = index.NewFileSource(accountsIndexFile)
		}

		idx, err := index.Load(cmd.Context(), src)
		if err != nil {
			return err
		}

		bold := color.New(color.Bold)
		for _, a := range idx.AllAccounts() {
			if accountsListQuiet {
				fmt.Fprintln(cmd.OutOrStdout(), a.ID)
				continue
			}
			bold.Fprintf(cmd.OutOrStdout(), "%s", a.ID)
			if a.Name != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s", a.Name)
			}
			if a.Type != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "  [%s]", a.Type)
			}
			if len(a.Regions) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "  (%s)", strings.Join(a.Regions, ", "))
			}
			fmt.Fprintln(cmd.OutOrStdout())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(accountsCmd)
	accountsCmd.AddCommand(accountsListCmd)
	accountsListCmd.Flags().StringVar(&accountsIndexFile, flags.FlagIndexFile, "", "Path to an account index snapshot JSON")
	accountsListCmd.Flags().StringVar(&accountsIndexDSN, flags.FlagIndexDSN, "", "MySQL DSN for a live account index")
	accountsListCmd.Flags().BoolVarP(&accountsListQuiet, "quiet", "q", false, "Only print account IDs")
}
